package hook

import (
	"sync"
	"sync/atomic"

	"mbloader/process"
)

// State of a OneShot hook
type State int32

const (
	Armed State = iota
	Disarmed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "disarmed"
}

// OneShot observes exactly one call to a function. The replacement calls
// Fire, which restores the original code so the replacement can call through
// to it; the hook is never installed again.
type OneShot struct {
	ic     *Interceptor
	target process.ProcessMemoryAddress
	saved  []byte

	mu    sync.Mutex
	state atomic.Int32
}

// Arm installs a one-shot redirect from target to replacement
func Arm(ic *Interceptor, target, replacement process.ProcessMemoryAddress) (*OneShot, error) {
	saved, err := ic.Install(target, replacement)
	if err != nil {
		return nil, err
	}
	o := &OneShot{ic: ic, target: target, saved: saved}
	o.state.Store(int32(Armed))
	return o, nil
}

// Fire reverts the hook and moves it from Armed to Disarmed. Only the first
// successful caller gets true, and other callers wait until the code is
// restored. A failed revert leaves the hook Armed and returns the error; the
// target still jumps to the replacement and must not be called.
func (o *OneShot) Fire() (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if State(o.state.Load()) == Disarmed {
		return false, nil
	}
	if err := o.ic.Revert(o.target, o.saved); err != nil {
		return false, err
	}
	o.state.Store(int32(Disarmed))
	return true, nil
}

func (o *OneShot) State() State {
	return State(o.state.Load())
}

func (o *OneShot) Target() process.ProcessMemoryAddress {
	return o.target
}
