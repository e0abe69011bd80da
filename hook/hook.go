// Package hook redirects functions in the running process by overwriting
// their first instructions with an absolute jump.
//
// Installing or reverting a hook while another thread executes the patched
// bytes is a race; hooks are placed once, early, before the host starts
// worker threads.
package hook

import (
	"errors"
	"fmt"
	"sync"

	"mbloader/hexdump"
	"mbloader/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	// ErrDoubleHook is returned when the target already carries a hook
	ErrDoubleHook = errors.New("target already hooked")

	// ErrHookNotFound is returned when reverting a target without a hook
	ErrHookNotFound = errors.New("hook not found")

	ErrUnsupportedArch = errors.New("unsupported architecture")

	ErrSavedLength = errors.New("saved bytes have wrong length")
)

// Record describes one installed hook
type Record struct {
	Target      process.ProcessMemoryAddress
	At          process.ProcessMemoryAddress
	Replacement process.ProcessMemoryAddress
	Saved       []byte
}

// Interceptor installs and reverts hooks in one address space
type Interceptor struct {
	proc process.Process
	arch Arch
	log  *logger.Logger

	mu      sync.Mutex
	records map[process.ProcessMemoryAddress]*Record
}

func NewInterceptor(proc process.Process, arch Arch) *Interceptor {
	return &Interceptor{
		proc:    proc,
		arch:    arch,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "hook-"+arch.Name)),
		records: make(map[process.ProcessMemoryAddress]*Record),
	}
}

// Install redirects target to replacement and returns the overwritten bytes
func (h *Interceptor) Install(target, replacement process.ProcessMemoryAddress) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.records[target]; ok {
		return nil, fmt.Errorf("%s: %w", target.ToString(), ErrDoubleHook)
	}

	at, code, err := h.arch.Encode(target, replacement)
	if err != nil {
		return nil, err
	}

	saved, err := h.proc.ReadMemory(at, process.ProcessMemorySize(h.arch.PatchLen))
	if err != nil {
		return nil, fmt.Errorf("failed to save original bytes at %s: %w", at.ToString(), err)
	}

	if err := h.patch(at, code); err != nil {
		return nil, err
	}

	h.records[target] = &Record{Target: target, At: at, Replacement: replacement, Saved: saved}
	h.log.Debugln("hooked", target.ToString(), "->", replacement.ToString(), "saved", hexdump.DumpCompact(saved))

	return saved, nil
}

// Revert writes saved back over the hook at target
func (h *Interceptor) Revert(target process.ProcessMemoryAddress, saved []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	record, ok := h.records[target]
	if !ok {
		return fmt.Errorf("%s: %w", target.ToString(), ErrHookNotFound)
	}
	if len(saved) != h.arch.PatchLen {
		return fmt.Errorf("%d bytes, want %d: %w", len(saved), h.arch.PatchLen, ErrSavedLength)
	}

	if err := h.patch(record.At, saved); err != nil {
		return err
	}

	delete(h.records, target)
	h.log.Debugln("reverted", target.ToString())

	return nil
}

// Lookup returns the hook installed at target
func (h *Interceptor) Lookup(target process.ProcessMemoryAddress) (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	record, ok := h.records[target]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// patch makes the range writable, writes, restores r-x and flushes the
// instruction cache
func (h *Interceptor) patch(at process.ProcessMemoryAddress, code []byte) error {
	size := process.ProcessMemorySize(len(code))

	if err := h.proc.Protect(at, size, process.ProtReadWriteExec); err != nil {
		return fmt.Errorf("failed to unprotect %s: %w", at.ToString(), err)
	}

	writeErr := h.proc.WriteMemory(at, code)

	if err := h.proc.Protect(at, size, process.ProtReadExec); err != nil && writeErr == nil {
		return fmt.Errorf("failed to restore protection at %s: %w", at.ToString(), err)
	}
	if writeErr != nil {
		return fmt.Errorf("failed to write %s: %w", at.ToString(), writeErr)
	}

	return h.proc.FlushInstructionCache(at, size)
}
