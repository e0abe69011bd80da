// Package rpm holds the capability recovered from the host's
// ResourcePackManager: the instance pointer and its virtual load function.
package rpm

import (
	"errors"
	"fmt"
	"sync"

	"mbloader/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// LoadSlot is the vtable index of ResourcePackManager::load
const LoadSlot = 2

var (
	// ErrAlreadyCaptured is returned by every Capture after the first success
	ErrAlreadyCaptured = errors.New("capability already captured")

	ErrNotCaptured = errors.New("capability not captured")
)

// Capability is written once and read by every asset open afterwards
type Capability struct {
	mu       sync.RWMutex
	captured bool
	instance process.ProcessMemoryAddress
	load     process.ProcessMemoryAddress

	log *logger.Logger
}

func NewCapability() *Capability {
	return &Capability{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "rpm")),
	}
}

// Capture reads the load function out of instance's vtable
func (c *Capability) Capture(proc process.ProcessRead, instance process.ProcessMemoryAddress) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.captured {
		return ErrAlreadyCaptured
	}
	if instance == 0 {
		return fmt.Errorf("instance: %w", process.ErrInvalidPointer)
	}

	// instance -> [+0]vptr -> [+LoadSlot*PointerSize]load
	data, err := proc.ReadPointerChain(instance, process.PointerSize, 0, LoadSlot*process.PointerSize)
	if err != nil {
		return fmt.Errorf("failed to read vtable of %s: %w", instance.ToString(), err)
	}
	load := process.DecodePointer(data)
	if load == 0 {
		return fmt.Errorf("load slot of %s: %w", instance.ToString(), process.ErrInvalidPointer)
	}

	c.instance, c.load, c.captured = instance, load, true
	c.log.Infoln("captured ResourcePackManager", instance.ToString(), "load", load.ToString())

	return nil
}

// Get returns the captured instance and load function
func (c *Capability) Get() (instance, load process.ProcessMemoryAddress, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.captured {
		return 0, 0, ErrNotCaptured
	}
	return c.instance, c.load, nil
}

// CallFunc invokes load(instance, path) in the host and returns the bytes it
// produced; ok is false when the host reports failure
type CallFunc func(load, instance process.ProcessMemoryAddress, path string) (content []byte, ok bool)

// Loader serves pack content through the captured load function
type Loader struct {
	Capability *Capability
	Call       CallFunc
}

// Load reports not found until the capability has been captured, and for
// empty results
func (l *Loader) Load(path string) ([]byte, bool) {
	instance, load, err := l.Capability.Get()
	if err != nil {
		return nil, false
	}
	content, ok := l.Call(load, instance, path)
	if !ok || len(content) == 0 {
		return nil, false
	}
	return content, true
}
