//go:build linux

// Package process_self implements process.Process for the process this code runs in
package process_self

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"mbloader/process"
	"mbloader/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// SelfProcess implements the process.Process interface for the current process.
// Reads and writes go through process_vm_readv/writev against our own pid so a
// bad address surfaces as an error instead of a fault.
type SelfProcess struct {
	pid process.ProcessID
	log *logger.Logger
	mm  []memory_map.MemoryMapItem
	mu  sync.Mutex
}

var _ process.Process = (*SelfProcess)(nil)

// New creates a SelfProcess and reads its memory map
func New() (*SelfProcess, error) {
	pid := process.ProcessID(os.Getpid())
	p := &SelfProcess{
		pid: pid,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("process-%d", pid))),
	}

	if err := p.UpdateMemoryMap(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory map: %w", err)
	}

	p.log.Infoln("Process opened with", len(p.mm), "mappings")

	return p, nil
}

// GetPID returns the process ID
func (p *SelfProcess) GetPID() process.ProcessID {
	return p.pid
}

func (p *SelfProcess) UpdateMemoryMap() error {
	mm, err := memory_map.ReadMemoryMap(int(p.pid))
	if err != nil {
		return fmt.Errorf("failed to read memory map: %w", err)
	}

	p.mu.Lock()
	p.mm = mm
	p.mu.Unlock()
	return nil
}

// IsValidAddress checks addr against the cached memory map, and rereads the
// map once when addr is not readable in it
func (p *SelfProcess) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	valid := p.isValidAddressInternal(addr)
	p.mu.Unlock()
	if valid || addr <= 0x10000 {
		return valid
	}

	if err := p.UpdateMemoryMap(); err != nil {
		p.log.Warn("Failed to refresh memory map: ", err)
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isValidAddressInternal(addr)
}

// Internal helper function that assumes the mutex is already locked
func (p *SelfProcess) isValidAddressInternal(addr process.ProcessMemoryAddress) bool {
	if addr <= 0x10000 {
		return false
	}

	if item := memory_map.IsValidAddress2(uint64(addr), p.mm); item != nil {
		return item.IsReadable()
	}

	return false
}

func (p *SelfProcess) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Make a copy of the memory map to prevent external modification
	result := make([]memory_map.MemoryMapItem, len(p.mm))
	copy(result, p.mm)

	return result, nil
}

// ReadUINT32 reads an unsigned 32-bit integer from the specified address
func (p *SelfProcess) ReadUINT32(addr process.ProcessMemoryAddress) (uint32, error) {
	data, err := p.ReadMemory(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ReadUINT64 reads an unsigned 64-bit integer from the specified address
func (p *SelfProcess) ReadUINT64(addr process.ProcessMemoryAddress) (uint64, error) {
	data, err := p.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadPOINTER reads a pointer of the native width
func (p *SelfProcess) ReadPOINTER(addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	return process.ReadPointer(p, addr)
}

// ReadPOINTER2 reads a pointer, zero on error
func (p *SelfProcess) ReadPOINTER2(addr process.ProcessMemoryAddress) process.ProcessMemoryAddress {
	ptr, err := p.ReadPOINTER(addr)
	if err != nil {
		return 0
	}
	return ptr
}

func (p *SelfProcess) ReadPointerChain(base process.ProcessMemoryAddress, size process.ProcessMemorySize, offsets ...process.ProcessMemorySize) ([]byte, error) {
	return process.ReadPointerChain(p, base, size, offsets...)
}
