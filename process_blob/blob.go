// Package process_blob provides an in-memory address space: a byte image mapped
// at a base address with per-page protection. It backs offline scanning of
// library images and stands in for the live process in tests.
package process_blob

import (
	"encoding/binary"
	"fmt"
	"sync"

	"mbloader/process"
	"mbloader/process/memory_map"
)

// PageSize is the protection granularity of a ProcessBlob
const PageSize = 0x1000

// Flush records one FlushInstructionCache call
type Flush struct {
	Address process.ProcessMemoryAddress
	Size    process.ProcessMemorySize
}

type ProcessBlob struct {
	baseaddress process.ProcessMemoryAddress
	data        []byte
	path        string

	mu      sync.Mutex
	prot    []process.Protection // one entry per page
	flushes []Flush
}

var _ process.Process = (*ProcessBlob)(nil)

// NewProcessBlob maps data at baseAddress with read/execute protection
func NewProcessBlob(baseAddress process.ProcessMemoryAddress, data []byte) *ProcessBlob {
	return NewProcessBlobWithProtection(baseAddress, data, process.ProtReadExec)
}

func NewProcessBlobWithProtection(baseAddress process.ProcessMemoryAddress, data []byte, prot process.Protection) *ProcessBlob {
	pages := (len(data) + PageSize - 1) / PageSize
	p := &ProcessBlob{
		baseaddress: baseAddress,
		data:        data,
		prot:        make([]process.Protection, pages),
	}
	for i := range p.prot {
		p.prot[i] = prot
	}
	return p
}

// SetPath names the backing file reported in the memory map
func (p *ProcessBlob) SetPath(path string) {
	p.path = path
}

func (p *ProcessBlob) Data() []byte {
	return p.data
}

func (p *ProcessBlob) Base() process.ProcessMemoryAddress {
	return p.baseaddress
}

// Flushes returns the instruction cache flushes seen so far
func (p *ProcessBlob) Flushes() []Flush {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Flush(nil), p.flushes...)
}

// ProtectionAt returns the protection of the page holding addr
func (p *ProcessBlob) ProtectionAt(addr process.ProcessMemoryAddress) process.Protection {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(addr, 1)
	if err != nil {
		return process.ProtNone
	}
	return p.prot[off/PageSize]
}

func (p *ProcessBlob) offset(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (int, error) {
	if addr < p.baseaddress || uint64(addr-p.baseaddress)+uint64(size) > uint64(len(p.data)) {
		return 0, fmt.Errorf("%#x+%#x: %w", uint64(addr), uint64(size), process.ErrAddressNotMapped)
	}
	return int(addr - p.baseaddress), nil
}

func (p *ProcessBlob) GetPID() process.ProcessID {
	return 0
}

func (p *ProcessBlob) UpdateMemoryMap() error {
	return nil
}

// GetMemoryMap reports one mapping per run of pages with equal protection
func (p *ProcessBlob) GetMemoryMap() ([]memory_map.MemoryMapItem, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var items []memory_map.MemoryMapItem
	for start := 0; start < len(p.prot); {
		end := start + 1
		for end < len(p.prot) && p.prot[end] == p.prot[start] {
			end++
		}
		size := end*PageSize - start*PageSize
		if end*PageSize > len(p.data) {
			size = len(p.data) - start*PageSize
		}
		items = append(items, memory_map.MemoryMapItem{
			Address: uint64(p.baseaddress) + uint64(start*PageSize),
			Size:    uint(size),
			Perms:   p.prot[start].String() + "p",
			Offset:  uint64(start * PageSize),
			Path:    p.path,
		})
		start = end
	}
	return items, nil
}

func (p *ProcessBlob) IsValidAddress(addr process.ProcessMemoryAddress) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(addr, 1)
	return err == nil && p.prot[off/PageSize]&process.ProtRead != 0
}

func (p *ProcessBlob) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(addr, size)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, p.data[off:])
	return out, nil
}

// WriteMemory fails with ErrNotWritable unless every touched page is writable
func (p *ProcessBlob) WriteMemory(addr process.ProcessMemoryAddress, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(addr, process.ProcessMemorySize(len(data)))
	if err != nil {
		return err
	}
	for page := off / PageSize; page*PageSize < off+len(data); page++ {
		if p.prot[page]&process.ProtWrite == 0 {
			return fmt.Errorf("page %#x is %s: %w", uint64(p.baseaddress)+uint64(page*PageSize), p.prot[page], process.ErrNotWritable)
		}
	}
	copy(p.data[off:], data)
	return nil
}

func (p *ProcessBlob) Protect(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	off, err := p.offset(addr, size)
	if err != nil {
		return err
	}
	first := off / PageSize
	last := (off + int(size) + PageSize - 1) / PageSize
	if last == first {
		last++
	}
	for page := first; page < last && page < len(p.prot); page++ {
		p.prot[page] = prot
	}
	return nil
}

func (p *ProcessBlob) FlushInstructionCache(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.flushes = append(p.flushes, Flush{Address: addr, Size: size})
	return nil
}

// ReadUINT32 reads an unsigned 32-bit integer from the specified address
func (p *ProcessBlob) ReadUINT32(addr process.ProcessMemoryAddress) (uint32, error) {
	data, err := p.ReadMemory(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ReadUINT64 reads an unsigned 64-bit integer from the specified address
func (p *ProcessBlob) ReadUINT64(addr process.ProcessMemoryAddress) (uint64, error) {
	data, err := p.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadPOINTER reads a pointer value from the specified address
func (p *ProcessBlob) ReadPOINTER(addr process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	return process.ReadPointer(p, addr)
}

// ReadPOINTER2 reads a pointer value from the specified address, zero on error
func (p *ProcessBlob) ReadPOINTER2(addr process.ProcessMemoryAddress) process.ProcessMemoryAddress {
	ptr, err := p.ReadPOINTER(addr)
	if err != nil {
		return 0
	}
	return ptr
}

func (p *ProcessBlob) ReadPointerChain(base process.ProcessMemoryAddress, size process.ProcessMemorySize, offsets ...process.ProcessMemorySize) ([]byte, error) {
	return process.ReadPointerChain(p, base, size, offsets...)
}
