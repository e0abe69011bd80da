package process

import (
	"mbloader/process/memory_map"
)

// Process is the interface that defines operations on an address space
type Process interface {
	// GetPID returns the process ID
	GetPID() ProcessID

	// UpdateMemoryMap refreshes the memory map for the process
	UpdateMemoryMap() error

	// IsValidAddress checks if the given memory address is valid and readable
	IsValidAddress(addr ProcessMemoryAddress) bool

	// GetMemoryMap returns a copy of the current memory map
	GetMemoryMap() ([]memory_map.MemoryMapItem, error)

	// ReadMemory reads memory from the process at the specified address
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteMemory writes data to the process memory at the specified address.
	// The target pages must already be writable.
	WriteMemory(addr ProcessMemoryAddress, data []byte) error

	// Protect changes the protection of every page overlapping [addr, addr+size)
	Protect(addr ProcessMemoryAddress, size ProcessMemorySize, prot Protection) error

	// FlushInstructionCache makes patched code in [addr, addr+size) visible to instruction fetch
	FlushInstructionCache(addr ProcessMemoryAddress, size ProcessMemorySize) error

	// Typed memory reading operations
	ProcessRead
}

// ProcessRead defines typed read operations for process memory
type ProcessRead interface {
	// ReadUINT32 reads an unsigned 32-bit integer from the specified address
	ReadUINT32(addr ProcessMemoryAddress) (uint32, error)

	// ReadUINT64 reads an unsigned 64-bit integer from the specified address
	ReadUINT64(addr ProcessMemoryAddress) (uint64, error)

	// ReadPOINTER reads a pointer value from the specified address
	ReadPOINTER(addr ProcessMemoryAddress) (ProcessMemoryAddress, error)

	// ReadPOINTER2 reads a pointer value from the specified address, zero on error
	ReadPOINTER2(addr ProcessMemoryAddress) ProcessMemoryAddress

	// ReadPointerChain dereferences every offset except the last and reads size bytes there
	ReadPointerChain(base ProcessMemoryAddress, size ProcessMemorySize, offsets ...ProcessMemorySize) ([]byte, error)
}
