package process

import (
	"encoding/binary"
	"fmt"
)

// MemoryReader is the minimal read surface needed to walk pointers
type MemoryReader interface {
	ReadMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)
}

// DecodePointer decodes a little-endian pointer of PointerSize bytes
func DecodePointer(data []byte) ProcessMemoryAddress {
	if PointerSize == 4 {
		return ProcessMemoryAddress(binary.LittleEndian.Uint32(data))
	}
	return ProcessMemoryAddress(binary.LittleEndian.Uint64(data))
}

// EncodePointer is the inverse of DecodePointer
func EncodePointer(addr ProcessMemoryAddress) []byte {
	out := make([]byte, PointerSize)
	if PointerSize == 4 {
		binary.LittleEndian.PutUint32(out, uint32(addr))
	} else {
		binary.LittleEndian.PutUint64(out, uint64(addr))
	}
	return out
}

// ReadPointer reads a single pointer through r
func ReadPointer(r MemoryReader, addr ProcessMemoryAddress) (ProcessMemoryAddress, error) {
	data, err := r.ReadMemory(addr, PointerSize)
	if err != nil {
		return 0, err
	}
	return DecodePointer(data), nil
}

// ReadPointerChain walks pointer fields at all offsets except the last,
// which is treated as a raw byte offset into the final struct, and then
// reads `size` bytes starting there.
//
// Example, reading slot 2 of a C++ vtable:
//
//	// obj -> [ +0 ]vptr -> [ +2*PointerSize ]slot
//	data, err := process.ReadPointerChain(proc, obj, process.PointerSize, 0, 2*process.PointerSize)
func ReadPointerChain(r MemoryReader, base ProcessMemoryAddress, size ProcessMemorySize, offsets ...ProcessMemorySize) ([]byte, error) {
	if len(offsets) == 0 {
		return r.ReadMemory(base, size)
	}

	current := base
	for i := 0; i < len(offsets)-1; i++ {
		addr := current + ProcessMemoryAddress(offsets[i])
		ptr, err := ReadPointer(r, addr)
		if err != nil {
			return nil, fmt.Errorf("ReadPointerChain: read pointer at step %d (addr=%#x): %w", i, uint64(addr), err)
		}
		if ptr == 0 {
			return nil, fmt.Errorf("ReadPointerChain: NULL pointer at step %d (addr=%#x + off=%#x): %w", i, uint64(current), uint64(offsets[i]), ErrInvalidPointer)
		}
		current = ptr
	}

	start := current + ProcessMemoryAddress(offsets[len(offsets)-1])
	data, err := r.ReadMemory(start, size)
	if err != nil {
		return nil, fmt.Errorf("ReadPointerChain: read at %#x (size=%#x) failed: %w", uint64(start), uint64(size), err)
	}
	return data, nil
}
