// Package process provides interfaces and types for working with a process address space
package process

import (
	"errors"
	"strconv"
)

// PointerSize is the width of a pointer in the running process
const PointerSize = ProcessMemorySize(strconv.IntSize / 8)

var (
	// ErrAddressNotMapped is returned when a memory address is not found within any mapped region of a process.
	ErrAddressNotMapped = errors.New("address not mapped")

	// ErrProcessNotOpen is returned when an operation requiring an open process is attempted
	// before the process has been successfully opened or after it has been closed.
	ErrProcessNotOpen = errors.New("process not open")

	ErrInvalidPointer = errors.New("invalid pointer read")

	// ErrNotWritable is returned when writing to a page that is not currently writable
	ErrNotWritable = errors.New("memory not writable")
)
