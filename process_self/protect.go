//go:build linux

package process_self

import (
	"fmt"
	"unsafe"

	"mbloader/process"

	"golang.org/x/sys/unix"
)

func unixProt(prot process.Protection) int {
	flags := unix.PROT_NONE
	if prot&process.ProtRead != 0 {
		flags |= unix.PROT_READ
	}
	if prot&process.ProtWrite != 0 {
		flags |= unix.PROT_WRITE
	}
	if prot&process.ProtExec != 0 {
		flags |= unix.PROT_EXEC
	}
	return flags
}

// pageSpan rounds [addr, addr+size) out to whole pages
func pageSpan(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) (uintptr, int) {
	pageSize := uintptr(unix.Getpagesize())
	start := uintptr(addr) &^ (pageSize - 1)
	end := (uintptr(addr) + uintptr(size) + pageSize - 1) &^ (pageSize - 1)
	return start, int(end - start)
}

// Protect changes the protection of every page overlapping [addr, addr+size)
func (p *SelfProcess) Protect(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) error {
	start, length := pageSpan(addr, size)
	region := unsafe.Slice((*byte)(unsafe.Pointer(start)), length)

	if err := unix.Mprotect(region, unixProt(prot)); err != nil {
		return fmt.Errorf("mprotect %#x+%#x %s: %w", start, length, prot, err)
	}

	p.log.Debugln("mprotect", fmt.Sprintf("%#x+%#x", start, length), prot.String())

	return nil
}

// FlushInstructionCache makes patched code visible to instruction fetch
func (p *SelfProcess) FlushInstructionCache(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) error {
	return flushInstructionCache(uintptr(addr), uintptr(size))
}
