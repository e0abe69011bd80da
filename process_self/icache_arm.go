//go:build linux && (arm || arm64) && cgo

package process_self

/*
static void mbl_clear_cache(void *start, void *end) {
	__builtin___clear_cache((char *)start, (char *)end);
}
*/
import "C"

import "unsafe"

func flushInstructionCache(addr, size uintptr) error {
	C.mbl_clear_cache(unsafe.Pointer(addr), unsafe.Pointer(addr+size))
	return nil
}
