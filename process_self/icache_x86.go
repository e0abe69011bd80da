//go:build linux && (386 || amd64)

package process_self

// x86 keeps instruction and data caches coherent
func flushInstructionCache(addr, size uintptr) error {
	return nil
}
