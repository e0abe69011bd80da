//go:build linux && !386 && !amd64 && !((arm || arm64) && cgo)

package process_self

import "errors"

func flushInstructionCache(addr, size uintptr) error {
	return errors.New("instruction cache flush is not available on this platform")
}
