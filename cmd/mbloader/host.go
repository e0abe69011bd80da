//go:build linux

package main

/*
#include <stdlib.h>
#include "bridge.h"
*/
import "C"

import (
	"unsafe"

	"mbloader/asset"
	"mbloader/process"
)

// nativeHost calls the real asset API through the originals saved when the
// import table was patched
type nativeHost struct{}

var _ asset.Host = nativeHost{}

func (nativeHost) Open(manager asset.Manager, name string, mode int) asset.Handle {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return asset.Handle(C.mbl_host_open(C.uintptr_t(manager), cname, C.int(mode)))
}

func (nativeHost) Read(h asset.Handle, buf []byte) int {
	if len(buf) == 0 {
		return int(C.mbl_host_read(C.uintptr_t(h), nil, 0))
	}
	return int(C.mbl_host_read(C.uintptr_t(h), unsafe.Pointer(&buf[0]), C.size_t(len(buf))))
}

func (nativeHost) Seek(h asset.Handle, offset int64, whence int) int64 {
	if narrow(offset, longBits) != offset {
		return -1
	}
	return int64(C.mbl_host_seek(C.uintptr_t(h), C.long(offset), C.int(whence)))
}

func (nativeHost) Seek64(h asset.Handle, offset int64, whence int) int64 {
	return int64(C.mbl_host_seek64(C.uintptr_t(h), C.int64_t(offset), C.int(whence)))
}

func (nativeHost) Length(h asset.Handle) int64 {
	return int64(C.mbl_host_length(C.uintptr_t(h)))
}

func (nativeHost) Length64(h asset.Handle) int64 {
	return int64(C.mbl_host_length64(C.uintptr_t(h)))
}

func (nativeHost) RemainingLength(h asset.Handle) int64 {
	return int64(C.mbl_host_remaining(C.uintptr_t(h)))
}

func (nativeHost) RemainingLength64(h asset.Handle) int64 {
	return int64(C.mbl_host_remaining64(C.uintptr_t(h)))
}

func (nativeHost) OpenFileDescriptor(h asset.Handle) (int, int64, int64) {
	var start, length C.long
	fd := C.mbl_host_open_fd(C.uintptr_t(h), &start, &length)
	return int(fd), int64(start), int64(length)
}

func (nativeHost) OpenFileDescriptor64(h asset.Handle) (int, int64, int64) {
	var start, length C.int64_t
	fd := C.mbl_host_open_fd64(C.uintptr_t(h), &start, &length)
	return int(fd), int64(start), int64(length)
}

func (nativeHost) GetBuffer(h asset.Handle) uintptr {
	return uintptr(C.mbl_host_buffer(C.uintptr_t(h)))
}

func (nativeHost) IsAllocated(h asset.Handle) bool {
	return C.mbl_host_is_allocated(C.uintptr_t(h)) != 0
}

func (nativeHost) Close(h asset.Handle) {
	C.mbl_host_close(C.uintptr_t(h))
}

// callLoad is the rpm.CallFunc for the host's ResourcePackManager::load
func callLoad(load, instance process.ProcessMemoryAddress, path string) ([]byte, bool) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var out unsafe.Pointer
	var n C.size_t
	ok := C.mbl_rpm_load(C.uintptr_t(load), C.uintptr_t(instance), cpath, C.size_t(len(path)), &out, &n)
	if out != nil {
		defer C.free(out)
	}
	if ok == 0 || n == 0 {
		return nil, false
	}
	return C.GoBytes(out, C.int(n)), true
}
