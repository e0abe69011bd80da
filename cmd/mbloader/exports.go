//go:build linux

package main

/*
#include "bridge.h"
*/
import "C"

import (
	"math"
	"unsafe"

	"mbloader/asset"
	"mbloader/process"
)

// longBits is the width of off_t in the asset API
const longBits = int(unsafe.Sizeof(C.long(0))) * 8

// narrow returns v if it fits a signed integer of the given width and -1
// otherwise
func narrow(v int64, bits int) int64 {
	if bits >= 64 {
		return v
	}
	limit := int64(1) << (bits - 1)
	if v < -limit || v >= limit {
		return -1
	}
	return v
}

func offT(v int64) C.long {
	return C.long(narrow(v, longBits))
}

// guard turns a panic in an exported entry point into the API's failure value
func guard(api string, fail func()) {
	if r := recover(); r != nil {
		log.Warn("Recovered panic in "+api+": ", r)
		fail()
	}
}

//export mbl_hook_open
func mbl_hook_open(manager C.uintptr_t, name *C.char, mode C.int) (h C.uintptr_t) {
	defer guard("AAssetManager_open", func() { h = 0 })
	if name == nil {
		return 0
	}
	lastManager.Store(uintptr(manager))
	return C.uintptr_t(layer.Open(asset.Manager(manager), C.GoString(name), int(mode)))
}

//export mbl_hook_read
func mbl_hook_read(a C.uintptr_t, buf unsafe.Pointer, count C.size_t) (n C.int) {
	defer guard("AAsset_read", func() { n = -1 })
	var p []byte
	if buf != nil && count > 0 {
		p = unsafe.Slice((*byte)(buf), min(uint64(count), math.MaxInt32))
	}
	return C.int(layer.Read(asset.Handle(a), p))
}

//export mbl_hook_close
func mbl_hook_close(a C.uintptr_t) {
	defer guard("AAsset_close", func() {})
	layer.Close(asset.Handle(a))
}

//export mbl_hook_seek
func mbl_hook_seek(a C.uintptr_t, offset C.long, whence C.int) (pos C.long) {
	defer guard("AAsset_seek", func() { pos = -1 })
	return offT(layer.Seek(asset.Handle(a), int64(offset), int(whence)))
}

//export mbl_hook_seek64
func mbl_hook_seek64(a C.uintptr_t, offset C.int64_t, whence C.int) (pos C.int64_t) {
	defer guard("AAsset_seek64", func() { pos = -1 })
	return C.int64_t(layer.Seek64(asset.Handle(a), int64(offset), int(whence)))
}

//export mbl_hook_length
func mbl_hook_length(a C.uintptr_t) (n C.long) {
	defer guard("AAsset_getLength", func() { n = -1 })
	return offT(layer.Length(asset.Handle(a)))
}

//export mbl_hook_length64
func mbl_hook_length64(a C.uintptr_t) (n C.int64_t) {
	defer guard("AAsset_getLength64", func() { n = -1 })
	return C.int64_t(layer.Length64(asset.Handle(a)))
}

//export mbl_hook_remaining
func mbl_hook_remaining(a C.uintptr_t) (n C.long) {
	defer guard("AAsset_getRemainingLength", func() { n = -1 })
	return offT(layer.RemainingLength(asset.Handle(a)))
}

//export mbl_hook_remaining64
func mbl_hook_remaining64(a C.uintptr_t) (n C.int64_t) {
	defer guard("AAsset_getRemainingLength64", func() { n = -1 })
	return C.int64_t(layer.RemainingLength64(asset.Handle(a)))
}

//export mbl_hook_open_fd
func mbl_hook_open_fd(a C.uintptr_t, start, length *C.long) (fd C.int) {
	defer guard("AAsset_openFileDescriptor", func() { fd = -1 })
	f, s, l := layer.OpenFileDescriptor(asset.Handle(a))
	if f >= 0 {
		if start != nil {
			*start = offT(s)
		}
		if length != nil {
			*length = offT(l)
		}
	}
	return C.int(f)
}

//export mbl_hook_open_fd64
func mbl_hook_open_fd64(a C.uintptr_t, start, length *C.int64_t) (fd C.int) {
	defer guard("AAsset_openFileDescriptor64", func() { fd = -1 })
	f, s, l := layer.OpenFileDescriptor64(asset.Handle(a))
	if f >= 0 {
		if start != nil {
			*start = C.int64_t(s)
		}
		if length != nil {
			*length = C.int64_t(l)
		}
	}
	return C.int(f)
}

//export mbl_hook_buffer
func mbl_hook_buffer(a C.uintptr_t) (ptr C.uintptr_t) {
	defer guard("AAsset_getBuffer", func() { ptr = 0 })
	return C.uintptr_t(layer.GetBuffer(asset.Handle(a)))
}

//export mbl_hook_is_allocated
func mbl_hook_is_allocated(a C.uintptr_t) (allocated C.int) {
	defer guard("AAsset_isAllocated", func() { allocated = 0 })
	if layer.IsAllocated(asset.Handle(a)) {
		return 1
	}
	return 0
}

// mbl_rpm_ctor_enter disarms the constructor hook and returns the restored
// constructor, or 0 when the code could not be restored
//
//export mbl_rpm_ctor_enter
func mbl_rpm_ctor_enter() (ctor C.uintptr_t) {
	defer guard("ResourcePackManager constructor", func() { ctor = 0 })
	fired, err := ctorHook.Fire()
	if err != nil {
		log.Warn("Failed to restore ResourcePackManager constructor: ", err)
		return 0
	}
	if fired {
		log.Infoln("ResourcePackManager constructor called")
	}
	return C.uintptr_t(ctorHook.Target())
}

//export mbl_rpm_ctor_exit
func mbl_rpm_ctor_exit(self C.uintptr_t) {
	defer guard("ResourcePackManager constructor", func() {})
	if err := proc.UpdateMemoryMap(); err != nil {
		log.Warn("Failed to refresh memory map: ", err)
	}
	if err := capability.Capture(proc, process.ProcessMemoryAddress(self)); err != nil {
		log.Warn("Failed to capture ResourcePackManager: ", err)
	}
}

//export mbl_set_lightmap_autofix
func mbl_set_lightmap_autofix(on C.int) {
	options.SetLightmapFix(on != 0)
}

//export mbl_set_texturelod_autofix
func mbl_set_texturelod_autofix(on C.int) {
	options.SetTextureLodFix(on != 0)
}

// mbl_set_autofix_versions sets the versions tried for pack materials, in
// order. Returns 0, or -1 and changes nothing when a name is unknown.
//
//export mbl_set_autofix_versions
func mbl_set_autofix_versions(names **C.char, n C.int) (rc C.int) {
	defer guard("mbl_set_autofix_versions", func() { rc = -1 })
	var list []string
	if names != nil && n > 0 {
		for _, name := range unsafe.Slice(names, int(n)) {
			list = append(list, C.GoString(name))
		}
	}
	if err := options.SetVersionNames(list); err != nil {
		log.Warn("Rejected autofix versions: ", err)
		return -1
	}
	log.Infoln("autofix versions", list)
	return 0
}
