//go:build linux

// Command mbloader is built with -buildmode=c-shared and loaded into the game
// process. Its init redirects the host library's asset API to an asset.Layer
// that serves resource pack files and ports material bundles to the running
// game version.
package main

/*
#cgo CFLAGS: -std=c11
#cgo CXXFLAGS: -std=c++17
#cgo LDFLAGS: -ldl
#include "bridge.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"mbloader/asset"
	"mbloader/hook"
	"mbloader/material"
	"mbloader/plthook"
	"mbloader/process"
	"mbloader/process/memory_map"
	"mbloader/process_self"
	"mbloader/rpm"
	"mbloader/scan"
	"mbloader/signatures"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// assetImports follows enum mbl_fn in bridge.h
var assetImports = [...]string{
	"AAssetManager_open",
	"AAsset_read",
	"AAsset_close",
	"AAsset_seek",
	"AAsset_seek64",
	"AAsset_getLength",
	"AAsset_getLength64",
	"AAsset_getRemainingLength",
	"AAsset_getRemainingLength64",
	"AAsset_openFileDescriptor",
	"AAsset_openFileDescriptor64",
	"AAsset_getBuffer",
	"AAsset_isAllocated",
}

var errNoManager = errors.New("no asset manager seen yet")

var (
	log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "mbloader"))

	options    = material.NewOptions()
	capability = rpm.NewCapability()

	// lastManager is the manager of the most recent open, used to read the
	// host's own materials
	lastManager atomic.Uintptr

	layer    *asset.Layer
	proc     *process_self.SelfProcess
	ctorHook *hook.OneShot
)

func init() {
	host := nativeHost{}
	detector := material.NewDetector(func(path string) ([]byte, error) {
		manager := asset.Manager(lastManager.Load())
		if manager == 0 {
			return nil, errNoManager
		}
		return asset.ReadHostFile(host, manager, path)
	})

	layer = asset.NewLayer(asset.Config{
		Host:        host,
		Loader:      &rpm.Loader{Capability: capability, Call: callLoad},
		Transformer: material.NewMemo(material.NewTransformer(detector, options), 8),
	})

	if err := bootstrap(); err != nil {
		log.Warn("Failed to start, assets are served unchanged: ", err)
	}
}

func bootstrap() error {
	if len(assetImports) != int(C.MBL_FN_COUNT) {
		return fmt.Errorf("import table has %d entries, bridge has %d", len(assetImports), int(C.MBL_FN_COUNT))
	}

	var err error
	proc, err = process_self.New()
	if err != nil {
		return err
	}
	maps, err := proc.GetMemoryMap()
	if err != nil {
		return err
	}

	text, err := memory_map.FindModule(maps, signatures.HostLibrary, "r-x")
	if err != nil {
		return fmt.Errorf("%s is not loaded: %w", signatures.HostLibrary, err)
	}
	log.Infoln("found", signatures.HostLibrary, "text", text.String())

	arch, err := hook.Native()
	if err != nil {
		return err
	}
	candidates, err := signatures.ResourcePackManagerCtor(runtime.GOARCH)
	if err != nil {
		return err
	}
	target, err := scan.New(arch.ScanOptions()...).FindFirst(proc, text, candidates)
	if err != nil {
		return fmt.Errorf("ResourcePackManager constructor: %w", err)
	}

	ic := hook.NewInterceptor(proc, arch)
	ctorHook, err = hook.Arm(ic, target, process.ProcessMemoryAddress(C.mbl_rpm_ctor_hook_address()))
	if err != nil {
		return fmt.Errorf("failed to hook ResourcePackManager constructor: %w", err)
	}
	log.Infoln("hooked ResourcePackManager constructor at", target.ToString())

	return patchImports(maps)
}

func patchImports(maps []memory_map.MemoryMapItem) error {
	module, err := plthook.OpenModule(maps, signatures.HostLibrary)
	if err != nil {
		return err
	}

	replacements := make([]plthook.Replacement, len(assetImports))
	index := make(map[string]int, len(assetImports))
	for i, symbol := range assetImports {
		replacements[i] = plthook.Replacement{
			Symbol:  symbol,
			Address: process.ProcessMemoryAddress(C.mbl_replacement(C.int(i))),
		}
		index[symbol] = i
	}

	originals, err := plthook.NewPatcher(proc).Replace(module, replacements)
	for symbol, addr := range originals {
		C.mbl_set_original(C.int(index[symbol]), C.uintptr_t(addr))
	}
	if err != nil {
		return err
	}

	log.Infoln("patched", len(originals), "of", len(assetImports), "asset imports")
	return nil
}

func main() {}
