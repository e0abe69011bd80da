package memory_map

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const sampleMaps = `7a1c000000-7a1c400000 r--p 00000000 fd:05 1234   /data/app/~~x==/com.mojang.minecraftpe/lib/arm64/libminecraftpe.so
7a1c400000-7a1ea00000 r-xp 00400000 fd:05 1234   /data/app/~~x==/com.mojang.minecraftpe/lib/arm64/libminecraftpe.so
7a1ea00000-7a1eb00000 r--p 02a00000 fd:05 1234   /data/app/~~x==/com.mojang.minecraftpe/lib/arm64/libminecraftpe.so
7a1eb00000-7a1eb10000 rw-p 02b00000 fd:05 1234   /data/app/~~x==/com.mojang.minecraftpe/lib/arm64/libminecraftpe.so
7a20000000-7a20001000 rw-p 00000000 00:00 0
7b00000000-7b00010000 r-xp 00000000 fd:05 99     /system/lib64/libfake minecraftpe.so
garbage line
`

func TestParseMemoryMap(t *testing.T) {
	items, err := ParseMemoryMap(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 6 {
		t.Fatalf("got %d items, want 6", len(items))
	}

	want := MemoryMapItem{
		Address: 0x7a1c400000,
		Size:    0x2600000,
		Perms:   "r-xp",
		Offset:  0x400000,
		Path:    "/data/app/~~x==/com.mojang.minecraftpe/lib/arm64/libminecraftpe.so",
	}
	if diff := cmp.Diff(want, items[1]); diff != "" {
		t.Errorf("text mapping mismatch (-want +got):\n%s", diff)
	}
	if items[4].Path != "" {
		t.Errorf("anonymous mapping has path %q", items[4].Path)
	}
	if items[5].Path != "/system/lib64/libfake minecraftpe.so" {
		t.Errorf("path with space parsed as %q", items[5].Path)
	}
}

func TestFindModule(t *testing.T) {
	items, err := ParseMemoryMap(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}

	text, err := FindModule(items, "libminecraftpe.so", "r-x")
	if err != nil {
		t.Fatal(err)
	}
	if text.Address != 0x7a1c400000 {
		t.Errorf("text at %#x", text.Address)
	}
	if !text.IsExecutable() || text.IsWritable() {
		t.Errorf("unexpected perms %s", text.Perms)
	}

	data, err := FindModule(items, "libminecraftpe.so", "rw-")
	if err != nil {
		t.Fatal(err)
	}
	if data.Address != 0x7a1eb00000 {
		t.Errorf("data at %#x", data.Address)
	}

	if _, err := FindModule(items, "libc.so", "r-x"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("got %v, want ErrModuleNotFound", err)
	}
	// suffix match must respect the path separator
	if _, err := FindModule(items, "minecraftpe.so", "r-x"); !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("partial file name matched: %v", err)
	}
}

func TestModuleBaseAndLookup(t *testing.T) {
	items, err := ParseMemoryMap(strings.NewReader(sampleMaps))
	if err != nil {
		t.Fatal(err)
	}

	base, path, err := ModuleBase(items, "libminecraftpe.so")
	if err != nil {
		t.Fatal(err)
	}
	if base != 0x7a1c000000 || !strings.HasSuffix(path, "arm64/libminecraftpe.so") {
		t.Errorf("base %#x path %q", base, path)
	}

	if item := IsValidAddress2(0x7a1c400010, items); item == nil || item.Perms != "r-xp" {
		t.Errorf("IsValidAddress2 returned %v", item)
	}
	if item := IsValidAddress2(0x10, items); item != nil {
		t.Errorf("unmapped address resolved to %v", item)
	}
	if item := GetMemoryRegionForAddress(0x7a20000800, items); item == nil || item.Path != "" {
		t.Errorf("GetMemoryRegionForAddress returned %v", item)
	}
}
