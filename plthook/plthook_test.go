package plthook

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"testing"

	"mbloader/process"
	"mbloader/process/memory_map"
	"mbloader/process_blob"

	"github.com/google/go-cmp/cmp"
)

var dynsyms = []elf.Symbol{
	{Name: "AAsset_read"},
	{Name: "AAssetManager_open"},
	{Name: "memcpy"},
}

func rela64(offset uint64, sym uint32, typ uint32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint64(b[0:], offset)
	binary.LittleEndian.PutUint64(b[8:], elf.R_INFO(sym, typ))
	return b
}

func rel32(offset uint32, sym uint32, typ uint32) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:], offset)
	binary.LittleEndian.PutUint32(b[4:], elf.R_INFO32(sym, typ))
	return b
}

func TestParseRelocations(t *testing.T) {
	var dyn, plt []byte
	dyn = append(dyn, rela64(0x5000, 0, uint32(elf.R_AARCH64_RELATIVE))...)
	dyn = append(dyn, rela64(0x5008, 2, uint32(elf.R_AARCH64_GLOB_DAT))...)
	plt = append(plt, rela64(0x6000, 1, uint32(elf.R_AARCH64_JUMP_SLOT))...)
	plt = append(plt, rela64(0x6008, 2, uint32(elf.R_AARCH64_JUMP_SLOT))...)

	slots := make(map[string][]uint64)
	if err := parseRelocations(slots, dyn, elf.ELFCLASS64, binary.LittleEndian, elf.SHT_RELA, dynsyms); err != nil {
		t.Fatal(err)
	}
	if err := parseRelocations(slots, plt, elf.ELFCLASS64, binary.LittleEndian, elf.SHT_RELA, dynsyms); err != nil {
		t.Fatal(err)
	}

	want := map[string][]uint64{
		"AAsset_read":        {0x6000},
		"AAssetManager_open": {0x5008, 0x6008},
	}
	if diff := cmp.Diff(want, slots); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestParseRelocations32(t *testing.T) {
	data := append(rel32(0x3000, 3, uint32(elf.R_ARM_JUMP_SLOT)), rel32(0x3004, 9, uint32(elf.R_ARM_JUMP_SLOT))...)
	slots := make(map[string][]uint64)
	if err := parseRelocations(slots, data, elf.ELFCLASS32, binary.LittleEndian, elf.SHT_REL, dynsyms); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string][]uint64{"memcpy": {0x3000}}, slots); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	if err := parseRelocations(slots, data[:5], elf.ELFCLASS32, binary.LittleEndian, elf.SHT_REL, dynsyms); err == nil {
		t.Error("truncated table accepted")
	}
}

func TestLoadBias(t *testing.T) {
	progs := []*elf.Prog{
		{ProgHeader: elf.ProgHeader{Type: elf.PT_PHDR, Vaddr: 0x40}},
		{ProgHeader: elf.ProgHeader{Type: elf.PT_LOAD, Vaddr: 0x10234}},
		{ProgHeader: elf.ProgHeader{Type: elf.PT_LOAD, Vaddr: 0x20000}},
	}
	if got := loadBias(progs, 0x7f0010000); got != 0x7f0000000 {
		t.Errorf("bias %#x", got)
	}
}

func TestReplace(t *testing.T) {
	// page 0 r-x code, page 1 r-- GOT after RELRO
	blob := process_blob.NewProcessBlob(0x100000, make([]byte, 2*process_blob.PageSize))
	got := process.ProcessMemoryAddress(0x100000 + process_blob.PageSize)
	if err := blob.Protect(got, process_blob.PageSize, process.ProtRead); err != nil {
		t.Fatal(err)
	}

	// the linker bound both slots
	if err := blob.Protect(got, 16, process.ProtReadWrite); err != nil {
		t.Fatal(err)
	}
	blob.WriteMemory(got, process.EncodePointer(0xAAAA))
	blob.WriteMemory(got+process.ProcessMemoryAddress(process.PointerSize), process.EncodePointer(0xBBBB))
	blob.Protect(got, 16, process.ProtRead)

	module := NewModule("libhost.so", 0x100000, map[string][]uint64{
		"AAsset_read":  {process_blob.PageSize},
		"AAsset_close": {process_blob.PageSize + uint64(process.PointerSize)},
	})

	originals, err := NewPatcher(blob).Replace(module, []Replacement{
		{Symbol: "AAsset_read", Address: 0x1111},
		{Symbol: "AAsset_getBuffer", Address: 0x2222},
		{Symbol: "AAsset_close", Address: 0x3333},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]process.ProcessMemoryAddress{"AAsset_read": 0xAAAA, "AAsset_close": 0xBBBB}
	if diff := cmp.Diff(want, originals); diff != "" {
		t.Errorf("originals (-want +got):\n%s", diff)
	}
	if v := blob.ReadPOINTER2(got); v != 0x1111 {
		t.Errorf("slot holds %s", v.ToString())
	}
	if v := blob.ReadPOINTER2(got + process.ProcessMemoryAddress(process.PointerSize)); v != 0x3333 {
		t.Errorf("slot holds %s", v.ToString())
	}
	if p := blob.ProtectionAt(got); p != process.ProtRead {
		t.Errorf("GOT page left %s", p)
	}
}

func TestSlotsAndOpenModule(t *testing.T) {
	m := NewModule("libhost.so", 0x1000, map[string][]uint64{"f": {0x10, 0x20}})
	slots, err := m.Slots("f")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{0x1010, 0x1020}, slots); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if _, err := m.Slots("g"); !errors.Is(err, ErrSymbolNotFound) {
		t.Errorf("got %v", err)
	}

	if _, err := OpenModule(nil, "libhost.so"); !errors.Is(err, memory_map.ErrModuleNotFound) {
		t.Errorf("got %v", err)
	}
}
