package process_blob

import (
	"errors"
	"testing"

	"mbloader/process"

	"github.com/google/go-cmp/cmp"
)

func TestProtectionTracking(t *testing.T) {
	blob := NewProcessBlob(0x10000, make([]byte, 3*PageSize))

	if err := blob.WriteMemory(0x10010, []byte{1}); !errors.Is(err, process.ErrNotWritable) {
		t.Fatalf("write to r-x page: %v", err)
	}

	// a write straddling two pages needs both writable
	if err := blob.Protect(0x10000+PageSize-2, 4, process.ProtReadWriteExec); err != nil {
		t.Fatal(err)
	}
	if err := blob.WriteMemory(0x10000+PageSize-2, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write after protect: %v", err)
	}
	if got := blob.ProtectionAt(0x10000 + 2*PageSize); got != process.ProtReadExec {
		t.Errorf("third page became %s", got)
	}

	items, err := blob.GetMemoryMap()
	if err != nil {
		t.Fatal(err)
	}
	var perms []string
	for _, item := range items {
		perms = append(perms, item.Perms)
	}
	if diff := cmp.Diff([]string{"rwxp", "r-xp"}, perms); diff != "" {
		t.Errorf("memory map perms (-want +got):\n%s", diff)
	}
}

func TestReadBounds(t *testing.T) {
	blob := NewProcessBlob(0x2000, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	if _, err := blob.ReadMemory(0x1fff, 2); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("read before base: %v", err)
	}
	if _, err := blob.ReadMemory(0x2006, 4); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("read past end: %v", err)
	}
	v, err := blob.ReadUINT32(0x2004)
	if err != nil || v != 0x08070605 {
		t.Errorf("ReadUINT32 = %#x, %v", v, err)
	}
	if blob.IsValidAddress(0x2008) {
		t.Error("one past the end is not a valid address")
	}
}
