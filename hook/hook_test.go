package hook

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"mbloader/process"
	"mbloader/process_blob"

	"github.com/google/go-cmp/cmp"
)

func newBlob(t *testing.T) *process_blob.ProcessBlob {
	t.Helper()
	code := make([]byte, 2*process_blob.PageSize)
	rand.New(rand.NewSource(7)).Read(code)
	return process_blob.NewProcessBlob(0x10000, code)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		arch        string
		target      process.ProcessMemoryAddress
		replacement process.ProcessMemoryAddress
		at          process.ProcessMemoryAddress
		code        []byte
	}{
		{"amd64", 0x1000, 0x1122334455667788, 0x1000,
			[]byte{0x48, 0xB8, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11, 0xFF, 0xE0}},
		{"386", 0x1000, 0x11223344, 0x1000,
			[]byte{0xB8, 0x44, 0x33, 0x22, 0x11, 0xFF, 0xE0}},
		{"arm64", 0x1000, 0x1122334455667788, 0x1000,
			[]byte{0x51, 0x00, 0x00, 0x58, 0x20, 0x02, 0x1F, 0xD6, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}},
		{"arm", 0x1000, 0x11223344, 0x1000,
			[]byte{0x04, 0xF0, 0x1F, 0xE5, 0x44, 0x33, 0x22, 0x11}},
		{"arm", 0x1001, 0x11223345, 0x1000,
			[]byte{0xDF, 0xF8, 0x00, 0xF0, 0x45, 0x33, 0x22, 0x11}},
		{"arm", 0x1003, 0x11223345, 0x1002,
			[]byte{0x00, 0xBF, 0xDF, 0xF8, 0x00, 0xF0, 0x45, 0x33, 0x22, 0x11}},
	}
	for _, tt := range tests {
		arch, err := ForArch(tt.arch)
		if err != nil {
			t.Fatal(err)
		}
		at, code, err := arch.Encode(tt.target, tt.replacement)
		if err != nil {
			t.Fatal(err)
		}
		if at != tt.at {
			t.Errorf("%s %s: patch at %s want %s", tt.arch, tt.target.ToString(), at.ToString(), tt.at.ToString())
		}
		if diff := cmp.Diff(tt.code, code); diff != "" {
			t.Errorf("%s %s (-want +got):\n%s", tt.arch, tt.target.ToString(), diff)
		}
		if len(code) > arch.PatchLen {
			t.Errorf("%s: code longer than PatchLen", tt.arch)
		}
	}
}

func TestThumbLiteralAligned(t *testing.T) {
	arch, _ := ForArch("arm")
	for target := process.ProcessMemoryAddress(0x2001); target < 0x2009; target += 2 {
		at, code, err := arch.Encode(target, 0x4001)
		if err != nil {
			t.Fatal(err)
		}
		literal := uint64(at) + uint64(len(code)) - 4
		if literal%4 != 0 {
			t.Errorf("target %s: literal at %#x not word aligned", target.ToString(), literal)
		}
		if binary.LittleEndian.Uint32(code[len(code)-4:]) != 0x4001 {
			t.Errorf("target %s: literal %x", target.ToString(), code[len(code)-4:])
		}
	}
}

func TestEncodeRejectsWideReplacement(t *testing.T) {
	for _, name := range []string{"386", "arm"} {
		arch, _ := ForArch(name)
		if _, _, err := arch.Encode(0x1000, 0x100000000); err == nil {
			t.Errorf("%s accepted a 64-bit replacement", name)
		}
	}
	if _, err := ForArch("mips"); !errors.Is(err, ErrUnsupportedArch) {
		t.Errorf("got %v", err)
	}
}

func TestInstallRevertIdentity(t *testing.T) {
	for _, name := range []string{"amd64", "386", "arm64", "arm"} {
		for _, target := range []process.ProcessMemoryAddress{0x10100, 0x10101, 0x10103, process_blob.PageSize + 0x10000 - 6} {
			if name != "arm" && target&1 != 0 {
				continue
			}
			arch, _ := ForArch(name)
			blob := newBlob(t)
			before := bytes.Clone(blob.Data())

			ic := NewInterceptor(blob, arch)
			saved, err := ic.Install(target, 0x20001)
			if err != nil {
				t.Fatalf("%s %s: %v", name, target.ToString(), err)
			}
			if len(saved) != arch.PatchLen {
				t.Errorf("%s: saved %d bytes", name, len(saved))
			}
			if bytes.Equal(before, blob.Data()) {
				t.Errorf("%s %s: install wrote nothing", name, target.ToString())
			}
			if got := blob.ProtectionAt(target &^ 1); got != process.ProtReadExec {
				t.Errorf("%s: protection after install %s", name, got)
			}
			if len(blob.Flushes()) != 1 {
				t.Errorf("%s: %d flushes after install", name, len(blob.Flushes()))
			}

			if err := ic.Revert(target, saved); err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(before, blob.Data()) {
				t.Errorf("%s %s: revert did not restore original bytes", name, target.ToString())
			}
			if len(blob.Flushes()) != 2 {
				t.Errorf("%s: revert did not flush", name)
			}
		}
	}
}

func TestDoubleHookAndUnknownRevert(t *testing.T) {
	arch, _ := ForArch("arm64")
	blob := newBlob(t)
	ic := NewInterceptor(blob, arch)

	saved, err := ic.Install(0x10200, 0x5000)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ic.Install(0x10200, 0x6000); !errors.Is(err, ErrDoubleHook) {
		t.Errorf("second install: %v", err)
	}
	if record, ok := ic.Lookup(0x10200); !ok || record.Replacement != 0x5000 {
		t.Errorf("record %+v changed by rejected install", record)
	}
	if err := ic.Revert(0x10300, saved); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("revert unknown: %v", err)
	}
	if err := ic.Revert(0x10200, saved[:4]); !errors.Is(err, ErrSavedLength) {
		t.Errorf("revert short: %v", err)
	}
	if err := ic.Revert(0x10200, saved); err != nil {
		t.Fatal(err)
	}
	if err := ic.Revert(0x10200, saved); !errors.Is(err, ErrHookNotFound) {
		t.Errorf("double revert: %v", err)
	}
}

func TestInstallUnmapped(t *testing.T) {
	arch, _ := ForArch("amd64")
	blob := newBlob(t)
	ic := NewInterceptor(blob, arch)
	if _, err := ic.Install(0x100, 0x5000); !errors.Is(err, process.ErrAddressNotMapped) {
		t.Errorf("got %v", err)
	}
	if _, ok := ic.Lookup(0x100); ok {
		t.Error("failed install left a record")
	}
}

func TestOneShot(t *testing.T) {
	arch, _ := ForArch("arm64")
	blob := newBlob(t)
	before := bytes.Clone(blob.Data())
	ic := NewInterceptor(blob, arch)

	o, err := Arm(ic, 0x10400, 0x9000)
	if err != nil {
		t.Fatal(err)
	}
	if o.State() != Armed {
		t.Fatalf("state %s", o.State())
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	first := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := o.Fire()
			if err != nil {
				t.Error(err)
			}
			if won {
				mu.Lock()
				first++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if first != 1 {
		t.Errorf("%d callers won Fire", first)
	}
	if o.State() != Disarmed {
		t.Errorf("state %s", o.State())
	}
	if !bytes.Equal(before, blob.Data()) {
		t.Error("original code not restored")
	}
}

// lockedBlob refuses protection changes while locked
type lockedBlob struct {
	*process_blob.ProcessBlob
	locked bool
}

func (b *lockedBlob) Protect(addr process.ProcessMemoryAddress, size process.ProcessMemorySize, prot process.Protection) error {
	if b.locked {
		return errors.New("mprotect: permission denied")
	}
	return b.ProcessBlob.Protect(addr, size, prot)
}

func TestOneShotFailedRevert(t *testing.T) {
	arch, _ := ForArch("amd64")
	blob := &lockedBlob{ProcessBlob: newBlob(t)}
	before := bytes.Clone(blob.Data())
	ic := NewInterceptor(blob, arch)

	o, err := Arm(ic, 0x10400, 0x9000)
	if err != nil {
		t.Fatal(err)
	}
	hooked := bytes.Clone(blob.Data())

	blob.locked = true
	won, err := o.Fire()
	if err == nil || won {
		t.Fatalf("Fire = %v, %v with protection locked", won, err)
	}
	if o.State() != Armed {
		t.Errorf("state %s after failed revert", o.State())
	}
	if !bytes.Equal(hooked, blob.Data()) {
		t.Error("code changed by failed revert")
	}

	blob.locked = false
	won, err = o.Fire()
	if err != nil || !won {
		t.Fatalf("Fire = %v, %v after unlocking", won, err)
	}
	if o.State() != Disarmed || !bytes.Equal(before, blob.Data()) {
		t.Error("hook not reverted on retry")
	}
}
