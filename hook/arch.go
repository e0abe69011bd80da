package hook

import (
	"encoding/binary"
	"fmt"
	"runtime"

	"mbloader/process"
	"mbloader/scan"
)

// Arch describes how to redirect a function on one target architecture
type Arch struct {
	Name string

	// PatchLen is the number of bytes saved at the patch address
	PatchLen int

	// Encode returns where the redirect is written and its bytes. The patch
	// address can differ from target (Thumb bit, alignment).
	Encode func(target, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, []byte, error)

	// MatchAdjust is added to signature matches to form a callable address
	MatchAdjust process.ProcessMemorySize

	// FastSearch is false where anchored search must not be used
	FastSearch bool
}

// ScanOptions configures a scanner for functions of this architecture
func (a Arch) ScanOptions() []scan.Option {
	return []scan.Option{
		scan.WithFastSearch(a.FastSearch),
		scan.WithMatchAdjust(a.MatchAdjust),
	}
}

var archs = map[string]Arch{
	"amd64": {Name: "amd64", PatchLen: 12, Encode: encodeAMD64, FastSearch: true},
	"386":   {Name: "386", PatchLen: 7, Encode: encode386, FastSearch: true},
	"arm64": {Name: "arm64", PatchLen: 16, Encode: encodeARM64, FastSearch: true},
	"arm":   {Name: "arm", PatchLen: 10, Encode: encodeARM, MatchAdjust: 1},
}

// ForArch returns the strategy for a GOARCH value
func ForArch(goarch string) (Arch, error) {
	a, ok := archs[goarch]
	if !ok {
		return Arch{}, fmt.Errorf("%s: %w", goarch, ErrUnsupportedArch)
	}
	return a, nil
}

// Native returns the strategy for the running binary
func Native() (Arch, error) {
	return ForArch(runtime.GOARCH)
}

func fits32(addr process.ProcessMemoryAddress) error {
	if uint64(addr) > 0xFFFFFFFF {
		return fmt.Errorf("replacement %s does not fit 32 bits", addr.ToString())
	}
	return nil
}

// movabs rax, imm64; jmp rax
func encodeAMD64(target, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, []byte, error) {
	code := make([]byte, 12)
	code[0], code[1] = 0x48, 0xB8
	binary.LittleEndian.PutUint64(code[2:], uint64(replacement))
	code[10], code[11] = 0xFF, 0xE0
	return target, code, nil
}

// mov eax, imm32; jmp eax
func encode386(target, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, []byte, error) {
	if err := fits32(replacement); err != nil {
		return 0, nil, err
	}
	code := make([]byte, 7)
	code[0] = 0xB8
	binary.LittleEndian.PutUint32(code[1:], uint32(replacement))
	code[5], code[6] = 0xFF, 0xE0
	return target, code, nil
}

// ldr x17, #8; br x17; .quad replacement
// x17 is the intra-procedure-call scratch register, so arguments survive.
func encodeARM64(target, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, []byte, error) {
	code := make([]byte, 16)
	binary.LittleEndian.PutUint32(code[0:], 0x58000051)
	binary.LittleEndian.PutUint32(code[4:], 0xD61F0220)
	binary.LittleEndian.PutUint64(code[8:], uint64(replacement))
	return target, code, nil
}

// A target with bit 0 set is Thumb code.
//
//	ARM:   ldr pc, [pc, #-4]; .word replacement
//	Thumb: [nop]; ldr.w pc, [pc]; .word replacement
//
// The Thumb literal must be word aligned, which the nop provides.
func encodeARM(target, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, []byte, error) {
	if err := fits32(replacement); err != nil {
		return 0, nil, err
	}

	if target&1 == 0 {
		code := make([]byte, 8)
		binary.LittleEndian.PutUint32(code[0:], 0xE51FF004)
		binary.LittleEndian.PutUint32(code[4:], uint32(replacement))
		return target, code, nil
	}

	at := target &^ 1
	var code []byte
	if at%4 != 0 {
		code = binary.LittleEndian.AppendUint16(code, 0xBF00)
	}
	code = binary.LittleEndian.AppendUint16(code, 0xF8DF)
	code = binary.LittleEndian.AppendUint16(code, 0xF000)
	code = binary.LittleEndian.AppendUint32(code, uint32(replacement))
	return at, code, nil
}
