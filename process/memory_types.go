package process

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// Protection is a set of page protection bits, mirroring PROT_READ/WRITE/EXEC
type Protection uint8

const (
	ProtNone  Protection = 0
	ProtRead  Protection = 1 << 0
	ProtWrite Protection = 1 << 1
	ProtExec  Protection = 1 << 2

	ProtReadExec      = ProtRead | ProtExec
	ProtReadWrite     = ProtRead | ProtWrite
	ProtReadWriteExec = ProtRead | ProtWrite | ProtExec
)

func (p Protection) String() string {
	b := []byte("---")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// ProtectionFromPerms converts a /proc/<pid>/maps permission string ("r-xp")
func ProtectionFromPerms(perms string) Protection {
	var p Protection
	if len(perms) > 0 && perms[0] == 'r' {
		p |= ProtRead
	}
	if len(perms) > 1 && perms[1] == 'w' {
		p |= ProtWrite
	}
	if len(perms) > 2 && perms[2] == 'x' {
		p |= ProtExec
	}
	return p
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && (len(aob.Mask) == 0 || len(aob.Pattern) == len(aob.Mask))
}

// Normalized returns a copy with an explicit mask, an empty mask meaning exact match
func (aob AOB) Normalized() AOB {
	if len(aob.Mask) == 0 {
		return AOB{Pattern: aob.Pattern, Mask: bytes.Repeat([]byte{0xFF}, len(aob.Pattern))}
	}
	return aob
}

// String formats the pattern the same way ParseAOB reads it
func (aob AOB) String() string {
	aob = aob.Normalized()
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		if aob.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			sb.WriteString(strings.ToUpper(hex.EncodeToString([]byte{b})))
		}
	}
	return sb.String()
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ParseAOB parses a signature like "48 8B ?? 0F" or "48,8b,?,0f".
// "?" and "??" are wildcards.
func ParseAOB(aob string) (AOB, error) {
	parts := strings.FieldsFunc(aob, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(parts) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}

	result := AOB{
		Pattern: make([]byte, 0, len(parts)),
		Mask:    make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		if part == "??" || part == "?" {
			result.Pattern = append(result.Pattern, 0)
			result.Mask = append(result.Mask, 0)
			continue
		}

		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		result.Pattern = append(result.Pattern, byte(val))
		result.Mask = append(result.Mask, 0xFF)
	}

	return result, nil
}

// MustParseAOB is ParseAOB for compiled-in signature tables
func MustParseAOB(aob string) AOB {
	result, err := ParseAOB(aob)
	if err != nil {
		panic(err)
	}
	return result
}
