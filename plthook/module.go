// Package plthook redirects calls a loaded module makes through its import
// slots (GOT entries filled by the dynamic linker) by overwriting the slots.
package plthook

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"

	"mbloader/process/memory_map"
)

var (
	// ErrNoRelocations is returned when the module has no usable relocation tables
	ErrNoRelocations = errors.New("no relocation tables")

	ErrSymbolNotFound = errors.New("symbol has no import slot")
)

// relocation sections in the order they are read; later tables append slots
var relocSections = []string{".rela.dyn", ".rela.plt", ".rel.dyn", ".rel.plt"}

// Module is a loaded shared object and its symbol -> import slot table
type Module struct {
	Name string
	Path string

	// Bias is the difference between runtime addresses and ELF virtual addresses
	Bias uint64

	slots map[string][]uint64
}

// OpenModule finds name in the memory map and reads its relocations from the
// backing file
func OpenModule(maps []memory_map.MemoryMapItem, name string) (*Module, error) {
	base, path, err := memory_map.ModuleBase(maps, name)
	if err != nil {
		return nil, err
	}

	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	slots, err := readSlots(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &Module{
		Name:  name,
		Path:  path,
		Bias:  loadBias(f.Progs, base),
		slots: slots,
	}, nil
}

// NewModule builds a Module from an already computed slot table
func NewModule(name string, bias uint64, slots map[string][]uint64) *Module {
	return &Module{Name: name, Bias: bias, slots: slots}
}

// Slots returns the runtime addresses of every import slot for symbol
func (m *Module) Slots(symbol string) ([]uint64, error) {
	offsets, ok := m.slots[symbol]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", symbol, m.Name, ErrSymbolNotFound)
	}
	out := make([]uint64, len(offsets))
	for i, off := range offsets {
		out[i] = m.Bias + off
	}
	return out, nil
}

// loadBias is where the file-offset-0 mapping landed minus the lowest
// page-aligned PT_LOAD address
func loadBias(progs []*elf.Prog, base uint64) uint64 {
	lowest := ^uint64(0)
	for _, prog := range progs {
		if prog.Type == elf.PT_LOAD && prog.Vaddr < lowest {
			lowest = prog.Vaddr
		}
	}
	if lowest == ^uint64(0) {
		return base
	}
	return base - (lowest &^ 0xFFF)
}

func readSlots(f *elf.File) (map[string][]uint64, error) {
	syms, err := f.DynamicSymbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read dynamic symbols: %w", err)
	}

	slots := make(map[string][]uint64)
	found := false
	for _, name := range relocSections {
		section := f.Section(name)
		if section == nil || (section.Type != elf.SHT_RELA && section.Type != elf.SHT_REL) {
			continue
		}
		data, err := section.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if err := parseRelocations(slots, data, f.Class, f.ByteOrder, section.Type, syms); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		found = true
	}

	if !found {
		return nil, ErrNoRelocations
	}
	return slots, nil
}

// parseRelocations appends r_offset to slots[symbol] for every entry that
// names a symbol. syms is DynamicSymbols(), which omits the null symbol.
func parseRelocations(slots map[string][]uint64, data []byte, class elf.Class, order binary.ByteOrder, typ elf.SectionType, syms []elf.Symbol) error {
	var entSize int
	switch {
	case class == elf.ELFCLASS64 && typ == elf.SHT_RELA:
		entSize = 24
	case class == elf.ELFCLASS64 && typ == elf.SHT_REL:
		entSize = 16
	case class == elf.ELFCLASS32 && typ == elf.SHT_RELA:
		entSize = 12
	case class == elf.ELFCLASS32 && typ == elf.SHT_REL:
		entSize = 8
	default:
		return fmt.Errorf("unsupported class %s section %s", class, typ)
	}
	if len(data)%entSize != 0 {
		return fmt.Errorf("size %d is not a multiple of %d", len(data), entSize)
	}

	for off := 0; off < len(data); off += entSize {
		var offset uint64
		var sym uint32
		if class == elf.ELFCLASS64 {
			offset = order.Uint64(data[off:])
			sym = elf.R_SYM64(order.Uint64(data[off+8:]))
		} else {
			offset = uint64(order.Uint32(data[off:]))
			sym = elf.R_SYM32(order.Uint32(data[off+4:]))
		}
		if sym == 0 || int(sym) > len(syms) {
			continue
		}
		name := syms[sym-1].Name
		slots[name] = append(slots[name], offset)
	}
	return nil
}
