package plthook

import (
	"errors"
	"fmt"

	"mbloader/process"
	"mbloader/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Replacement redirects Symbol to Address
type Replacement struct {
	Symbol  string
	Address process.ProcessMemoryAddress
}

// Patcher writes replacements into import slots
type Patcher struct {
	proc process.Process
	log  *logger.Logger
}

func NewPatcher(proc process.Process) *Patcher {
	return &Patcher{
		proc: proc,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "plthook")),
	}
}

// Replace patches every slot of every symbol and returns the original
// targets by symbol. Symbols without a slot are skipped.
func (p *Patcher) Replace(m *Module, replacements []Replacement) (map[string]process.ProcessMemoryAddress, error) {
	maps, err := p.proc.GetMemoryMap()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory map: %w", err)
	}

	originals := make(map[string]process.ProcessMemoryAddress, len(replacements))
	for _, r := range replacements {
		slots, err := m.Slots(r.Symbol)
		if errors.Is(err, ErrSymbolNotFound) {
			p.log.Debugln("skipping", r.Symbol, "no import slot in", m.Name)
			continue
		}

		for _, slot := range slots {
			original, err := p.patchSlot(maps, process.ProcessMemoryAddress(slot), r.Address)
			if err != nil {
				return originals, fmt.Errorf("%s: %w", r.Symbol, err)
			}
			if _, ok := originals[r.Symbol]; !ok {
				originals[r.Symbol] = original
			}
		}
		p.log.Infoln("replaced", r.Symbol, "in", len(slots), "slot(s)")
	}

	return originals, nil
}

func (p *Patcher) patchSlot(maps []memory_map.MemoryMapItem, slot, replacement process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	region := memory_map.GetMemoryRegionForAddress(uint64(slot), maps)
	if region == nil {
		return 0, fmt.Errorf("slot %s: %w", slot.ToString(), process.ErrAddressNotMapped)
	}
	prior := process.ProtectionFromPerms(region.Perms)

	original, err := p.proc.ReadPOINTER(slot)
	if err != nil {
		return 0, fmt.Errorf("failed to read slot %s: %w", slot.ToString(), err)
	}

	if err := p.proc.Protect(slot, process.PointerSize, process.ProtReadWrite); err != nil {
		return 0, err
	}
	writeErr := p.proc.WriteMemory(slot, process.EncodePointer(replacement))
	if err := p.proc.Protect(slot, process.PointerSize, prior); err != nil && writeErr == nil {
		return 0, err
	}
	if writeErr != nil {
		return 0, fmt.Errorf("failed to write slot %s: %w", slot.ToString(), writeErr)
	}

	return original, nil
}
