package memory_map

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrModuleNotFound is returned when no mapping matches the requested module
var ErrModuleNotFound = errors.New("module not found in memory map")

// MemoryMapItem represents a memory region in a process's address space
type MemoryMapItem struct {
	Address uint64 // The starting address of the memory region
	Size    uint   // The size of the memory region in bytes
	Perms   string // Permissions (e.g., "r-xp" for read, execute, private)
	Offset  uint64 // Offset of the mapping inside the backing file
	Path    string // Backing file, empty for anonymous mappings
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	return fmt.Sprintf("Address: %x, Size: %d, Perms: %s, Path: %s", mmItem.Address, mmItem.Size, mmItem.Perms, mmItem.Path)
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + uint64(mmItem.Size)
}

func (mmItem MemoryMapItem) IsReadable() bool {
	return len(mmItem.Perms) > 0 && mmItem.Perms[0] == 'r'
}

func (mmItem MemoryMapItem) IsWritable() bool {
	return len(mmItem.Perms) > 1 && mmItem.Perms[1] == 'w'
}

func (mmItem MemoryMapItem) IsExecutable() bool {
	return len(mmItem.Perms) > 2 && mmItem.Perms[2] == 'x'
}

// ParseMemoryMap parses the /proc/<pid>/maps text format
func ParseMemoryMap(r io.Reader) ([]MemoryMapItem, error) {
	var memoryMap []MemoryMapItem
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}

		// Parse address range (e.g., "00400000-0040b000")
		addrRange := strings.Split(fields[0], "-")
		if len(addrRange) != 2 {
			continue
		}

		startAddr, err := strconv.ParseUint(addrRange[0], 16, 64)
		if err != nil {
			continue
		}

		endAddr, err := strconv.ParseUint(addrRange[1], 16, 64)
		if err != nil || endAddr < startAddr {
			continue
		}

		item := MemoryMapItem{
			Address: startAddr,
			Size:    uint(endAddr - startAddr),
			Perms:   fields[1],
		}
		if len(fields) > 2 {
			item.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
		}
		// Paths may contain spaces, they start at the sixth field
		if len(fields) > 5 {
			item.Path = strings.Join(fields[5:], " ")
		}

		memoryMap = append(memoryMap, item)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// IsValidAddress2 requires the memory map to be sorted by address
	sort.Slice(memoryMap, func(i, j int) bool {
		return memoryMap[i].Address < memoryMap[j].Address
	})

	return memoryMap, nil
}

// IsValidAddress2 binary-searches a sorted memory map for the region containing addr
func IsValidAddress2(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	i := sort.Search(len(memoryMap), func(i int) bool {
		return memoryMap[i].Address+uint64(memoryMap[i].Size) > addr
	})
	if i < len(memoryMap) && memoryMap[i].Address <= addr {
		return &memoryMap[i]
	}

	return nil
}

// GetMemoryRegionForAddress returns the memory region containing an address
func GetMemoryRegionForAddress(addr uint64, memoryMap []MemoryMapItem) *MemoryMapItem {
	for i := range memoryMap {
		if addr >= memoryMap[i].Address && addr < memoryMap[i].End() {
			return &memoryMap[i]
		}
	}
	return nil
}

func matchesModule(item MemoryMapItem, name string) bool {
	if item.Path == "" {
		return false
	}
	return strings.HasSuffix(item.Path, "/"+name) || item.Path == name
}

// FindModule returns the first mapping of the named module whose permissions
// include every non '-' character of perms (e.g. "r-x")
func FindModule(memoryMap []MemoryMapItem, name string, perms string) (MemoryMapItem, error) {
next:
	for _, item := range memoryMap {
		if !matchesModule(item, name) {
			continue
		}
		for i, c := range perms {
			if c == '-' {
				continue
			}
			if i >= len(item.Perms) || rune(item.Perms[i]) != c {
				continue next
			}
		}
		return item, nil
	}
	return MemoryMapItem{}, fmt.Errorf("%s (%s): %w", name, perms, ErrModuleNotFound)
}

// ModuleBase returns the address of the module's file offset 0 mapping, and its path
func ModuleBase(memoryMap []MemoryMapItem, name string) (uint64, string, error) {
	for _, item := range memoryMap {
		if matchesModule(item, name) && item.Offset == 0 {
			return item.Address, item.Path, nil
		}
	}
	return 0, "", fmt.Errorf("%s base: %w", name, ErrModuleNotFound)
}
