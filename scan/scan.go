// Package scan locates byte signatures inside mapped code.
//
// Matching anchors on the longest run of exact bytes in the pattern and finds
// it with bytes.Index, which the runtime vectorizes on amd64 and arm64, then
// verifies the whole masked pattern at each anchor hit. The byte-by-byte
// matcher is kept for targets where the fast path is disabled.
package scan

import (
	"bytes"
	"errors"
	"fmt"

	"mbloader/process"
	"mbloader/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var (
	// ErrSignatureNotFound is returned when no candidate matches the region
	ErrSignatureNotFound = errors.New("signature not found")

	// ErrInvalidPattern is returned for empty patterns or mismatched masks
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Scanner holds configuration for the scan
type Scanner struct {
	FastSearch  bool
	MatchAdjust process.ProcessMemorySize

	log *logger.Logger
}

// Option is a function that configures a Scanner
type Option func(*Scanner)

// WithFastSearch toggles the bytes.Index anchored matcher
func WithFastSearch(enabled bool) Option {
	return func(s *Scanner) {
		s.FastSearch = enabled
	}
}

// WithMatchAdjust adds n to every reported address
func WithMatchAdjust(n process.ProcessMemorySize) Option {
	return func(s *Scanner) {
		s.MatchAdjust = n
	}
}

func New(options ...Option) *Scanner {
	s := &Scanner{
		FastSearch: true,
		log:        logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "scan")),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func validate(aob process.AOB) (process.AOB, error) {
	if !aob.IsValid() {
		return aob, fmt.Errorf("pattern length %d mask length %d: %w", len(aob.Pattern), len(aob.Mask), ErrInvalidPattern)
	}
	return aob.Normalized(), nil
}

// FindFirst returns the address of the first match of the first candidate
// that matches anywhere in region
func (s *Scanner) FindFirst(proc process.Process, region memory_map.MemoryMapItem, candidates []process.AOB) (process.ProcessMemoryAddress, error) {
	data, err := proc.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
	if err != nil {
		return 0, fmt.Errorf("failed to read region %s: %w", region.String(), err)
	}

	for i, candidate := range candidates {
		aob, err := validate(candidate)
		if err != nil {
			return 0, fmt.Errorf("candidate %d: %w", i, err)
		}

		offset, ok := s.index(data, aob, 0)
		if !ok {
			s.log.Debugln("candidate", i, "did not match")
			continue
		}

		addr := process.ProcessMemoryAddress(region.Address+uint64(offset)) + process.ProcessMemoryAddress(s.MatchAdjust)
		s.log.Infoln("candidate", i, "matched at", addr.ToString())
		return addr, nil
	}

	return 0, fmt.Errorf("%d candidates in %s: %w", len(candidates), region.String(), ErrSignatureNotFound)
}

// ScanRegion returns every match of aob in region
func (s *Scanner) ScanRegion(proc process.Process, region memory_map.MemoryMapItem, aob process.AOB) ([]process.ProcessMemoryAddress, error) {
	aob, err := validate(aob)
	if err != nil {
		return nil, err
	}

	data, err := proc.ReadMemory(process.ProcessMemoryAddress(region.Address), process.ProcessMemorySize(region.Size))
	if err != nil {
		return nil, fmt.Errorf("failed to read region %s: %w", region.String(), err)
	}

	var results []process.ProcessMemoryAddress
	for _, offset := range s.FindAll(data, aob) {
		results = append(results, process.ProcessMemoryAddress(region.Address+uint64(offset))+process.ProcessMemoryAddress(s.MatchAdjust))
	}
	return results, nil
}

// FindAll returns the offsets of every match of aob in data, ascending.
// Offsets are not adjusted.
func (s *Scanner) FindAll(data []byte, aob process.AOB) []uint {
	aob = aob.Normalized()
	if !s.FastSearch {
		return findPatternMatches(data, aob.Pattern, aob.Mask)
	}

	var matches []uint
	for from := 0; ; {
		offset, ok := s.index(data, aob, from)
		if !ok {
			return matches
		}
		matches = append(matches, uint(offset))
		from = offset + 1
	}
}

func (s *Scanner) index(data []byte, aob process.AOB, from int) (int, bool) {
	if s.FastSearch {
		return indexAnchored(data, aob, from)
	}
	return indexMasked(data, aob.Pattern, aob.Mask, from)
}

// anchor returns the longest run of exact-match bytes in the pattern
func anchor(mask []byte) (start, length int) {
	for i := 0; i < len(mask); {
		if mask[i] != 0xFF {
			i++
			continue
		}
		j := i
		for j < len(mask) && mask[j] == 0xFF {
			j++
		}
		if j-i > length {
			start, length = i, j-i
		}
		i = j
	}
	return start, length
}

func indexAnchored(data []byte, aob process.AOB, from int) (int, bool) {
	start, length := anchor(aob.Mask)
	if length == 0 {
		return indexMasked(data, aob.Pattern, aob.Mask, from)
	}
	needle := aob.Pattern[start : start+length]

	// search position for the anchor, not the pattern
	pos := from + start
	for pos <= len(data)-length {
		idx := bytes.Index(data[pos:], needle)
		if idx < 0 {
			return 0, false
		}
		candidate := pos + idx - start
		if candidate+len(aob.Pattern) > len(data) {
			return 0, false
		}
		if matchAt(data, aob.Pattern, aob.Mask, candidate) {
			return candidate, true
		}
		pos += idx + 1
	}
	return 0, false
}

func indexMasked(data, pattern, mask []byte, from int) (int, bool) {
	for i := from; i <= len(data)-len(pattern); i++ {
		if matchAt(data, pattern, mask, i) {
			return i, true
		}
	}
	return 0, false
}

func matchAt(data, pattern, mask []byte, i int) bool {
	for j := 0; j < len(pattern); j++ {
		// Apply the mask: if mask byte is 0, skip this byte (wildcard)
		if mask[j] == 0 {
			continue
		}
		if data[i+j]&mask[j] != pattern[j]&mask[j] {
			return false
		}
	}
	return true
}

// findPatternMatches finds all occurrences of the pattern in the data
// Returns the offsets where matches were found
func findPatternMatches(data, pattern, mask []byte) []uint {
	if len(data) < len(pattern) {
		return nil
	}

	var matches []uint

	// Scan through the data byte by byte
	for i := 0; i <= len(data)-len(pattern); i++ {
		if matchAt(data, pattern, mask, i) {
			matches = append(matches, uint(i))
		}
	}

	return matches
}
