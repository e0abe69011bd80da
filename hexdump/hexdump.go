// Package hexdump formats byte slices for log output. Output is plain text so
// it survives logcat and redirected stderr.
package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartOffset is the address printed for the first byte
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// Mask marks bytes to print as "??" when the mask byte is zero
	Mask []byte

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() Options {
	return Options{
		BytesPerLine: 16,
		GroupSize:    1,
		ShowASCII:    true,
		OffsetWidth:  8,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := offset + options.BytesPerLine
		if end > len(data) {
			end = len(data)
		}
		formatLine(writer, data[offset:end], offset, options)
		lineCount++
	}
}

func formatLine(writer io.Writer, data []byte, offset int, options Options) {
	fmt.Fprintf(writer, "%0*x  ", options.OffsetWidth, options.StartOffset+uint64(offset))

	var hex strings.Builder
	for i, b := range data {
		if i > 0 && i%options.GroupSize == 0 {
			hex.WriteByte(' ')
		}
		if masked(options.Mask, offset+i) {
			hex.WriteString("??")
		} else {
			fmt.Fprintf(&hex, "%02x", b)
		}
	}
	line := hex.String()
	fmt.Fprint(writer, line)

	if options.ShowASCII {
		// pad short lines so the ASCII column stays aligned
		full := options.BytesPerLine*2 + (options.BytesPerLine-1)/options.GroupSize
		if pad := full - len(line); pad > 0 {
			fmt.Fprint(writer, strings.Repeat(" ", pad))
		}
		fmt.Fprint(writer, " | ")
		for _, b := range data {
			if b >= 0x20 && b < 0x7f {
				fmt.Fprintf(writer, "%c", b)
			} else {
				fmt.Fprint(writer, ".")
			}
		}
	}
	fmt.Fprintln(writer)
}

func masked(mask []byte, i int) bool {
	return i < len(mask) && mask[i] == 0
}

// DumpBytes creates a simple hex dump with default options
func DumpBytes(data []byte) string {
	return Dump(data, DefaultOptions())
}

// DumpWithOffset creates a hex dump starting at the specified offset
func DumpWithOffset(data []byte, startOffset uint64) string {
	options := DefaultOptions()
	options.StartOffset = startOffset
	options.OffsetWidth = 16
	return Dump(data, options)
}

// DumpCompact renders data on a single line, "de ad be ef"
func DumpCompact(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
