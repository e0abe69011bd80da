package hexdump

import (
	"strings"
	"testing"
)

func TestDump(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOPqr\x00")
	got := Dump(data, DefaultOptions())
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "00000000  41 42 43") || !strings.HasSuffix(lines[0], "| ABCDEFGHIJKLMNOP") {
		t.Errorf("first line %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "00000010  71 72 00") || !strings.HasSuffix(lines[1], "| qr.") {
		t.Errorf("second line %q", lines[1])
	}
	if strings.Index(lines[0], "|") != strings.Index(lines[1], "|") {
		t.Error("ASCII column not aligned on short line")
	}
}

func TestDumpMaskAndLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.ShowASCII = false
	opts.Mask = []byte{0xff, 0x00, 0xff}
	if got := Dump([]byte{0x48, 0x8b, 0x05}, opts); got != "00000000  48 ?? 05\n" {
		t.Errorf("masked dump %q", got)
	}

	opts = DefaultOptions()
	opts.BytesPerLine = 4
	opts.MaxLines = 1
	if got := Dump(make([]byte, 10), opts); !strings.HasSuffix(got, "... 6 more bytes\n") {
		t.Errorf("limited dump %q", got)
	}
}

func TestDumpCompact(t *testing.T) {
	if got := DumpCompact([]byte{0xde, 0xad, 0xbe, 0xef}); got != "de ad be ef" {
		t.Errorf("got %q", got)
	}
}
