package material

import (
	"encoding/binary"
	"fmt"
	"math"
)

// reader decodes little-endian fields; the first failure sticks and every
// later read returns zero values
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.off {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, len(r.data)-r.off, ErrTruncated)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) bool() bool {
	v := r.u8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("bool byte %#x at offset %d: %w", v, r.off-1, ErrMalformed)
	}
	return v == 1
}

func (r *reader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// bytes reads a u32 length prefixed byte string
func (r *reader) bytes() []byte {
	n := r.u32()
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) str() string {
	return string(r.bytes())
}

func (r *reader) optStr() *string {
	if !r.bool() {
		return nil
	}
	s := r.str()
	return &s
}

func (r *reader) expect(what string, got, want uint64) {
	if r.err == nil && got != want {
		r.err = fmt.Errorf("%s is %#x, want %#x: %w", what, got, want, ErrMalformed)
	}
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return fmt.Errorf("%d trailing bytes: %w", len(r.data)-r.off, ErrMalformed)
	}
	return nil
}

// writer is the encoding side of reader
type writer struct {
	buf []byte
	err error
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) bytes(b []byte) {
	if uint64(len(b)) > math.MaxUint32 {
		w.fail("byte string", len(b))
		return
	}
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *writer) str(s string) {
	w.bytes([]byte(s))
}

func (w *writer) optStr(s *string) {
	w.bool(s != nil)
	if s != nil {
		w.str(*s)
	}
}

func (w *writer) count8(what string, n int) {
	if n > math.MaxUint8 {
		w.fail(what, n)
	}
	w.u8(uint8(n))
}

func (w *writer) count16(what string, n int) {
	if n > math.MaxUint16 {
		w.fail(what, n)
	}
	w.u16(uint16(n))
}

func (w *writer) fail(what string, n int) {
	if w.err == nil {
		w.err = fmt.Errorf("%s count %d: %w", what, n, ErrTooLarge)
	}
}
