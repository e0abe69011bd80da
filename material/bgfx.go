package material

import (
	"fmt"
	"math"
)

// Uniform is a bgfx uniform declaration. The texture fields exist from blob
// version 8.
type Uniform struct {
	Name         string
	Type         uint8
	Num          uint8
	RegIndex     uint16
	RegCount     uint16
	TexComponent uint8
	TexDimension uint8
	TexFormat    uint16
}

// BgfxShader is the blob stored in ShaderCode.Data:
//
//	[3]byte magic ("VSH", "FSH", "CSH"), u8 version, u32 hash
//	u16 count uniforms
//	u32 code size, code, u8 0
//	u8 count u16 attributes
//	u16 constant buffer size
type BgfxShader struct {
	Magic      [3]byte
	Version    uint8
	Hash       uint32
	Uniforms   []Uniform
	Code       []byte
	Attributes []uint16
	Size       uint16
}

func validBgfxMagic(m [3]byte) bool {
	switch string(m[:]) {
	case "VSH", "FSH", "CSH":
		return true
	}
	return false
}

// ParseBgfx decodes a shader blob; the whole input must be consumed
func ParseBgfx(data []byte) (*BgfxShader, error) {
	r := &reader{data: data}
	s := &BgfxShader{}
	copy(s.Magic[:], r.take(3))
	if r.err == nil && !validBgfxMagic(s.Magic) {
		return nil, fmt.Errorf("bgfx magic %q: %w", s.Magic[:], ErrMalformed)
	}
	s.Version = r.u8()
	s.Hash = r.u32()

	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		u := Uniform{}
		u.Name = string(r.take(int(r.u8())))
		u.Type = r.u8()
		u.Num = r.u8()
		u.RegIndex = r.u16()
		u.RegCount = r.u16()
		if s.Version >= 8 {
			u.TexComponent = r.u8()
			u.TexDimension = r.u8()
			u.TexFormat = r.u16()
		}
		s.Uniforms = append(s.Uniforms, u)
	}

	code := r.take(int(r.u32()))
	s.Code = append([]byte(nil), code...)
	r.expect("code terminator", uint64(r.u8()), 0)

	n = int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		s.Attributes = append(s.Attributes, r.u16())
	}
	s.Size = r.u16()

	if err := r.done(); err != nil {
		return nil, fmt.Errorf("bgfx: %w", err)
	}
	return s, nil
}

// Marshal encodes the blob
func (s *BgfxShader) Marshal() ([]byte, error) {
	w := &writer{}
	w.buf = append(w.buf, s.Magic[:]...)
	w.u8(s.Version)
	w.u32(s.Hash)

	w.count16("uniform", len(s.Uniforms))
	for _, u := range s.Uniforms {
		if len(u.Name) > math.MaxUint8 {
			w.fail("uniform name", len(u.Name))
		}
		w.u8(uint8(len(u.Name)))
		w.buf = append(w.buf, u.Name...)
		w.u8(u.Type)
		w.u8(u.Num)
		w.u16(u.RegIndex)
		w.u16(u.RegCount)
		if s.Version >= 8 {
			w.u8(u.TexComponent)
			w.u8(u.TexDimension)
			w.u16(u.TexFormat)
		}
	}

	if uint64(len(s.Code)) > math.MaxUint32 {
		w.fail("code", len(s.Code))
	}
	w.u32(uint32(len(s.Code)))
	w.buf = append(w.buf, s.Code...)
	w.u8(0)

	w.count8("attribute", len(s.Attributes))
	for _, a := range s.Attributes {
		w.u16(a)
	}
	w.u16(s.Size)

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}
