// Package material reads, rewrites and writes compiled material bundles
// (*.material.bin) and fixes shader incompatibilities between game versions.
//
// A bundle is little-endian:
//
//	u64 magic, str identifier, u64 format, u32 encryption
//	str name, opt parent
//	u8 count samplers, u16 count properties, u16 count passes
//	u64 magic
//
// Strings are u32 length prefixed, optional values are a bool byte followed
// by the value when true. Fields added in later versions are described on
// the types.
package material

import (
	"errors"
	"fmt"
)

const (
	bundleMagic  = 0x0A11DA1A
	identifier   = "RenderDragon.CompiledMaterialDefinition"
	formatNumber = 22

	// "NONE" read as a little-endian u32
	encryptionNone = 0x454E4F4E
)

var (
	ErrTruncated      = errors.New("truncated material")
	ErrMalformed      = errors.New("malformed material")
	ErrTooLarge       = errors.New("value too large for material format")
	ErrUnknownVersion = errors.New("unknown material version")
	ErrEncrypted      = errors.New("encrypted material")
)

type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
	StageUnknown
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "Vertex"
	case StageFragment:
		return "Fragment"
	case StageCompute:
		return "Compute"
	}
	return "Unknown"
}

type Platform uint8

const (
	PlatformDirect3DSM40 Platform = iota
	PlatformDirect3DSM50
	PlatformDirect3DSM60
	PlatformDirect3DSM65
	PlatformDirect3DXB1
	PlatformDirect3DXBX
	PlatformGLSL120
	PlatformGLSL430
	PlatformESSL100
	PlatformESSL300
	PlatformESSL310
	PlatformMetal
	PlatformVulkan
	PlatformNvn
	PlatformPssl
)

// Sampler binds a texture slot. Description is present from v1.19.60.
type Sampler struct {
	Name                 string
	Register             uint16
	Access               uint8
	Precision            uint8
	AllowUnorderedAccess bool
	Type                 uint8
	TextureFormat        string
	DefaultTexture       *string
	Description          *string
}

// Property is a uniform default, kept as opaque bytes
type Property struct {
	Name string
	Type uint16
	Data []byte
}

// Flag is one entry of an ordered key/value list
type Flag struct {
	Key   string
	Value string
}

// Pass is a named render pass. BlendMode is present from v1.20.80.
type Pass struct {
	Name         string
	Bitset       string
	Fallback     string
	BlendMode    *uint16
	DefaultFlags []Flag
	Variants     []Variant
}

// Variant is a flag combination with its shaders. RenderState is present
// from v26.0.24.
type Variant struct {
	Supported   bool
	Flags       []Flag
	ShaderCodes []ShaderCode
	RenderState uint32
}

// ShaderCode is one compiled stage. GroupIndex is present from v1.21.110.
// Data is a bgfx shader blob, see ParseBgfx.
type ShaderCode struct {
	StageName    string
	PlatformName string
	Stage        ShaderStage
	Platform     Platform
	Inputs       []Input
	GroupIndex   uint8
	SourceHash   uint64
	Data         []byte
}

// Input is a vertex attribute. Precision and Interpolation are present from
// v1.21.20.
type Input struct {
	Name          string
	Type          uint8
	Semantic      uint8
	SemanticIndex uint8
	PerInstance   bool
	Precision     *uint8
	Interpolation *uint8
}

// Bundle is a parsed compiled material
type Bundle struct {
	Name       string
	Parent     *string
	Samplers   []Sampler
	Properties []Property
	Passes     []Pass
}

// Parse decodes data as a bundle written by version. The whole input must be
// consumed.
func Parse(data []byte, version Version) (*Bundle, error) {
	if version < V1_18_30 || version > V26_0_24 {
		return nil, fmt.Errorf("%s: %w", version, ErrUnknownVersion)
	}

	r := &reader{data: data}
	r.expect("magic", r.u64(), bundleMagic)
	if id := r.str(); r.err == nil && id != identifier {
		return nil, fmt.Errorf("identifier %q: %w", id, ErrMalformed)
	}
	r.expect("format", r.u64(), formatNumber)
	if enc := r.u32(); r.err == nil && enc != encryptionNone {
		return nil, fmt.Errorf("encryption %#x: %w", enc, ErrEncrypted)
	}

	b := &Bundle{}
	b.Name = r.str()
	b.Parent = r.optStr()

	n := int(r.u8())
	for i := 0; i < n && r.err == nil; i++ {
		b.Samplers = append(b.Samplers, readSampler(r, version))
	}

	n = int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		b.Properties = append(b.Properties, Property{Name: r.str(), Type: r.u16(), Data: r.bytes()})
	}

	n = int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		b.Passes = append(b.Passes, readPass(r, version))
	}

	r.expect("end magic", r.u64(), bundleMagic)
	if err := r.done(); err != nil {
		return nil, fmt.Errorf("parse %s: %w", version, err)
	}
	return b, nil
}

func readSampler(r *reader, version Version) Sampler {
	s := Sampler{
		Name:                 r.str(),
		Register:             r.u16(),
		Access:               r.u8(),
		Precision:            r.u8(),
		AllowUnorderedAccess: r.bool(),
		Type:                 r.u8(),
		TextureFormat:        r.str(),
		DefaultTexture:       r.optStr(),
	}
	if version >= V1_19_60 {
		s.Description = r.optStr()
	}
	return s
}

func readFlags(r *reader) []Flag {
	n := int(r.u16())
	if r.err != nil {
		return nil
	}
	flags := make([]Flag, 0, min(n, 64))
	for i := 0; i < n && r.err == nil; i++ {
		flags = append(flags, Flag{Key: r.str(), Value: r.str()})
	}
	return flags
}

func readPass(r *reader, version Version) Pass {
	p := Pass{
		Name:     r.str(),
		Bitset:   r.str(),
		Fallback: r.str(),
	}
	if version >= V1_20_80 && r.bool() {
		mode := r.u16()
		p.BlendMode = &mode
	}
	p.DefaultFlags = readFlags(r)

	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		p.Variants = append(p.Variants, readVariant(r, version))
	}
	return p
}

func readVariant(r *reader, version Version) Variant {
	v := Variant{
		Supported: r.bool(),
		Flags:     readFlags(r),
	}
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		v.ShaderCodes = append(v.ShaderCodes, readShaderCode(r, version))
	}
	if version >= V26_0_24 {
		v.RenderState = r.u32()
	}
	return v
}

func readShaderCode(r *reader, version Version) ShaderCode {
	c := ShaderCode{
		StageName:    r.str(),
		PlatformName: r.str(),
		Stage:        ShaderStage(r.u8()),
		Platform:     Platform(r.u8()),
	}
	n := int(r.u16())
	for i := 0; i < n && r.err == nil; i++ {
		c.Inputs = append(c.Inputs, readInput(r, version))
	}
	if version >= V1_21_110 {
		c.GroupIndex = r.u8()
	}
	c.SourceHash = r.u64()
	c.Data = r.bytes()
	return c
}

func readInput(r *reader, version Version) Input {
	in := Input{
		Name:          r.str(),
		Type:          r.u8(),
		Semantic:      r.u8(),
		SemanticIndex: r.u8(),
		PerInstance:   r.bool(),
	}
	if version >= V1_21_20 {
		if r.bool() {
			v := r.u8()
			in.Precision = &v
		}
		if r.bool() {
			v := r.u8()
			in.Interpolation = &v
		}
	}
	return in
}

// Marshal encodes the bundle in version's layout. Fields the version does
// not have are dropped; fields it adds are written as zero values.
func (b *Bundle) Marshal(version Version) ([]byte, error) {
	if version < V1_18_30 || version > V26_0_24 {
		return nil, fmt.Errorf("%s: %w", version, ErrUnknownVersion)
	}

	w := &writer{}
	w.u64(bundleMagic)
	w.str(identifier)
	w.u64(formatNumber)
	w.u32(encryptionNone)
	w.str(b.Name)
	w.optStr(b.Parent)

	w.count8("sampler", len(b.Samplers))
	for _, s := range b.Samplers {
		w.str(s.Name)
		w.u16(s.Register)
		w.u8(s.Access)
		w.u8(s.Precision)
		w.bool(s.AllowUnorderedAccess)
		w.u8(s.Type)
		w.str(s.TextureFormat)
		w.optStr(s.DefaultTexture)
		if version >= V1_19_60 {
			w.optStr(s.Description)
		}
	}

	w.count16("property", len(b.Properties))
	for _, p := range b.Properties {
		w.str(p.Name)
		w.u16(p.Type)
		w.bytes(p.Data)
	}

	w.count16("pass", len(b.Passes))
	for _, p := range b.Passes {
		writePass(w, &p, version)
	}

	w.u64(bundleMagic)
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

func writeFlags(w *writer, flags []Flag) {
	w.count16("flag", len(flags))
	for _, f := range flags {
		w.str(f.Key)
		w.str(f.Value)
	}
}

func writePass(w *writer, p *Pass, version Version) {
	w.str(p.Name)
	w.str(p.Bitset)
	w.str(p.Fallback)
	if version >= V1_20_80 {
		w.bool(p.BlendMode != nil)
		if p.BlendMode != nil {
			w.u16(*p.BlendMode)
		}
	}
	writeFlags(w, p.DefaultFlags)

	w.count16("variant", len(p.Variants))
	for _, v := range p.Variants {
		w.bool(v.Supported)
		writeFlags(w, v.Flags)
		w.count16("shader code", len(v.ShaderCodes))
		for _, c := range v.ShaderCodes {
			writeShaderCode(w, &c, version)
		}
		if version >= V26_0_24 {
			w.u32(v.RenderState)
		}
	}
}

func writeShaderCode(w *writer, c *ShaderCode, version Version) {
	w.str(c.StageName)
	w.str(c.PlatformName)
	w.u8(uint8(c.Stage))
	w.u8(uint8(c.Platform))
	w.count16("input", len(c.Inputs))
	for _, in := range c.Inputs {
		w.str(in.Name)
		w.u8(in.Type)
		w.u8(in.Semantic)
		w.u8(in.SemanticIndex)
		w.bool(in.PerInstance)
		if version >= V1_21_20 {
			w.bool(in.Precision != nil)
			if in.Precision != nil {
				w.u8(*in.Precision)
			}
			w.bool(in.Interpolation != nil)
			if in.Interpolation != nil {
				w.u8(*in.Interpolation)
			}
		}
	}
	if version >= V1_21_110 {
		w.u8(c.GroupIndex)
	}
	w.u64(c.SourceHash)
	w.bytes(c.Data)
}
