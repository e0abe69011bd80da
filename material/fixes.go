package material

import (
	"bytes"
	_ "embed"
)

var (
	//go:embed assets/lightmapUtil_10023_11020.glsl
	lightmap10023To11020 []byte
	//go:embed assets/lightmapUtil_10023_13028.glsl
	lightmap10023To13028 []byte
	//go:embed assets/lightmapUtil_11020_13028.glsl
	lightmap11020To13028 []byte
	//go:embed assets/lightmapUtil_13028_11020.glsl
	lightmap13028To11020 []byte
)

var (
	mainMarker      = []byte("void main")
	mainMarkerExact = []byte("void main ()")

	legacyLightmapAssign = [][]byte{
		[]byte("v_lightmapUV = a_texcoord1;"),
		[]byte("v_lightmapUV=a_texcoord1;"),
	}
	packedLightmapMarkers = [][]byte{
		[]byte("65535.0"),
		[]byte("vec2(256.0, 4096.0)"),
	}

	samplerLodFix = []byte(`
#if __VERSION__ >= 300
  #define texture(tex,uv) vec4(texture(tex,uv).rgb,textureLod(tex,uv,0.0).a)
#else
  #define texture2D(tex,uv) vec4(texture2D(tex,uv).rgb,texture2DLod(tex,uv,0.0).a)
#endif
`)
)

// insertBefore splices text in front of the first marker; code without the
// marker is returned unchanged
func insertBefore(code, marker, text []byte) ([]byte, bool) {
	i := bytes.Index(code, marker)
	if i < 0 {
		return code, false
	}
	out := make([]byte, 0, len(code)+len(text))
	out = append(out, code[:i]...)
	out = append(out, text...)
	out = append(out, code[i:]...)
	return out, true
}

func containsAny(code []byte, markers [][]byte) bool {
	for _, m := range markers {
		if bytes.Contains(code, m) {
			return true
		}
	}
	return false
}

// editCode rewrites the GLSL inside a shader blob. Blobs that do not parse
// are left alone.
func editCode(c *ShaderCode, edit func(code []byte) ([]byte, bool)) bool {
	shader, err := ParseBgfx(c.Data)
	if err != nil {
		return false
	}
	code, changed := edit(shader.Code)
	if !changed {
		return false
	}
	shader.Code = code
	data, err := shader.Marshal()
	if err != nil {
		return false
	}
	c.Data = data
	return true
}

func isLightmapTarget(c *ShaderCode) bool {
	if c.Stage != StageVertex {
		return false
	}
	if c.Platform != PlatformESSL100 && c.Platform != PlatformESSL300 {
		return false
	}
	switch c.PlatformName {
	case "ESSL_100", "ESSL_300", "ESSL_310":
		return true
	}
	return false
}

// lightmapFragment picks the conversion from the shader's lightmap encoding
// to the host's. nil means the encodings already agree.
func lightmapFragment(code []byte, hostPacked bool) []byte {
	dithering := !containsAny(code, legacyLightmapAssign)
	packed := containsAny(code, packedLightmapMarkers)

	switch {
	case !dithering && hostPacked:
		return lightmap10023To13028
	case !dithering:
		return lightmap10023To11020
	case packed && !hostPacked:
		return lightmap13028To11020
	case !packed && hostPacked:
		return lightmap11020To13028
	}
	return nil
}

// fixLightmaps converts vertex shaders to the host's lightmap encoding and
// returns how many were changed
func fixLightmaps(b *Bundle, hostPacked bool) int {
	changed := 0
	for pi := range b.Passes {
		pass := &b.Passes[pi]
		if pass.Name == "DepthOnly" || pass.Name == "DepthOnlyOpaque" {
			continue
		}
		for vi := range pass.Variants {
			codes := pass.Variants[vi].ShaderCodes
			for ci := range codes {
				if !isLightmapTarget(&codes[ci]) {
					continue
				}
				ok := editCode(&codes[ci], func(code []byte) ([]byte, bool) {
					fragment := lightmapFragment(code, hostPacked)
					if fragment == nil {
						return code, false
					}
					return insertBefore(code, mainMarker, fragment)
				})
				if ok {
					changed++
				}
			}
		}
	}
	return changed
}

// fixSamplers keeps alpha-tested textures at mip 0 on hosts that bind
// mipmapped atlases; returns how many shaders were changed
func fixSamplers(b *Bundle) int {
	changed := 0
	for pi := range b.Passes {
		pass := &b.Passes[pi]
		if pass.Name != "AlphaTest" && pass.Name != "Opaque" {
			continue
		}
		for vi := range pass.Variants {
			codes := pass.Variants[vi].ShaderCodes
			for ci := range codes {
				c := &codes[ci]
				if c.Stage != StageFragment || c.PlatformName != "ESSL_100" {
					continue
				}
				if editCode(c, func(code []byte) ([]byte, bool) {
					return insertBefore(code, mainMarkerExact, samplerLodFix)
				}) {
					changed++
				}
			}
		}
	}
	return changed
}
