package material

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

// hostReader serves a RenderChunk written for version from the second
// reference path only
func hostReader(t *testing.T, version Version, vertex string, reads *atomic.Int32) func(string) ([]byte, error) {
	data := mustMarshal(t, testBundle(t, "RenderChunk", vertex), version)
	return func(path string) ([]byte, error) {
		reads.Add(1)
		if path == ReferencePaths[1] {
			return data, nil
		}
		return nil, errors.New("not found")
	}
}

func newTransformer(t *testing.T, host Version, vertex string) (*Transformer, *Options) {
	var reads atomic.Int32
	opts := NewOptions()
	return NewTransformer(NewDetector(hostReader(t, host, vertex, &reads)), opts), opts
}

func TestDetectorOnce(t *testing.T) {
	var reads atomic.Int32
	d := NewDetector(hostReader(t, V1_21_110, packedVertex, &reads))

	var wg sync.WaitGroup
	results := make([]HostVersion, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Detect()
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != results[0] {
			t.Fatalf("callers disagree: %+v %+v", r, results[0])
		}
	}
	want := HostVersion{Version: V1_21_110, Known: true, DitheringLightmaps: true, PackedLightmaps16: true}
	if results[0] != want {
		t.Errorf("got %+v", results[0])
	}
	// both reference paths once
	if reads.Load() != 2 {
		t.Errorf("%d reads", reads.Load())
	}

	failed := NewDetector(func(string) ([]byte, error) {
		reads.Add(1)
		return nil, errors.New("no asset manager")
	})
	before := reads.Load()
	for range 2 {
		if failed.Detect().Known {
			t.Error("detected without data")
		}
	}
	if reads.Load()-before != int32(len(ReferencePaths)) {
		t.Error("failed detection was retried")
	}
}

func TestNoChangeForHostVersion(t *testing.T) {
	tr, _ := newTransformer(t, V1_21_110, legacyVertex)

	// same version, not RenderChunk
	raw := mustMarshal(t, testBundle(t, "Sky", legacyVertex), V1_21_110)
	if out, ok := tr.Transform(raw); ok || out != nil {
		t.Error("same-version bundle was rewritten")
	}

	// RenderChunk, but the host does not dither so no fix applies
	raw = mustMarshal(t, testBundle(t, "RenderChunk", legacyVertex), V1_21_110)
	if _, ok := tr.Transform(raw); ok {
		t.Error("same-version RenderChunk was rewritten")
	}

	if _, ok := tr.Transform([]byte("garbage")); ok {
		t.Error("unparseable bundle was rewritten")
	}
}

func TestPortToHostVersion(t *testing.T) {
	tr, _ := newTransformer(t, V1_21_110, legacyVertex)

	src := testBundle(t, "Sky", legacyVertex)
	out, ok := tr.Transform(mustMarshal(t, src, V1_20_80))
	if !ok {
		t.Fatal("older bundle not ported")
	}
	got, err := Parse(out, V1_21_110)
	if err != nil {
		t.Fatalf("output does not parse for the host: %v", err)
	}
	if got.Passes[0].Variants[0].ShaderCodes[0].GroupIndex != 0 {
		t.Error("field missing from v1.20.80 not zeroed")
	}
	if !bytes.Equal(got.Passes[0].Variants[0].ShaderCodes[0].Data, src.Passes[0].Variants[0].ShaderCodes[0].Data) {
		t.Error("shader changed without a fix")
	}
}

func glsl(t *testing.T, c ShaderCode) string {
	t.Helper()
	s, err := ParseBgfx(c.Data)
	if err != nil {
		t.Fatal(err)
	}
	return string(s.Code)
}

func TestLightmapFix(t *testing.T) {
	tr, _ := newTransformer(t, V1_21_110, ditheringVertex)

	src := testBundle(t, "RenderChunk", legacyVertex)
	out, ok := tr.Transform(mustMarshal(t, src, V1_20_80))
	if !ok {
		t.Fatal("no change")
	}
	got, err := Parse(out, V1_21_110)
	if err != nil {
		t.Fatalf("output does not parse for the host: %v", err)
	}

	for pi, pass := range got.Passes {
		codes := pass.Variants[0].ShaderCodes
		vertex := glsl(t, codes[0])
		if pass.Name == "DepthOnly" {
			if vertex != legacyVertex {
				t.Errorf("DepthOnly vertex shader changed")
			}
			continue
		}
		want := string(lightmap10023To11020) + "void main"
		i := bytes.Index([]byte(vertex), []byte("void main"))
		if i < len(lightmap10023To11020) || vertex[i-len(lightmap10023To11020):i+len("void main")] != want {
			t.Errorf("%s: fragment not inserted before entry point:\n%s", pass.Name, vertex)
		}
		if !bytes.Contains([]byte(vertex), []byte("v_lightmapUV = a_texcoord1;")) {
			t.Errorf("%s: original marker text lost", pass.Name)
		}
		if !bytes.Equal(codes[1].Data, src.Passes[pi].Variants[0].ShaderCodes[1].Data) {
			t.Errorf("%s: fragment stage changed", pass.Name)
		}
	}
}

func TestLightmapFixPackedHost(t *testing.T) {
	tr, opts := newTransformer(t, V1_21_110, packedVertex)

	// a v1.21.110 dithering shader on a packed host is the same format but
	// still needs converting
	raw := mustMarshal(t, testBundle(t, "RenderChunk", ditheringVertex), V1_21_110)
	out, ok := tr.Transform(raw)
	if !ok {
		t.Fatal("no change")
	}
	got, _ := Parse(out, V1_21_110)
	if !bytes.Contains([]byte(glsl(t, got.Passes[0].Variants[0].ShaderCodes[0])), lightmap11020To13028) {
		t.Error("11020 -> 13028 fragment missing")
	}

	// already packed: nothing to do for a same-version bundle
	raw = mustMarshal(t, testBundle(t, "RenderChunk", packedVertex), V1_21_110)
	if _, ok := tr.Transform(raw); ok {
		t.Error("packed shader on packed host was rewritten")
	}

	opts.SetLightmapFix(false)
	if _, ok := tr.Transform(mustMarshal(t, testBundle(t, "RenderChunk", ditheringVertex), V1_21_110)); ok {
		t.Error("lightmap fix ran while disabled")
	}
}

func TestSamplerFix(t *testing.T) {
	tr, _ := newTransformer(t, V1_20_80, legacyVertex)

	src := testBundle(t, "RenderChunk", legacyVertex)
	out, ok := tr.Transform(mustMarshal(t, src, V1_19_60))
	if !ok {
		t.Fatal("no change")
	}
	got, err := Parse(out, V1_20_80)
	if err != nil {
		t.Fatal(err)
	}

	for _, pass := range got.Passes {
		fragment := glsl(t, pass.Variants[0].ShaderCodes[1])
		fixed := bytes.Contains([]byte(fragment), append(bytes.Clone(samplerLodFix), "void main ()"...))
		switch pass.Name {
		case "Opaque", "AlphaTest":
			if !fixed {
				t.Errorf("%s: sampler fix missing:\n%s", pass.Name, fragment)
			}
		default:
			if fixed || fragment != fragmentCode {
				t.Errorf("%s: fragment changed", pass.Name)
			}
		}
		if glsl(t, pass.Variants[0].ShaderCodes[0]) != legacyVertex {
			t.Errorf("%s: vertex changed", pass.Name)
		}
	}
}

func TestVersionOption(t *testing.T) {
	tr, opts := newTransformer(t, V1_21_110, legacyVertex)
	raw := mustMarshal(t, testBundle(t, "Sky", legacyVertex), V1_20_80)

	if err := opts.SetVersionNames([]string{"v1.21.110", "v26.0.24"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.Transform(raw); ok {
		t.Error("bundle transformed under a version that is not configured")
	}

	if err := opts.SetVersionNames([]string{"v1.20.80", "bogus"}); err == nil {
		t.Error("bogus version accepted")
	}
	if got := opts.Snapshot().Versions; len(got) != 2 || got[0] != V1_21_110 {
		t.Errorf("failed SetVersionNames changed options: %v", got)
	}
}

func TestUnknownHost(t *testing.T) {
	tr := NewTransformer(NewDetector(func(string) ([]byte, error) { return []byte("junk"), nil }), NewOptions())
	raw := mustMarshal(t, testBundle(t, "RenderChunk", legacyVertex), V1_18_30)
	if _, ok := tr.Transform(raw); ok {
		t.Error("transformed without a known host version")
	}
}

func TestMemo(t *testing.T) {
	tr, opts := newTransformer(t, V1_21_110, legacyVertex)
	memo := NewMemo(tr, 2)

	raw := mustMarshal(t, testBundle(t, "Sky", legacyVertex), V1_20_80)
	first, ok := memo.Transform(raw)
	if !ok {
		t.Fatal("no change")
	}
	second, _ := memo.Transform(bytes.Clone(raw))
	if &first[0] != &second[0] {
		t.Error("identical content was transformed twice")
	}

	// options are part of the key
	opts.SetVersions([]Version{V1_21_110})
	if _, ok := memo.Transform(raw); ok {
		t.Error("memo ignored an options change")
	}

	// oldest entry is evicted
	memo.Transform([]byte("a"))
	opts.SetVersions(AllVersions())
	third, _ := memo.Transform(raw)
	if &third[0] == &first[0] {
		t.Error("evicted entry was served")
	}

	if NewOptions().Snapshot().Fingerprint() != opts.Snapshot().Fingerprint() {
		t.Error("fingerprint differs for equal options")
	}
}
