package material

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Transformer ports material bundles to the host's format and applies the
// lightmap and texture LOD fixes
type Transformer struct {
	detector *Detector
	options  *Options
	log      *logger.Logger
}

func NewTransformer(detector *Detector, options *Options) *Transformer {
	return &Transformer{
		detector: detector,
		options:  options,
		log:      logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "material")),
	}
}

// Transform returns replacement bytes, or ok=false when the original bytes
// should be served as they are
func (t *Transformer) Transform(raw []byte) ([]byte, bool) {
	host := t.detector.Detect()
	if !host.Known {
		return nil, false
	}
	return t.transform(raw, host, t.options.Snapshot())
}

func (t *Transformer) transform(raw []byte, host HostVersion, opts OptionsSnapshot) ([]byte, bool) {
	for _, version := range opts.Versions {
		bundle, err := Parse(raw, version)
		if err != nil {
			continue
		}
		t.log.Debugln("processing", bundle.Name, version.String())

		isRenderChunk := bundle.Name == "RenderChunk"
		needsLightmapFix := isRenderChunk &&
			host.DitheringLightmaps &&
			(version < V26_0_24 || host.Version < V26_0_24) &&
			opts.LightmapFix
		needsSamplerFix := isRenderChunk &&
			host.Version >= V1_20_80 &&
			version <= V1_19_60 &&
			opts.TextureLodFix

		if version == host.Version && !needsLightmapFix && !needsSamplerFix {
			return nil, false
		}

		if needsLightmapFix {
			changed := fixLightmaps(bundle, host.PackedLightmaps16)
			t.log.Infoln("lightmap fix changed", changed, "shaders in", bundle.Name)
			if changed == 0 && version == host.Version {
				return nil, false
			}
		}
		if needsSamplerFix {
			changed := fixSamplers(bundle)
			t.log.Infoln("texture lod fix changed", changed, "shaders in", bundle.Name)
		}

		out, err := bundle.Marshal(host.Version)
		if err != nil {
			t.log.Warn("Failed to write "+bundle.Name+": ", err)
			return nil, false
		}
		return out, true
	}

	t.log.Warn("material was not processed, no configured version parses it")
	return nil, false
}

type memoEntry struct {
	out []byte
	ok  bool
}

// Memo remembers recent Transform results by content and options, so the
// same bundle opened under several paths is parsed once
type Memo struct {
	t     *Transformer
	limit int

	mu      sync.Mutex
	entries map[uint64]memoEntry
	order   []uint64
}

func NewMemo(t *Transformer, limit int) *Memo {
	if limit < 1 {
		limit = 1
	}
	return &Memo{t: t, limit: limit, entries: make(map[uint64]memoEntry)}
}

func (m *Memo) Transform(raw []byte) ([]byte, bool) {
	host := m.t.detector.Detect()
	if !host.Known {
		return nil, false
	}
	opts := m.t.options.Snapshot()
	key := xxhash.Sum64(raw) ^ opts.Fingerprint()

	m.mu.Lock()
	entry, hit := m.entries[key]
	m.mu.Unlock()
	if hit {
		return entry.out, entry.ok
	}

	out, ok := m.t.transform(raw, host, opts)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; !exists {
		if len(m.order) >= m.limit {
			delete(m.entries, m.order[0])
			m.order = m.order[1:]
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = memoEntry{out: out, ok: ok}

	return out, ok
}
