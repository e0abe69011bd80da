package material

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Options are the runtime toggles of the transformer. They are set from the
// launcher at any time and read once per transform.
type Options struct {
	mu            sync.Mutex
	lightmapFix   bool
	textureLodFix bool
	versions      []Version
}

// OptionsSnapshot is an immutable copy of Options
type OptionsSnapshot struct {
	LightmapFix   bool
	TextureLodFix bool
	Versions      []Version
}

// NewOptions enables both fixes and tries every version, oldest first
func NewOptions() *Options {
	return &Options{
		lightmapFix:   true,
		textureLodFix: true,
		versions:      AllVersions(),
	}
}

func (o *Options) SetLightmapFix(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lightmapFix = on
}

func (o *Options) SetTextureLodFix(on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.textureLodFix = on
}

// SetVersions replaces the content versions tried by Transform, in order
func (o *Options) SetVersions(versions []Version) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.versions = append([]Version(nil), versions...)
}

// SetVersionNames parses names like "v1.21.20". On error nothing changes.
func (o *Options) SetVersionNames(names []string) error {
	versions := make([]Version, 0, len(names))
	for _, name := range names {
		v, err := ParseVersion(name)
		if err != nil {
			return err
		}
		versions = append(versions, v)
	}
	o.SetVersions(versions)
	return nil
}

func (o *Options) Snapshot() OptionsSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OptionsSnapshot{
		LightmapFix:   o.lightmapFix,
		TextureLodFix: o.textureLodFix,
		Versions:      append([]Version(nil), o.versions...),
	}
}

// Fingerprint identifies the snapshot for memoization
func (s OptionsSnapshot) Fingerprint() uint64 {
	d := xxhash.New()
	var b []byte
	b = append(b, boolByte(s.LightmapFix), boolByte(s.TextureLodFix))
	for _, v := range s.Versions {
		b = binary.LittleEndian.AppendUint16(b, uint16(v))
	}
	d.Write(b)
	return d.Sum64()
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
