package material

import (
	"bytes"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// ReferencePaths are tried in order to find the host's RenderChunk material
var ReferencePaths = []string{
	"assets/renderer/materials/RenderChunk.material.bin",
	"renderer/materials/RenderChunk.material.bin",
}

var (
	ditheringMarker = []byte("v_dithering")
	packed16Marker  = []byte("65535.0")
)

// HostVersion is what the host's own materials reveal about its renderer
type HostVersion struct {
	Version Version
	Known   bool

	// DitheringLightmaps is set from 1.21.100
	DitheringLightmaps bool

	// PackedLightmaps16 is set from 1.21.130 and implies DitheringLightmaps
	PackedLightmaps16 bool
}

// DetectBytes classifies a RenderChunk material. The newest version that
// parses wins.
func DetectBytes(data []byte) HostVersion {
	versions := AllVersions()
	for i := len(versions) - 1; i >= 0; i-- {
		if _, err := Parse(data, versions[i]); err != nil {
			continue
		}
		host := HostVersion{Version: versions[i], Known: true}
		if bytes.Contains(data, ditheringMarker) {
			host.DitheringLightmaps = true
			host.PackedLightmaps16 = bytes.Contains(data, packed16Marker)
		}
		return host
	}
	return HostVersion{}
}

// Detector computes the HostVersion once per process. A failed detection is
// cached too.
type Detector struct {
	read func(path string) ([]byte, error)
	log  *logger.Logger

	once   sync.Once
	result HostVersion
}

// NewDetector reads reference materials through read
func NewDetector(read func(path string) ([]byte, error)) *Detector {
	return &Detector{
		read: read,
		log:  logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "material")),
	}
}

func (d *Detector) Detect() HostVersion {
	d.once.Do(func() {
		d.result = d.detect()
	})
	return d.result
}

func (d *Detector) detect() HostVersion {
	var data []byte
	for _, path := range ReferencePaths {
		b, err := d.read(path)
		if err == nil {
			data = b
			break
		}
		d.log.Debugln("reference material", path, err)
	}
	if data == nil {
		d.log.Warn("RenderChunk was not found, material fixes are disabled")
		return HostVersion{}
	}

	host := DetectBytes(data)
	if !host.Known {
		d.log.Warn("Cannot detect host material version, material fixes are disabled")
		return host
	}

	d.log.Infoln("host material version", host.Version.String(), "dithering", host.DitheringLightmaps, "packed16", host.PackedLightmaps16)
	return host
}
