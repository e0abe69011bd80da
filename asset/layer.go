// Package asset replaces the host's AAsset API. Paths under a known prefix
// are served from resource packs through a Loader; everything else is
// forwarded to the real implementation unchanged.
package asset

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// MaterialSuffix marks content that goes through the Transformer
const MaterialSuffix = ".material.bin"

// Rule maps a host asset prefix onto a resource pack prefix
type Rule struct {
	HostPrefix string
	PackPrefix string
}

// DefaultRules are tried in order, first match wins
func DefaultRules() []Rule {
	return []Rule{
		{HostPrefix: "gui/dist/hbui/", PackPrefix: "hbui/"},
		{HostPrefix: "skin_packs/persona/", PackPrefix: "persona/"},
		{HostPrefix: "renderer/", PackPrefix: "renderer/"},
		{HostPrefix: "resource_packs/vanilla/cameras/", PackPrefix: "vanilla_cameras/"},
	}
}

// VirtualBuffer is the content and cursor of an intercepted handle
type VirtualBuffer struct {
	Path    string
	Content []byte
	Pos     int64

	pinned uintptr
}

// Config wires a Layer to its collaborators. Nil Minter, Pinner and
// Transformer get defaults (no transform).
type Config struct {
	Host        Host
	Loader      Loader
	Transformer Transformer
	Minter      HandleMinter
	Pinner      Pinner
	Rules       []Rule
}

// Layer dispatches each API call on handle identity. A handle is either
// intercepted (present in open) or passthrough; the choice is made at open.
// A single handle must not be used from two threads at once.
type Layer struct {
	host        Host
	loader      Loader
	transformer Transformer
	minter      HandleMinter
	pinner      Pinner
	rules       []Rule
	log         *logger.Logger

	mu    sync.Mutex
	open  map[Handle]*VirtualBuffer
	cache *VirtualBuffer
}

func NewLayer(cfg Config) *Layer {
	l := &Layer{
		host:        cfg.Host,
		loader:      cfg.Loader,
		transformer: cfg.Transformer,
		minter:      cfg.Minter,
		pinner:      cfg.Pinner,
		rules:       cfg.Rules,
		log:         logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "asset")),
		open:        make(map[Handle]*VirtualBuffer),
	}
	if l.minter == nil {
		l.minter = NewPointerMinter()
	}
	if l.pinner == nil {
		l.pinner = NewRuntimePinner()
	}
	if l.rules == nil {
		l.rules = DefaultRules()
	}
	return l
}

// Resolve maps a host asset name to its pack path
func (l *Layer) Resolve(name string) (string, bool) {
	path := strings.TrimPrefix(name, "assets/")
	for _, rule := range l.rules {
		if strings.HasPrefix(path, rule.HostPrefix) {
			return rule.PackPrefix + strings.TrimPrefix(path, rule.HostPrefix), true
		}
	}
	return "", false
}

// takeCached returns the cached buffer for name, and drops the cache when it
// holds any other path
func (l *Layer) takeCached(name string) *VirtualBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()

	cached := l.cache
	l.cache = nil
	if cached == nil || cached.Path != name {
		return nil
	}
	return cached
}

func (l *Layer) Open(manager Manager, name string, mode int) Handle {
	cached := l.takeCached(name)

	packPath, ok := l.Resolve(name)
	if !ok {
		return l.host.Open(manager, name, mode)
	}

	buf := cached
	if buf == nil {
		content, found := l.loader.Load(packPath)
		if !found {
			return l.host.Open(manager, name, mode)
		}
		if strings.HasSuffix(name, MaterialSuffix) && l.transformer != nil {
			if out, changed := l.transformer.Transform(content); changed {
				l.log.Infoln("transformed", name, len(content), "->", len(out), "bytes")
				content = out
			}
		}
		buf = &VirtualBuffer{Path: name, Content: content}
		l.log.Debugln("intercepted", name, "from", packPath, len(content), "bytes", xxhash.Sum64(content))
	} else {
		buf.Pos = 0
		l.log.Debugln("reused", name)
	}

	h := l.minter.Mint()

	l.mu.Lock()
	l.open[h] = buf
	l.mu.Unlock()

	return h
}

func (l *Layer) lookup(h Handle) *VirtualBuffer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.open[h]
}

// IsIntercepted reports whether h is served by the layer
func (l *Layer) IsIntercepted(h Handle) bool {
	return l.lookup(h) != nil
}

func (l *Layer) Read(h Handle, p []byte) int {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.Read(h, p)
	}
	n := copy(p, buf.Content[buf.Pos:])
	buf.Pos += int64(n)
	return n
}

func (buf *VirtualBuffer) seek(offset int64, whence int) int64 {
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = buf.Pos + offset
	case SeekEnd:
		target = int64(len(buf.Content)) + offset
	default:
		return -1
	}
	if target < 0 || target > int64(len(buf.Content)) {
		return -1
	}
	buf.Pos = target
	return target
}

func (l *Layer) Seek(h Handle, offset int64, whence int) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.Seek(h, offset, whence)
	}
	return buf.seek(offset, whence)
}

func (l *Layer) Seek64(h Handle, offset int64, whence int) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.Seek64(h, offset, whence)
	}
	return buf.seek(offset, whence)
}

func (l *Layer) Length(h Handle) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.Length(h)
	}
	return int64(len(buf.Content))
}

func (l *Layer) Length64(h Handle) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.Length64(h)
	}
	return int64(len(buf.Content))
}

func (l *Layer) RemainingLength(h Handle) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.RemainingLength(h)
	}
	return int64(len(buf.Content)) - buf.Pos
}

func (l *Layer) RemainingLength64(h Handle) int64 {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.RemainingLength64(h)
	}
	return int64(len(buf.Content)) - buf.Pos
}

// OpenFileDescriptor fails for intercepted handles, there is no file behind them
func (l *Layer) OpenFileDescriptor(h Handle) (int, int64, int64) {
	if l.IsIntercepted(h) {
		return -1, 0, 0
	}
	return l.host.OpenFileDescriptor(h)
}

func (l *Layer) OpenFileDescriptor64(h Handle) (int, int64, int64) {
	if l.IsIntercepted(h) {
		return -1, 0, 0
	}
	return l.host.OpenFileDescriptor64(h)
}

// GetBuffer returns a pointer to the whole content, valid until Close
func (l *Layer) GetBuffer(h Handle) uintptr {
	buf := l.lookup(h)
	if buf == nil {
		return l.host.GetBuffer(h)
	}
	if buf.pinned != 0 {
		return buf.pinned
	}
	ptr, err := l.pinner.Pin(buf.Content)
	if err != nil {
		l.log.Warn("Failed to pin "+buf.Path+": ", err)
		return 0
	}
	buf.pinned = ptr
	return ptr
}

func (l *Layer) IsAllocated(h Handle) bool {
	if l.IsIntercepted(h) {
		return true
	}
	return l.host.IsAllocated(h)
}

// Close moves an intercepted buffer into the reuse cache, replacing whatever
// was there
func (l *Layer) Close(h Handle) {
	l.mu.Lock()
	buf, ok := l.open[h]
	if ok {
		delete(l.open, h)
		if buf.pinned != 0 {
			l.pinner.Unpin(buf.pinned)
			buf.pinned = 0
		}
		l.cache = buf
	}
	l.mu.Unlock()

	if !ok {
		l.host.Close(h)
		return
	}
	l.minter.Release(h)
}

// ReadHostFile reads name through the real API
func (l *Layer) ReadHostFile(manager Manager, name string) ([]byte, error) {
	return ReadHostFile(l.host, manager, name)
}
