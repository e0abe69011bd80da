package asset

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// Handle is an opaque AAsset pointer, only used as a map key
type Handle uintptr

// Manager is an opaque AAssetManager pointer
type Manager uintptr

// Open modes, AASSET_MODE_*
const (
	ModeUnknown   = 0
	ModeRandom    = 1
	ModeStreaming = 2
	ModeBuffer    = 3
)

// Seek origins
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

var ErrNotFound = errors.New("asset not found")

// Host is the real asset API the layer forwards to
type Host interface {
	Open(manager Manager, name string, mode int) Handle
	Read(h Handle, buf []byte) int
	Seek(h Handle, offset int64, whence int) int64
	Seek64(h Handle, offset int64, whence int) int64
	Length(h Handle) int64
	Length64(h Handle) int64
	RemainingLength(h Handle) int64
	RemainingLength64(h Handle) int64
	OpenFileDescriptor(h Handle) (fd int, start, length int64)
	OpenFileDescriptor64(h Handle) (fd int, start, length int64)
	GetBuffer(h Handle) uintptr
	IsAllocated(h Handle) bool
	Close(h Handle)
}

// Loader returns pack content for a path, ok is false when not found
type Loader interface {
	Load(path string) (content []byte, ok bool)
}

// Transformer rewrites material bundles; ok is false for no change
type Transformer interface {
	Transform(raw []byte) (out []byte, ok bool)
}

// HandleMinter hands out handles for content that has no host asset
type HandleMinter interface {
	Mint() Handle
	Release(h Handle)
}

// Pinner keeps content at a fixed address for GetBuffer callers
type Pinner interface {
	Pin(content []byte) (uintptr, error)
	Unpin(ptr uintptr)
}

// PointerMinter mints the address of a live Go allocation, so a handle
// never equals a host AAsset pointer.
type PointerMinter struct {
	mu   sync.Mutex
	live map[Handle]*byte
}

func NewPointerMinter() *PointerMinter {
	return &PointerMinter{live: make(map[Handle]*byte)}
}

func (m *PointerMinter) Mint() Handle {
	b := new(byte)
	h := Handle(uintptr(unsafe.Pointer(b)))

	m.mu.Lock()
	m.live[h] = b
	m.mu.Unlock()

	return h
}

func (m *PointerMinter) Release(h Handle) {
	m.mu.Lock()
	delete(m.live, h)
	m.mu.Unlock()
}

// RuntimePinner pins Go memory with runtime.Pinner, which lets C code keep
// the pointer until Unpin
type RuntimePinner struct {
	mu     sync.Mutex
	pinned map[uintptr]*runtime.Pinner
}

func NewRuntimePinner() *RuntimePinner {
	return &RuntimePinner{pinned: make(map[uintptr]*runtime.Pinner)}
}

func (p *RuntimePinner) Pin(content []byte) (uintptr, error) {
	if len(content) == 0 {
		// GetBuffer must not return NULL for an open asset
		content = make([]byte, 1)
	}

	pinner := new(runtime.Pinner)
	pinner.Pin(&content[0])
	ptr := uintptr(unsafe.Pointer(&content[0]))

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pinned[ptr]; ok {
		pinner.Unpin()
		return ptr, nil
	}
	p.pinned[ptr] = pinner

	return ptr, nil
}

func (p *RuntimePinner) Unpin(ptr uintptr) {
	p.mu.Lock()
	pinner, ok := p.pinned[ptr]
	delete(p.pinned, ptr)
	p.mu.Unlock()

	if ok {
		pinner.Unpin()
	}
}

// ReadHostFile reads a whole asset through the real API, bypassing the layer
func ReadHostFile(host Host, manager Manager, path string) ([]byte, error) {
	h := host.Open(manager, path, ModeBuffer)
	if h == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	defer host.Close(h)

	size := host.Length64(h)
	if size < 0 {
		return nil, fmt.Errorf("%s: negative length %d", path, size)
	}

	out := make([]byte, 0, size)
	buf := make([]byte, 64*1024)
	for {
		n := host.Read(h, buf)
		if n < 0 {
			return nil, fmt.Errorf("%s: read failed after %d bytes", path, len(out))
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, buf[:n]...)
	}
}
