package mapsurface

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
)

// ErrContainerInUse is wrapped by Acquire when the container already holds a
// live map.
var ErrContainerInUse = stderrors.New("container already holds a map")

// Options configure a map at acquisition time.
type Options struct {
	Center  geo.Coordinate
	Zoom    int
	MinZoom int
	MaxZoom int
	Tiles   TileLayer
	// Viewport size in pixels, used when fitting bounds.
	Width  int
	Height int
}

// OSMOptions is the default street map used by the ride map.
func OSMOptions() Options {
	return Options{
		Center: geo.DefaultCenter,
		Zoom:   geo.DefaultZoom,
		Tiles: TileLayer{
			URLTemplate: "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		},
		Width:  1024,
		Height: 768,
	}
}

// LightOptions is the muted base map used by the centering picker.
func LightOptions() Options {
	return Options{
		Center:  geo.DefaultCenter,
		Zoom:    geo.DefaultZoom,
		MinZoom: 5,
		MaxZoom: 19,
		Tiles: TileLayer{
			URLTemplate: "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
			MinZoom:     5,
			MaxZoom:     19,
		},
		Width:  896,
		Height: 500,
	}
}

// Provider hands out one map per container. Providers are independent of
// each other; there is no process-wide map.
type Provider struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewProvider creates an empty provider.
func NewProvider() *Provider {
	return &Provider{handles: make(map[string]*Handle)}
}

// Acquire creates a map in container, centers it, attaches the base tiles and
// returns its handle. A container holds at most one live map.
func (p *Provider) Acquire(container string, opts Options) (*Handle, error) {
	if container == "" {
		return nil, errors.NewValidationError("container", "container is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.handles[container]; busy {
		return nil, errors.NewAppErrorWithCause(errors.ErrorTypeConflict, "CONTAINER_IN_USE",
			fmt.Sprintf("container %q already holds a map", container), ErrContainerInUse)
	}

	surface := newSurface(opts)
	tiles := opts.Tiles
	if err := surface.AddLayer(&tiles); err != nil {
		return nil, err
	}

	h := &Handle{
		Surface:   surface,
		container: container,
		provider:  p,
	}
	p.handles[container] = h
	return h, nil
}

// Release tears down h. Releasing twice is harmless.
func (p *Provider) Release(h *Handle) {
	if h == nil {
		return
	}
	h.Release()
}

// Live returns the number of acquired, unreleased maps.
func (p *Provider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *Provider) forget(h *Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handles[h.container] == h {
		delete(p.handles, h.container)
	}
}

// Handle is a live map plus the listeners registered through it.
type Handle struct {
	*Surface

	container string
	provider  *Provider

	mu       sync.Mutex
	unsubs   []func()
	released bool
}

// Container returns the container the map was acquired for.
func (h *Handle) Container() string {
	return h.container
}

// On registers a listener that is detached automatically on Release.
func (h *Handle) On(t EventType, fn Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return func() {}
	}
	unsub := h.Surface.On(t, fn)
	h.unsubs = append(h.unsubs, unsub)
	return unsub
}

// Release detaches every listener, removes the map and frees the container.
func (h *Handle) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	unsubs := h.unsubs
	h.unsubs = nil
	h.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	h.Surface.remove()
	h.provider.forget(h)
}

// Released reports whether the handle was released.
func (h *Handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}
