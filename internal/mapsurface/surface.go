// Package mapsurface models the browser map: a view, a stack of layers and
// event listeners. The browser renders a Surface from its GeoJSON snapshot
// and reports gestures back, which are replayed here as events.
package mapsurface

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/meetsmatch/ridemap/internal/geo"
)

// ErrRemoved is returned by operations on a torn-down surface.
var ErrRemoved = errors.New("map surface has been removed")

// EventType names a map event
type EventType string

const (
	EventClick     EventType = "click"
	EventMoveStart EventType = "movestart"
	EventMoveEnd   EventType = "moveend"
)

// Event is delivered to listeners. LatLng is set for clicks; Center and Zoom
// always reflect the view at dispatch time.
type Event struct {
	Type   EventType
	LatLng geo.Coordinate
	Center geo.Coordinate
	Zoom   int
}

// Listener receives map events.
type Listener func(Event)

// FitOptions control FitBounds.
type FitOptions struct {
	Padding  [2]int // x, y in pixels
	Duration time.Duration
}

// Fit records the last viewport fit so the browser can replay the animation.
type Fit struct {
	Bounds   orb.Bound
	Padding  [2]int
	Duration time.Duration
}

// View is the visible part of the map.
type View struct {
	Center geo.Coordinate `json:"center"`
	Zoom   int            `json:"zoom"`
}

type listenerEntry struct {
	id int
	fn Listener
}

// Surface is one rendered map. All methods are safe for concurrent use;
// listeners run outside the surface lock so they may call back into it.
type Surface struct {
	mu        sync.Mutex
	view      View
	minZoom   int
	maxZoom   int
	width     int
	height    int
	layers    []Layer
	listeners map[EventType][]listenerEntry
	nextID    int
	lastFit   *Fit
	removed   bool
}

func newSurface(opts Options) *Surface {
	return &Surface{
		view:      View{Center: opts.Center, Zoom: opts.Zoom},
		minZoom:   opts.MinZoom,
		maxZoom:   opts.MaxZoom,
		width:     opts.Width,
		height:    opts.Height,
		listeners: make(map[EventType][]listenerEntry),
	}
}

// View returns the current center and zoom.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Center returns the current center.
func (s *Surface) Center() geo.Coordinate {
	return s.View().Center
}

// SetView moves the map without firing move events, like a programmatic
// setView in the browser library.
func (s *Surface) SetView(center geo.Coordinate, zoom int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrRemoved
	}
	s.view = View{Center: center, Zoom: s.clampZoom(zoom)}
	return nil
}

func (s *Surface) clampZoom(zoom int) int {
	if s.minZoom > 0 && zoom < s.minZoom {
		return s.minZoom
	}
	if s.maxZoom > 0 && zoom > s.maxZoom {
		return s.maxZoom
	}
	return zoom
}

// AddLayer attaches l. Adding a layer that is already attached is a no-op.
func (s *Surface) AddLayer(l Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrRemoved
	}
	if s.indexOf(l) >= 0 {
		return nil
	}
	s.layers = append(s.layers, l)
	return nil
}

// RemoveLayer detaches l and reports whether it was attached. A nil layer
// is ignored.
func (s *Surface) RemoveLayer(l Layer) bool {
	if l == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(l)
	if i < 0 {
		return false
	}
	s.layers = append(s.layers[:i], s.layers[i+1:]...)
	return true
}

// HasLayer reports whether l is attached.
func (s *Surface) HasLayer(l Layer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(l) >= 0
}

func (s *Surface) indexOf(l Layer) int {
	for i, existing := range s.layers {
		if existing == l {
			return i
		}
	}
	return -1
}

// Layers returns the attached layers in draw order.
func (s *Surface) Layers() []Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// CountLayers returns how many attached layers are of kind k.
func (s *Surface) CountLayers(k LayerKind) int {
	n := 0
	for _, l := range s.Layers() {
		if l.Kind() == k {
			n++
		}
	}
	return n
}

// On registers fn for events of type t and returns a func that removes it.
func (s *Surface) On(t EventType, fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.listeners[t] = append(s.listeners[t], listenerEntry{id: id, fn: fn})

	return func() { s.off(t, id) }
}

func (s *Surface) off(t EventType, id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.listeners[t]
	for i, e := range entries {
		if e.id == id {
			s.listeners[t] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of listeners for t.
func (s *Surface) ListenerCount(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[t])
}

func (s *Surface) fire(ev Event) {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return
	}
	ev.Center = s.view.Center
	ev.Zoom = s.view.Zoom
	entries := make([]listenerEntry, len(s.listeners[ev.Type]))
	copy(entries, s.listeners[ev.Type])
	s.mu.Unlock()

	for _, e := range entries {
		e.fn(ev)
	}
}

// Click replays a user click at c.
func (s *Surface) Click(c geo.Coordinate) {
	s.fire(Event{Type: EventClick, LatLng: c})
}

// BeginMove replays the start of a drag.
func (s *Surface) BeginMove() {
	s.fire(Event{Type: EventMoveStart})
}

// EndMove replays the end of a drag that left the map centered on c.
func (s *Surface) EndMove(c geo.Coordinate) error {
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return ErrRemoved
	}
	s.view.Center = c
	s.mu.Unlock()

	s.fire(Event{Type: EventMoveEnd})
	return nil
}

// MoveTo recenters the map at zoom and fires the same move events a drag
// would, so address lookups follow programmatic moves too.
func (s *Surface) MoveTo(c geo.Coordinate, zoom int) error {
	s.mu.Lock()
	removed := s.removed
	s.mu.Unlock()
	if removed {
		return ErrRemoved
	}

	s.BeginMove()
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return ErrRemoved
	}
	s.view = View{Center: c, Zoom: s.clampZoom(zoom)}
	s.mu.Unlock()
	s.fire(Event{Type: EventMoveEnd})
	return nil
}

// Pan replays a whole drag from the current view to c.
func (s *Surface) Pan(c geo.Coordinate) error {
	s.BeginMove()
	return s.EndMove(c)
}

// FitBounds centers the view on b at the largest zoom that keeps b inside the
// viewport minus padding, and records the fit for animated replay.
func (s *Surface) FitBounds(b orb.Bound, opts FitOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return ErrRemoved
	}
	s.view = View{
		Center: geo.FromPoint(b.Center()),
		Zoom:   s.clampZoom(boundsZoom(b, s.width-2*opts.Padding[0], s.height-2*opts.Padding[1], s.maxZoomOr(18))),
	}
	s.lastFit = &Fit{Bounds: b, Padding: opts.Padding, Duration: opts.Duration}
	return nil
}

func (s *Surface) maxZoomOr(fallback int) int {
	if s.maxZoom > 0 {
		return s.maxZoom
	}
	return fallback
}

// LastFit returns the most recent FitBounds call, or nil.
func (s *Surface) LastFit() *Fit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastFit == nil {
		return nil
	}
	fit := *s.lastFit
	return &fit
}

// Removed reports whether the surface was torn down.
func (s *Surface) Removed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed
}

// remove drops all layers and listeners. Further events are ignored.
func (s *Surface) remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = true
	s.layers = nil
	s.listeners = make(map[EventType][]listenerEntry)
	s.lastFit = nil
}

// Snapshot is the render state shipped to the browser.
type Snapshot struct {
	View     View                       `json:"view"`
	Tiles    []TileLayer                `json:"tiles"`
	Features *geojson.FeatureCollection `json:"features"`
	Fit      *FitSnapshot               `json:"fit,omitempty"`
}

// FitSnapshot is the wire form of Fit.
type FitSnapshot struct {
	Bounds     [2][2]float64 `json:"bounds"` // [[south, west], [north, east]]
	Padding    [2]int        `json:"padding"`
	DurationMS int64         `json:"durationMs"`
}

// Snapshot exports the surface as tiles plus a GeoJSON feature collection.
func (s *Surface) Snapshot() Snapshot {
	s.mu.Lock()
	view := s.view
	layers := make([]Layer, len(s.layers))
	copy(layers, s.layers)
	fit := s.lastFit
	s.mu.Unlock()

	snap := Snapshot{
		View:     view,
		Tiles:    []TileLayer{},
		Features: geojson.NewFeatureCollection(),
	}
	for _, l := range layers {
		if t, ok := l.(*TileLayer); ok {
			snap.Tiles = append(snap.Tiles, *t)
			continue
		}
		for _, f := range l.features() {
			snap.Features.Append(f)
		}
	}
	if fit != nil {
		snap.Fit = &FitSnapshot{
			Bounds: [2][2]float64{
				{fit.Bounds.Min.Lat(), fit.Bounds.Min.Lon()},
				{fit.Bounds.Max.Lat(), fit.Bounds.Max.Lon()},
			},
			Padding:    fit.Padding,
			DurationMS: fit.Duration.Milliseconds(),
		}
	}
	return snap
}

const tileSize = 256.0

// boundsZoom returns the largest integer web mercator zoom at which b fits in
// a width x height pixel box.
func boundsZoom(b orb.Bound, width, height, maxZoom int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	x0, y0 := project(b.Min)
	x1, y1 := project(b.Max)
	dx := math.Abs(x1 - x0)
	dy := math.Abs(y1 - y0)
	if dx == 0 && dy == 0 {
		return maxZoom
	}

	zoom := maxZoom
	for z := 0; z <= maxZoom; z++ {
		scale := tileSize * math.Exp2(float64(z))
		if dx*scale > float64(width) || dy*scale > float64(height) {
			zoom = z - 1
			break
		}
	}
	if zoom < 0 {
		return 0
	}
	return zoom
}

// project maps a point to unit web mercator coordinates.
func project(p orb.Point) (float64, float64) {
	x := (p.Lon() + 180) / 360
	lat := math.Max(math.Min(p.Lat(), 85.0511287798), -85.0511287798)
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - math.Log((1+sin)/(1-sin))/(4*math.Pi)
	return x, y
}
