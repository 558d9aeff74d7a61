package mapsurface

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/meetsmatch/ridemap/internal/geo"
)

// LayerKind names the rendering primitive behind a layer
type LayerKind string

const (
	KindTile     LayerKind = "tile"
	KindMarker   LayerKind = "marker"
	KindCircle   LayerKind = "circle"
	KindPolyline LayerKind = "polyline"
	KindGroup    LayerKind = "group"
)

// Layer is anything that can be attached to a Surface. Layers are compared by
// identity, so every implementation is used through a pointer.
type Layer interface {
	Kind() LayerKind
	features() []*geojson.Feature
}

// PathStyle mirrors the vector styling options of the browser map library.
type PathStyle struct {
	Color       string  `json:"color,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	Weight      int     `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
}

func (s PathStyle) apply(props geojson.Properties) {
	if s.Color != "" {
		props["color"] = s.Color
	}
	if s.FillColor != "" {
		props["fillColor"] = s.FillColor
	}
	if s.Weight != 0 {
		props["weight"] = s.Weight
	}
	if s.Opacity != 0 {
		props["opacity"] = s.Opacity
	}
	if s.FillOpacity != 0 {
		props["fillOpacity"] = s.FillOpacity
	}
}

// TileLayer is a raster base map.
type TileLayer struct {
	URLTemplate string `json:"url"`
	Attribution string `json:"attribution,omitempty"`
	MinZoom     int    `json:"minZoom,omitempty"`
	MaxZoom     int    `json:"maxZoom,omitempty"`
}

func (t *TileLayer) Kind() LayerKind { return KindTile }

func (t *TileLayer) features() []*geojson.Feature { return nil }

// Icon describes how a marker is drawn. The browser owns the actual markup.
type Icon struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Size  int    `json:"size,omitempty"`
}

// Marker is a point overlay with an icon and an optional popup.
type Marker struct {
	Position geo.Coordinate
	Icon     Icon
	Popup    string
}

// NewMarker creates a marker at pos.
func NewMarker(pos geo.Coordinate, icon Icon) *Marker {
	return &Marker{Position: pos, Icon: icon}
}

// BindPopup sets the popup text and returns the marker for chaining.
func (m *Marker) BindPopup(text string) *Marker {
	m.Popup = text
	return m
}

func (m *Marker) Kind() LayerKind { return KindMarker }

func (m *Marker) features() []*geojson.Feature {
	f := geojson.NewFeature(m.Position.Point())
	f.Properties["layer"] = string(KindMarker)
	f.Properties["icon"] = m.Icon.Name
	if m.Icon.Color != "" {
		f.Properties["iconColor"] = m.Icon.Color
	}
	if m.Icon.Size != 0 {
		f.Properties["iconSize"] = m.Icon.Size
	}
	if m.Popup != "" {
		f.Properties["popup"] = m.Popup
	}
	return []*geojson.Feature{f}
}

// Circle is a geographic circle with a radius in metres.
type Circle struct {
	Center geo.Coordinate
	Radius float64
	Style  PathStyle
}

// NewCircle creates a circle overlay.
func NewCircle(center geo.Coordinate, radius float64, style PathStyle) *Circle {
	return &Circle{Center: center, Radius: radius, Style: style}
}

func (c *Circle) Kind() LayerKind { return KindCircle }

func (c *Circle) features() []*geojson.Feature {
	f := geojson.NewFeature(c.Center.Point())
	f.Properties["layer"] = string(KindCircle)
	f.Properties["radius"] = c.Radius
	c.Style.apply(f.Properties)
	return []*geojson.Feature{f}
}

// Polyline is a continuous path overlay.
type Polyline struct {
	Path  geo.Path
	Style PathStyle
}

// NewPolyline creates a polyline through path.
func NewPolyline(path geo.Path, style PathStyle) *Polyline {
	return &Polyline{Path: path, Style: style}
}

func (p *Polyline) Kind() LayerKind { return KindPolyline }

// Bounds returns the bounding box of the line.
func (p *Polyline) Bounds() orb.Bound {
	return p.Path.Bound()
}

func (p *Polyline) features() []*geojson.Feature {
	f := geojson.NewFeature(p.Path.LineString())
	f.Properties["layer"] = string(KindPolyline)
	p.Style.apply(f.Properties)
	return []*geojson.Feature{f}
}

// LayerGroup holds a set of layers that are shown and cleared together.
type LayerGroup struct {
	Name string

	mu     sync.Mutex
	layers []Layer
}

// NewLayerGroup creates an empty group.
func NewLayerGroup(name string) *LayerGroup {
	return &LayerGroup{Name: name}
}

func (g *LayerGroup) Kind() LayerKind { return KindGroup }

// Add appends a layer to the group.
func (g *LayerGroup) Add(l Layer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layers = append(g.layers, l)
}

// Clear removes every layer from the group.
func (g *LayerGroup) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.layers = nil
}

// Layers returns a copy of the group members.
func (g *LayerGroup) Layers() []Layer {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Layer, len(g.layers))
	copy(out, g.layers)
	return out
}

func (g *LayerGroup) features() []*geojson.Feature {
	var out []*geojson.Feature
	for _, l := range g.Layers() {
		for _, f := range l.features() {
			f.Properties["group"] = g.Name
			out = append(out, f)
		}
	}
	return out
}
