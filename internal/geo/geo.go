// Package geo holds the coordinate and location value types shared by the
// map components.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Default view of every freshly acquired map.
var (
	DefaultCenter = Coordinate{Lat: 35.6892, Lng: 51.389}
)

const (
	DefaultZoom = 13
	// CloseZoom is used when centering on the device position.
	CloseZoom = 15
)

// Coordinate is an immutable latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that the coordinate is within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("invalid latitude: %f (must be between -90 and 90)", c.Lat)
	}
	if math.IsNaN(c.Lng) || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("invalid longitude: %f (must be between -180 and 180)", c.Lng)
	}
	return nil
}

// Point converts to an orb point. orb points are [lng, lat].
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// FromPoint converts an orb point ([lng, lat]) back to a Coordinate.
func FromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

// Equal reports whether both coordinates are exactly the same.
func (c Coordinate) Equal(o Coordinate) bool {
	return c.Lat == o.Lat && c.Lng == o.Lng
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", c.Lat, c.Lng)
}

// Location is a coordinate with a human readable label.
type Location struct {
	Coordinate
	Address string `json:"address"`
}

// PlaceholderAddress builds the label a picked point carries until something
// better is known.
func PlaceholderAddress(c Coordinate) string {
	return fmt.Sprintf("selected point (%.4f, %.4f)", c.Lat, c.Lng)
}

// NewPickedLocation builds a Location for a point picked on the map.
func NewPickedLocation(c Coordinate) Location {
	return Location{Coordinate: c, Address: PlaceholderAddress(c)}
}

// Path is an ordered sequence of coordinates.
type Path []Coordinate

// LineString converts the path to an orb line string.
func (p Path) LineString() orb.LineString {
	ls := make(orb.LineString, 0, len(p))
	for _, c := range p {
		ls = append(ls, c.Point())
	}
	return ls
}

// Bound returns the bounding box of the path.
func (p Path) Bound() orb.Bound {
	return p.LineString().Bound()
}

// PathFromLineString converts a [lng, lat] line string into a lat/lng path.
func PathFromLineString(ls orb.LineString) Path {
	path := make(Path, 0, len(ls))
	for _, pt := range ls {
		path = append(path, FromPoint(pt))
	}
	return path
}

// Round6 rounds a coordinate to six decimals.
func Round6(c Coordinate) Coordinate {
	return Coordinate{
		Lat: math.Round(c.Lat*1e6) / 1e6,
		Lng: math.Round(c.Lng*1e6) / 1e6,
	}
}
