package session

import (
	"time"

	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/locator"
	"github.com/meetsmatch/ridemap/internal/selection"
	"github.com/meetsmatch/ridemap/internal/tracking"
)

// Snapshot is the externally visible state of a session. Live is false when
// it was read back from the snapshot store instead of a running session.
type Snapshot struct {
	ID        string                     `json:"id"`
	Live      bool                       `json:"live"`
	Language  string                     `json:"language"`
	Selection selection.Mode             `json:"selection"`
	Pickup    *geo.Location              `json:"pickup,omitempty"`
	Dropoff   *geo.Location              `json:"dropoff,omitempty"`
	Route     *RouteSummary              `json:"route,omitempty"`
	Picker    locator.Status             `json:"picker"`
	Confirmed *locator.ConfirmedLocation `json:"confirmed,omitempty"`
	Tracking  TrackingState              `json:"tracking"`
	CreatedAt time.Time                  `json:"created_at"`
	LastSeen  time.Time                  `json:"last_seen"`
}

// RouteSummary describes the drawn route without its geometry.
type RouteSummary struct {
	Points   int     `json:"points"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
}

// TrackingState describes the live-position watcher.
type TrackingState struct {
	Supported bool                 `json:"supported"`
	Watching  bool                 `json:"watching"`
	Fix       *tracking.Fix        `json:"fix,omitempty"`
	Options   tracking.WireOptions `json:"options"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		ID:        s.id,
		Live:      !s.closed,
		Language:  s.lang.String(),
		Pickup:    copyLocation(s.pickup),
		Dropoff:   copyLocation(s.dropoff),
		Confirmed: s.confirmed,
		CreatedAt: s.createdAt,
		LastSeen:  s.lastSeen,
	}
	s.mu.Unlock()

	snap.Selection = s.selection.Mode()
	snap.Picker = s.locator.Status()
	if r := s.route.Route(); r != nil {
		snap.Route = &RouteSummary{Points: len(r.Path), Distance: r.Distance, Duration: r.Duration}
	}
	snap.Tracking = TrackingState{
		Supported: s.device.Supported(),
		Watching:  s.watcher.Watching(),
		Fix:       s.watcher.Fix(),
		Options:   s.watcher.Options().Wire(),
	}
	return snap
}
