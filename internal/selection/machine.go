// Package selection decides what a click on the ride map means.
package selection

import (
	"sync"
	"time"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
)

// Handler receives a picked location and the kind it was picked as.
type Handler func(loc geo.Location, kind Mode)

// Machine tracks the pending pick intent. It has no terminal state.
type Machine struct {
	mu        sync.Mutex
	mode      Mode
	changedAt time.Time
	onPick    Handler
}

// NewMachine creates a machine in ModeNone that reports picks to onPick.
func NewMachine(onPick Handler) *Machine {
	return &Machine{
		mode:      ModeNone,
		changedAt: time.Now(),
		onPick:    onPick,
	}
}

// Begin waits for a click to pick kind. Switching from another pending kind
// drops that intent silently. Begin(ModeNone) is the same as Cancel.
func (m *Machine) Begin(kind Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !kind.IsValid() {
		return errors.NewValidationError("kind", "unknown selection kind: "+kind.String())
	}
	if !m.mode.CanTransitionTo(kind) {
		return errors.NewConflictError("cannot switch selection from " + m.mode.String() + " to " + kind.String())
	}
	m.setMode(kind)
	return nil
}

// Cancel drops any pending intent.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setMode(ModeNone)
}

// Click applies a map click. While awaiting a kind it builds a placeholder
// Location, returns to ModeNone and hands the location to the owner. With no
// pending intent it does nothing and returns false.
func (m *Machine) Click(c geo.Coordinate) (geo.Location, Mode, bool) {
	m.mu.Lock()
	kind := m.mode
	if !kind.Awaiting() {
		m.mu.Unlock()
		return geo.Location{}, ModeNone, false
	}
	loc := geo.NewPickedLocation(c)
	m.setMode(ModeNone)
	onPick := m.onPick
	m.mu.Unlock()

	if onPick != nil {
		onPick(loc, kind)
	}
	return loc, kind, true
}

// Mode returns the pending intent.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// ChangedAt returns when the mode last changed.
func (m *Machine) ChangedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changedAt
}

func (m *Machine) setMode(mode Mode) {
	m.mode = mode
	m.changedAt = time.Now()
}
