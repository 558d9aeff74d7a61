package locator

import (
	"context"
	"sync"
	"time"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/geocoding"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// ConfirmedLocation is what the picker hands back when the user confirms.
type ConfirmedLocation struct {
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Address     string    `json:"address,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Status is the picker card state.
type Status struct {
	Moving  bool                       `json:"moving"`
	Loading bool                       `json:"loading"`
	Center  *geo.Coordinate            `json:"center,omitempty"`
	Address *geocoding.ResolvedAddress `json:"address,omitempty"`
	Label   string                     `json:"label,omitempty"`
}

// Events is the map capability the picker listens on.
type Events interface {
	On(t mapsurface.EventType, fn mapsurface.Listener) func()
	Center() geo.Coordinate
}

// Picker follows the centering map: dragging clears the address, and when the
// map settles the new center is resolved through the debouncer.
type Picker struct {
	debouncer *Debouncer

	mu     sync.Mutex
	moving bool
	center *geo.Coordinate
	unsubs []func()
}

func NewPicker(m Events, d *Debouncer) *Picker {
	c := m.Center()
	p := &Picker{debouncer: d, center: &c}
	p.unsubs = append(p.unsubs,
		m.On(mapsurface.EventMoveStart, func(mapsurface.Event) { p.onMoveStart() }),
		m.On(mapsurface.EventMoveEnd, func(ev mapsurface.Event) { p.onMoveEnd(ev.Center) }),
	)
	return p
}

func (p *Picker) onMoveStart() {
	p.mu.Lock()
	p.moving = true
	p.mu.Unlock()
	p.debouncer.OnMoveStart()
}

func (p *Picker) onMoveEnd(center geo.Coordinate) {
	p.mu.Lock()
	p.moving = false
	p.center = &center
	p.mu.Unlock()
	p.debouncer.OnCenterChanged(center)
}

// Status reports the moving flag, the center and the resolved address.
func (p *Picker) Status() Status {
	p.mu.Lock()
	st := Status{Moving: p.moving}
	if p.center != nil {
		c := *p.center
		st.Center = &c
	}
	p.mu.Unlock()

	res := p.debouncer.Resolution()
	st.Loading = res.Loading
	if res.Address != nil {
		st.Address = res.Address
		st.Label = res.Address.Label()
	}
	return st
}

// Confirm returns the current center rounded to six decimals along with the
// resolved address, if any.
func (p *Picker) Confirm(ctx context.Context) (*ConfirmedLocation, error) {
	p.mu.Lock()
	center := p.center
	p.mu.Unlock()
	if center == nil {
		return nil, errors.NewValidationError("center", "no location selected")
	}

	rounded := geo.Round6(*center)
	loc := &ConfirmedLocation{
		Lat:         rounded.Lat,
		Lng:         rounded.Lng,
		ConfirmedAt: time.Now().UTC(),
	}
	if addr := p.debouncer.Resolution().Address; addr != nil {
		loc.Address = addr.DisplayName
	}

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"lat":     loc.Lat,
		"lng":     loc.Lng,
		"address": loc.Address,
	}).Info("Location confirmed")
	return loc, nil
}

// Close detaches the map listeners and stops the debouncer.
func (p *Picker) Close() {
	p.mu.Lock()
	unsubs := p.unsubs
	p.unsubs = nil
	p.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	p.debouncer.Close()
}
