// Package session holds the server side of one browser tab: a centering map,
// a ride map and everything that reacts to gestures on them.
package session

import (
	"context"
	"sync"
	"time"

	"golang.org/x/text/language"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/geocoding"
	"github.com/meetsmatch/ridemap/internal/locator"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
	"github.com/meetsmatch/ridemap/internal/routing"
	"github.com/meetsmatch/ridemap/internal/selection"
	"github.com/meetsmatch/ridemap/internal/telemetry"
	"github.com/meetsmatch/ridemap/internal/tracking"
)

// Map container names.
const (
	MapPicker = "picker"
	MapRide   = "ride"
)

// Dependencies are shared by every session of a manager.
type Dependencies struct {
	Reverser geocoding.Reverser
	Router   routing.Router
	Metrics  *telemetry.UpstreamMetrics
	// Debounce is the address lookup delay; zero means locator.DefaultDelay.
	Debounce time.Duration
}

// Options are chosen by the browser when the session is created.
type Options struct {
	Geolocation bool   `json:"geolocation"`
	Language    string `json:"language"`
}

// Session is one browser tab. Gestures are applied one at a time under the
// session lock, in the order they arrive.
type Session struct {
	id        string
	createdAt time.Time
	lang      language.Tag
	ctx       context.Context
	cancel    context.CancelFunc

	maps      *mapsurface.Provider
	picker    *mapsurface.Handle
	ride      *mapsurface.Handle
	notices   *notice.Feed
	debouncer *locator.Debouncer
	locator   *locator.Picker
	selection *selection.Machine
	route     *routing.Renderer
	device    *tracking.DeviceFeed
	watcher   *tracking.Watcher

	mu        sync.Mutex
	pickup    *geo.Location
	dropoff   *geo.Location
	confirmed *locator.ConfirmedLocation
	lastSeen  time.Time
	closed    bool
}

func newSession(parent context.Context, id string, deps Dependencies, opts Options) (*Session, error) {
	ctx, cancel := context.WithCancel(telemetry.WithSessionID(parent, id))
	now := time.Now()
	s := &Session{
		id:        id,
		createdAt: now,
		lastSeen:  now,
		lang:      notice.Match(opts.Language),
		ctx:       ctx,
		cancel:    cancel,
		maps:      mapsurface.NewProvider(),
	}
	s.notices = notice.NewFeed(s.lang)

	var err error
	if s.picker, err = s.maps.Acquire(MapPicker, mapsurface.LightOptions()); err != nil {
		cancel()
		return nil, err
	}
	if s.ride, err = s.maps.Acquire(MapRide, mapsurface.OSMOptions()); err != nil {
		s.picker.Release()
		cancel()
		return nil, err
	}

	s.debouncer = locator.NewDebouncer(ctx, deps.Reverser, s.notices, deps.Debounce).WithMetrics(deps.Metrics)
	s.locator = locator.NewPicker(s.picker, s.debouncer)

	s.route = routing.NewRenderer(deps.Router, s.ride, s.notices, deps.Metrics)
	s.selection = selection.NewMachine(s.onPick)
	s.ride.On(mapsurface.EventClick, func(ev mapsurface.Event) {
		s.selection.Click(ev.LatLng)
	})

	s.device = tracking.NewDeviceFeed(opts.Geolocation)
	s.watcher = tracking.NewWatcher(s.device, s.picker, s.notices)

	telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"language":    s.lang.String(),
		"geolocation": opts.Geolocation,
	}).Info("Session created")
	return s, nil
}

// onPick runs inside RideClick, so the session lock is already held.
func (s *Session) onPick(loc geo.Location, kind selection.Mode) {
	picked := loc
	switch kind {
	case selection.ModePickup:
		s.pickup = &picked
	case selection.ModeDropoff:
		s.dropoff = &picked
	default:
		return
	}
	telemetry.LogFromContext(s.ctx).WithFields(map[string]interface{}{
		"kind": kind.String(),
		"lat":  loc.Lat,
		"lng":  loc.Lng,
	}).Debug("Ride endpoint picked")
	s.route.OnEndpointsChanged(s.ctx, s.pickup, s.dropoff)
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Language returns the notice language.
func (s *Session) Language() language.Tag { return s.lang }

// LastSeen returns when the session last handled a gesture.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// lock acquires the session lock for a gesture. It fails once the session
// is closed.
func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.NewConflictError("session is closed")
	}
	s.lastSeen = time.Now()
	return nil
}

// PickerMoveStart replays the start of a drag on the centering map.
func (s *Session) PickerMoveStart() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.picker.BeginMove()
	return nil
}

// PickerMoveEnd replays the end of a drag that left the centering map at c.
func (s *Session) PickerMoveEnd(c geo.Coordinate) error {
	if err := c.Validate(); err != nil {
		return errors.NewValidationError("center", err.Error())
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.picker.EndMove(c)
}

// PickerStatus returns the picker card state.
func (s *Session) PickerStatus() locator.Status {
	return s.locator.Status()
}

// Confirm accepts the current center of the centering map.
func (s *Session) Confirm(ctx context.Context) (*locator.ConfirmedLocation, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	loc, err := s.locator.Confirm(ctx)
	if err != nil {
		return nil, err
	}
	s.confirmed = loc
	return loc, nil
}

// Select sets the pending pick intent on the ride map. "none" cancels it.
func (s *Session) Select(kind string) (selection.Mode, error) {
	mode, err := selection.ParseMode(kind)
	if err != nil {
		return "", errors.NewValidationError("kind", err.Error())
	}
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()

	if err := s.selection.Begin(mode); err != nil {
		return "", err
	}
	return s.selection.Mode(), nil
}

// RideState is the selection state of the ride map.
type RideState struct {
	Picked  bool           `json:"picked"`
	Mode    selection.Mode `json:"mode"`
	Pickup  *geo.Location  `json:"pickup,omitempty"`
	Dropoff *geo.Location  `json:"dropoff,omitempty"`
}

// RideClick replays a click on the ride map at c.
func (s *Session) RideClick(c geo.Coordinate) (RideState, error) {
	if err := c.Validate(); err != nil {
		return RideState{}, errors.NewValidationError("latlng", err.Error())
	}
	if err := s.lock(); err != nil {
		return RideState{}, err
	}
	defer s.mu.Unlock()

	awaiting := s.selection.Mode().Awaiting()
	s.ride.Click(c)

	return RideState{
		Picked:  awaiting,
		Mode:    s.selection.Mode(),
		Pickup:  copyLocation(s.pickup),
		Dropoff: copyLocation(s.dropoff),
	}, nil
}

// ClearRoute removes the drawn route path. The endpoints stay selected.
func (s *Session) ClearRoute() error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.route.Clear()
	return nil
}

// Map returns the named map surface.
func (s *Session) Map(name string) (*mapsurface.Handle, error) {
	switch name {
	case MapPicker:
		return s.picker, nil
	case MapRide:
		return s.ride, nil
	default:
		return nil, errors.NewNotFoundError("map " + name)
	}
}

// ToggleTracking starts or stops following the device position.
func (s *Session) ToggleTracking() (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	return s.watcher.Toggle(s.ctx)
}

// PushFix delivers a device fix to the active watch.
func (s *Session) PushFix(fix tracking.Fix) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.device.PushFix(fix)
}

// PushFixError delivers a failed fix attempt to the active watch.
func (s *Session) PushFixError(fixErr tracking.FixError) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.device.PushError(fixErr)
}

// CenterOnMe moves the centering map to the last device fix.
func (s *Session) CenterOnMe(ctx context.Context) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	return s.watcher.CenterOnMe(ctx)
}

// Notices drains the pending notices.
func (s *Session) Notices() []notice.Notice {
	return s.notices.Drain()
}

// Wait blocks until no address or route lookup is in flight.
func (s *Session) Wait() {
	s.debouncer.Wait()
	s.route.Wait()
}

// Close stops tracking, cancels pending lookups and releases both maps.
// Closing twice is a no-op.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.route.Clear()
	s.watcher.Close()
	s.locator.Close()
	s.cancel()
	s.picker.Release()
	s.ride.Release()
	s.mu.Unlock()

	s.Wait()
	telemetry.LogFromContext(s.ctx).Info("Session closed")
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func copyLocation(l *geo.Location) *geo.Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}
