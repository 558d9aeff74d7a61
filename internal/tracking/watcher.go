// Package tracking follows the device position on the picker map.
package tracking

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// ErrNoFix is wrapped by CenterOnMe when there is no position yet.
var ErrNoFix = stderrors.New("enable tracking first")

// AccuracyStyle is how the accuracy circle looks.
var AccuracyStyle = mapsurface.PathStyle{
	Color:       "#4B5563",
	FillColor:   "#4B5563",
	FillOpacity: 0.1,
	Weight:      1,
}

var positionIcon = mapsurface.Icon{Name: "position", Color: "#3b82f6", Size: 20}

// Map is the part of a map the watcher draws on.
type Map interface {
	AddLayer(l mapsurface.Layer) error
	RemoveLayer(l mapsurface.Layer) bool
	MoveTo(c geo.Coordinate, zoom int) error
}

// Watcher shows the live device position as a marker plus an accuracy
// circle. At most one of each is on the map at any time.
type Watcher struct {
	device   Geolocation
	surface  Map
	notifier notice.Notifier
	opts     WatchOptions

	mu         sync.Mutex
	ctx        context.Context
	watching   bool
	watchID    WatchID
	generation uint64
	marker     *mapsurface.Marker
	circle     *mapsurface.Circle
	fix        *Fix
}

func NewWatcher(device Geolocation, surface Map, notifier notice.Notifier) *Watcher {
	return &Watcher{
		device:   device,
		surface:  surface,
		notifier: notifier,
		opts:     DefaultWatchOptions(),
		ctx:      context.Background(),
	}
}

// Toggle starts tracking when off and stops it when on. It returns whether
// tracking is on afterwards. Without the geolocation capability nothing
// changes and a capability error is returned.
func (w *Watcher) Toggle(ctx context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.watching {
		w.stop()
		w.notifier.Raise(notice.LevelInfo, notice.CodeTrackingStopped)
		telemetry.LogFromContext(ctx).Info("Location tracking stopped")
		return false, nil
	}

	if w.device == nil || !w.device.Supported() {
		w.notifier.Raise(notice.LevelError, notice.CodeGeolocationUnsupported)
		return false, errors.NewCapabilityUnavailableError("geolocation")
	}

	w.generation++
	gen := w.generation
	id, err := w.device.Watch(w.opts,
		func(f Fix) { w.onFix(gen, f) },
		func(e FixError) { w.onError(gen, e) },
	)
	if err != nil {
		w.notifier.Raise(notice.LevelError, notice.CodeGeolocationUnsupported)
		return false, err
	}

	w.ctx = ctx
	w.watching = true
	w.watchID = id
	w.notifier.Raise(notice.LevelInfo, notice.CodeTrackingStarting)
	telemetry.LogFromContext(ctx).WithField("watch_id", int(id)).Info("Location tracking started")
	return true, nil
}

func (w *Watcher) onFix(gen uint64, f Fix) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching || gen != w.generation {
		return
	}

	w.removeLayers()

	w.circle = mapsurface.NewCircle(f.Coordinate, f.Accuracy, AccuracyStyle)
	w.marker = mapsurface.NewMarker(f.Coordinate, positionIcon)
	if err := w.surface.AddLayer(w.circle); err != nil {
		w.circle, w.marker = nil, nil
		telemetry.LogFromContext(w.ctx).WithError(err).Debug("Map gone before fix arrived")
		return
	}
	_ = w.surface.AddLayer(w.marker)

	fix := f
	w.fix = &fix
	w.notifier.Raise(notice.LevelSuccess, notice.CodePositionUpdated)
}

// onError reports a failed fix. Tracking keeps going; only Toggle stops it.
func (w *Watcher) onError(gen uint64, e FixError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching || gen != w.generation {
		return
	}
	telemetry.LogFromContext(w.ctx).WithError(e).Warn("Location fix failed")
	w.notifier.Raise(notice.LevelError, notice.CodePositionFailed)
}

// CenterOnMe moves the map to the last fix at close zoom.
func (w *Watcher) CenterOnMe(ctx context.Context) error {
	w.mu.Lock()
	fix := w.fix
	w.mu.Unlock()

	if fix == nil {
		w.notifier.Raise(notice.LevelInfo, notice.CodeEnableTrackingFirst)
		return errors.NewAppErrorWithCause(errors.ErrorTypeConflict, "NO_FIX", ErrNoFix.Error(), ErrNoFix)
	}
	return w.surface.MoveTo(fix.Coordinate, geo.CloseZoom)
}

// Watching reports whether tracking is on.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// Fix returns the last fix, or nil.
func (w *Watcher) Fix() *Fix {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fix == nil {
		return nil
	}
	f := *w.fix
	return &f
}

// Options returns the watch options the device is asked to honor.
func (w *Watcher) Options() WatchOptions {
	return w.opts
}

// Close stops tracking without raising a notice.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		w.stop()
	}
}

func (w *Watcher) stop() {
	w.device.ClearWatch(w.watchID)
	w.watching = false
	w.watchID = 0
	w.removeLayers()
	w.fix = nil
}

func (w *Watcher) removeLayers() {
	if w.marker != nil {
		w.surface.RemoveLayer(w.marker)
		w.marker = nil
	}
	if w.circle != nil {
		w.surface.RemoveLayer(w.circle)
		w.circle = nil
	}
}
