package tracking

import (
	"fmt"
	"sync"
	"time"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
)

// Fix is one device position report.
type Fix struct {
	geo.Coordinate
	Accuracy  float64   `json:"accuracy"` // metres
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the coordinate and that accuracy is not negative.
func (f Fix) Validate() error {
	if err := f.Coordinate.Validate(); err != nil {
		return errors.NewValidationError("coordinate", err.Error())
	}
	if f.Accuracy < 0 {
		return errors.NewValidationError("accuracy", "accuracy must not be negative")
	}
	return nil
}

// Geolocation error codes, numbered like the browser API.
const (
	FixPermissionDenied    = 1
	FixPositionUnavailable = 2
	FixTimeout             = 3
)

// FixError is a failed fix attempt.
type FixError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e FixError) Error() string {
	return fmt.Sprintf("geolocation error %d: %s", e.Code, e.Message)
}

// WatchOptions are handed to the device when a watch starts.
type WatchOptions struct {
	EnableHighAccuracy bool          `json:"-"`
	Timeout            time.Duration `json:"-"`
	MaximumAge         time.Duration `json:"-"`
}

// DefaultWatchOptions asks for fresh, high accuracy fixes within 5 seconds.
func DefaultWatchOptions() WatchOptions {
	return WatchOptions{
		EnableHighAccuracy: true,
		Timeout:            5 * time.Second,
		MaximumAge:         0,
	}
}

// WireOptions is WatchOptions in the browser's units.
type WireOptions struct {
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	Timeout            int64 `json:"timeout"`
	MaximumAge         int64 `json:"maximumAge"`
}

func (o WatchOptions) Wire() WireOptions {
	return WireOptions{
		EnableHighAccuracy: o.EnableHighAccuracy,
		Timeout:            o.Timeout.Milliseconds(),
		MaximumAge:         o.MaximumAge.Milliseconds(),
	}
}

// WatchID identifies an active watch.
type WatchID int

// Geolocation is the device capability the watcher needs.
type Geolocation interface {
	Supported() bool
	Watch(opts WatchOptions, onFix func(Fix), onError func(FixError)) (WatchID, error)
	ClearWatch(id WatchID)
}

type watch struct {
	opts    WatchOptions
	onFix   func(Fix)
	onError func(FixError)
}

// DeviceFeed is the Geolocation of a browser tab: the browser says once
// whether it has the capability, then pushes fixes and errors which are
// delivered to every active watch.
type DeviceFeed struct {
	supported bool

	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]watch
}

func NewDeviceFeed(supported bool) *DeviceFeed {
	return &DeviceFeed{
		supported: supported,
		watches:   make(map[WatchID]watch),
	}
}

func (f *DeviceFeed) Supported() bool {
	return f.supported
}

func (f *DeviceFeed) Watch(opts WatchOptions, onFix func(Fix), onError func(FixError)) (WatchID, error) {
	if !f.supported {
		return 0, errors.NewCapabilityUnavailableError("geolocation")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.watches[f.nextID] = watch{opts: opts, onFix: onFix, onError: onError}
	return f.nextID, nil
}

func (f *DeviceFeed) ClearWatch(id WatchID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.watches, id)
}

// Active returns the number of active watches.
func (f *DeviceFeed) Active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watches)
}

// Options returns the options of the newest active watch, if any.
func (f *DeviceFeed) Options() (WatchOptions, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.watches[f.nextID]
	return w.opts, ok
}

// PushFix delivers a fix to every active watch. Callbacks run outside the
// feed lock. A fix without a timestamp is stamped with the current time.
func (f *DeviceFeed) PushFix(fix Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = time.Now().UTC()
	}

	targets := f.snapshot()
	if len(targets) == 0 {
		return errors.NewConflictError("location tracking is not active")
	}
	for _, w := range targets {
		w.onFix(fix)
	}
	return nil
}

// PushError delivers a failed fix attempt to every active watch.
func (f *DeviceFeed) PushError(fixErr FixError) error {
	targets := f.snapshot()
	if len(targets) == 0 {
		return errors.NewConflictError("location tracking is not active")
	}
	for _, w := range targets {
		w.onError(fixErr)
	}
	return nil
}

func (f *DeviceFeed) snapshot() []watch {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]watch, 0, len(f.watches))
	for _, w := range f.watches {
		out = append(out, w)
	}
	return out
}
