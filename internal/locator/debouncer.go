// Package locator resolves the address under the center of the picker map.
package locator

import (
	"context"
	"sync"
	"time"

	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/geocoding"
	"github.com/meetsmatch/ridemap/internal/notice"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// DefaultDelay is the quiet period after the last move before a lookup.
const DefaultDelay = 500 * time.Millisecond

const geocodingService = "nominatim"

// Resolution is the debouncer's view of the current address.
type Resolution struct {
	Loading bool                       `json:"loading"`
	Target  *geo.Coordinate            `json:"target,omitempty"`
	Address *geocoding.ResolvedAddress `json:"address,omitempty"`
}

// Debouncer issues at most one reverse geocoding request per quiet period and
// only applies the answer for the most recent request.
type Debouncer struct {
	ctx      context.Context
	reverser geocoding.Reverser
	notifier notice.Notifier
	metrics  *telemetry.UpstreamMetrics
	delay    time.Duration

	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	loading    bool
	target     *geo.Coordinate
	address    *geocoding.ResolvedAddress
	closed     bool
	inflight   sync.WaitGroup
}

// NewDebouncer creates a debouncer. Lookups run with ctx, so cancelling it
// aborts requests still in flight.
func NewDebouncer(ctx context.Context, reverser geocoding.Reverser, notifier notice.Notifier, delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		ctx:      ctx,
		reverser: reverser,
		notifier: notifier,
		delay:    delay,
	}
}

// WithMetrics records stale and finished lookups on m.
func (d *Debouncer) WithMetrics(m *telemetry.UpstreamMetrics) *Debouncer {
	d.metrics = m
	return d
}

// OnCenterChanged replaces any pending lookup with one for c.
func (d *Debouncer) OnCenterChanged(c geo.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.stopTimer()
	d.generation++
	gen := d.generation
	d.target = &c
	d.timer = time.AfterFunc(d.delay, func() { d.fire(gen, c) })
}

// OnMoveStart clears the shown address. A pending or in-flight lookup is for
// a center the user is leaving, so it is abandoned as well.
func (d *Debouncer) OnMoveStart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.stopTimer()
	d.generation++
	d.address = nil
	d.loading = false
}

func (d *Debouncer) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64, c geo.Coordinate) {
	d.mu.Lock()
	if d.closed || gen != d.generation {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.loading = true
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	logger := telemetry.LogFromContext(d.ctx).WithFields(map[string]interface{}{
		"operation":  "reverse_geocode",
		"generation": gen,
		"lat":        c.Lat,
		"lng":        c.Lng,
	})

	addr, err := d.reverser.Reverse(d.ctx, c)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || gen != d.generation {
		d.metrics.RecordStale(d.ctx, geocodingService)
		logger.Debug("Discarding superseded address")
		return
	}

	d.loading = false
	if err != nil {
		d.address = nil
		logger.WithError(err).Warn("Address lookup failed")
		d.notifier.Raise(notice.LevelError, notice.CodeAddressLookupFailed)
		return
	}
	d.address = addr
	logger.Debug("Address resolved")
}

// Resolution returns the current loading flag, target and address.
func (d *Debouncer) Resolution() Resolution {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := Resolution{Loading: d.loading, Address: d.address}
	if d.target != nil {
		t := *d.target
		res.Target = &t
	}
	return res
}

// Close cancels the pending timer. Results arriving afterwards are dropped.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.stopTimer()
}

// Wait blocks until no lookup is in flight.
func (d *Debouncer) Wait() {
	d.inflight.Wait()
}
