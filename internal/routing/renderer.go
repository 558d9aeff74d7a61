package routing

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// RouteStyle is how the drawn path looks.
var RouteStyle = mapsurface.PathStyle{Color: "#3b82f6", Weight: 5, Opacity: 1}

// RouteFit is the viewport fit applied once the path is on the map.
var RouteFit = mapsurface.FitOptions{Padding: [2]int{50, 50}, Duration: 500 * time.Millisecond}

var (
	pickupIcon  = mapsurface.Icon{Name: "pin", Color: "#22c55e", Size: 24}
	dropoffIcon = mapsurface.Icon{Name: "pin", Color: "#ef4444", Size: 24}
)

// Surface is the part of a map the renderer draws on.
type Surface interface {
	AddLayer(l mapsurface.Layer) error
	RemoveLayer(l mapsurface.Layer) bool
	FitBounds(b orb.Bound, opts mapsurface.FitOptions) error
}

// Renderer keeps the ride map's endpoint markers and route path in sync with
// the selected pickup and dropoff. It owns exactly one path layer and one
// marker group.
type Renderer struct {
	router   Router
	surface  Surface
	notifier notice.Notifier
	metrics  *telemetry.UpstreamMetrics

	mu         sync.Mutex
	generation uint64
	path       *mapsurface.Polyline
	route      *Route
	markers    *mapsurface.LayerGroup
	inflight   sync.WaitGroup
}

func NewRenderer(router Router, surface Surface, notifier notice.Notifier, metrics *telemetry.UpstreamMetrics) *Renderer {
	return &Renderer{
		router:   router,
		surface:  surface,
		notifier: notifier,
		metrics:  metrics,
		markers:  mapsurface.NewLayerGroup("endpoints"),
	}
}

// OnEndpointsChanged redraws the endpoint markers and, when both endpoints
// are set, replaces the route path. The lookup runs in the background with
// ctx; only the most recent trigger may draw.
func (r *Renderer) OnEndpointsChanged(ctx context.Context, pickup, dropoff *geo.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drawMarkers(pickup, dropoff)
	if pickup == nil || dropoff == nil {
		return
	}

	r.generation++
	gen := r.generation
	r.removePath()

	from, to := pickup.Coordinate, dropoff.Coordinate
	r.inflight.Add(1)
	go r.fetchAndDraw(ctx, gen, from, to)
}

func (r *Renderer) drawMarkers(pickup, dropoff *geo.Location) {
	r.markers.Clear()
	if pickup != nil {
		r.markers.Add(mapsurface.NewMarker(pickup.Coordinate, pickupIcon).BindPopup("pickup: " + pickup.Address))
	}
	if dropoff != nil {
		r.markers.Add(mapsurface.NewMarker(dropoff.Coordinate, dropoffIcon).BindPopup("dropoff: " + dropoff.Address))
	}
	_ = r.surface.AddLayer(r.markers)
}

func (r *Renderer) fetchAndDraw(ctx context.Context, gen uint64, from, to geo.Coordinate) {
	defer r.inflight.Done()

	route, err := r.router.Route(ctx, from, to)

	r.mu.Lock()
	defer r.mu.Unlock()

	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":  "route",
		"generation": gen,
	})

	if gen != r.generation {
		r.metrics.RecordStale(ctx, serviceName)
		logger.Debug("Discarding superseded route")
		return
	}
	if err != nil {
		logger.WithError(err).Warn("Route lookup failed")
		r.notifier.Raise(notice.LevelError, notice.CodeRouteFailed)
		return
	}

	line := mapsurface.NewPolyline(route.Path, RouteStyle)
	if err := r.surface.AddLayer(line); err != nil {
		logger.WithError(err).Debug("Map gone before route arrived")
		return
	}
	r.path = line
	r.route = route

	if err := r.surface.FitBounds(line.Bounds(), RouteFit); err != nil {
		logger.WithError(err).Debug("Could not fit route bounds")
	}
	logger.WithField("points", len(route.Path)).Debug("Route drawn")
}

func (r *Renderer) removePath() {
	if r.path != nil {
		r.surface.RemoveLayer(r.path)
	}
	r.path = nil
	r.route = nil
}

// Clear removes the drawn path and drops any lookup still in flight.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.removePath()
}

// Route returns the route currently drawn, or nil.
func (r *Renderer) Route() *Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.route
}

// PathLayer returns the path layer currently drawn, or nil.
func (r *Renderer) PathLayer() *mapsurface.Polyline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Wait blocks until no route lookup is in flight.
func (r *Renderer) Wait() {
	r.inflight.Wait()
}
