package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
)

// fakeRouter answers with a straight line from -> to. When a gate is set for
// the destination it waits for the gate to close first.
type fakeRouter struct {
	mu    sync.Mutex
	calls []geo.Coordinate
	gates map[geo.Coordinate]chan struct{}
	err   error
}

func (f *fakeRouter) Route(ctx context.Context, from, to geo.Coordinate) (*Route, error) {
	f.mu.Lock()
	f.calls = append(f.calls, to)
	gate := f.gates[to]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return &Route{Path: geo.Path{from, to}}, nil
}

func (f *fakeRouter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newRideMap(t *testing.T) *mapsurface.Handle {
	t.Helper()
	h, err := mapsurface.NewProvider().Acquire("ride", mapsurface.OSMOptions())
	require.NoError(t, err)
	t.Cleanup(h.Release)
	return h
}

var (
	pickup  = geo.Location{Coordinate: geo.Coordinate{Lat: 35.6892, Lng: 51.389}, Address: "a"}
	dropoff = geo.Location{Coordinate: geo.Coordinate{Lat: 35.6895, Lng: 51.390}, Address: "b"}
)

func TestRenderer_DrawsAndFits(t *testing.T) {
	h := newRideMap(t)
	feed := notice.NewFeed(language.English)
	r := NewRenderer(&fakeRouter{}, h, feed, nil)

	r.OnEndpointsChanged(context.Background(), &pickup, &dropoff)
	r.Wait()

	line := r.PathLayer()
	require.NotNil(t, line)
	assert.Equal(t, geo.Path{{Lat: 35.6892, Lng: 51.389}, {Lat: 35.6895, Lng: 51.390}}, line.Path)
	assert.Equal(t, RouteStyle, line.Style)
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindPolyline))

	fit := h.LastFit()
	require.NotNil(t, fit)
	assert.Equal(t, orb.Bound{Min: orb.Point{51.389, 35.6892}, Max: orb.Point{51.390, 35.6895}}, fit.Bounds)
	assert.Equal(t, [2]int{50, 50}, fit.Padding)
	assert.Equal(t, 500*time.Millisecond, fit.Duration)
	assert.Empty(t, feed.Pending())
}

func TestRenderer_RedrawIsIdempotent(t *testing.T) {
	h := newRideMap(t)
	router := &fakeRouter{}
	r := NewRenderer(router, h, notice.NewFeed(language.English), nil)

	for i := 0; i < 3; i++ {
		r.OnEndpointsChanged(context.Background(), &pickup, &dropoff)
		r.Wait()
	}

	assert.Equal(t, 3, router.callCount())
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindPolyline))
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindGroup))
}

func TestRenderer_NeedsBothEndpoints(t *testing.T) {
	h := newRideMap(t)
	router := &fakeRouter{}
	r := NewRenderer(router, h, notice.NewFeed(language.English), nil)

	r.OnEndpointsChanged(context.Background(), &pickup, nil)
	r.Wait()

	assert.Equal(t, 0, router.callCount())
	assert.Nil(t, r.PathLayer())

	snap := h.Snapshot()
	require.Len(t, snap.Features.Features, 1)
	assert.Equal(t, "pickup: a", snap.Features.Features[0].Properties["popup"])
	assert.Equal(t, "#22c55e", snap.Features.Features[0].Properties["iconColor"])
}

func TestRenderer_StalePathKeptUntilCleared(t *testing.T) {
	h := newRideMap(t)
	r := NewRenderer(&fakeRouter{}, h, notice.NewFeed(language.English), nil)

	r.OnEndpointsChanged(context.Background(), &pickup, &dropoff)
	r.Wait()
	r.OnEndpointsChanged(context.Background(), &pickup, nil)
	r.Wait()
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindPolyline))

	r.Clear()
	r.Clear()
	assert.Equal(t, 0, h.CountLayers(mapsurface.KindPolyline))
	assert.Nil(t, r.Route())
}

func TestRenderer_DropsSupersededResponse(t *testing.T) {
	h := newRideMap(t)
	slow := geo.Coordinate{Lat: 35.75, Lng: 51.45}
	gate := make(chan struct{})
	router := &fakeRouter{gates: map[geo.Coordinate]chan struct{}{slow: gate}}
	r := NewRenderer(router, h, notice.NewFeed(language.English), nil)

	first := geo.Location{Coordinate: slow, Address: "slow"}
	r.OnEndpointsChanged(context.Background(), &pickup, &first)
	require.Eventually(t, func() bool { return router.callCount() == 1 }, time.Second, time.Millisecond)

	r.OnEndpointsChanged(context.Background(), &pickup, &dropoff)
	require.Eventually(t, func() bool { return r.PathLayer() != nil }, time.Second, time.Millisecond)

	close(gate)
	r.Wait()

	line := r.PathLayer()
	require.NotNil(t, line)
	assert.Equal(t, dropoff.Coordinate, line.Path[1])
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindPolyline))
}

func TestRenderer_FailureRaisesNotice(t *testing.T) {
	h := newRideMap(t)
	feed := notice.NewFeed(language.English)
	r := NewRenderer(&fakeRouter{err: errors.New("boom")}, h, feed, nil)

	r.OnEndpointsChanged(context.Background(), &pickup, &dropoff)
	r.Wait()

	assert.Nil(t, r.PathLayer())
	assert.Equal(t, 0, h.CountLayers(mapsurface.KindPolyline))
	assert.Equal(t, 1, feed.Count(notice.CodeRouteFailed))
}
