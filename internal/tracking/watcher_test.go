package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	apperrors "github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
)

func newWatcher(t *testing.T, supported bool) (*Watcher, *DeviceFeed, *mapsurface.Handle, *notice.Feed) {
	t.Helper()
	h, err := mapsurface.NewProvider().Acquire("picker", mapsurface.LightOptions())
	require.NoError(t, err)
	t.Cleanup(h.Release)

	device := NewDeviceFeed(supported)
	feed := notice.NewFeed(language.English)
	w := NewWatcher(device, h, feed)
	t.Cleanup(w.Close)
	return w, device, h, feed
}

func fixAt(lat, lng, accuracy float64) Fix {
	return Fix{Coordinate: geo.Coordinate{Lat: lat, Lng: lng}, Accuracy: accuracy}
}

func TestWatcher_ToggleOnThenOffLeavesNoLayers(t *testing.T) {
	w, device, h, _ := newWatcher(t, true)
	ctx := context.Background()

	on, err := w.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, device.PushFix(fixAt(35.70, 51.40, 25)))
	require.NoError(t, device.PushFix(fixAt(35.71, 51.41, 12)))
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindMarker))
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindCircle))

	on, err = w.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, on)

	assert.Equal(t, 0, h.CountLayers(mapsurface.KindMarker))
	assert.Equal(t, 0, h.CountLayers(mapsurface.KindCircle))
	assert.Nil(t, w.Fix())
	assert.Equal(t, 0, device.Active())
}

func TestWatcher_FixReplacesLayers(t *testing.T) {
	w, device, h, feed := newWatcher(t, true)
	_, err := w.Toggle(context.Background())
	require.NoError(t, err)

	require.NoError(t, device.PushFix(fixAt(35.70, 51.40, 25)))
	require.NoError(t, device.PushFix(fixAt(35.71, 51.41, 12)))

	fix := w.Fix()
	require.NotNil(t, fix)
	assert.Equal(t, geo.Coordinate{Lat: 35.71, Lng: 51.41}, fix.Coordinate)
	assert.False(t, fix.Timestamp.IsZero())

	snap := h.Snapshot()
	require.Len(t, snap.Features.Features, 2)
	circle := snap.Features.Features[0]
	assert.Equal(t, 12.0, circle.Properties["radius"])
	assert.Equal(t, "#4B5563", circle.Properties["color"])
	assert.Equal(t, 0.1, circle.Properties["fillOpacity"])

	assert.Equal(t, 2, feed.Count(notice.CodePositionUpdated))
	assert.Equal(t, 1, feed.Count(notice.CodeTrackingStarting))
}

func TestWatcher_ErrorDoesNotStopTracking(t *testing.T) {
	w, device, h, feed := newWatcher(t, true)
	_, err := w.Toggle(context.Background())
	require.NoError(t, err)

	require.NoError(t, device.PushError(FixError{Code: FixTimeout, Message: "timeout"}))
	assert.True(t, w.Watching())
	assert.Equal(t, 1, feed.Count(notice.CodePositionFailed))

	require.NoError(t, device.PushFix(fixAt(35.70, 51.40, 5)))
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindMarker))
}

func TestWatcher_UnsupportedLeavesStateAlone(t *testing.T) {
	w, device, h, feed := newWatcher(t, false)

	on, err := w.Toggle(context.Background())
	assert.False(t, on)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCapabilityUnavailable))
	assert.False(t, w.Watching())
	assert.Equal(t, 0, device.Active())
	assert.Equal(t, 1, h.CountLayers(mapsurface.KindTile))
	assert.Equal(t, 1, feed.Count(notice.CodeGeolocationUnsupported))
}

func TestWatcher_CenterOnMe(t *testing.T) {
	w, device, h, feed := newWatcher(t, true)
	ctx := context.Background()

	err := w.CenterOnMe(ctx)
	assert.ErrorIs(t, err, ErrNoFix)
	assert.Equal(t, 1, feed.Count(notice.CodeEnableTrackingFirst))
	assert.Equal(t, geo.DefaultCenter, h.Center())

	_, err = w.Toggle(ctx)
	require.NoError(t, err)
	require.NoError(t, device.PushFix(fixAt(35.75, 51.42, 10)))

	require.NoError(t, w.CenterOnMe(ctx))
	assert.Equal(t, mapsurface.View{Center: geo.Coordinate{Lat: 35.75, Lng: 51.42}, Zoom: 15}, h.View())
}

func TestWatcher_IgnoresFixesAfterStop(t *testing.T) {
	w, device, h, _ := newWatcher(t, true)
	ctx := context.Background()

	_, err := w.Toggle(ctx)
	require.NoError(t, err)
	w.Close()

	assert.Error(t, device.PushFix(fixAt(35.70, 51.40, 5)))
	assert.Equal(t, 0, h.CountLayers(mapsurface.KindMarker))
	assert.False(t, w.Watching())
}

func TestDeviceFeed_OptionsAndValidation(t *testing.T) {
	device := NewDeviceFeed(true)
	_, ok := device.Options()
	assert.False(t, ok)

	_, err := device.Watch(DefaultWatchOptions(), func(Fix) {}, func(FixError) {})
	require.NoError(t, err)

	opts, ok := device.Options()
	require.True(t, ok)
	assert.Equal(t, WireOptions{EnableHighAccuracy: true, Timeout: 5000, MaximumAge: 0}, opts.Wire())
	assert.Equal(t, 5*time.Second, opts.Timeout)

	err = device.PushFix(fixAt(95, 0, 1))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
	err = device.PushFix(fixAt(0, 0, -1))
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}
