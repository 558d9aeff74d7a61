package locator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/meetsmatch/ridemap/internal/geo"
	"github.com/meetsmatch/ridemap/internal/mapsurface"
	"github.com/meetsmatch/ridemap/internal/notice"
)

func newPicker(t *testing.T) (*Picker, *mapsurface.Handle, *fakeReverser) {
	t.Helper()
	h, err := mapsurface.NewProvider().Acquire("picker", mapsurface.LightOptions())
	require.NoError(t, err)
	t.Cleanup(h.Release)

	rev := &fakeReverser{}
	d := NewDebouncer(context.Background(), rev, notice.NewFeed(language.English), testDelay)
	p := NewPicker(h, d)
	t.Cleanup(p.Close)
	return p, h, rev
}

func TestPicker_StartsAtMapCenter(t *testing.T) {
	p, _, _ := newPicker(t)

	st := p.Status()
	require.NotNil(t, st.Center)
	assert.Equal(t, geo.DefaultCenter, *st.Center)
	assert.False(t, st.Moving)
	assert.Nil(t, st.Address)
}

func TestPicker_DragResolvesNewCenter(t *testing.T) {
	p, h, rev := newPicker(t)
	target := geo.Coordinate{Lat: 35.7, Lng: 51.4}

	h.BeginMove()
	assert.True(t, p.Status().Moving)

	require.NoError(t, h.EndMove(target))
	st := p.Status()
	assert.False(t, st.Moving)
	assert.Equal(t, target, *st.Center)

	require.Eventually(t, func() bool { return p.Status().Address != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []geo.Coordinate{target}, rev.requests())
	assert.Equal(t, target.String(), p.Status().Label)

	h.BeginMove()
	assert.Nil(t, p.Status().Address)
}

func TestPicker_Confirm(t *testing.T) {
	p, h, _ := newPicker(t)

	require.NoError(t, h.Pan(geo.Coordinate{Lat: 35.123456789, Lng: 51.987654321}))
	require.Eventually(t, func() bool { return p.Status().Address != nil }, time.Second, 5*time.Millisecond)

	loc, err := p.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 35.123457, loc.Lat)
	assert.Equal(t, 51.987654, loc.Lng)
	assert.Equal(t, "(35.1235, 51.9877)", loc.Address)
	assert.False(t, loc.ConfirmedAt.IsZero())
}

func TestPicker_CloseDetachesListeners(t *testing.T) {
	p, h, rev := newPicker(t)
	p.Close()

	assert.Equal(t, 0, h.ListenerCount(mapsurface.EventMoveEnd))
	require.NoError(t, h.Pan(geo.Coordinate{Lat: 1, Lng: 1}))
	time.Sleep(3 * testDelay)
	assert.Empty(t, rev.requests())
}
