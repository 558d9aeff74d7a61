package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/geo"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Save(ctx context.Context, id string, v interface{}) error {
	args := m.Called(ctx, id, v)
	return args.Error(0)
}

func (m *MockStore) Load(ctx context.Context, id string, dest interface{}) error {
	args := m.Called(ctx, id, dest)
	if raw, ok := args.Get(0).([]byte); ok && raw != nil {
		if err := json.Unmarshal(raw, dest); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func testDeps() Dependencies {
	return Dependencies{Reverser: &fakeReverser{}, Router: &fakeRouter{}, Debounce: testDelay}
}

func TestManager_CreateGetClose(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, time.Minute)
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Create(ctx, Options{Language: "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 1, m.Count())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, m.Close(ctx, s.ID()))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Count())

	_, err = m.Get(s.ID())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	assert.True(t, apperrors.IsErrorType(m.Close(ctx, s.ID()), apperrors.ErrorTypeNotFound))
}

func TestManager_SessionsAreIndependent(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, time.Minute)
	defer m.Shutdown()
	ctx := context.Background()

	a, err := m.Create(ctx, Options{})
	require.NoError(t, err)
	b, err := m.Create(ctx, Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())

	_, err = a.Select("pickup")
	require.NoError(t, err)
	_, err = a.RideClick(geo.Coordinate{Lat: 35.7, Lng: 51.4})
	require.NoError(t, err)

	assert.NotNil(t, a.Snapshot().Pickup)
	assert.Nil(t, b.Snapshot().Pickup)
}

func TestManager_CleanupExpiredSessions(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, 50*time.Millisecond)
	defer m.Shutdown()
	ctx := context.Background()

	idle, err := m.Create(ctx, Options{})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	active, err := m.Create(ctx, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, m.CleanupExpiredSessions())
	assert.Equal(t, 1, m.Count())
	assert.True(t, idle.Closed())
	assert.False(t, active.Closed())
}

func TestManager_GetExpiredSession(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, 20*time.Millisecond)
	defer m.Shutdown()

	s, err := m.Create(context.Background(), Options{})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	_, err = m.Get(s.ID())
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Count())
}

func TestManager_StartCleanupRoutine(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, 20*time.Millisecond)
	defer m.Shutdown()

	_, err := m.Create(context.Background(), Options{})
	require.NoError(t, err)

	m.StartCleanupRoutine(10 * time.Millisecond)
	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestManager_PersistAndLoadSnapshot(t *testing.T) {
	store := new(MockStore)
	m := NewManager(context.Background(), testDeps(), store, time.Minute)
	defer m.Shutdown()
	ctx := context.Background()

	store.On("Save", ctx, mock.AnythingOfType("string"), mock.AnythingOfType("session.Snapshot")).Return(nil)
	s, err := m.Create(ctx, Options{})
	require.NoError(t, err)
	id := s.ID()

	live, err := m.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, live.Live)
	assert.Equal(t, "fa", live.Language)

	stored, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	store.On("Delete", ctx, id).Return(nil)
	store.On("Load", ctx, id, mock.Anything).Return(stored, nil)
	require.NoError(t, m.Close(ctx, id))

	snap, err := m.LoadSnapshot(ctx, id)
	require.NoError(t, err)
	assert.False(t, snap.Live)
	assert.Equal(t, id, snap.ID)

	store.On("Load", ctx, "missing", mock.Anything).Return(nil, apperrors.NewNotFoundError("session snapshot"))
	_, err = m.LoadSnapshot(ctx, "missing")
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound))

	store.AssertExpectations(t)
}

func TestManager_PersistFailureIsNotFatal(t *testing.T) {
	store := new(MockStore)
	m := NewManager(context.Background(), testDeps(), store, time.Minute)
	defer m.Shutdown()
	ctx := context.Background()

	store.On("Save", ctx, mock.Anything, mock.Anything).Return(errors.New("connection refused"))
	store.On("Delete", ctx, mock.Anything).Return(errors.New("connection refused"))

	s, err := m.Create(ctx, Options{})
	require.NoError(t, err)
	assert.NoError(t, m.Close(ctx, s.ID()))
}

func TestManager_ShutdownClosesSessions(t *testing.T) {
	m := NewManager(context.Background(), testDeps(), nil, time.Minute)
	s, err := m.Create(context.Background(), Options{})
	require.NoError(t, err)

	m.Shutdown()
	assert.True(t, s.Closed())
	assert.Equal(t, 0, m.Count())
}
