package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meetsmatch/ridemap/internal/errors"
)

// MockRedisClient is a mock implementation of RedisClientInterface
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	cmd := redis.NewIntCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Get(0).(int64))
	}
	return cmd
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, expiration)
	cmd := redis.NewBoolCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Bool(0))
	}
	return cmd
}

func (m *MockRedisClient) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type sample struct {
	Mode  string  `json:"mode"`
	Lat   float64 `json:"lat"`
	Label string  `json:"label"`
}

func TestSnapshotStore_Save(t *testing.T) {
	client := new(MockRedisClient)
	store := NewSnapshotStoreWithClient(client, time.Minute)
	ctx := context.Background()

	client.On("Set", ctx, "ridemap:session:abc", mock.MatchedBy(func(v interface{}) bool {
		var entry SnapshotEntry
		if err := json.Unmarshal(v.([]byte), &entry); err != nil {
			return false
		}
		var got sample
		return json.Unmarshal(entry.Data, &got) == nil && got.Mode == "pickup" && entry.Version == "1"
	}), time.Minute).Return("OK", nil)

	err := store.Save(ctx, "abc", sample{Mode: "pickup", Lat: 35.7})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

func TestSnapshotStore_Load(t *testing.T) {
	client := new(MockRedisClient)
	store := NewSnapshotStoreWithClient(client, 0)
	ctx := context.Background()

	raw, err := json.Marshal(SnapshotEntry{
		Data:      json.RawMessage(`{"mode":"dropoff","lat":35.7,"label":"x"}`),
		Timestamp: time.Now(),
		Version:   "1",
	})
	require.NoError(t, err)
	client.On("Get", ctx, "ridemap:session:abc").Return(string(raw), nil)

	var got sample
	require.NoError(t, store.Load(ctx, "abc", &got))
	assert.Equal(t, sample{Mode: "dropoff", Lat: 35.7, Label: "x"}, got)
	assert.Equal(t, DefaultTTL, store.ttl)
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	client := new(MockRedisClient)
	store := NewSnapshotStoreWithClient(client, time.Minute)
	ctx := context.Background()

	client.On("Get", ctx, "ridemap:session:gone").Return("", redis.Nil)
	client.On("Get", ctx, "ridemap:session:old").Return(`{"data":{},"version":"0"}`, nil)
	client.On("Get", ctx, "ridemap:session:down").Return("", errors.New("connection refused"))

	var got sample
	assert.True(t, apperrors.IsErrorType(store.Load(ctx, "gone", &got), apperrors.ErrorTypeNotFound))
	assert.True(t, apperrors.IsErrorType(store.Load(ctx, "old", &got), apperrors.ErrorTypeNotFound))
	assert.True(t, apperrors.IsErrorType(store.Load(ctx, "down", &got), apperrors.ErrorTypeCache))
}

func TestSnapshotStore_DeleteTouchHealth(t *testing.T) {
	client := new(MockRedisClient)
	store := NewSnapshotStoreWithClient(client, time.Minute)
	ctx := context.Background()

	client.On("Del", ctx, []string{"ridemap:session:abc"}).Return(int64(1), nil)
	client.On("Expire", ctx, "ridemap:session:abc", time.Minute).Return(true, nil)
	client.On("Ping", ctx).Return("PONG", nil)
	client.On("Close").Return(nil)

	assert.NoError(t, store.Delete(ctx, "abc"))
	assert.NoError(t, store.Touch(ctx, "abc"))
	assert.NoError(t, store.HealthCheck(ctx))
	assert.NoError(t, store.Close())
	client.AssertExpectations(t)
}

func TestSnapshotStore_SaveFailure(t *testing.T) {
	client := new(MockRedisClient)
	store := NewSnapshotStoreWithClient(client, time.Minute)
	ctx := context.Background()

	client.On("Set", ctx, "ridemap:session:abc", mock.Anything, time.Minute).Return("", errors.New("READONLY"))

	err := store.Save(ctx, "abc", sample{})
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeCache))
}

func TestNewSnapshotStore_InvalidURL(t *testing.T) {
	_, err := NewSnapshotStore(context.Background(), "http://nope", time.Minute)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeValidation))
}
