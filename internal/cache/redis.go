// Package cache keeps short-lived session snapshots in Redis so a session's
// last known state can be read back while it is still within its TTL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// RedisClientInterface is the part of the Redis client the store uses.
type RedisClientInterface interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// DefaultTTL applies when the store is created without one.
const DefaultTTL = 30 * time.Minute

const snapshotVersion = "1"

// SnapshotEntry wraps a stored snapshot with metadata.
type SnapshotEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
}

// SnapshotStore saves and loads session snapshots.
type SnapshotStore struct {
	client RedisClientInterface
	prefix string
	ttl    time.Duration
}

// NewSnapshotStore connects to the Redis server at redisURL
// (redis://[:password@]host:port/db) and verifies the connection.
func NewSnapshotStore(ctx context.Context, redisURL string, ttl time.Duration) (*SnapshotStore, error) {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation": "redis_connection",
		"service":   "cache",
	})

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.NewValidationError("REDIS_URL", fmt.Sprintf("invalid redis url: %v", err))
	}
	logger = logger.WithFields(map[string]interface{}{
		"addr": opts.Addr,
		"db":   opts.DB,
	})
	logger.Info("Establishing Redis connection")

	client := redis.NewClient(opts)
	telemetry.InstrumentRedisClient(client)

	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Error("Failed to connect to Redis")
		_ = client.Close()
		return nil, errors.NewCacheError("connect", err)
	}

	logger.Info("Redis connected successfully")
	return NewSnapshotStoreWithClient(client, ttl), nil
}

// NewSnapshotStoreWithClient wraps an existing client.
func NewSnapshotStoreWithClient(client RedisClientInterface, ttl time.Duration) *SnapshotStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotStore{
		client: client,
		prefix: "ridemap:session:",
		ttl:    ttl,
	}
}

func (s *SnapshotStore) key(id string) string {
	return s.prefix + id
}

// Save stores v as the snapshot of session id, replacing any previous one.
func (s *SnapshotStore) Save(ctx context.Context, id string, v interface{}) error {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":   "redis_save_snapshot",
		"session_id":  id,
		"ttl_seconds": s.ttl.Seconds(),
		"service":     "cache",
	})

	data, err := json.Marshal(v)
	if err != nil {
		return errors.NewInternalError("failed to marshal snapshot", err)
	}
	entry, err := json.Marshal(SnapshotEntry{
		Data:      data,
		Timestamp: time.Now().UTC(),
		Version:   snapshotVersion,
	})
	if err != nil {
		return errors.NewInternalError("failed to marshal snapshot entry", err)
	}

	if err := s.client.Set(ctx, s.key(id), entry, s.ttl).Err(); err != nil {
		logger.WithError(err).Error("Failed to save snapshot")
		return errors.NewCacheError("save snapshot", err)
	}
	logger.Debug("Snapshot saved")
	return nil
}

// Load reads the snapshot of session id into dest. A missing or expired
// snapshot is a not found error.
func (s *SnapshotStore) Load(ctx context.Context, id string, dest interface{}) error {
	logger := telemetry.LogFromContext(ctx).WithFields(map[string]interface{}{
		"operation":  "redis_load_snapshot",
		"session_id": id,
		"service":    "cache",
	})

	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err == redis.Nil {
		logger.Debug("Snapshot miss")
		return errors.NewNotFoundError("session snapshot")
	}
	if err != nil {
		logger.WithError(err).Error("Failed to load snapshot")
		return errors.NewCacheError("load snapshot", err)
	}

	var entry SnapshotEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return errors.NewCacheError("decode snapshot", err)
	}
	if entry.Version != snapshotVersion {
		logger.WithField("version", entry.Version).Warn("Ignoring snapshot with unknown version")
		return errors.NewNotFoundError("session snapshot")
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return errors.NewCacheError("decode snapshot", err)
	}
	return nil
}

// Delete removes the snapshot of session id.
func (s *SnapshotStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		telemetry.LogFromContext(ctx).WithError(err).WithField("session_id", id).Error("Failed to delete snapshot")
		return errors.NewCacheError("delete snapshot", err)
	}
	return nil
}

// Touch extends the snapshot TTL.
func (s *SnapshotStore) Touch(ctx context.Context, id string) error {
	if err := s.client.Expire(ctx, s.key(id), s.ttl).Err(); err != nil {
		return errors.NewCacheError("touch snapshot", err)
	}
	return nil
}

// HealthCheck verifies Redis connectivity.
func (s *SnapshotStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}
