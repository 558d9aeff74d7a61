package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meetsmatch/ridemap/internal/errors"
	"github.com/meetsmatch/ridemap/internal/telemetry"
)

// DefaultTTL is how long an idle session lives.
const DefaultTTL = 30 * time.Minute

// Store keeps session snapshots outside the process.
type Store interface {
	Save(ctx context.Context, id string, v interface{}) error
	Load(ctx context.Context, id string, dest interface{}) error
	Delete(ctx context.Context, id string) error
}

// Manager owns the live sessions and expires idle ones.
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	deps   Dependencies
	store  Store
	ttl    time.Duration

	sessions map[string]*Session
	mutex    sync.RWMutex
}

// NewManager creates a manager. Sessions live under ctx, not under the
// request that created them. store may be nil.
func NewManager(ctx context.Context, deps Dependencies, store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		ctx:      ctx,
		cancel:   cancel,
		deps:     deps,
		store:    store,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *Manager) Create(ctx context.Context, opts Options) (*Session, error) {
	id := uuid.NewString()
	s, err := newSession(m.ctx, id, m.deps, opts)
	if err != nil {
		return nil, err
	}

	m.mutex.Lock()
	m.sessions[id] = s
	m.mutex.Unlock()

	m.Persist(ctx, s)
	return s, nil
}

// Get returns a live session. Expired sessions are closed and reported as
// not found.
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	s, exists := m.sessions[id]
	m.mutex.RUnlock()

	if !exists {
		return nil, errors.NewNotFoundError("session")
	}
	if time.Since(s.LastSeen()) > m.ttl {
		m.remove(id)
		s.Close()
		return nil, errors.NewNotFoundError("session")
	}
	return s, nil
}

// Close closes a session and deletes its stored snapshot.
func (m *Manager) Close(ctx context.Context, id string) error {
	s, exists := m.remove(id)
	if !exists {
		return errors.NewNotFoundError("session")
	}
	s.Close()

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			telemetry.LogFromContext(ctx).WithError(err).WithField("session_id", id).Warn("Failed to delete session snapshot")
		}
	}
	return nil
}

func (m *Manager) remove(id string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	s, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	return s, exists
}

// Persist writes the session snapshot to the store. Failures are logged;
// the session keeps working without its snapshot.
func (m *Manager) Persist(ctx context.Context, s *Session) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s.ID(), s.Snapshot()); err != nil {
		telemetry.LogFromContext(ctx).WithError(err).WithField("session_id", s.ID()).Warn("Failed to persist session snapshot")
	}
}

// LoadSnapshot returns the live snapshot of a session, or the stored one
// when the session is no longer in memory.
func (m *Manager) LoadSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	if s, err := m.Get(id); err == nil {
		snap := s.Snapshot()
		return &snap, nil
	}
	if m.store == nil {
		return nil, errors.NewNotFoundError("session")
	}

	var snap Snapshot
	if err := m.store.Load(ctx, id, &snap); err != nil {
		return nil, err
	}
	snap.Live = false
	return &snap, nil
}

// CleanupExpiredSessions closes idle sessions and returns how many it closed.
func (m *Manager) CleanupExpiredSessions() int {
	m.mutex.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if time.Since(s.LastSeen()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mutex.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		telemetry.LogFromContext(m.ctx).WithField("count", len(expired)).Info("Expired idle sessions")
	}
	return len(expired)
}

// StartCleanupRoutine expires idle sessions every interval until the manager
// shuts down.
func (m *Manager) StartCleanupRoutine(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.CleanupExpiredSessions()
			}
		}
	}()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// TTL returns the idle lifetime of a session.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Shutdown closes every session and stops the cleanup routine.
func (m *Manager) Shutdown() {
	m.mutex.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mutex.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.cancel()
}
