// Package memory provides an in-memory, TTL-expiring implementation of the
// storage.SessionStore interface.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

const (
	DefaultTTL           = storage.DefaultTTL
	DefaultSweepInterval = storage.DefaultSweepInterval
)

// Ensure Store implements storage.SessionStore
var _ storage.SessionStore = (*Store)(nil)

// Store keeps sessions in a map guarded by a single mutex. Each operation
// holds the lock for its whole duration, so no reader ever observes a
// half-applied write.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.SharedSession

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	metrics       *metrics.Metrics
	logger        *slog.Logger

	sweeper *storage.Sweeper
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithSweepInterval sets the background eviction period.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics reports session counts to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithLogger sets the logger used by the sweeper.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New creates an empty Store. The background sweeper does not run until Start.
func New(opts ...Option) *Store {
	s := &Store{
		sessions:      make(map[string]*models.SharedSession),
		ttl:           DefaultTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = DefaultSweepInterval
	}
	s.sweeper = storage.NewSweeper(s.sweepInterval, func(context.Context) (int, error) {
		return s.Sweep(), nil
	}, s.logger)
	return s
}

// Start launches the background sweeper. Calling Start on a running store is
// a no-op. The sweeper stops when ctx is cancelled or Stop is called.
func (s *Store) Start(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// Stop halts the background sweeper and waits for it to exit. It is safe to
// call more than once.
func (s *Store) Stop() {
	s.sweeper.Stop()
}

// Close stops the sweeper.
func (s *Store) Close() error {
	s.Stop()
	return nil
}

// Sweep evicts every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, session := range s.sessions {
		if s.expiredLocked(session) {
			delete(s.sessions, id)
			evicted++
		}
	}
	s.metrics.SessionsExpired(evicted)
	s.metrics.SetActiveSessions(len(s.sessions))
	return evicted
}

// Len returns the number of sessions held, including expired ones not yet evicted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CreateSession stores a copy of session under a new ID.
func (s *Store) CreateSession(ctx context.Context, session *models.SharedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New().String()
	for s.sessions[id] != nil {
		id = uuid.New().String()
	}
	now := s.now().UnixMilli()

	session.ID = id
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Attributions = []models.ItemAttribution{}
	if session.People == nil {
		session.People = []models.Person{}
	}

	s.sessions[id] = session.Clone()
	s.metrics.SessionCreated()
	s.metrics.SetActiveSessions(len(s.sessions))
	return nil
}

// GetSession returns a copy of the session, evicting it if expired.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.SharedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.liveLocked(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Clone(), nil
}

// PatchSession replaces the patched fields. Last writer wins.
func (s *Store) PatchSession(ctx context.Context, sessionID string, patch models.SessionPatch) (*models.SharedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.liveLocked(sessionID)
	if err != nil {
		return nil, err
	}

	if patch.Attributions != nil {
		session.Attributions = models.CloneAttributions(*patch.Attributions)
		if session.Attributions == nil {
			session.Attributions = []models.ItemAttribution{}
		}
	}
	if patch.People != nil {
		session.People = models.ClonePeople(*patch.People)
		if session.People == nil {
			session.People = []models.Person{}
		}
	}
	session.UpdatedAt = s.now().UnixMilli()

	return session.Clone(), nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.liveLocked(sessionID); err != nil {
		return err
	}
	delete(s.sessions, sessionID)
	s.metrics.SetActiveSessions(len(s.sessions))
	return nil
}

// liveLocked returns the stored session, evicting it if expired.
// The caller must hold s.mu.
func (s *Store) liveLocked(sessionID string) (*models.SharedSession, error) {
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	if s.expiredLocked(session) {
		delete(s.sessions, sessionID)
		s.metrics.SessionsExpired(1)
		s.metrics.SetActiveSessions(len(s.sessions))
		return nil, storage.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) expiredLocked(session *models.SharedSession) bool {
	return s.now().Sub(time.UnixMilli(session.CreatedAt)) > s.ttl
}
