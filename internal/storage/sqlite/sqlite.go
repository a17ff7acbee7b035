// Package sqlite provides a SQLite-backed implementation of the
// storage.SessionStore interface.
//
// The database lives in memory on a single connection, so sessions still
// vanish with the process. The single connection also serializes every
// operation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/receiptsplit/internal/metrics"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// Ensure Store implements storage.SessionStore
var _ storage.SessionStore = (*Store)(nil)

// Store implements storage.SessionStore using an in-memory SQLite database.
type Store struct {
	db *sql.DB

	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	metrics       *metrics.Metrics
	logger        *slog.Logger

	sweeper *storage.Sweeper
}

// Option configures a Store.
type Option func(*Store)

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens a fresh in-memory database and runs migrations.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	s := &Store{
		ttl:           storage.DefaultTTL,
		sweepInterval: storage.DefaultSweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sweepInterval <= 0 {
		s.sweepInterval = storage.DefaultSweepInterval
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s.db = db
	s.sweeper = storage.NewSweeper(s.sweepInterval, s.Sweep, s.logger)
	return s, nil
}

// Start launches the background sweeper.
func (s *Store) Start(ctx context.Context) {
	s.sweeper.Start(ctx)
}

// Stop halts the background sweeper. It is safe to call more than once.
func (s *Store) Stop() {
	s.sweeper.Stop()
}

// Close stops the sweeper and closes the database, dropping every session.
func (s *Store) Close() error {
	s.Stop()
	return s.db.Close()
}

// CreateSession persists a copy of session under a new ID.
func (s *Store) CreateSession(ctx context.Context, session *models.SharedSession) error {
	id := uuid.New().String()
	now := s.now().UnixMilli()

	stored := session.Clone()
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Attributions = []models.ItemAttribution{}
	if stored.People == nil {
		stored.People = []models.Person{}
	}

	receipt, people, attributions, err := encodeSession(stored)
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO sessions (id, receipt, people, attributions, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			id, receipt, people, attributions, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return s.updateGauge(ctx, tx)
	})
	if err != nil {
		return err
	}

	session.ID = id
	session.CreatedAt = now
	session.UpdatedAt = now
	session.Attributions = stored.Attributions
	session.People = stored.People
	s.metrics.SessionCreated()
	return nil
}

// GetSession retrieves a session, evicting it if expired.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.SharedSession, error) {
	var session *models.SharedSession
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		session, err = s.live(ctx, tx, sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// PatchSession replaces the patched fields. Last writer wins.
func (s *Store) PatchSession(ctx context.Context, sessionID string, patch models.SessionPatch) (*models.SharedSession, error) {
	var session *models.SharedSession
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		session, err = s.live(ctx, tx, sessionID)
		if err != nil {
			return err
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

		_, people, attributions, err := encodeSession(session)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE sessions SET people = ?, attributions = ?, updated_at = ? WHERE id = ?",
			people, attributions, session.UpdatedAt, sessionID,
		)
		if err != nil {
			return fmt.Errorf("failed to update session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.live(ctx, tx, sessionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return s.updateGauge(ctx, tx)
	})
}

// Sweep deletes every expired session and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var evicted int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE created_at < ?", s.cutoff())
		if err != nil {
			return fmt.Errorf("failed to delete expired sessions: %w", err)
		}
		if evicted, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to count expired sessions: %w", err)
		}
		return s.updateGauge(ctx, tx)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.SessionsExpired(int(evicted))
	return int(evicted), nil
}

// Count returns the number of stored sessions, including expired ones not
// yet evicted.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// live loads a session inside tx, deleting it if expired.
func (s *Store) live(ctx context.Context, tx *sql.Tx, sessionID string) (*models.SharedSession, error) {
	var receipt, people, attributions string
	session := &models.SharedSession{ID: sessionID}

	err := tx.QueryRowContext(ctx,
		"SELECT receipt, people, attributions, created_at, updated_at FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&receipt, &people, &attributions, &session.CreatedAt, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if session.CreatedAt < s.cutoff() {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
			return nil, fmt.Errorf("failed to evict session: %w", err)
		}
		s.metrics.SessionsExpired(1)
		if err := s.updateGauge(ctx, tx); err != nil {
			return nil, err
		}
		return nil, storage.ErrSessionNotFound
	}

	if err := json.Unmarshal([]byte(receipt), &session.Receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	if err := json.Unmarshal([]byte(people), &session.People); err != nil {
		return nil, fmt.Errorf("failed to decode people: %w", err)
	}
	if err := json.Unmarshal([]byte(attributions), &session.Attributions); err != nil {
		return nil, fmt.Errorf("failed to decode attributions: %w", err)
	}
	return session, nil
}

// cutoff is the creation time, in Unix milliseconds, before which a
// session has outlived its TTL.
func (s *Store) cutoff() int64 {
	return s.now().Add(-s.ttl).UnixMilli()
}

func (s *Store) updateGauge(ctx context.Context, tx *sql.Tx) error {
	if s.metrics == nil {
		return nil
	}
	var n int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	s.metrics.SetActiveSessions(n)
	return nil
}

// withTx runs fn in a transaction. The transaction also commits when fn
// reports ErrSessionNotFound, so lazy evictions stick.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fnErr := fn(tx)
	if fnErr != nil && !errors.Is(fnErr, storage.ErrSessionNotFound) {
		return fnErr
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return fnErr
}

func encodeSession(session *models.SharedSession) (receipt, people, attributions string, err error) {
	r, err := json.Marshal(session.Receipt)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode receipt: %w", err)
	}
	p, err := json.Marshal(session.People)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode people: %w", err)
	}
	a, err := json.Marshal(session.Attributions)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode attributions: %w", err)
	}
	return string(r), string(p), string(a), nil
}
