// Package storage provides abstractions for shared session storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/mmynk/receiptsplit/internal/models"
)

const (
	// DefaultTTL is how long a session lives, measured from creation.
	DefaultTTL = 24 * time.Hour

	// DefaultSweepInterval is how often expired sessions are evicted in the
	// background. Reads evict lazily regardless.
	DefaultSweepInterval = time.Hour
)

// ErrSessionNotFound is returned for sessions that never existed, were
// deleted, or have expired.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore defines the interface for shared session operations.
// Every operation is atomic with respect to the others, and values returned
// are copies the caller may keep.
type SessionStore interface {
	// CreateSession stores a new session. The store assigns ID, CreatedAt and
	// UpdatedAt, and starts the session with no attributions.
	CreateSession(ctx context.Context, session *models.SharedSession) error

	// GetSession retrieves a session by its ID.
	// Returns ErrSessionNotFound if absent or expired.
	GetSession(ctx context.Context, sessionID string) (*models.SharedSession, error)

	// PatchSession replaces the fields set in patch and bumps UpdatedAt.
	// Returns ErrSessionNotFound if absent or expired; it never creates a session.
	PatchSession(ctx context.Context, sessionID string, patch models.SessionPatch) (*models.SharedSession, error)

	// DeleteSession removes a session.
	// Returns ErrSessionNotFound if absent or expired.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases any resources held by the store.
	Close() error
}
