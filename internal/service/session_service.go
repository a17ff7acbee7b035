package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/receiptsplit/internal/events"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

const (
	DefaultShareURLPrefix = "/split-receipt/items?session="
	DefaultSubjectPrefix  = "receiptsplit.sessions"

	publishTimeout = 2 * time.Second
)

// SessionService serves the shared session API.
type SessionService struct {
	store          storage.SessionStore
	publisher      events.Publisher
	subjectPrefix  string
	shareURLPrefix string
	logger         *slog.Logger
}

// SessionOption configures a SessionService.
type SessionOption func(*SessionService)

// WithPublisher announces session changes on subjects under prefix.
func WithPublisher(p events.Publisher, prefix string) SessionOption {
	return func(s *SessionService) {
		s.publisher = p
		if prefix != "" {
			s.subjectPrefix = prefix
		}
	}
}

// WithShareURLPrefix sets the string the session ID is appended to in
// shareUrl.
func WithShareURLPrefix(prefix string) SessionOption {
	return func(s *SessionService) { s.shareURLPrefix = prefix }
}

// WithSessionLogger sets the service logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *SessionService) { s.logger = logger }
}

// NewSessionService creates a SessionService with the given storage backend.
func NewSessionService(store storage.SessionStore, opts ...SessionOption) *SessionService {
	s := &SessionService{
		store:          store,
		publisher:      events.NoopPublisher{},
		subjectPrefix:  DefaultSubjectPrefix,
		shareURLPrefix: DefaultShareURLPrefix,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionService) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", s.CreateSession)
	r.Get("/sessions/{id}", s.GetSession)
	r.Patch("/sessions/{id}", s.PatchSession)
	r.Delete("/sessions/{id}", s.DeleteSession)
}

func (s *SessionService) log(r *http.Request) *slog.Logger {
	return s.logger.With("request_id", chimw.GetReqID(r.Context()))
}

// CreateSession stores the posted receipt and people under a new session ID.
func (s *SessionService) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.log(r).Warn("CreateSession: invalid body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Receipt == nil || len(req.People) == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: receipt and people")
		return
	}
	if err := validatePeople(req.People); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := &models.SharedSession{
		Receipt: *req.Receipt,
		People:  req.People,
	}
	if session.Receipt.Items == nil {
		session.Receipt.Items = []models.LineItem{}
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.log(r).Error("CreateSession: failed to store session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	s.log(r).Info("Session created", "session_id", session.ID, "items", len(session.Receipt.Items), "people", len(session.People))
	s.publish(r.Context(), events.SessionCreated, session.ID, session.UpdatedAt)

	writeJSON(w, http.StatusCreated, models.CreateSessionResponse{
		SessionID: session.ID,
		ShareURL:  s.shareURLPrefix + session.ID,
	})
}

// GetSession returns the full session snapshot.
func (s *SessionService) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// PatchSession replaces the attributions and/or people of a session.
// A patch that fails validation leaves the session untouched.
func (s *SessionService) PatchSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var patch models.SessionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.log(r).Warn("PatchSession: invalid body", "session_id", session.ID, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Attributions != nil {
		if err := validateAttributions(*patch.Attributions, len(session.Receipt.Items)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if patch.People != nil {
		if err := validatePeople(*patch.People); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	updated, err := s.store.PatchSession(r.Context(), session.ID, patch)
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.log(r).Error("PatchSession: failed to patch session", "session_id", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to update session")
		return
	}

	s.log(r).Debug("Session updated", "session_id", updated.ID, "updated_at", updated.UpdatedAt)
	s.publish(r.Context(), events.SessionUpdated, updated.ID, updated.UpdatedAt)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteSession removes a session.
func (s *SessionService) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.store.DeleteSession(r.Context(), id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		s.log(r).Error("DeleteSession: failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	s.log(r).Info("Session deleted", "session_id", id)
	s.publish(r.Context(), events.SessionDeleted, id, time.Now().UnixMilli())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// lookup fetches the session named by the {id} URL parameter and writes
// the error response itself when it cannot.
func (s *SessionService) lookup(w http.ResponseWriter, r *http.Request) (*models.SharedSession, bool) {
	return lookupSession(w, r, s.store, s.log(r))
}

func lookupSession(w http.ResponseWriter, r *http.Request, store storage.SessionStore, log *slog.Logger) (*models.SharedSession, bool) {
	id := chi.URLParam(r, "id")
	session, err := store.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if err != nil {
		log.Error("Failed to get session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return session, true
}

// publish announces a session change. Failures are logged, never returned.
func (s *SessionService) publish(ctx context.Context, eventType, sessionID string, updatedAt int64) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := events.SessionEvent{Type: eventType, SessionID: sessionID, UpdatedAt: updatedAt}
	if err := events.PublishSessionEvent(ctx, s.publisher, s.subjectPrefix, event); err != nil {
		s.logger.Warn("Failed to publish session event", "session_id", sessionID, "type", eventType, "error", err)
	}
}
