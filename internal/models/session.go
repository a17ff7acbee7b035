package models

// SharedSession is a server-held snapshot of a receipt split that several
// clients converge on by polling. The server store owns the canonical copy.
type SharedSession struct {
	// ID is the unique identifier for the session (UUID format).
	ID string `json:"id"`

	// Receipt is fixed when the session is created.
	Receipt Receipt `json:"receipt"`

	People       []Person          `json:"people"`
	Attributions []ItemAttribution `json:"attributions"`

	// CreatedAt and UpdatedAt are Unix timestamps in milliseconds.
	// Expiry is measured from CreatedAt.
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Clone returns a deep copy of the session.
func (s *SharedSession) Clone() *SharedSession {
	if s == nil {
		return nil
	}
	return &SharedSession{
		ID:           s.ID,
		Receipt:      s.Receipt.Clone(),
		People:       ClonePeople(s.People),
		Attributions: CloneAttributions(s.Attributions),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// SessionPatch replaces only the fields that are non-nil. A pointer to an
// empty slice clears the field; a nil pointer leaves it untouched.
type SessionPatch struct {
	Attributions *[]ItemAttribution `json:"attributions,omitempty"`
	People       *[]Person          `json:"people,omitempty"`
}

// CreateSessionRequest is the body of POST /sessions.
type CreateSessionRequest struct {
	Receipt *Receipt `json:"receipt"`
	People  []Person `json:"people"`
}

// CreateSessionResponse is returned by POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
	ShareURL  string `json:"shareUrl"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error string `json:"error"`
}
