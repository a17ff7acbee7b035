// Package collab keeps a client's working copy of a receipt split in sync
// with a shared session on the server.
//
// Local changes are applied optimistically and pushed immediately. A
// background Poller overwrites people and attributions with the server copy
// while a session is joined. Concurrent pushes from several clients are
// last-writer-wins.
package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/receiptsplit/internal/client"
	"github.com/mmynk/receiptsplit/internal/ledger"
	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/validation"
)

var (
	ErrNoSession     = errors.New("not in a shared session")
	ErrSessionActive = errors.New("receipt cannot change while in a shared session")
)

// SessionAPI is the subset of the session API a Workspace needs.
type SessionAPI interface {
	CreateSession(ctx context.Context, receipt models.Receipt, people []models.Person) (*models.CreateSessionResponse, error)
	GetSession(ctx context.Context, id string) (*models.SharedSession, error)
	PatchSession(ctx context.Context, id string, patch models.SessionPatch) (*models.SharedSession, error)
}

var _ SessionAPI = (*client.Client)(nil)

// Workspace is one client's view of a receipt split.
type Workspace struct {
	api     SessionAPI
	poller  *Poller
	onError func(error)
	logger  *slog.Logger

	mu             sync.Mutex
	ledger         *ledger.Ledger
	sessionID      string
	shareURL       string
	lastSync       time.Time
	pollingEnabled bool
}

// Option configures a Workspace.
type Option func(*options)

type options struct {
	interval time.Duration
	onError  func(error)
	logger   *slog.Logger
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithOnError receives push failures, polling failures and session loss.
// It may be called from the polling goroutine.
func WithOnError(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// NewWorkspace creates an empty workspace that syncs through api.
// Polling is enabled by default but only runs while a session is set.
func NewWorkspace(api SessionAPI, opts ...Option) *Workspace {
	o := options{interval: DefaultInterval, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	w := &Workspace{
		api:            api,
		onError:        o.onError,
		logger:         o.logger,
		ledger:         ledger.New(),
		pollingEnabled: true,
	}
	w.poller = NewPoller(w.refresh, o.interval)
	w.poller.OnGone = func(id string, err error) { w.sessionGone(id, err) }
	w.poller.OnError = func(id string, err error) {
		w.logger.Warn("Session refresh failed", "session_id", id, "error", err)
		w.report(err)
	}
	return w
}

// SetReceipt loads a reviewed receipt, clearing attributions.
func (w *Workspace) SetReceipt(receipt models.Receipt) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != "" {
		return ErrSessionActive
	}
	w.ledger.SetReceipt(receipt)
	return nil
}

// ApplyFix applies a validation issue's suggested correction to the
// receipt. It reports whether anything changed.
func (w *Workspace) ApplyFix(issue models.ValidationIssue) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != "" {
		return false, ErrSessionActive
	}
	receipt, ok := w.ledger.Receipt()
	if !ok {
		return false, ledger.ErrNoReceipt
	}
	fixed, changed := validation.ApplyFix(receipt, issue)
	if !changed {
		return false, nil
	}
	return true, w.ledger.UpdateReceipt(fixed)
}

func (w *Workspace) AddPerson(ctx context.Context, name string) (models.Person, error) {
	w.mu.Lock()
	person := w.ledger.AddPerson(name)
	id, patch := w.sessionID, w.snapshotLocked(true, false)
	w.mu.Unlock()

	return person, w.push(ctx, id, patch)
}

func (w *Workspace) RenamePerson(ctx context.Context, personID, name string) error {
	w.mu.Lock()
	if err := w.ledger.RenamePerson(personID, name); err != nil {
		w.mu.Unlock()
		return err
	}
	id, patch := w.sessionID, w.snapshotLocked(true, false)
	w.mu.Unlock()

	return w.push(ctx, id, patch)
}

// RemovePerson drops a person and removes them from every item they share.
// Both lists are pushed in a single patch.
func (w *Workspace) RemovePerson(ctx context.Context, personID string) error {
	w.mu.Lock()
	if err := w.ledger.RemovePerson(personID); err != nil {
		w.mu.Unlock()
		return err
	}
	id, patch := w.sessionID, w.snapshotLocked(true, true)
	w.mu.Unlock()

	return w.push(ctx, id, patch)
}

// AttributeItem sets who shares an item.
func (w *Workspace) AttributeItem(ctx context.Context, itemIndex int, personIDs []string) error {
	w.mu.Lock()
	if err := w.ledger.Attribute(itemIndex, personIDs); err != nil {
		w.mu.Unlock()
		return err
	}
	id, patch := w.sessionID, w.snapshotLocked(false, true)
	w.mu.Unlock()

	return w.push(ctx, id, patch)
}

// Share creates a server session from the local receipt and roster, then
// starts polling it.
func (w *Workspace) Share(ctx context.Context) (*models.CreateSessionResponse, error) {
	w.mu.Lock()
	receipt, ok := w.ledger.Receipt()
	people := w.ledger.People()
	attributions := w.ledger.Attributions()
	w.mu.Unlock()

	if !ok {
		return nil, ledger.ErrNoReceipt
	}

	created, err := w.api.CreateSession(ctx, receipt, people)
	if err != nil {
		return nil, err
	}

	// New sessions start unattributed; carry over local work.
	if len(attributions) > 0 {
		if _, err := w.api.PatchSession(ctx, created.SessionID, models.SessionPatch{Attributions: &attributions}); err != nil {
			return nil, fmt.Errorf("failed to upload attributions: %w", err)
		}
	}

	w.poller.Stop()
	w.mu.Lock()
	w.sessionID, w.shareURL = created.SessionID, created.ShareURL
	w.lastSync = time.Now()
	polling := w.pollingEnabled
	w.mu.Unlock()

	w.logger.Info("Session shared", "session_id", created.SessionID)
	if polling {
		w.poller.Start(created.SessionID)
	}
	return created, nil
}

// Join adopts a server session wholesale, discarding local state, and
// starts polling it.
//
// A failed fetch leaves any current session, and its polling, untouched.
func (w *Workspace) Join(ctx context.Context, id string) error {
	session, err := w.api.GetSession(ctx, id)
	if err != nil {
		return err
	}

	w.poller.Stop()

	w.mu.Lock()
	w.ledger.Adopt(session)
	w.sessionID, w.shareURL = session.ID, ""
	w.lastSync = time.Now()
	polling := w.pollingEnabled
	w.mu.Unlock()

	w.logger.Info("Session joined", "session_id", id, "people", len(session.People))
	if polling {
		w.poller.Start(id)
	}
	return nil
}

// Leave stops polling and forgets the session. Local state is kept.
func (w *Workspace) Leave() {
	w.mu.Lock()
	w.sessionID, w.shareURL = "", ""
	w.mu.Unlock()

	w.poller.Stop()
}

// Close stops background work.
func (w *Workspace) Close() {
	w.Leave()
}

// Refresh fetches the session once. A session that no longer exists is left.
func (w *Workspace) Refresh(ctx context.Context) error {
	id := w.SessionID()
	if id == "" {
		return ErrNoSession
	}

	err := w.refresh(ctx, id)
	if errors.Is(err, client.ErrSessionNotFound) {
		w.poller.StopSession(id)
		w.sessionGone(id, err)
	}
	return err
}

// SetVisible pauses polling while the user cannot see the split.
func (w *Workspace) SetVisible(visible bool) {
	w.poller.SetVisible(visible)
}

// SetPollingEnabled starts or stops background refreshes.
func (w *Workspace) SetPollingEnabled(enabled bool) {
	w.mu.Lock()
	w.pollingEnabled = enabled
	id := w.sessionID
	w.mu.Unlock()

	if enabled && id != "" {
		w.poller.Start(id)
		return
	}
	w.poller.Stop()
}

func (w *Workspace) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// ShareURL is set only on the workspace that created the session.
func (w *Workspace) ShareURL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shareURL
}

// LastSync is when the local state last matched the server.
func (w *Workspace) LastSync() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync
}

func (w *Workspace) Polling() bool {
	return w.poller.Running()
}

func (w *Workspace) Receipt() (models.Receipt, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.Receipt()
}

func (w *Workspace) People() []models.Person {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.People()
}

func (w *Workspace) Attributions() []models.ItemAttribution {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.Attributions()
}

func (w *Workspace) PersonIDs(itemIndex int) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.PersonIDs(itemIndex)
}

func (w *Workspace) Unattributed() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.Unattributed()
}

func (w *Workspace) Issues() []models.ValidationIssue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.Issues()
}

func (w *Workspace) ReadyForSplit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.ReadyForSplit()
}

func (w *Workspace) Splits() []models.PersonSplit {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ledger.Splits()
}

// refresh fetches session id and applies it if id is still current.
func (w *Workspace) refresh(ctx context.Context, id string) error {
	session, err := w.api.GetSession(ctx, id)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != id {
		return nil
	}
	w.ledger.Reconcile(session.People, session.Attributions)
	w.lastSync = time.Now()
	return nil
}

// push sends a patch to session id. Local state is never rolled back.
func (w *Workspace) push(ctx context.Context, id string, patch models.SessionPatch) error {
	if id == "" {
		return nil
	}

	if _, err := w.api.PatchSession(ctx, id, patch); err != nil {
		w.logger.Warn("Failed to push session update", "session_id", id, "error", err)
		if errors.Is(err, client.ErrSessionNotFound) {
			w.poller.StopSession(id)
			w.sessionGone(id, err)
			return err
		}
		w.report(err)
		return err
	}
	return nil
}

// sessionGone forgets session id if it is still current and reports err.
// Polling of id must already be stopped.
func (w *Workspace) sessionGone(id string, err error) {
	w.mu.Lock()
	current := w.sessionID == id
	if current {
		w.sessionID, w.shareURL = "", ""
	}
	w.mu.Unlock()

	if current {
		w.logger.Info("Session no longer available", "session_id", id)
		w.report(err)
	}
}

func (w *Workspace) report(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// snapshotLocked builds a patch from the current ledger. The caller must
// hold w.mu.
func (w *Workspace) snapshotLocked(people, attributions bool) models.SessionPatch {
	var patch models.SessionPatch
	if people {
		p := w.ledger.People()
		if p == nil {
			p = []models.Person{}
		}
		patch.People = &p
	}
	if attributions {
		a := w.ledger.Attributions()
		if a == nil {
			a = []models.ItemAttribution{}
		}
		patch.Attributions = &a
	}
	return patch
}
