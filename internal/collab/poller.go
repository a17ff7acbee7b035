package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmynk/receiptsplit/internal/client"
)

// DefaultInterval is how often a joined session is re-fetched.
const DefaultInterval = 2 * time.Second

// RefreshFunc fetches and applies the authoritative state of session id.
type RefreshFunc func(ctx context.Context, id string) error

// Poller calls a RefreshFunc for one session on a fixed interval.
//
// The loop exits on Stop, or by itself when a refresh reports
// client.ErrSessionNotFound, in which case OnGone is called.
type Poller struct {
	refresh  RefreshFunc
	interval time.Duration

	// OnGone is called from the polling goroutine after the loop has
	// stopped itself because the session no longer exists.
	OnGone func(id string, err error)

	// OnError is called from the polling goroutine for other refresh
	// failures. Polling continues.
	OnError func(id string, err error)

	wake chan struct{}

	mu      sync.Mutex
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	visible bool
}

// NewPoller creates a stopped poller. A non-positive interval means
// DefaultInterval.
func NewPoller(refresh RefreshFunc, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		refresh:  refresh,
		interval: interval,
		wake:     make(chan struct{}, 1),
		visible:  true,
	}
}

// Start begins polling session id. It is a no-op while already running.
func (p *Poller) Start(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return
	}

	select {
	case <-p.wake:
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.id, p.cancel, p.done = id, cancel, done
	go p.loop(ctx, id, done)
}

// Stop cancels polling and waits for the loop to exit. It is idempotent
// and must not be called from OnGone or OnError.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.id, p.cancel, p.done = "", nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// StopSession stops polling only if the loop belongs to session id. A
// caller that learns session id is gone must not stop a newer session.
func (p *Poller) StopSession(id string) {
	p.mu.Lock()
	if p.done == nil || p.id != id {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.id, p.cancel, p.done = "", nil, nil
	p.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done != nil
}

// SessionID returns the session being polled, or "".
func (p *Poller) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// SetVisible pauses ticks while hidden. Becoming visible again triggers one
// immediate refresh.
func (p *Poller) SetVisible(visible bool) {
	p.mu.Lock()
	wasVisible := p.visible
	p.visible = visible
	running := p.done != nil
	p.mu.Unlock()

	if visible && !wasVisible && running {
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

func (p *Poller) isVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Poller) loop(ctx context.Context, id string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.isVisible() {
				continue
			}
		case <-p.wake:
		}

		err := p.refresh(ctx, id)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, client.ErrSessionNotFound):
			p.detach(done)
			if p.OnGone != nil {
				p.OnGone(id, err)
			}
			return
		default:
			if p.OnError != nil {
				p.OnError(id, err)
			}
		}
	}
}

// detach clears the running state if it still belongs to the loop that
// owns done, so Start may be called again.
func (p *Poller) detach(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done {
		p.cancel()
		p.id, p.cancel, p.done = "", nil, nil
	}
}
