package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepFunc evicts expired sessions and reports how many it removed.
type SweepFunc func(ctx context.Context) (int, error)

// Sweeper runs a SweepFunc on a fixed interval between Start and Stop.
type Sweeper struct {
	interval time.Duration
	sweep    SweepFunc
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(interval time.Duration, sweep SweepFunc, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{interval: interval, sweep: sweep, logger: logger}
}

// Start launches the sweep loop. Calling Start while running is a no-op.
// The loop stops when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop halts the loop and waits for it to exit. It is safe to call more
// than once.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sweep(ctx)
			if err != nil {
				s.logger.Warn("Failed to evict expired sessions", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("Expired sessions evicted", "count", n)
			}
		}
	}
}
