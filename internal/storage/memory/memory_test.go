package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/storage"
)

// fakeClock is a manually advanced clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newSession() *models.SharedSession {
	return &models.SharedSession{
		Receipt: models.Receipt{
			Items: []models.LineItem{
				{Description: "Pizza", TotalPrice: models.Amount(20)},
				{Description: "Beer", TotalPrice: models.Amount(10)},
			},
		},
		People: []models.Person{{ID: "p1", Name: "Alice"}, {ID: "p2", Name: "Bob"}},
	}
}

func attributionsPatch(attrs ...models.ItemAttribution) models.SessionPatch {
	return models.SessionPatch{Attributions: &attrs}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := New(WithClock(clock.Now))
	defer store.Close()

	t.Run("CreateSession assigns ID and timestamps", func(t *testing.T) {
		session := newSession()
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		if session.ID == "" {
			t.Error("Expected session ID to be generated")
		}
		if session.CreatedAt != clock.Now().UnixMilli() || session.UpdatedAt != session.CreatedAt {
			t.Errorf("timestamps = %d/%d", session.CreatedAt, session.UpdatedAt)
		}
		if session.Attributions == nil || len(session.Attributions) != 0 {
			t.Errorf("Expected empty attributions, got %v", session.Attributions)
		}
	})

	t.Run("GetSession returns a copy", func(t *testing.T) {
		session := newSession()
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		got.People[0].Name = "Mallory"

		again, _ := store.GetSession(ctx, session.ID)
		if again.People[0].Name != "Alice" {
			t.Error("mutating a returned session changed the store")
		}
	})

	t.Run("GetSession returns not found for unknown id", func(t *testing.T) {
		if _, err := store.GetSession(ctx, "nonexistent-id"); !errors.Is(err, storage.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("PatchSession replaces only provided fields", func(t *testing.T) {
		session := newSession()
		_ = store.CreateSession(ctx, session)
		clock.Advance(time.Second)

		patched, err := store.PatchSession(ctx, session.ID, attributionsPatch(
			models.ItemAttribution{ItemIndex: 0, PersonIDs: []string{"p1"}},
		))
		if err != nil {
			t.Fatalf("PatchSession failed: %v", err)
		}
		if len(patched.Attributions) != 1 {
			t.Errorf("attributions = %v", patched.Attributions)
		}
		if len(patched.People) != 2 {
			t.Errorf("people should be untouched, got %v", patched.People)
		}
		if patched.UpdatedAt <= patched.CreatedAt {
			t.Errorf("UpdatedAt not bumped: %d <= %d", patched.UpdatedAt, patched.CreatedAt)
		}

		people := []models.Person{{ID: "p1", Name: "Alice"}}
		patched, err = store.PatchSession(ctx, session.ID, models.SessionPatch{People: &people})
		if err != nil {
			t.Fatalf("PatchSession failed: %v", err)
		}
		if len(patched.People) != 1 || len(patched.Attributions) != 1 {
			t.Errorf("unexpected session after people patch: %+v", patched)
		}
	})

	t.Run("PatchSession does not create missing sessions", func(t *testing.T) {
		before := store.Len()
		_, err := store.PatchSession(ctx, "missing", attributionsPatch())
		if !errors.Is(err, storage.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound, got %v", err)
		}
		if store.Len() != before {
			t.Error("patch on missing session created an entry")
		}
	})

	t.Run("last writer wins", func(t *testing.T) {
		session := newSession()
		_ = store.CreateSession(ctx, session)

		_, _ = store.GetSession(ctx, session.ID)
		_, _ = store.PatchSession(ctx, session.ID, attributionsPatch(
			models.ItemAttribution{ItemIndex: 0, PersonIDs: []string{"p1"}},
		))
		_, _ = store.GetSession(ctx, session.ID)
		_, _ = store.PatchSession(ctx, session.ID, attributionsPatch(
			models.ItemAttribution{ItemIndex: 1, PersonIDs: []string{"p2"}},
		))

		got, err := store.GetSession(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetSession failed: %v", err)
		}
		if len(got.Attributions) != 1 || got.Attributions[0].ItemIndex != 1 || got.Attributions[0].PersonIDs[0] != "p2" {
			t.Errorf("expected second patch's data, got %+v", got.Attributions)
		}
	})

	t.Run("DeleteSession", func(t *testing.T) {
		session := newSession()
		_ = store.CreateSession(ctx, session)

		if err := store.DeleteSession(ctx, session.ID); err != nil {
			t.Fatalf("DeleteSession failed: %v", err)
		}
		if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, storage.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound after delete, got %v", err)
		}
		if err := store.DeleteSession(ctx, session.ID); !errors.Is(err, storage.ErrSessionNotFound) {
			t.Errorf("Expected ErrSessionNotFound on second delete, got %v", err)
		}
	})
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := New(WithClock(clock.Now), WithTTL(time.Hour))

	session := newSession()
	_ = store.CreateSession(ctx, session)

	clock.Advance(time.Hour)
	if _, err := store.GetSession(ctx, session.ID); err != nil {
		t.Fatalf("session should live exactly TTL, got %v", err)
	}

	clock.Advance(time.Millisecond)
	if _, err := store.GetSession(ctx, session.ID); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("Expected ErrSessionNotFound after TTL, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expired session not evicted on read, %d left", store.Len())
	}
}

func TestStore_TTLPatchAndDelete(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := New(WithClock(clock.Now), WithTTL(time.Minute))

	a, b := newSession(), newSession()
	_ = store.CreateSession(ctx, a)
	_ = store.CreateSession(ctx, b)
	clock.Advance(2 * time.Minute)

	if _, err := store.PatchSession(ctx, a.ID, attributionsPatch()); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound patching expired session, got %v", err)
	}
	if err := store.DeleteSession(ctx, b.ID); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("Expected ErrSessionNotFound deleting expired session, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected both expired sessions evicted, %d left", store.Len())
	}
}

func TestStore_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := New(WithClock(clock.Now), WithTTL(time.Hour))

	old := newSession()
	_ = store.CreateSession(ctx, old)
	clock.Advance(30 * time.Minute)
	fresh := newSession()
	_ = store.CreateSession(ctx, fresh)
	clock.Advance(31 * time.Minute)

	if n := store.Sweep(); n != 1 {
		t.Errorf("Sweep evicted %d, want 1", n)
	}
	if _, err := store.GetSession(ctx, fresh.ID); err != nil {
		t.Errorf("fresh session evicted: %v", err)
	}
}

func TestStore_BackgroundSweeper(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := New(WithClock(clock.Now), WithTTL(time.Minute), WithSweepInterval(5*time.Millisecond))

	session := newSession()
	_ = store.CreateSession(ctx, session)
	clock.Advance(2 * time.Minute)

	store.Start(ctx)
	store.Start(ctx) // no-op while running

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background sweeper did not evict expired session")
		}
		time.Sleep(5 * time.Millisecond)
	}

	store.Stop()
	store.Stop() // idempotent
}

func TestStore_IndependentInstances(t *testing.T) {
	ctx := context.Background()
	a, b := New(), New()

	session := newSession()
	_ = a.CreateSession(ctx, session)
	if _, err := b.GetSession(ctx, session.ID); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Error("stores share state")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := New()
	session := newSession()
	_ = store.CreateSession(ctx, session)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = store.PatchSession(ctx, session.ID, attributionsPatch(
				models.ItemAttribution{ItemIndex: i % 2, PersonIDs: []string{"p1", "p2"}},
			))
		}(i)
		go func() {
			defer wg.Done()
			got, err := store.GetSession(ctx, session.ID)
			if err != nil {
				t.Errorf("GetSession failed: %v", err)
				return
			}
			for _, a := range got.Attributions {
				if len(a.PersonIDs) != 2 {
					t.Errorf("observed partial write: %+v", a)
				}
			}
		}()
	}
	wg.Wait()
}
