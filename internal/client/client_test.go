package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/service"
	"github.com/mmynk/receiptsplit/internal/storage/memory"
)

func setupServer(t *testing.T) *Client {
	t.Helper()

	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	service.NewSessionService(store, service.WithSessionLogger(logger)).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return New(server.URL+"/", WithHTTPClient(server.Client()))
}

func testReceipt() models.Receipt {
	return models.Receipt{
		Items: []models.LineItem{
			{Description: "Burger", TotalPrice: models.Amount(12)},
			{Description: "Fries", TotalPrice: models.Amount(4)},
		},
		Subtotal: models.Amount(16),
	}
}

func TestSessionLifecycle(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()
	people := []models.Person{{ID: "p1", Name: "Ana"}, {ID: "p2", Name: "Ben"}}

	created, err := c.CreateSession(ctx, testReceipt(), people)
	require.NoError(t, err)
	assert.NotEmpty(t, created.SessionID)
	assert.Contains(t, created.ShareURL, created.SessionID)

	session, err := c.GetSession(ctx, created.SessionID)
	require.NoError(t, err)
	assert.Equal(t, people, session.People)
	assert.Empty(t, session.Attributions)
	assert.Len(t, session.Receipt.Items, 2)

	attributions := []models.ItemAttribution{{ItemIndex: 1, PersonIDs: []string{"p1", "p2"}}}
	updated, err := c.PatchSession(ctx, created.SessionID, models.SessionPatch{Attributions: &attributions})
	require.NoError(t, err)
	assert.Equal(t, attributions, updated.Attributions)
	assert.Equal(t, people, updated.People)

	require.NoError(t, c.DeleteSession(ctx, created.SessionID))

	_, err = c.GetSession(ctx, created.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestErrors(t *testing.T) {
	c := setupServer(t)
	ctx := context.Background()

	_, err := c.CreateSession(ctx, testReceipt(), nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = c.PatchSession(ctx, "missing", models.SessionPatch{})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	assert.ErrorIs(t, c.DeleteSession(ctx, "missing"), ErrSessionNotFound)

	created, err := c.CreateSession(ctx, testReceipt(), []models.Person{{ID: "p1", Name: "Ana"}})
	require.NoError(t, err)
	bad := []models.ItemAttribution{{ItemIndex: 9, PersonIDs: []string{"p1"}}}
	_, err = c.PatchSession(ctx, created.SessionID, models.SessionPatch{Attributions: &bad})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"Failed to get session"}`))
	}))
	defer server.Close()

	_, err := New(server.URL).GetSession(context.Background(), "abc")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "Failed to get session", statusErr.Message)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
