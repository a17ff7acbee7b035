package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/receiptsplit/internal/models"
	"github.com/mmynk/receiptsplit/internal/ocr"
	"github.com/mmynk/receiptsplit/internal/storage/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, msg []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

type testServer struct {
	*httptest.Server
	store     *memory.Store
	publisher *recordingPublisher
}

// setupTestServer creates a test server backed by an in-memory store.
func setupTestServer(t *testing.T, recognizer ocr.Recognizer) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New(memory.WithLogger(logger))
	publisher := &recordingPublisher{}

	opts := []ReceiptOption{WithReceiptLogger(logger)}
	if recognizer != nil {
		opts = append(opts, WithRecognizer(recognizer))
	}

	r := chi.NewRouter()
	NewSessionService(store, WithPublisher(publisher, "test.sessions"), WithSessionLogger(logger)).RegisterRoutes(r)
	NewSplitService(store, logger).RegisterRoutes(r)
	NewReceiptService(opts...).RegisterRoutes(r)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return &testServer{Server: server, store: store, publisher: publisher}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, want, body)
	}
}

func dinnerReceipt() *models.Receipt {
	return &models.Receipt{
		Items: []models.LineItem{
			{Description: "Pizza", TotalPrice: models.Amount(20)},
			{Description: "Salad", TotalPrice: models.Amount(10)},
		},
		Subtotal: models.Amount(30),
		Tax:      models.Amount(3),
		Total:    models.Amount(33),
	}
}

func dinnerPeople() []models.Person {
	return []models.Person{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}}
}

// createSession posts the dinner receipt and returns the new session ID.
func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	resp := s.do(t, http.MethodPost, "/sessions", models.CreateSessionRequest{
		Receipt: dinnerReceipt(),
		People:  dinnerPeople(),
	})
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody[models.CreateSessionResponse](t, resp).SessionID
}
