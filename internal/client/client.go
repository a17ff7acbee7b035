// Package client is an HTTP client for the shared session API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmynk/receiptsplit/internal/models"
)

var (
	// ErrSessionNotFound means the session never existed, was deleted, or
	// has expired. Clients should leave the session when they see it.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRequest means the server rejected the request body.
	ErrInvalidRequest = errors.New("invalid request")
)

const DefaultTimeout = 10 * time.Second

// StatusError is returned for unexpected non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a receipt split server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CreateSession(ctx context.Context, receipt models.Receipt, people []models.Person) (*models.CreateSessionResponse, error) {
	var resp models.CreateSessionResponse
	req := models.CreateSessionRequest{Receipt: &receipt, People: people}
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &resp, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.SharedSession, error) {
	var session models.SharedSession
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &session); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (c *Client) PatchSession(ctx context.Context, id string, patch models.SessionPatch) (*models.SharedSession, error) {
	var session models.SharedSession
	if err := c.do(ctx, http.MethodPatch, sessionPath(id), patch, &session); err != nil {
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return &session, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body models.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, body.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, body.Error)
	default:
		return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
	}
}
