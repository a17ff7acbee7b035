// Package events publishes shared session changes to interested listeners.
package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session event types, also used as the last subject token.
const (
	SessionCreated = "created"
	SessionUpdated = "updated"
	SessionDeleted = "deleted"
)

// Publisher sends raw messages to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, msg []byte) error
	Close() error
}

// SessionEvent is the JSON payload published on every session change.
type SessionEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Subject returns the subject an event of this type is published on.
func Subject(prefix, eventType string) string {
	return fmt.Sprintf("%s.%s", prefix, eventType)
}

// PublishSessionEvent encodes and publishes a session event under prefix.
func PublishSessionEvent(ctx context.Context, p Publisher, prefix string, event SessionEvent) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode session event: %w", err)
	}
	if err := p.Publish(ctx, Subject(prefix, event.Type), msg); err != nil {
		return fmt.Errorf("failed to publish session event: %w", err)
	}
	return nil
}

// NoopPublisher discards every message.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, msg []byte) error { return nil }

func (NoopPublisher) Close() error { return nil }
