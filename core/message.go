package core

import (
	"context"
	"time"
)

// Conversation roles persisted by the message store.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation entry in a delegate session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageStore persists per-session conversation history. The runner polls
// Messages after a turn's stream ends because persistence of the assistant
// reply happens asynchronously in the underlying chat pipeline.
type MessageStore interface {
	// Append adds a message to the end of the session's history, creating the
	// session lazily.
	Append(ctx context.Context, sessionID string, msg Message) error

	// Messages returns the session's ordered history. An unknown session
	// yields an empty slice, not an error.
	Messages(ctx context.Context, sessionID string) ([]Message, error)
}
