// Package message provides a volatile in-memory implementation of the
// session message store consumed by the runner's persistence polling and the
// controller's preview rendering.
package message

import (
	"context"
	"sync"

	"github.com/hupe1980/delegatemesh/core"
)

// InMemoryStore is a volatile core.MessageStore implementation keeping
// per-session ordered histories in a process local map. It is safe for
// concurrent access; Messages returns a defensive copy so callers can never
// mutate internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]core.Message
}

// Compile-time interface assertion.
var _ core.MessageStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory message store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string][]core.Message)}
}

// Append adds a message to the session's history, creating the session lazily.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msg)
	return nil
}

// Messages returns a copy of the session's ordered history. Unknown sessions
// yield an empty slice.
func (s *InMemoryStore) Messages(_ context.Context, sessionID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]core.Message, len(s.sessions[sessionID]))
	copy(msgs, s.sessions[sessionID])
	return msgs, nil
}
