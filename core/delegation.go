package core

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delegation is the registry-owned record of one delegated sub-task. The
// identity fields (ID, DelegatorID, DelegateID, DelegateName, SessionID,
// StartedAt) are immutable after Start; the execution fields (Task,
// ExecutionID, Cancel, Settled, Err) are mutated only inside the registry's
// Update funnel so that generation checks and writes are atomic with respect
// to other writers of the same record.
type Delegation struct {
	// ID uniquely identifies the delegation. Assigned at creation.
	ID string
	// DelegatorID is the id of the agent that started the delegation.
	DelegatorID string
	// DelegateID and DelegateName identify the chosen delegate.
	DelegateID   string
	DelegateName string
	// SessionID is the delegate's own conversation session, created once at
	// start and reused across continues.
	SessionID string
	// Task is the current task or follow-up text. Replaced on continue.
	Task string
	// StartedAt feeds elapsed-time reporting and retention pruning.
	StartedAt time.Time
	// ExecutionID is the generation counter. Only the execution launched with
	// the record's current ExecutionID may settle it; completions from
	// superseded executions must be no-ops.
	ExecutionID int
	// Cancel aborts the in-flight execution. Replaced (after invoking the
	// previous one) on every continue, invoked by stop.
	Cancel context.CancelFunc
	// Settled is false while an execution is in flight and true once it has
	// finished, whether by success, failure or cancellation.
	Settled bool
	// Err holds the failure message of the newest execution. Never set on
	// cancellation.
	Err string
}

// Snapshot returns a read-only copy of the record without the cancellation
// handle. Callers must hold whatever lock guards the record.
func (d *Delegation) Snapshot() Snapshot {
	return Snapshot{
		ID:           d.ID,
		DelegatorID:  d.DelegatorID,
		DelegateID:   d.DelegateID,
		DelegateName: d.DelegateName,
		SessionID:    d.SessionID,
		Task:         d.Task,
		StartedAt:    d.StartedAt,
		ExecutionID:  d.ExecutionID,
		Settled:      d.Settled,
		Err:          d.Err,
	}
}

// Snapshot is an immutable view of a Delegation handed out by registry reads.
// It deliberately omits the cancellation handle: cancellation is invoked
// through the registry's Update funnel, never on a stale copy.
type Snapshot struct {
	ID           string
	DelegatorID  string
	DelegateID   string
	DelegateName string
	SessionID    string
	Task         string
	StartedAt    time.Time
	ExecutionID  int
	Settled      bool
	Err          string
}

// Summary is the compact per-delegation view embedded in every operation
// result so callers always see the full set of concurrent delegations.
type Summary struct {
	DelegationID    string `json:"delegationId"`
	SessionID       string `json:"sessionId"`
	DelegateAgentID string `json:"delegateAgentId"`
	DelegateAgent   string `json:"delegateAgent"`
	Task            string `json:"task"`
	Running         bool   `json:"running"`
	ElapsedMs       int64  `json:"elapsedMs"`
}

// Registry is the process-wide map of delegation records. Implementations
// must be safe for concurrent use by multiple in-flight background executions
// and multiple controller calls; no method may block on I/O.
type Registry interface {
	// Put inserts or replaces a record.
	Put(d *Delegation)

	// PutIfNoActive inserts d unless its delegator already has an unsettled
	// delegation to the same delegate. The lookup and the insert happen under
	// one write lock so two concurrent starts can never both pass the check.
	// On conflict it returns the existing delegation's id and inserted=false.
	PutIfNoActive(d *Delegation) (existingID string, inserted bool)

	// Get returns a snapshot of the record, if present.
	Get(id string) (Snapshot, bool)

	// AllFor returns snapshots of every record owned by delegatorID, ordered
	// by start time (oldest first).
	AllFor(delegatorID string) []Snapshot

	// Delete removes a record. Deleting an absent id is a no-op.
	Delete(id string)

	// Update runs fn against the live record under the registry's write lock
	// and reports whether the record existed. All mutation of the
	// generation-sensitive fields (ExecutionID, Cancel, Settled, Err) must go
	// through here so check-and-set sequences cannot interleave.
	Update(id string, fn func(d *Delegation)) bool
}

// NewID generates a unique identifier for delegations, sessions and messages.
func NewID() string { return uuid.NewString() }
