// Package registry provides the process-wide delegation registry: a volatile,
// concurrency-safe map from delegation id to delegation record. All mutation
// of a record's generation-sensitive fields goes through the Update funnel so
// that "read generation, compare, write settled" can never interleave with
// another writer's increment.
package registry

import (
	"sort"
	"sync"

	"github.com/hupe1980/delegatemesh/core"
)

// InMemoryRegistry is a volatile core.Registry implementation storing records
// in a process local map guarded by a single RWMutex. Reads hand out
// snapshots so callers can never mutate a live record outside the lock.
type InMemoryRegistry struct {
	mu          sync.RWMutex
	delegations map[string]*core.Delegation
}

// Compile-time interface assertion.
var _ core.Registry = (*InMemoryRegistry)(nil)

// NewInMemoryRegistry constructs an empty in-memory registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{delegations: make(map[string]*core.Delegation)}
}

// Put inserts or replaces a record.
func (r *InMemoryRegistry) Put(d *core.Delegation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delegations[d.ID] = d
}

// PutIfNoActive inserts d unless the delegator already has an unsettled
// delegation to the same delegate. Check and insert share the write lock, so
// concurrent callers racing on the same (delegator, delegate) pair serialize
// here and at most one insert wins.
func (r *InMemoryRegistry) PutIfNoActive(d *core.Delegation) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.delegations {
		if existing.DelegatorID == d.DelegatorID && existing.DelegateID == d.DelegateID && !existing.Settled {
			return existing.ID, false
		}
	}
	r.delegations[d.ID] = d
	return d.ID, true
}

// Get returns a snapshot of the record, if present.
func (r *InMemoryRegistry) Get(id string) (core.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.delegations[id]
	if !ok {
		return core.Snapshot{}, false
	}
	return d.Snapshot(), true
}

// AllFor returns snapshots of every record owned by delegatorID, oldest first.
func (r *InMemoryRegistry) AllFor(delegatorID string) []core.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snaps := make([]core.Snapshot, 0, len(r.delegations))
	for _, d := range r.delegations {
		if d.DelegatorID == delegatorID {
			snaps = append(snaps, d.Snapshot())
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].StartedAt.Equal(snaps[j].StartedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].StartedAt.Before(snaps[j].StartedAt)
	})
	return snaps
}

// Delete removes a record. Deleting an absent id is a no-op.
func (r *InMemoryRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.delegations, id)
}

// Update runs fn against the live record under the write lock and reports
// whether the record existed. fn must not block; cancellation handles may be
// invoked from inside fn because context.CancelFunc never blocks.
func (r *InMemoryRegistry) Update(id string, fn func(d *core.Delegation)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.delegations[id]
	if !ok {
		return false
	}
	fn(d)
	return true
}
