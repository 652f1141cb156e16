package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelegation_Snapshot(t *testing.T) {
	canceled := false

	d := &Delegation{
		ID:           "d1",
		DelegatorID:  "orch",
		DelegateID:   "a1",
		DelegateName: "Researcher",
		SessionID:    "s1",
		Task:         "dig in",
		StartedAt:    time.Now(),
		ExecutionID:  3,
		Cancel:       func() { canceled = true },
		Settled:      true,
		Err:          "boom",
	}

	snap := d.Snapshot()
	assert.Equal(t, d.ID, snap.ID)
	assert.Equal(t, d.DelegatorID, snap.DelegatorID)
	assert.Equal(t, d.SessionID, snap.SessionID)
	assert.Equal(t, d.ExecutionID, snap.ExecutionID)
	assert.Equal(t, d.Settled, snap.Settled)
	assert.Equal(t, d.Err, snap.Err)
	assert.False(t, canceled, "snapshotting must not touch the cancel handle")
}

func TestNewID_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id])
		seen[id] = true
	}
}
