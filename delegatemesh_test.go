package delegatemesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/delegatemesh/core"
)

type fakeDirectory struct{}

func (fakeDirectory) WorkflowByAgentID(_ context.Context, _ string) (*core.Workflow, error) {
	return &core.Workflow{ID: "wf1"}, nil
}

func (fakeDirectory) Members(_ context.Context, _ string) ([]core.WorkflowMember, error) {
	return []core.WorkflowMember{
		{AgentID: "orch", Role: "orchestrator"},
		{AgentID: "a1", Role: core.RoleSubagent, Purpose: "Research"},
	}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) Profile(_ context.Context, _ string) (*core.AgentProfile, error) {
	return &core.AgentProfile{DisplayName: "Researcher"}, nil
}

// echoTurn answers every turn instantly and persists the reply.
type echoTurn struct {
	store core.MessageStore
}

func (e *echoTurn) Run(_ context.Context, req core.TurnRequest) (<-chan core.TurnEvent, <-chan error, error) {
	events := make(chan core.TurnEvent, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		reply := "echo: " + req.Messages[0].Content
		events <- core.TurnEvent{Delta: reply}
		_ = e.store.Append(context.Background(), req.SessionID, core.Message{
			Role:      core.RoleAssistant,
			Content:   reply,
			Timestamp: time.Now().UTC(),
		})
	}()

	return events, errs, nil
}

func TestDelegateMesh_EndToEnd(t *testing.T) {
	turn := &echoTurn{}
	mesh := New(fakeDirectory{}, fakeProfiles{}, turn)
	turn.store = mesh.opts.MessageStore

	ctx := context.Background()

	candidates, err := mesh.Candidates(ctx, "orch")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Researcher", candidates[0].AgentName)

	start, err := mesh.Start(ctx, "orch", "", "Researcher", "summarize the findings")
	require.NoError(t, err)
	assert.Equal(t, "a1", start.DelegateAgentID)

	require.Eventually(t, func() bool {
		obs, err := mesh.Observe(ctx, start.DelegationID, 0)
		return err == nil && !obs.Running
	}, 2*time.Second, 5*time.Millisecond)

	obs, err := mesh.Observe(ctx, start.DelegationID, 0)
	require.NoError(t, err)
	assert.Empty(t, obs.Error)
	assert.Equal(t, "echo: summarize the findings", obs.ResponsePreview)

	cont, err := mesh.Continue(ctx, start.DelegationID, "now shorten it")
	require.NoError(t, err)
	assert.Equal(t, "echo: summarize the findings", cont.ResponsePreview)

	require.Eventually(t, func() bool {
		obs, err := mesh.Observe(ctx, start.DelegationID, 0)
		return err == nil && !obs.Running
	}, 2*time.Second, 5*time.Millisecond)

	obs, err = mesh.Observe(ctx, start.DelegationID, 0)
	require.NoError(t, err)
	assert.Equal(t, "echo: now shorten it", obs.ResponsePreview)

	list, err := mesh.List(ctx, "orch")
	require.NoError(t, err)
	require.Len(t, list.Delegations, 1)

	stop, err := mesh.Stop(ctx, start.DelegationID)
	require.NoError(t, err)
	assert.True(t, stop.Stopped)
}

func TestDelegateMesh_ToolSurface(t *testing.T) {
	mesh := New(fakeDirectory{}, fakeProfiles{}, &echoTurn{store: nil})

	tools := mesh.Tools()
	require.Len(t, tools, 5)
	assert.Equal(t, "delegation_start", tools[0].Name())
}
