package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/delegatemesh/core"
	"github.com/hupe1980/delegatemesh/message"
	"github.com/hupe1980/delegatemesh/preview"
	"github.com/hupe1980/delegatemesh/registry"
	"github.com/hupe1980/delegatemesh/resolver"
)

// -------------------- Fakes --------------------

type fakeDirectory struct {
	workflow *core.Workflow
	members  []core.WorkflowMember
}

func (f *fakeDirectory) WorkflowByAgentID(_ context.Context, _ string) (*core.Workflow, error) {
	return f.workflow, nil
}

func (f *fakeDirectory) Members(_ context.Context, _ string) ([]core.WorkflowMember, error) {
	return f.members, nil
}

type fakeProfiles struct {
	profiles map[string]*core.AgentProfile
}

func (f *fakeProfiles) Profile(_ context.Context, agentID string) (*core.AgentProfile, error) {
	return f.profiles[agentID], nil
}

// fakeLauncher records launches and optionally settles the record right away
// or fails the launch.
type fakeLauncher struct {
	reg       core.Registry
	launchErr error
	settle    bool
	settleErr string

	mu       sync.Mutex
	launches []string
}

func (f *fakeLauncher) Launch(delegationID, task string) error {
	if f.launchErr != nil {
		return f.launchErr
	}
	f.mu.Lock()
	f.launches = append(f.launches, task)
	f.mu.Unlock()

	f.reg.Update(delegationID, func(d *core.Delegation) {
		d.ExecutionID++
		d.Settled = false
		d.Err = ""
		d.Task = task
		d.Cancel = func() {}
		if f.settle {
			d.Settled = true
			d.Err = f.settleErr
		}
	})
	return nil
}

func (f *fakeLauncher) launchedTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.launches))
	copy(out, f.launches)
	return out
}

type fixture struct {
	ctrl     *Controller
	reg      *registry.InMemoryRegistry
	store    *message.InMemoryStore
	launcher *fakeLauncher
	now      time.Time
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()

	dir := &fakeDirectory{
		workflow: &core.Workflow{ID: "wf1"},
		members: []core.WorkflowMember{
			{AgentID: "orch", Role: "orchestrator"},
			{AgentID: "a1", Role: core.RoleSubagent, Purpose: "Research"},
			{AgentID: "a2", Role: core.RoleSubagent, Purpose: "Writing"},
		},
	}
	profiles := &fakeProfiles{profiles: map[string]*core.AgentProfile{
		"a1": {DisplayName: "Researcher"},
		"a2": {DisplayName: "Writer"},
	}}

	f := &fixture{
		reg:   registry.NewInMemoryRegistry(),
		store: message.NewInMemoryStore(),
		now:   time.Now(),
	}
	f.launcher = &fakeLauncher{reg: f.reg}

	opts := append([]func(o *Options){func(o *Options) {
		o.Now = func() time.Time { return f.now }
		o.Sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	}}, optFns...)

	f.ctrl = New(f.reg, dir, profiles, f.store, f.launcher, opts...)
	return f
}

func (f *fixture) start(t *testing.T, agentName string) *StartResult {
	t.Helper()
	res, err := f.ctrl.Start(context.Background(), StartInput{
		DelegatorID: "orch",
		AgentName:   agentName,
		Task:        "do the thing",
	})
	require.NoError(t, err)
	return res
}

// -------------------- Start --------------------

func TestController_StartRejectsEmptyTask(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Start(context.Background(), StartInput{DelegatorID: "orch", AgentName: "Researcher"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "task")
}

func TestController_StartLaunchesAndSummarizes(t *testing.T) {
	f := newFixture(t)

	res := f.start(t, "Researcher")
	assert.NotEmpty(t, res.DelegationID)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, "a1", res.DelegateAgentID)
	assert.Equal(t, "Researcher", res.DelegateAgent)

	require.Len(t, res.Delegations, 1)
	s := res.Delegations[0]
	assert.Equal(t, res.DelegationID, s.DelegationID)
	assert.True(t, s.Running)
	assert.GreaterOrEqual(t, s.ElapsedMs, int64(0))

	assert.Equal(t, []string{"do the thing"}, f.launcher.launchedTasks())
}

func TestController_StartRejectsDuplicateDelegate(t *testing.T) {
	f := newFixture(t)

	first := f.start(t, "Researcher")

	_, err := f.ctrl.Start(context.Background(), StartInput{
		DelegatorID: "orch",
		AgentName:   "Researcher",
		Task:        "another thing",
	})
	var dup *DuplicateDelegationError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.DelegationID, dup.ExistingID)
	assert.Equal(t, "Researcher", dup.DelegateName)
}

func TestController_ConcurrentStartsAdmitExactlyOne(t *testing.T) {
	f := newFixture(t)

	const starts = 20
	var wg sync.WaitGroup
	results := make(chan error, starts)
	for i := 0; i < starts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ctrl.Start(context.Background(), StartInput{
				DelegatorID: "orch",
				AgentName:   "Researcher",
				Task:        "do the thing",
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, rejected int
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		var dup *DuplicateDelegationError
		require.ErrorAs(t, err, &dup)
		rejected++
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, starts-1, rejected)
	assert.Len(t, f.reg.AllFor("orch"), 1)
}

func TestController_StartAllowedAfterSettle(t *testing.T) {
	f := newFixture(t)
	f.launcher.settle = true

	f.start(t, "Researcher")
	res := f.start(t, "Researcher")
	assert.NotEmpty(t, res.DelegationID)
}

func TestController_StartToSecondDelegateAllowed(t *testing.T) {
	f := newFixture(t)

	f.start(t, "Researcher")
	res := f.start(t, "Writer")
	assert.Len(t, res.Delegations, 2)
}

func TestController_StartAmbiguousNameListsMatches(t *testing.T) {
	f := newFixture(t)

	// both names contain "r"; resolution by broad partial must fail loudly
	_, err := f.ctrl.Start(context.Background(), StartInput{
		DelegatorID: "orch",
		AgentName:   "r",
		Task:        "do the thing",
	})
	var amb *resolver.AmbiguityError
	require.ErrorAs(t, err, &amb)
	assert.ElementsMatch(t, []string{"a1", "a2"}, amb.AgentIDs)
}

func TestController_StartLaunchFailureRemovesRecord(t *testing.T) {
	f := newFixture(t)
	f.launcher.launchErr = errors.New("no capacity")

	_, err := f.ctrl.Start(context.Background(), StartInput{
		DelegatorID: "orch",
		AgentName:   "Researcher",
		Task:        "do the thing",
	})
	assert.Error(t, err)
	assert.Empty(t, f.reg.AllFor("orch"))
}

// -------------------- Observe --------------------

func TestController_ObserveRejectsWaitBeyondCeiling(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	_, err := f.ctrl.Observe(context.Background(), res.DelegationID, 31)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "waitSeconds")

	_, err = f.ctrl.Observe(context.Background(), res.DelegationID, -1)
	assert.Error(t, err)
}

func TestController_ObserveUnknownDelegation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Observe(context.Background(), "missing", 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestController_ObserveRunningWithPreview(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, res.SessionID, core.Message{Role: core.RoleUser, Content: "do the thing"}))
	require.NoError(t, f.store.Append(ctx, res.SessionID, core.Message{Role: core.RoleAssistant, Content: "working on it"}))

	obs, err := f.ctrl.Observe(ctx, res.DelegationID, 0)
	require.NoError(t, err)
	assert.True(t, obs.Running)
	assert.Empty(t, obs.Error)
	assert.Equal(t, "working on it", obs.ResponsePreview)
	assert.False(t, obs.Truncated)
}

func TestController_ObservePreviewTruncated(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PreviewMaxChars = 40 })
	res := f.start(t, "Researcher")

	ctx := context.Background()
	long := strings.Repeat("x", 200)
	require.NoError(t, f.store.Append(ctx, res.SessionID, core.Message{Role: core.RoleAssistant, Content: long}))

	obs, err := f.ctrl.Observe(ctx, res.DelegationID, 0)
	require.NoError(t, err)
	assert.True(t, obs.Truncated)
	assert.True(t, strings.HasSuffix(obs.ResponsePreview, preview.Marker))
	assert.Equal(t, 40, len([]rune(obs.ResponsePreview)))
}

func TestController_ObserveWaitsForSettle(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	var sleeps int
	f.ctrl.sleep = func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 3 {
			f.reg.Update(res.DelegationID, func(d *core.Delegation) { d.Settled = true })
		}
		return ctx.Err()
	}

	obs, err := f.ctrl.Observe(context.Background(), res.DelegationID, 5)
	require.NoError(t, err)
	assert.False(t, obs.Running)
	assert.Equal(t, 3, sleeps)
}

func TestController_ObserveWaitExpiresWhileRunning(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	// the fake clock jumps past the deadline on first read after the sleep
	f.ctrl.sleep = func(ctx context.Context, _ time.Duration) error {
		f.now = f.now.Add(10 * time.Second)
		return ctx.Err()
	}

	obs, err := f.ctrl.Observe(context.Background(), res.DelegationID, 5)
	require.NoError(t, err)
	assert.True(t, obs.Running, "expired wait reports state, not an error")
}

func TestController_ObserveReportsExecutionError(t *testing.T) {
	f := newFixture(t)
	f.launcher.settle = true
	f.launcher.settleErr = "delegate turn failed: model exploded"
	res := f.start(t, "Researcher")

	obs, err := f.ctrl.Observe(context.Background(), res.DelegationID, 0)
	require.NoError(t, err)
	assert.False(t, obs.Running)
	assert.Contains(t, obs.Error, "model exploded")
}

// -------------------- Continue --------------------

func TestController_ContinueRejectsEmptyMessage(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	_, err := f.ctrl.Continue(context.Background(), res.DelegationID, "   ")
	assert.Error(t, err)
}

func TestController_ContinueUnknownDelegation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Continue(context.Background(), "missing", "more please")
	assert.Error(t, err)
}

func TestController_ContinueRelaunchesWithPriorPreview(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, res.SessionID, core.Message{Role: core.RoleAssistant, Content: "first answer"}))

	cont, err := f.ctrl.Continue(ctx, res.DelegationID, "go deeper")
	require.NoError(t, err)
	assert.Equal(t, "Researcher", cont.DelegateAgent)
	assert.Equal(t, "first answer", cont.ResponsePreview)
	assert.Equal(t, []string{"do the thing", "go deeper"}, f.launcher.launchedTasks())

	snap, _ := f.reg.Get(res.DelegationID)
	assert.Equal(t, "go deeper", snap.Task)
	assert.Equal(t, 2, snap.ExecutionID)
}

func TestController_ContinueAfterSettleRestarts(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")
	f.reg.Update(res.DelegationID, func(d *core.Delegation) { d.Settled = true })

	_, err := f.ctrl.Continue(context.Background(), res.DelegationID, "one more thing")
	require.NoError(t, err)

	snap, _ := f.reg.Get(res.DelegationID)
	assert.False(t, snap.Settled)
}

// -------------------- Stop --------------------

func TestController_StopCancelsAndSettles(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	var canceled bool
	f.reg.Update(res.DelegationID, func(d *core.Delegation) {
		d.Cancel = func() { canceled = true }
	})

	stop, err := f.ctrl.Stop(context.Background(), res.DelegationID)
	require.NoError(t, err)
	assert.True(t, stop.Stopped)
	assert.True(t, canceled)

	// a stopped delegation is settled without an error
	obs, err := f.ctrl.Observe(context.Background(), res.DelegationID, 0)
	require.NoError(t, err)
	assert.False(t, obs.Running)
	assert.Empty(t, obs.Error)
}

func TestController_StopUnknownDelegation(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.Stop(context.Background(), "missing")
	assert.Error(t, err)
}

func TestController_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	res := f.start(t, "Researcher")

	_, err := f.ctrl.Stop(context.Background(), res.DelegationID)
	require.NoError(t, err)
	_, err = f.ctrl.Stop(context.Background(), res.DelegationID)
	require.NoError(t, err)
}

// -------------------- List & retention --------------------

func TestController_ListSummaries(t *testing.T) {
	f := newFixture(t)
	f.start(t, "Researcher")
	f.start(t, "Writer")

	list, err := f.ctrl.List(context.Background(), "orch")
	require.NoError(t, err)
	assert.Len(t, list.Delegations, 2)

	empty, err := f.ctrl.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty.Delegations)
}

func TestController_ListTruncatesTask(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.TaskSummaryChars = 20 })

	_, err := f.ctrl.Start(context.Background(), StartInput{
		DelegatorID: "orch",
		AgentName:   "Researcher",
		Task:        strings.Repeat("task ", 50),
	})
	require.NoError(t, err)

	list, _ := f.ctrl.List(context.Background(), "orch")
	require.Len(t, list.Delegations, 1)
	assert.Equal(t, 20, len([]rune(list.Delegations[0].Task)))
}

func TestController_ListPrunesExpiredSettled(t *testing.T) {
	f := newFixture(t)
	resA := f.start(t, "Researcher")
	f.start(t, "Writer")

	f.reg.Update(resA.DelegationID, func(d *core.Delegation) { d.Settled = true })

	// within retention both remain
	f.now = f.now.Add(5 * time.Minute)
	list, _ := f.ctrl.List(context.Background(), "orch")
	assert.Len(t, list.Delegations, 2)

	// past retention only the settled one disappears
	f.now = f.now.Add(10 * time.Minute)
	list, _ = f.ctrl.List(context.Background(), "orch")
	require.Len(t, list.Delegations, 1)
	assert.True(t, list.Delegations[0].Running)

	_, ok := f.reg.Get(resA.DelegationID)
	assert.False(t, ok)
}

func TestController_RunningNeverPruned(t *testing.T) {
	f := newFixture(t)
	f.start(t, "Researcher")

	f.now = f.now.Add(24 * time.Hour)
	list, _ := f.ctrl.List(context.Background(), "orch")
	assert.Len(t, list.Delegations, 1)
}

// -------------------- Candidates --------------------

func TestController_Candidates(t *testing.T) {
	f := newFixture(t)

	candidates, err := f.ctrl.Candidates(context.Background(), "orch")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Researcher", candidates[0].AgentName)
	assert.Equal(t, "Writer", candidates[1].AgentName)
}
