// Package controller implements the delegation state machine: the five
// operations (start, observe, continue, stop, list) atop the registry and
// the background runner, enforcing the generation and cancellation
// invariants and pruning settled records past the retention window.
package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/delegatemesh/core"
	"github.com/hupe1980/delegatemesh/logging"
	"github.com/hupe1980/delegatemesh/preview"
	"github.com/hupe1980/delegatemesh/resolver"
)

// Launcher abstracts the background runner so tests can intercept launches.
// *runner.Runner satisfies it.
type Launcher interface {
	Launch(delegationID, task string) error
}

// SleepFunc mirrors runner.SleepFunc for the observe wait loop.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options holds configuration overrides passed to New().
type Options struct {
	// ObserveWaitCeiling is the hard upper bound on observe's waitSeconds.
	ObserveWaitCeiling time.Duration
	// ObservePollInterval is the pause between settle checks while waiting.
	ObservePollInterval time.Duration
	// Retention is how long settled delegations remain listable before the
	// list pass prunes them.
	Retention time.Duration
	// PreviewMaxChars bounds response previews.
	PreviewMaxChars int
	// TaskSummaryChars bounds the task text in list summaries.
	TaskSummaryChars int
	// Sleep overrides the observe wait mechanism.
	Sleep SleepFunc
	// Now overrides the clock.
	Now func() time.Time
	// Logger receives operation events.
	Logger logging.Logger
}

// Controller coordinates the delegation lifecycle. Public methods are safe
// for concurrent use; all shared state lives in the registry.
type Controller struct {
	registry  core.Registry
	directory core.WorkflowDirectory
	profiles  core.AgentProfileStore
	messages  core.MessageStore
	launcher  Launcher

	observeWaitCeiling  time.Duration
	observePollInterval time.Duration
	retention           time.Duration
	previewMaxChars     int
	taskSummaryChars    int
	sleep               SleepFunc
	now                 func() time.Time
	logger              logging.Logger
}

// New constructs a Controller with optional overrides.
func New(
	registry core.Registry,
	directory core.WorkflowDirectory,
	profiles core.AgentProfileStore,
	messages core.MessageStore,
	launcher Launcher,
	optFns ...func(o *Options),
) *Controller {
	opts := Options{
		ObserveWaitCeiling:  30 * time.Second,
		ObservePollInterval: 200 * time.Millisecond,
		Retention:           10 * time.Minute,
		PreviewMaxChars:     preview.DefaultMaxChars,
		TaskSummaryChars:    100,
		Sleep:               sleepContext,
		Now:                 time.Now,
		Logger:              logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Controller{
		registry:            registry,
		directory:           directory,
		profiles:            profiles,
		messages:            messages,
		launcher:            launcher,
		observeWaitCeiling:  opts.ObserveWaitCeiling,
		observePollInterval: opts.ObservePollInterval,
		retention:           opts.Retention,
		previewMaxChars:     opts.PreviewMaxChars,
		taskSummaryChars:    opts.TaskSummaryChars,
		sleep:               opts.Sleep,
		now:                 opts.Now,
		logger:              opts.Logger,
	}
}

// DuplicateDelegationError rejects a start against a delegate that already
// has an unsettled delegation from the same delegator. ExistingID lets the
// caller observe or continue the existing delegation instead.
type DuplicateDelegationError struct {
	DelegateName string
	ExistingID   string
}

func (e *DuplicateDelegationError) Error() string {
	return fmt.Sprintf("a delegation to %q is already running (id %s); observe or continue it instead of starting a new one", e.DelegateName, e.ExistingID)
}

// StartInput carries the start operation's parameters.
type StartInput struct {
	DelegatorID string
	AgentID     string
	AgentName   string
	Task        string
}

// StartResult acknowledges a launched delegation. Start returns immediately;
// completion is reported through observe/list.
type StartResult struct {
	DelegationID    string         `json:"delegationId"`
	SessionID       string         `json:"sessionId"`
	DelegateAgentID string         `json:"delegateAgentId"`
	DelegateAgent   string         `json:"delegateAgent"`
	Delegations     []core.Summary `json:"delegations"`
}

// Start resolves the delegate, rejects duplicates, creates the delegation
// record with a fresh delegate session and launches the first execution.
func (c *Controller) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	if strings.TrimSpace(in.Task) == "" {
		return nil, fmt.Errorf("task must not be empty")
	}

	candidates, err := resolver.BuildCandidates(ctx, c.directory, c.profiles, in.DelegatorID)
	if err != nil {
		return nil, err
	}

	delegate, err := resolver.Resolve(candidates, resolver.Selection{AgentID: in.AgentID, AgentName: in.AgentName})
	if err != nil {
		return nil, err
	}

	d := &core.Delegation{
		ID:           core.NewID(),
		DelegatorID:  in.DelegatorID,
		DelegateID:   delegate.AgentID,
		DelegateName: delegate.AgentName,
		SessionID:    core.NewID(),
		Task:         in.Task,
		StartedAt:    c.now(),
	}

	// Check-and-insert is a single registry critical section; a concurrent
	// start racing on the same delegate loses here, not after both inserted.
	existingID, inserted := c.registry.PutIfNoActive(d)
	if !inserted {
		return nil, &DuplicateDelegationError{DelegateName: delegate.AgentName, ExistingID: existingID}
	}

	if err := c.launcher.Launch(d.ID, in.Task); err != nil {
		c.registry.Delete(d.ID)
		return nil, fmt.Errorf("failed to launch delegation: %w", err)
	}

	c.logger.Info("delegation started delegation_id=%s delegator=%s delegate=%s", d.ID, in.DelegatorID, delegate.AgentName)

	return &StartResult{
		DelegationID:    d.ID,
		SessionID:       d.SessionID,
		DelegateAgentID: delegate.AgentID,
		DelegateAgent:   delegate.AgentName,
		Delegations:     c.summaries(in.DelegatorID),
	}, nil
}

// ObserveResult reports the delegation's current state plus the best-known
// response preview.
type ObserveResult struct {
	DelegationID    string         `json:"delegationId"`
	Running         bool           `json:"running"`
	Error           string         `json:"error,omitempty"`
	ResponsePreview string         `json:"responsePreview,omitempty"`
	Truncated       bool           `json:"truncated,omitempty"`
	Delegations     []core.Summary `json:"delegations"`
}

// Observe reads the delegation's state, optionally waiting up to waitSeconds
// for it to settle. The wait bounds only this caller; the execution keeps
// running in the background if the wait expires first. waitSeconds beyond
// the configured ceiling is rejected outright rather than clamped so callers
// cannot accidentally request unbounded blocking.
func (c *Controller) Observe(ctx context.Context, delegationID string, waitSeconds int) (*ObserveResult, error) {
	ceiling := int(c.observeWaitCeiling / time.Second)
	if waitSeconds < 0 || waitSeconds > ceiling {
		return nil, fmt.Errorf("waitSeconds must be between 0 and %d, got %d", ceiling, waitSeconds)
	}

	snap, ok := c.registry.Get(delegationID)
	if !ok {
		return nil, fmt.Errorf("delegation %s not found", delegationID)
	}

	if waitSeconds > 0 && !snap.Settled {
		deadline := c.now().Add(time.Duration(waitSeconds) * time.Second)
		for !snap.Settled && c.now().Before(deadline) {
			if err := c.sleep(ctx, c.observePollInterval); err != nil {
				break
			}
			if snap, ok = c.registry.Get(delegationID); !ok {
				return nil, fmt.Errorf("delegation %s not found", delegationID)
			}
		}
	}

	previewText, truncated := c.responsePreview(ctx, snap.SessionID)

	return &ObserveResult{
		DelegationID:    snap.ID,
		Running:         !snap.Settled,
		Error:           snap.Err,
		ResponsePreview: previewText,
		Truncated:       truncated,
		Delegations:     c.summaries(snap.DelegatorID),
	}, nil
}

// ContinueResult acknowledges a relaunched delegation. ResponsePreview shows
// the delegate's best-known reply from before the follow-up.
type ContinueResult struct {
	DelegationID    string         `json:"delegationId"`
	DelegateAgent   string         `json:"delegateAgent"`
	ResponsePreview string         `json:"responsePreview,omitempty"`
	Truncated       bool           `json:"truncated,omitempty"`
	Delegations     []core.Summary `json:"delegations"`
}

// Continue sends a follow-up message to the delegate in its existing
// session. The runner cancels the in-flight execution, bumps the generation
// and launches a new one; the superseded execution's completion is a no-op.
// Continuing a settled delegation restarts the conversation.
func (c *Controller) Continue(ctx context.Context, delegationID, message string) (*ContinueResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("message must not be empty")
	}

	snap, ok := c.registry.Get(delegationID)
	if !ok {
		return nil, fmt.Errorf("delegation %s not found", delegationID)
	}

	previewText, truncated := c.responsePreview(ctx, snap.SessionID)

	if err := c.launcher.Launch(delegationID, message); err != nil {
		return nil, fmt.Errorf("failed to relaunch delegation: %w", err)
	}

	c.logger.Info("delegation continued delegation_id=%s delegate=%s", delegationID, snap.DelegateName)

	return &ContinueResult{
		DelegationID:    delegationID,
		DelegateAgent:   snap.DelegateName,
		ResponsePreview: previewText,
		Truncated:       truncated,
		Delegations:     c.summaries(snap.DelegatorID),
	}, nil
}

// StopResult acknowledges a canceled delegation.
type StopResult struct {
	DelegationID string         `json:"delegationId"`
	Stopped      bool           `json:"stopped"`
	Delegations  []core.Summary `json:"delegations"`
}

// Stop cancels the delegation's in-flight execution and marks it settled.
// Cancellation is a normal terminal state: the error field stays unset, so a
// stopped delegation never looks like a fault on observe.
func (c *Controller) Stop(ctx context.Context, delegationID string) (*StopResult, error) {
	snap, ok := c.registry.Get(delegationID)
	if !ok {
		return nil, fmt.Errorf("delegation %s not found", delegationID)
	}

	c.registry.Update(delegationID, func(d *core.Delegation) {
		if d.Cancel != nil {
			d.Cancel()
			d.Cancel = nil
		}
		d.Settled = true
	})

	c.logger.Info("delegation stopped delegation_id=%s delegate=%s", delegationID, snap.DelegateName)

	return &StopResult{
		DelegationID: delegationID,
		Stopped:      true,
		Delegations:  c.summaries(snap.DelegatorID),
	}, nil
}

// ListResult enumerates the delegator's delegations.
type ListResult struct {
	Delegations []core.Summary `json:"delegations"`
}

// List returns compact summaries of the delegator's delegations, pruning any
// settled record older than the retention window on the way.
func (c *Controller) List(_ context.Context, delegatorID string) (*ListResult, error) {
	return &ListResult{Delegations: c.summaries(delegatorID)}, nil
}

// Candidates lists the delegates the delegator may start work with.
func (c *Controller) Candidates(ctx context.Context, delegatorID string) ([]resolver.Candidate, error) {
	return resolver.BuildCandidates(ctx, c.directory, c.profiles, delegatorID)
}

// summaries builds the per-delegator summary embedded in every result and
// opportunistically prunes expired settled records. Pruning happens only
// here; the runner never removes records itself, so a final observe shortly
// after completion still succeeds.
func (c *Controller) summaries(delegatorID string) []core.Summary {
	now := c.now()

	snaps := c.registry.AllFor(delegatorID)
	out := make([]core.Summary, 0, len(snaps))
	for _, s := range snaps {
		if s.Settled && now.Sub(s.StartedAt) > c.retention {
			c.registry.Delete(s.ID)
			c.logger.Debug("pruned settled delegation delegation_id=%s age=%s", s.ID, now.Sub(s.StartedAt))
			continue
		}

		task, _ := preview.Truncate(s.Task, c.taskSummaryChars)
		out = append(out, core.Summary{
			DelegationID:    s.ID,
			SessionID:       s.SessionID,
			DelegateAgentID: s.DelegateID,
			DelegateAgent:   s.DelegateName,
			Task:            task,
			Running:         !s.Settled,
			ElapsedMs:       now.Sub(s.StartedAt).Milliseconds(),
		})
	}
	return out
}

// responsePreview fetches the delegate's latest assistant reply and truncates
// it for display. Missing content is not an error; the preview is empty.
func (c *Controller) responsePreview(ctx context.Context, sessionID string) (string, bool) {
	msgs, err := c.messages.Messages(ctx, sessionID)
	if err != nil {
		c.logger.Warn("failed to read session messages session_id=%s error=%v", sessionID, err)
		return "", false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == core.RoleAssistant {
			return preview.Truncate(msgs[i].Content, c.previewMaxChars)
		}
	}
	return "", false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
