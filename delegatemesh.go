// Package delegatemesh provides a high-level façade over the delegation
// controller and background runner, enabling a delegator agent to hand tasks
// to delegate agents as cancelable background executions. Most applications
// interact with this package by:
//  1. Creating a DelegateMesh via New() with a workflow directory, profile
//     store and turn endpoint (optionally overriding the in-memory registry
//     and message store)
//  2. Exposing Tools() to the delegator's tool-calling surface, or calling
//     the operations (Start, Observe, Continue, Stop, List) directly
//
// The façade delegates lifecycle management to controller.Controller and
// execution to runner.Runner. All defaults are safe for local development and
// testing; production deployments typically supply a durable message store
// and a structured logger.
package delegatemesh

import (
	"context"

	"github.com/hupe1980/delegatemesh/config"
	"github.com/hupe1980/delegatemesh/controller"
	"github.com/hupe1980/delegatemesh/core"
	"github.com/hupe1980/delegatemesh/logging"
	"github.com/hupe1980/delegatemesh/message"
	"github.com/hupe1980/delegatemesh/registry"
	"github.com/hupe1980/delegatemesh/resolver"
	"github.com/hupe1980/delegatemesh/runner"
	"github.com/hupe1980/delegatemesh/tool"
)

// Options configures the DelegateMesh instance.
type Options struct {
	// Config supplies the timing and truncation knobs (defaults to
	// config.Default() if zero values are left in place).
	Config config.Config

	// Stores (default to in-memory implementations if not provided)
	Registry     core.Registry
	MessageStore core.MessageStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// DelegateMesh is the high-level façade aggregating the controller, runner
// and their backing stores.
type DelegateMesh struct {
	opts       Options
	controller *controller.Controller
}

// New creates a new DelegateMesh instance with optional overrides. Any unset
// store is initialized with an in-memory implementation.
func New(
	directory core.WorkflowDirectory,
	profiles core.AgentProfileStore,
	turn core.TurnEndpoint,
	optFns ...func(o *Options),
) *DelegateMesh {
	opts := Options{
		Config:       config.Default(),
		Registry:     registry.NewInMemoryRegistry(),
		MessageStore: message.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	run := runner.New(opts.Registry, turn, opts.MessageStore, func(o *runner.Options) {
		o.PollAttempts = opts.Config.PollAttempts
		o.PollDelay = opts.Config.PollDelay()
		o.Logger = opts.Logger
	})

	ctrl := controller.New(opts.Registry, directory, profiles, opts.MessageStore, run, func(o *controller.Options) {
		o.ObserveWaitCeiling = opts.Config.ObserveWaitCeiling()
		o.ObservePollInterval = opts.Config.ObservePollInterval()
		o.Retention = opts.Config.Retention()
		o.PreviewMaxChars = opts.Config.PreviewMaxChars
		o.TaskSummaryChars = opts.Config.TaskSummaryChars
		o.Logger = opts.Logger
	})

	return &DelegateMesh{opts: opts, controller: ctrl}
}

// Controller exposes the underlying controller for advanced wiring.
func (m *DelegateMesh) Controller() *controller.Controller { return m.controller }

// Tools returns the five delegation tools ready for registration with a
// tool-calling delegator.
func (m *DelegateMesh) Tools() []tool.Tool { return tool.DelegationTools(m.controller) }

// Start launches a delegation of task to the delegate selected by agentID
// and/or agentName on behalf of delegatorID.
func (m *DelegateMesh) Start(ctx context.Context, delegatorID, agentID, agentName, task string) (*controller.StartResult, error) {
	return m.controller.Start(ctx, controller.StartInput{
		DelegatorID: delegatorID,
		AgentID:     agentID,
		AgentName:   agentName,
		Task:        task,
	})
}

// Observe reports the delegation's state, optionally waiting up to
// waitSeconds for it to settle.
func (m *DelegateMesh) Observe(ctx context.Context, delegationID string, waitSeconds int) (*controller.ObserveResult, error) {
	return m.controller.Observe(ctx, delegationID, waitSeconds)
}

// Continue sends a follow-up message to the delegate in its existing session.
func (m *DelegateMesh) Continue(ctx context.Context, delegationID, msg string) (*controller.ContinueResult, error) {
	return m.controller.Continue(ctx, delegationID, msg)
}

// Stop cancels the delegation's in-flight execution.
func (m *DelegateMesh) Stop(ctx context.Context, delegationID string) (*controller.StopResult, error) {
	return m.controller.Stop(ctx, delegationID)
}

// List enumerates the delegator's delegations.
func (m *DelegateMesh) List(ctx context.Context, delegatorID string) (*controller.ListResult, error) {
	return m.controller.List(ctx, delegatorID)
}

// Candidates lists the delegates available to delegatorID.
func (m *DelegateMesh) Candidates(ctx context.Context, delegatorID string) ([]resolver.Candidate, error) {
	return m.controller.Candidates(ctx, delegatorID)
}
