package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/delegatemesh/core"
	"github.com/hupe1980/delegatemesh/logging"
)

// SleepFunc suspends for d or until ctx is done, returning ctx.Err() in the
// latter case. Injected so poll timing is testable without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options holds configuration overrides passed to New().
type Options struct {
	// PollAttempts bounds the persistence confirmation loop.
	PollAttempts int
	// PollDelay is the pause between persistence poll attempts.
	PollDelay time.Duration
	// Sleep overrides the poll delay mechanism (tests inject an instant one).
	Sleep SleepFunc
	// Logger receives execution lifecycle events.
	Logger logging.Logger
}

// Runner launches delegate turns as cancelable background executions. Each
// launch replaces the record's cancellation handle, bumps the generation and
// spawns a goroutine that invokes the turn endpoint, drains its stream,
// confirms durable persistence by bounded polling and settles the record,
// but only if its generation is still current. Public methods are safe for
// concurrent use.
type Runner struct {
	registry core.Registry
	turn     core.TurnEndpoint
	messages core.MessageStore

	pollAttempts int
	pollDelay    time.Duration
	sleep        SleepFunc
	logger       logging.Logger
}

// New constructs a Runner with optional overrides.
func New(registry core.Registry, turn core.TurnEndpoint, messages core.MessageStore, optFns ...func(o *Options)) *Runner {
	opts := Options{
		PollAttempts: 50,
		PollDelay:    200 * time.Millisecond,
		Sleep:        sleepContext,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		registry:     registry,
		turn:         turn,
		messages:     messages,
		pollAttempts: opts.PollAttempts,
		pollDelay:    opts.PollDelay,
		sleep:        opts.Sleep,
		logger:       opts.Logger,
	}
}

// Launch starts a new background execution for the delegation. Under the
// registry's write lock it cancels the previous execution, increments the
// generation, installs a fresh cancellation handle, clears the settled/error
// state and records the task; the superseded execution's completion becomes a
// no-op through the generation check in settle. Launch returns as soon as the
// goroutine is spawned.
func (r *Runner) Launch(delegationID, task string) error {
	var (
		runCtx    context.Context
		execID    int
		sessionID string
		delegate  string
	)

	ok := r.registry.Update(delegationID, func(d *core.Delegation) {
		if d.Cancel != nil {
			d.Cancel()
		}
		ctx, cancel := context.WithCancel(context.Background())
		d.ExecutionID++
		d.Cancel = cancel
		d.Settled = false
		d.Err = ""
		d.Task = task

		runCtx = ctx
		execID = d.ExecutionID
		sessionID = d.SessionID
		delegate = d.DelegateName
	})
	if !ok {
		return fmt.Errorf("delegation %s not found", delegationID)
	}

	r.logger.Info("execution launched delegation_id=%s session_id=%s delegate=%s generation=%d", delegationID, sessionID, delegate, execID)

	go r.execute(runCtx, delegationID, sessionID, execID, task)

	return nil
}

// execute performs one delegate turn end to end. It never propagates errors
// across the async boundary; every outcome, including a panic, is absorbed
// into the record via settle.
func (r *Runner) execute(ctx context.Context, delegationID, sessionID string, execID int, task string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.settle(delegationID, execID, fmt.Errorf("execution panicked: %v", rec))
		}
	}()

	// Snapshot the history length before the turn so the persistence poll
	// only accepts assistant messages produced by this execution.
	baseline := 0
	if existing, err := r.messages.Messages(ctx, sessionID); err == nil {
		baseline = len(existing)
	}

	req := core.TurnRequest{
		SessionID: sessionID,
		Messages:  []core.Message{{Role: core.RoleUser, Content: task, Timestamp: time.Now().UTC()}},
	}

	events, errs, err := r.turn.Run(ctx, req)
	if err != nil {
		if canceled(ctx, err) {
			r.settle(delegationID, execID, nil)
			return
		}
		r.settle(delegationID, execID, fmt.Errorf("failed to start delegate turn: %w", err))
		return
	}

	streamErr := r.drain(ctx, events, errs)

	if ctx.Err() != nil || canceled(ctx, streamErr) {
		// Intentional cancellation is a normal terminal state, not a failure.
		r.settle(delegationID, execID, nil)
		return
	}
	if streamErr != nil {
		r.settle(delegationID, execID, fmt.Errorf("delegate turn failed: %w", streamErr))
		return
	}

	r.confirmPersisted(ctx, delegationID, sessionID, baseline)
	r.settle(delegationID, execID, nil)
}

// drain consumes the turn stream to completion, returning the first terminal
// error if any. Content is deliberately discarded; the reply is read back
// from the message store once persisted.
func (r *Runner) drain(ctx context.Context, events <-chan core.TurnEvent, errs <-chan error) error {
	var streamErr error
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil && streamErr == nil {
				streamErr = err
			}
		}
	}
	return streamErr
}

// confirmPersisted bridges the gap between "stream closed" and "result
// durably written" by polling the message store until an assistant message
// past the baseline appears. Exhausting the budget is a soft condition: the
// execution still settles without an error, the caller just sees an empty
// preview on observe instead of hanging forever.
func (r *Runner) confirmPersisted(ctx context.Context, delegationID, sessionID string, baseline int) {
	for attempt := 0; attempt < r.pollAttempts; attempt++ {
		msgs, err := r.messages.Messages(ctx, sessionID)
		if err == nil && hasAssistantAfter(msgs, baseline) {
			r.logger.Debug("persistence confirmed delegation_id=%s attempts=%d", delegationID, attempt+1)
			return
		}
		if err := r.sleep(ctx, r.pollDelay); err != nil {
			return
		}
	}
	r.logger.Warn("persistence confirmation exhausted delegation_id=%s session_id=%s attempts=%d", delegationID, sessionID, r.pollAttempts)
}

// settle marks the execution's terminal state on the record. The generation
// check and the writes happen inside one registry update, so a completion
// racing a concurrent relaunch can never clobber the newer execution's state.
func (r *Runner) settle(delegationID string, execID int, execErr error) {
	r.registry.Update(delegationID, func(d *core.Delegation) {
		if d.ExecutionID != execID {
			// Superseded by a continue; the newer execution owns the record.
			return
		}
		d.Settled = true
		if execErr != nil {
			d.Err = execErr.Error()
		}
	})
	if execErr != nil {
		r.logger.Error("execution settled with error delegation_id=%s generation=%d error=%v", delegationID, execID, execErr)
	} else {
		r.logger.Debug("execution settled delegation_id=%s generation=%d", delegationID, execID)
	}
}

func hasAssistantAfter(msgs []core.Message, baseline int) bool {
	for i := baseline; i < len(msgs); i++ {
		if msgs[i].Role == core.RoleAssistant {
			return true
		}
	}
	return false
}

func canceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled)
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
