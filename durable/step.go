package durable

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/observability"
	"github.com/tailored-agentic-units/durable-kernel/retry"
)

// Semantics selects a Step's at-least-once vs at-most-once replay behavior.
type Semantics int

const (
	// AtLeastOncePerRetry re-executes the step body from START if the
	// runtime crashed after START but before a terminal update. Default.
	AtLeastOncePerRetry Semantics = iota
	// AtMostOncePerRetry raises StepInterruptedError on replay instead of
	// re-running the body when the cached status is STARTED.
	AtMostOncePerRetry
)

// StepOptions configures a single Step call.
type StepOptions struct {
	Semantics Semantics
	Retry     retry.Policy // nil uses the Context's runtime default policy
}

// StepOption mutates StepOptions; functional-options constructor, matching
// kernel.Kernel's Option pattern.
type StepOption func(*StepOptions)

// WithSemantics overrides the default AtLeastOncePerRetry behavior.
func WithSemantics(s Semantics) StepOption {
	return func(o *StepOptions) { o.Semantics = s }
}

// WithRetryPolicy overrides the Context's runtime default retry policy for
// this Step.
func WithRetryPolicy(p retry.Policy) StepOption {
	return func(o *StepOptions) { o.Retry = p }
}

// StepFuture is the handle returned by Step; Get blocks until the step
// reaches a terminal status.
type StepFuture[T any] struct {
	ctx *Context
	id  string

	resolved chan struct{}
	value    T
	err      error
}

// Step issues a durable Step operation: a user-supplied computation with
// retry and at-least/at-most-once semantics.
func Step[T any](goCtx context.Context, c *Context, name string, fn func(goCtx context.Context) (T, error), opts ...StepOption) *StepFuture[T] {
	options := StepOptions{Semantics: AtLeastOncePerRetry, Retry: c.runtime.retryDflt}
	for _, opt := range opts {
		opt(&options)
	}

	id := c.mintID()
	future := &StepFuture[T]{ctx: c, id: id, resolved: make(chan struct{})}

	if err := c.runtime.store.ValidateIdentity(id, checkpoint.KindStep, name, c.parentID); err != nil {
		future.fail(&NonDeterministicError{OperationID: id, Detail: err.Error()})
		return future
	}

	cached := c.lookupAndMaybeLeaveReplay(id)

	if cached != nil && cached.Status.Terminal() {
		future.resolveFromTerminal(goCtx, cached)
		return future
	}

	if cached != nil && cached.Status == checkpoint.StatusStarted {
		if options.Semantics == AtMostOncePerRetry {
			future.fail(&StepInterruptedError{OperationID: id})
			return future
		}
		// AT_LEAST_ONCE: fall through and re-execute from START.
	}

	attempt := 0
	if cached != nil {
		attempt = cached.Attempt
	}

	c.runtime.tracker.Register(id, activity.KindStep)
	c.emit(goCtx, observability.EventOperationStart, observability.LevelVerbose, map[string]any{"id": id, "kind": "STEP", "name": name})
	c.runtime.batcher.Submit(checkpoint.OperationUpdate{
		ID: id, ParentID: c.parentID, Kind: checkpoint.KindStep, Name: name, Action: checkpoint.ActionStart,
	}, c.runtime.cfg.Batcher.FlushDelay)

	go runStepAttempt(goCtx, c, future, name, fn, options, attempt)

	return future
}

func runStepAttempt[T any](goCtx context.Context, c *Context, future *StepFuture[T], name string, fn func(context.Context) (T, error), options StepOptions, attempt int) {
	value, err := fn(goCtx)
	if err == nil {
		payload, serr := c.runtime.codec.Serialize(goCtx, value)
		if serr != nil {
			completeDeregister(c, future.id)
			future.fail(fmt.Errorf("serialize step %s result: %w", future.id, serr))
			return
		}

		// Deregister only once the completion callback has actually run:
		// Submit's real work happens later on the batcher's pump goroutine,
		// and the active set must not empty until the terminal checkpoint
		// response has arrived and resolved the future a waiter blocks on.
		c.runtime.completion.Attach(future.id, func(result completion.Result) {
			op, _ := result.(*checkpoint.Operation)
			future.resolveFromTerminal(goCtx, op)
			completeDeregister(c, future.id)
		})
		c.emit(goCtx, observability.EventOperationSucceed, observability.LevelVerbose, map[string]any{"id": future.id})
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: future.id, ParentID: c.parentID, Kind: checkpoint.KindStep, Name: name, Action: checkpoint.ActionSucceed, Payload: payload,
		}, c.runtime.cfg.Batcher.FlushDelay)
		return
	}

	policy := options.Retry
	if policy == nil {
		policy = retry.NoRetry()
	}
	decision := policy.Decide(err, attempt)

	if !decision.Retry {
		rec := errorRecordFor(err)
		c.runtime.completion.Attach(future.id, func(result completion.Result) {
			op, _ := result.(*checkpoint.Operation)
			future.resolveFromTerminal(goCtx, op)
			completeDeregister(c, future.id)
		})
		c.emit(goCtx, observability.EventOperationFail, observability.LevelWarning, map[string]any{"id": future.id, "error": err.Error()})
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: future.id, ParentID: c.parentID, Kind: checkpoint.KindStep, Name: name, Action: checkpoint.ActionFail, Error: rec,
		}, c.runtime.cfg.Batcher.FlushDelay)
		return
	}

	nextSchedule := time.Now().Add(decision.Delay)
	c.emit(goCtx, observability.EventOperationRetry, observability.LevelVerbose, map[string]any{"id": future.id, "attempt": attempt, "delay": decision.Delay.String()})
	c.runtime.batcher.Submit(checkpoint.OperationUpdate{
		ID: future.id, ParentID: c.parentID, Kind: checkpoint.KindStep, Name: name, Action: checkpoint.ActionRetry, NextScheduleTimestamp: &nextSchedule,
	}, c.runtime.cfg.Batcher.FlushDelay)

	if err := c.runtime.tracker.Deregister(future.id); errors.Is(err, activity.ErrSuspendRequested) {
		// Suspension wins: the next invocation redelivers and replays from
		// the checkpointed PENDING/READY transition. Abandon this attempt.
		return
	}

	// Other activities remain alive locally, so suspension isn't imminent;
	// since the delay is already known from the policy decision, schedule
	// the next attempt directly rather than waiting for the polling loop to
	// observe the backend's own READY transition.
	time.AfterFunc(decision.Delay, func() {
		c.runtime.tracker.Register(future.id, activity.KindStep)
		runStepAttempt(goCtx, c, future, name, fn, options, attempt+1)
	})
}

func completeDeregister(c *Context, id string) {
	c.runtime.tracker.Deregister(id)
}

func errorRecordFor(err error) *checkpoint.ErrorPayload {
	return &checkpoint.ErrorPayload{
		ErrorType:    fmt.Sprintf("%T", err),
		ErrorMessage: err.Error(),
	}
}

func (f *StepFuture[T]) resolveFromTerminal(goCtx context.Context, op *checkpoint.Operation) {
	if op == nil {
		f.fail(&IllegalOperationError{Detail: "nil terminal operation for " + f.id})
		return
	}
	switch op.Status {
	case checkpoint.StatusSucceeded:
		var value T
		if err := f.ctx.runtime.codec.Deserialize(goCtx, op.Result, &value); err != nil {
			f.fail(fmt.Errorf("deserialize step %s result: %w", f.id, err))
			return
		}
		f.value = value
		f.err = nil
		close(f.resolved)
	case checkpoint.StatusFailed:
		f.fail(&StepFailedError{OperationID: f.id, Err: errorFromPayload(op.Error)})
	default:
		f.fail(&IllegalOperationError{Detail: fmt.Sprintf("step %s reached unexpected terminal status %s", f.id, op.Status)})
	}
}

func (f *StepFuture[T]) fail(err error) {
	f.err = err
	close(f.resolved)
}

func errorFromPayload(p *checkpoint.ErrorPayload) error {
	if p == nil {
		return errors.New("step failed with no error payload")
	}
	if p.ErrorMessage == "" {
		return errors.New(p.ErrorType)
	}
	return fmt.Errorf("%s: %s", p.ErrorType, p.ErrorMessage)
}

// Get blocks until the step reaches a terminal status, deregistering the
// calling activity while waiting (which may fire suspension) and
// re-registering once the completion slot fires.
func (f *StepFuture[T]) Get(goCtx context.Context) (T, error) {
	blockOnFuture(f.ctx.runtime, f.resolved)
	return f.value, f.err
}
