package durable

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// CallbackOptions configures a durable Callback call.
type CallbackOptions struct {
	// ID is the token an external system presents to resolve this callback.
	// Generated with uuid.NewString if left empty.
	ID               string
	Timeout          time.Duration
	HeartbeatTimeout time.Duration
}

// CallbackFuture is the handle returned by Callback. Resolution arrives
// exclusively through an external caller resolving CallbackOptions.ID
// against the backend; Get only waits on the completion registry.
type CallbackFuture struct {
	ctx        *Context
	id         string
	callbackID string
	resolved   chan struct{}
	value      string
	err        error
}

// Callback issues a durable callback operation that suspends the execution
// until an external actor resolves it out of band.
func Callback(goCtx context.Context, c *Context, name string, opts CallbackOptions) *CallbackFuture {
	id := c.mintID()
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	future := &CallbackFuture{ctx: c, id: id, callbackID: opts.ID, resolved: make(chan struct{})}

	if err := c.runtime.store.ValidateIdentity(id, checkpoint.KindCallback, name, c.parentID); err != nil {
		future.fail(&NonDeterministicError{OperationID: id, Detail: err.Error()})
		return future
	}

	cached := c.lookupAndMaybeLeaveReplay(id)
	if cached != nil && cached.Status.Terminal() {
		future.resolveFromTerminal(cached)
		return future
	}
	if cached != nil && cached.CallbackOptions != nil {
		future.callbackID = cached.CallbackOptions.CallbackID
	}

	if cached == nil {
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: id, ParentID: c.parentID, Kind: checkpoint.KindCallback, Name: name, Action: checkpoint.ActionStart,
			CallbackOptions: &checkpoint.CallbackOptions{
				TimeoutSeconds:          int64(opts.Timeout.Seconds()),
				HeartbeatTimeoutSeconds: int64(opts.HeartbeatTimeout.Seconds()),
				CallbackID:              future.callbackID,
			},
		}, c.runtime.cfg.Batcher.FlushDelay)
	}
	c.emit(goCtx, observability.EventOperationStart, observability.LevelVerbose, map[string]any{"id": id, "kind": "CALLBACK", "name": name, "callbackId": future.callbackID})

	// Registering and immediately deregistering marks issuing the call as
	// the local work (same as a Step's attempt finishing): resolution
	// happens out-of-process, so this activity must not hold the tracker
	// open while Get waits on it, or an execution with nothing else in
	// flight would never suspend.
	c.runtime.tracker.Register(id, activity.KindCallback)
	c.runtime.completion.Attach(id, func(result completion.Result) {
		op, _ := result.(*checkpoint.Operation)
		future.resolveFromTerminal(op)
	})
	c.runtime.tracker.Deregister(id)

	return future
}

// CallbackID returns the token an external system must present to resolve
// this callback.
func (f *CallbackFuture) CallbackID() string { return f.callbackID }

func (f *CallbackFuture) resolveFromTerminal(op *checkpoint.Operation) {
	if op == nil {
		f.fail(&IllegalOperationError{Detail: "nil terminal operation for " + f.id})
		return
	}
	switch op.Status {
	case checkpoint.StatusSucceeded:
		f.value = op.Result
		f.err = nil
	case checkpoint.StatusFailed:
		f.err = &CallbackFailedError{OperationID: f.id, Err: errorFromPayload(op.Error)}
	case checkpoint.StatusTimedOut:
		f.err = &TimedOutError{OperationID: f.id}
	case checkpoint.StatusCancelled:
		f.err = &CancelledError{OperationID: f.id}
	case checkpoint.StatusStopped:
		f.err = &StoppedError{OperationID: f.id}
	default:
		f.err = &IllegalOperationError{Detail: "callback " + f.id + " reached unexpected terminal status " + string(op.Status)}
	}
	close(f.resolved)
}

func (f *CallbackFuture) fail(err error) {
	f.err = err
	close(f.resolved)
}

// Get blocks until the callback is resolved.
func (f *CallbackFuture) Get(goCtx context.Context) (string, error) {
	blockOnFuture(f.ctx.runtime, f.resolved)
	return f.value, f.err
}
