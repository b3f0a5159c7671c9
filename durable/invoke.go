package durable

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// InvokeOptions configures a chained Invoke call.
type InvokeOptions struct {
	TenantID string
	Timeout  time.Duration
}

// InvokeFuture is the handle returned by Invoke. Unlike Step, the work
// happens out-of-process (another durable function, possibly on another
// worker): Invoke only registers an activity and waits on the completion
// registry for a terminal checkpoint response to arrive, whether via the
// in-process polling loop or an unsolicited backend push.
type InvokeFuture struct {
	ctx      *Context
	id       string
	resolved chan struct{}
	value    string
	err      error
}

// Invoke starts a chained call to functionName with the given payload,
// resolved out-of-process and observed through the completion registry.
func Invoke(goCtx context.Context, c *Context, name, functionName, payload string, opts InvokeOptions) *InvokeFuture {
	id := c.mintID()
	future := &InvokeFuture{ctx: c, id: id, resolved: make(chan struct{})}

	if err := c.runtime.store.ValidateIdentity(id, checkpoint.KindInvoke, name, c.parentID); err != nil {
		future.fail(&NonDeterministicError{OperationID: id, Detail: err.Error()})
		return future
	}

	cached := c.lookupAndMaybeLeaveReplay(id)
	if cached != nil && cached.Status.Terminal() {
		future.resolveFromTerminal(cached)
		return future
	}

	if cached == nil {
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: id, ParentID: c.parentID, Kind: checkpoint.KindInvoke, Name: name, Action: checkpoint.ActionStart,
			InvokeOptions: &checkpoint.ChainedInvokeOptions{
				FunctionName: functionName,
				Payload:      payload,
				TimeoutSecs:  int64(opts.Timeout.Seconds()),
				TenantID:     opts.TenantID,
			},
		}, c.runtime.cfg.Batcher.FlushDelay)
	}
	c.emit(goCtx, observability.EventOperationStart, observability.LevelVerbose, map[string]any{"id": id, "kind": "INVOKE", "name": name, "functionName": functionName})

	// Registering and immediately deregistering marks issuing the call as
	// the local work (same as a Step's attempt finishing): resolution
	// happens out-of-process, so this activity must not hold the tracker
	// open while Get waits on it, or an execution with nothing else in
	// flight would never suspend.
	c.runtime.tracker.Register(id, activity.KindInvoke)
	c.runtime.completion.Attach(id, func(result completion.Result) {
		op, _ := result.(*checkpoint.Operation)
		future.resolveFromTerminal(op)
	})
	c.runtime.tracker.Deregister(id)

	return future
}

func (f *InvokeFuture) resolveFromTerminal(op *checkpoint.Operation) {
	if op == nil {
		f.fail(&IllegalOperationError{Detail: "nil terminal operation for " + f.id})
		return
	}
	switch op.Status {
	case checkpoint.StatusSucceeded:
		f.value = op.Result
		f.err = nil
	case checkpoint.StatusFailed:
		f.err = &InvokeFailedError{OperationID: f.id, Err: errorFromPayload(op.Error)}
	case checkpoint.StatusTimedOut:
		f.err = &TimedOutError{OperationID: f.id}
	case checkpoint.StatusCancelled:
		f.err = &CancelledError{OperationID: f.id}
	case checkpoint.StatusStopped:
		f.err = &StoppedError{OperationID: f.id}
	default:
		f.err = &IllegalOperationError{Detail: "invoke " + f.id + " reached unexpected terminal status " + string(op.Status)}
	}
	close(f.resolved)
}

func (f *InvokeFuture) fail(err error) {
	f.err = err
	close(f.resolved)
}

// Get blocks until the invoke reaches a terminal status and returns its raw
// (still-serialized) result payload for the caller to decode.
func (f *InvokeFuture) Get(goCtx context.Context) (string, error) {
	blockOnFuture(f.ctx.runtime, f.resolved)
	return f.value, f.err
}
