// Package durable implements the user-facing Context, the five durable
// operation kinds (Step, Wait, Invoke, Callback, ChildContext), the
// top-level Executor race between handler completion and suspension, and
// the in-process polling loop.
package durable

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/codec"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/config"
	"github.com/tailored-agentic-units/durable-kernel/observability"
	"github.com/tailored-agentic-units/durable-kernel/retry"
)

// Context is the user-facing handle that mints operation ids, tracks
// per-context replay state, and exposes the durable operation API. Every
// Context — root or child — owns an independent id counter and replay
// flag.
type Context struct {
	runtime *runtime // shared, process-wide-per-execution collaborators

	prefix      string // "" for root; "C" or "1-2" for a child context
	counter     atomic.Int64
	parentID    *string // the CONTEXT operation id this Context runs under, nil for root
	isReplaying atomic.Bool
}

// runtime bundles the collaborators every Context in an execution shares:
// one OperationStore, one Batcher, one ActivityTracker, one
// CompletionRegistry, plus resolved Codec/RetryPolicy/config. Grounded on
// orchestrate/state.stateGraph's single shared-dependency-bag-per-execution
// shape (NewGraphWithDeps).
type runtime struct {
	store      *checkpoint.Store
	batcher    *checkpoint.Batcher
	tracker    *activity.Tracker
	completion *completion.Registry
	codec      codec.Codec
	retryDflt  retry.Policy
	cfg        config.ExecutorConfig
	observer   observability.Observer
}

// newRootContext constructs the root Context for an execution. isReplaying
// is seeded true iff the store already holds any operation besides the
// root EXECUTION operation.
func newRootContext(rt *runtime, executionID string) *Context {
	c := &Context{runtime: rt}
	c.isReplaying.Store(rt.store.HasAnyExcept(executionID))
	return c
}

// newChildContext constructs the Context for a CONTEXT operation's body.
// childID is the minted id of the CONTEXT operation itself; every
// operation the child issues is prefixed with it.
func newChildContext(rt *runtime, childID string) *Context {
	c := &Context{runtime: rt, prefix: childID, parentID: &childID}
	c.isReplaying.Store(len(rt.store.ChildIDs(childID)) > 0)
	return c
}

// IsReplaying reports whether this context has observed only cached,
// terminal operations so far. Observability call sites gate emission on
// this flag when ExecutorConfig.SuppressReplayLogs is true.
func (c *Context) IsReplaying() bool {
	return c.isReplaying.Load()
}

// InputPayload returns the serialized input the execution was started
// with, read from the root EXECUTION operation. Available from any
// Context, root or child, since they all share one runtime's store.
func (c *Context) InputPayload() string {
	exec := c.runtime.store.Execution()
	if exec == nil || exec.ExecutionDetails == nil {
		return ""
	}
	return exec.ExecutionDetails.InputPayload
}

// mintID returns the next operation id in program order for this context:
// "1", "2", ... for root; "<prefix>-1", "<prefix>-2", ... for a child.
func (c *Context) mintID() string {
	n := c.counter.Add(1)
	if c.prefix == "" {
		return strconv.FormatInt(n, 10)
	}
	return fmt.Sprintf("%s-%d", c.prefix, n)
}

// lookupAndMaybeLeaveReplay consults the OperationStore for id, and clears
// isReplaying (one-way) when the cached operation is missing or
// non-terminal.
func (c *Context) lookupAndMaybeLeaveReplay(id string) *checkpoint.Operation {
	op := c.runtime.store.Get(id)
	if op == nil || !op.Status.Terminal() {
		c.isReplaying.Store(false)
	}
	return op
}

// handlerActivityID is the sentinel activity id representing "the handler
// goroutine is running ordinary Go code," registered for the whole
// lifetime of Executor.Run's invocation of the user handler except while a
// future's Get is blocked. Without it, the tracker's active set would
// transiently empty between any two back-to-back operations (the prior
// one's worker deregisters as soon as its local work finishes, well before
// the handler reaches its next line), firing suspension spuriously.
const handlerActivityID = "__handler__"

// blockOnFuture parks the handler's forward-progress sentinel while
// waiting on resolved, so that an execution with no other activity in
// flight correctly suspends instead of blocking forever on an unresolved
// future in an abandoned goroutine — and restores the sentinel once
// resolved fires so later synchronous handler code continues to count as
// forward progress.
func blockOnFuture(rt *runtime, resolved <-chan struct{}) {
	select {
	case <-resolved:
		return
	default:
	}
	rt.tracker.Deregister(handlerActivityID)
	<-resolved
	rt.tracker.Register(handlerActivityID, activity.KindContext)
}

// emit records an observability event, suppressed during replay when
// ExecutorConfig.SuppressReplayLogs is true.
func (c *Context) emit(ctx context.Context, eventType observability.EventType, level observability.Level, data map[string]any) {
	if c.runtime.observer == nil {
		return
	}
	if c.IsReplaying() && c.runtime.cfg.SuppressReplayLogs() {
		return
	}
	c.runtime.observer.OnEvent(ctx, observability.Event{
		Type:   eventType,
		Level:  level,
		Source: "durable",
		Data:   data,
	})
}
