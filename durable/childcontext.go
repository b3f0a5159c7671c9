package durable

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// ChildContextOptions configures a nested ChildContext call.
type ChildContextOptions struct {
	// ReplayChildren, if true, starts the child Context with its replay
	// flag set even on the child's first run (the flag still clears on the
	// first missing or non-terminal operation, as for any Context), and is
	// recorded as contextOptions.replayChildren on the CONTEXT operation's
	// START update. AllOf and AnyOf do not set it.
	ReplayChildren bool
}

// ChildContextFuture is the handle returned by ChildContext.
type ChildContextFuture[T any] struct {
	ctx      *Context
	id       string
	resolved chan struct{}
	value    T
	err      error
}

// ChildContext runs fn in a nested Context whose minted operation ids are
// prefixed by this CONTEXT operation's own id, isolating its replay state
// and id sequence from its parent.
func ChildContext[T any](goCtx context.Context, c *Context, name string, fn func(goCtx context.Context, child *Context) (T, error), opts ...func(*ChildContextOptions)) *ChildContextFuture[T] {
	var options ChildContextOptions
	for _, opt := range opts {
		opt(&options)
	}

	id := c.mintID()
	future := &ChildContextFuture[T]{ctx: c, id: id, resolved: make(chan struct{})}

	if err := c.runtime.store.ValidateIdentity(id, checkpoint.KindContext, name, c.parentID); err != nil {
		future.fail(&NonDeterministicError{OperationID: id, Detail: err.Error()})
		return future
	}

	cached := c.lookupAndMaybeLeaveReplay(id)
	if cached != nil && cached.Status.Terminal() {
		future.resolveFromTerminal(goCtx, cached)
		return future
	}

	if cached == nil {
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: id, ParentID: c.parentID, Kind: checkpoint.KindContext, Name: name, Action: checkpoint.ActionStart,
			ContextOptions: &checkpoint.ContextOptions{ReplayChildren: options.ReplayChildren},
		}, c.runtime.cfg.Batcher.FlushDelay)
	}
	c.emit(goCtx, observability.EventOperationStart, observability.LevelVerbose, map[string]any{"id": id, "kind": "CONTEXT", "name": name})

	c.runtime.tracker.Register(id, activity.KindChild)
	child := newChildContext(c.runtime, id)
	if options.ReplayChildren {
		child.isReplaying.Store(true)
	}

	go runChildContext(goCtx, c, child, future, name, fn)

	return future
}

func runChildContext[T any](goCtx context.Context, parent *Context, child *Context, future *ChildContextFuture[T], name string, fn func(context.Context, *Context) (T, error)) {
	value, err := fn(goCtx, child)
	if err != nil {
		rec := errorRecordFor(err)
		// Deregister only once the completion callback has actually run:
		// Submit is async, so deregistering right after it returns would
		// empty the active set before the terminal checkpoint response
		// arrives and resolves the future a waiter blocks on.
		parent.runtime.completion.Attach(future.id, func(result completion.Result) {
			op, _ := result.(*checkpoint.Operation)
			future.resolveFromTerminal(goCtx, op)
			parent.runtime.tracker.Deregister(future.id)
		})
		parent.emit(goCtx, observability.EventOperationFail, observability.LevelWarning, map[string]any{"id": future.id, "error": err.Error()})
		parent.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: future.id, ParentID: parent.parentID, Kind: checkpoint.KindContext, Name: name, Action: checkpoint.ActionFail, Error: rec,
		}, parent.runtime.cfg.Batcher.FlushDelay)
		return
	}

	payload, serr := parent.runtime.codec.Serialize(goCtx, value)
	if serr != nil {
		parent.runtime.tracker.Deregister(future.id)
		future.fail(fmt.Errorf("serialize child context %s result: %w", future.id, serr))
		return
	}

	parent.runtime.completion.Attach(future.id, func(result completion.Result) {
		op, _ := result.(*checkpoint.Operation)
		future.resolveFromTerminal(goCtx, op)
		parent.runtime.tracker.Deregister(future.id)
	})
	parent.emit(goCtx, observability.EventOperationSucceed, observability.LevelVerbose, map[string]any{"id": future.id})
	parent.runtime.batcher.Submit(checkpoint.OperationUpdate{
		ID: future.id, ParentID: parent.parentID, Kind: checkpoint.KindContext, Name: name, Action: checkpoint.ActionSucceed, Payload: payload,
	}, parent.runtime.cfg.Batcher.FlushDelay)
}

func (f *ChildContextFuture[T]) resolveFromTerminal(goCtx context.Context, op *checkpoint.Operation) {
	if op == nil {
		f.fail(&IllegalOperationError{Detail: "nil terminal operation for " + f.id})
		return
	}
	switch op.Status {
	case checkpoint.StatusSucceeded:
		var value T
		if err := f.ctx.runtime.codec.Deserialize(goCtx, op.Result, &value); err != nil {
			f.fail(fmt.Errorf("deserialize child context %s result: %w", f.id, err))
			return
		}
		f.value = value
		f.err = nil
		close(f.resolved)
	case checkpoint.StatusFailed:
		f.fail(&ChildContextFailedError{OperationID: f.id, Err: errorFromPayload(op.Error)})
	default:
		f.fail(&IllegalOperationError{Detail: fmt.Sprintf("child context %s reached unexpected terminal status %s", f.id, op.Status)})
	}
}

func (f *ChildContextFuture[T]) fail(err error) {
	f.err = err
	close(f.resolved)
}

// Get blocks until the child context completes.
func (f *ChildContextFuture[T]) Get(goCtx context.Context) (T, error) {
	blockOnFuture(f.ctx.runtime, f.resolved)
	return f.value, f.err
}

// Future is satisfied by every durable operation future's Get method,
// letting AllOf/AnyOf compose over a homogeneous fan-out regardless of
// operation kind.
type Future[T any] interface {
	Get(ctx context.Context) (T, error)
}

// AllOf waits for every future to reach a terminal status and returns
// their results in argument order. It waits for all futures to settle even
// after the first error, matching the durable requirement that every
// started operation still reaches a checkpointed terminal status.
func AllOf[T any](goCtx context.Context, futures ...Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	errs := make([]error, len(futures))

	var wg sync.WaitGroup
	wg.Add(len(futures))
	for i, fut := range futures {
		go func(i int, fut Future[T]) {
			defer wg.Done()
			results[i], errs[i] = fut.Get(goCtx)
		}(i, fut)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// AnyOf returns the result of the first future to succeed. If every future
// fails, it returns the zero value and the last observed error.
func AnyOf[T any](goCtx context.Context, futures ...Future[T]) (T, error) {
	type outcome struct {
		value T
		err   error
	}
	out := make(chan outcome, len(futures))
	for _, fut := range futures {
		go func(fut Future[T]) {
			v, err := fut.Get(goCtx)
			out <- outcome{v, err}
		}(fut)
	}

	var lastErr error
	for range futures {
		o := <-out
		if o.err == nil {
			return o.value, nil
		}
		lastErr = o.err
	}
	var zero T
	return zero, lastErr
}
