package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// WaitFuture is the handle returned by Wait; Get blocks until the wait
// duration has elapsed.
type WaitFuture struct {
	ctx      *Context
	id       string
	resolved chan struct{}
	err      error
}

// Wait schedules a durable delay of at least d. Unlike Step, Wait has no
// user body and no retry policy: it transitions STARTED -> SUCCEEDED once
// its scheduled end timestamp has passed.
func Wait(goCtx context.Context, c *Context, name string, d time.Duration) *WaitFuture {
	id := c.mintID()
	future := &WaitFuture{ctx: c, id: id, resolved: make(chan struct{})}

	if err := c.runtime.store.ValidateIdentity(id, checkpoint.KindWait, name, c.parentID); err != nil {
		future.fail(&NonDeterministicError{OperationID: id, Detail: err.Error()})
		return future
	}

	cached := c.lookupAndMaybeLeaveReplay(id)
	if cached != nil && cached.Status.Terminal() {
		future.resolveFromTerminal(cached)
		return future
	}

	var deadline time.Time
	if cached != nil && cached.ScheduledEndTimestamp != nil {
		deadline = *cached.ScheduledEndTimestamp
	} else {
		deadline = time.Now().Add(d)
		c.runtime.batcher.Submit(checkpoint.OperationUpdate{
			ID: id, ParentID: c.parentID, Kind: checkpoint.KindWait, Name: name, Action: checkpoint.ActionStart,
			WaitOptions: &checkpoint.WaitOptions{WaitSeconds: int64(d.Seconds())},
		}, c.runtime.cfg.Batcher.FlushDelay)
	}
	c.emit(goCtx, observability.EventOperationStart, observability.LevelVerbose, map[string]any{"id": id, "kind": "WAIT", "name": name})

	c.runtime.tracker.Register(id, activity.KindPoll)
	go waitWorker(c, future, name, deadline)

	return future
}

func waitWorker(c *Context, future *WaitFuture, name string, deadline time.Time) {
	delay := time.Until(deadline)
	if delay < 0 {
		delay = 0
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-c.runtime.tracker.Done():
		// Another activity's suspension already won the race; abandon this
		// worker and let the next invocation redeliver.
		return
	}

	// Deregister only once the completion callback has actually run: Submit
	// is async, so deregistering right after it returns would empty the
	// active set before the terminal checkpoint response arrives and
	// resolves the future a waiter blocks on.
	c.runtime.completion.Attach(future.id, func(result completion.Result) {
		op, _ := result.(*checkpoint.Operation)
		future.resolveFromTerminal(op)
		c.runtime.tracker.Deregister(future.id)
	})
	c.emit(context.Background(), observability.EventOperationSucceed, observability.LevelVerbose, map[string]any{"id": future.id})
	c.runtime.batcher.Submit(checkpoint.OperationUpdate{
		ID: future.id, ParentID: c.parentID, Kind: checkpoint.KindWait, Name: name, Action: checkpoint.ActionSucceed,
	}, c.runtime.cfg.Batcher.FlushDelay)
}

func (f *WaitFuture) resolveFromTerminal(op *checkpoint.Operation) {
	if op == nil {
		f.fail(&IllegalOperationError{Detail: "nil terminal operation for " + f.id})
		return
	}
	if op.Status == checkpoint.StatusSucceeded {
		f.err = nil
		close(f.resolved)
		return
	}
	f.fail(&IllegalOperationError{Detail: fmt.Sprintf("wait %s reached unexpected terminal status %s", f.id, op.Status)})
}

func (f *WaitFuture) fail(err error) {
	f.err = err
	close(f.resolved)
}

// Get blocks until the wait completes.
func (f *WaitFuture) Get(goCtx context.Context) error {
	blockOnFuture(f.ctx.runtime, f.resolved)
	return f.err
}
