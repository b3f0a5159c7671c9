package durable

import (
	"context"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/activity"
	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/codec"
	"github.com/tailored-agentic-units/durable-kernel/completion"
	"github.com/tailored-agentic-units/durable-kernel/config"
	"github.com/tailored-agentic-units/durable-kernel/observability"
	"github.com/tailored-agentic-units/durable-kernel/retry"
)

// executionOperationID is the well-known id of the root EXECUTION
// operation every backend seeds when an execution is created.
const executionOperationID = "0"

// Handler is the user's durable function: it orchestrates Step/Wait/
// Invoke/Callback/ChildContext calls against root and returns the
// execution's final result.
type Handler func(goCtx context.Context, root *Context) (any, error)

// Status reports the outcome of one Executor.Run invocation: an execution
// may legitimately return without a final result, having suspended to wait
// for a retry timer, a Wait deadline, or an external Invoke/Callback.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// RunResult is what Executor.Run returns to its caller (the compute-worker
// host adapter, e.g. cmd/durable-worker).
type RunResult struct {
	Status Status

	// Result carries the handler's serialized return value when Status is
	// SUCCEEDED and the payload fits within MaxResponseBytes. If it does
	// not fit, Result is empty and Spilled is true: the value is still
	// durably checkpointed and must be fetched via GetExecutionState.
	Result  string
	Spilled bool

	Error *checkpoint.ErrorPayload
}

// Executor resolves an ExecutorConfig's named collaborators once and runs
// any number of executions against them.
type Executor struct {
	cfg      config.ExecutorConfig
	client   checkpoint.Client
	codec    codec.Codec
	observer observability.Observer
	retry    retry.Policy
}

// NewExecutor resolves cfg's named codec/client/observer and builds the
// default retry policy, failing fast on an unknown name rather than at
// first use.
func NewExecutor(cfg config.ExecutorConfig) (*Executor, error) {
	merged := config.DefaultExecutorConfig()
	merged.Merge(&cfg)

	client, err := checkpoint.GetClient(merged.Client)
	if err != nil {
		return nil, err
	}
	cd, err := codec.Get(merged.Codec)
	if err != nil {
		return nil, err
	}
	observer, err := observability.GetObserver(merged.Observer)
	if err != nil {
		return nil, err
	}

	return &Executor{
		cfg:      merged,
		client:   client,
		codec:    cd,
		observer: observer,
		retry:    retry.FromConfig(merged.Retry),
	}, nil
}

// Run drives one execution to either a terminal result or a suspension
// point. executionArn and token identify an execution the backend has
// already created (the host entry adapter is responsible for that);
// Executor.Run only ever appends to an existing log.
func (e *Executor) Run(goCtx context.Context, executionArn, token string, handler Handler) (RunResult, error) {
	store := checkpoint.NewStore()
	if err := hydrate(goCtx, e.client, store, executionArn, token); err != nil {
		return RunResult{}, fmt.Errorf("hydrate execution %s: %w", executionArn, err)
	}

	completionRegistry := completion.NewRegistry()
	batcher := checkpoint.NewBatcher(e.client, store, executionArn, token, e.cfg.Batcher, func(op *checkpoint.Operation) {
		completionRegistry.Complete(op.ID, op)
	})
	defer batcher.Shutdown(goCtx)

	tracker := activity.NewTracker()
	rt := &runtime{
		store:      store,
		batcher:    batcher,
		tracker:    tracker,
		completion: completionRegistry,
		codec:      e.codec,
		retryDflt:  e.retry,
		cfg:        e.cfg,
		observer:   e.observer,
	}
	root := newRootContext(rt, executionOperationID)

	stopPoll := startPollLoop(goCtx, rt, e.cfg.Poll)
	defer stopPoll()

	tracker.Register(handlerActivityID, activity.KindContext)

	type outcome struct {
		value any
		err   error
	}
	handlerDone := make(chan outcome, 1)
	go func() {
		value, err := handler(goCtx, root)
		handlerDone <- outcome{value, err}
	}()

	select {
	case o := <-handlerDone:
		tracker.Deregister(handlerActivityID)
		return e.finish(goCtx, rt, o.value, o.err)

	case <-tracker.Done():
		root.emit(goCtx, observability.EventExecutorSuspended, observability.LevelInfo, map[string]any{"executionArn": executionArn})
		return RunResult{Status: StatusPending}, nil
	}
}

func (e *Executor) finish(goCtx context.Context, rt *runtime, value any, err error) (RunResult, error) {
	if err != nil {
		rec := errorRecordFor(err)
		rt.observer.OnEvent(goCtx, observability.Event{Type: observability.EventExecutorFailed, Level: observability.LevelError, Source: "durable", Data: map[string]any{"error": err.Error()}})
		return RunResult{Status: StatusFailed, Error: rec}, nil
	}

	payload, serr := e.codec.Serialize(goCtx, value)
	if serr != nil {
		return RunResult{}, fmt.Errorf("serialize handler result: %w", serr)
	}

	rt.observer.OnEvent(goCtx, observability.Event{Type: observability.EventExecutorSucceeded, Level: observability.LevelInfo, Source: "durable"})

	maxBytes := e.cfg.MaxResponseBytes
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxResponseBytes
	}
	if len(payload) >= maxBytes {
		done := rt.batcher.Submit(checkpoint.OperationUpdate{
			ID: executionOperationID, Kind: checkpoint.KindExecution, Action: checkpoint.ActionSucceed, Payload: payload,
		}, 0)
		if err := <-done; err != nil {
			return RunResult{}, fmt.Errorf("checkpoint spilled handler result: %w", err)
		}
		return RunResult{Status: StatusSucceeded, Spilled: true}, nil
	}
	return RunResult{Status: StatusSucceeded, Result: payload}, nil
}

// hydrate pages through the backend's full operation log for executionArn
// and merges it into store, reconstructing replay state before the
// handler runs a single line.
func hydrate(goCtx context.Context, client checkpoint.Client, store *checkpoint.Store, executionArn, token string) error {
	marker := ""
	for {
		page, err := client.GetExecutionState(goCtx, executionArn, token, marker)
		if err != nil {
			return err
		}
		store.MergeAll(page.Operations)
		if page.NextMarker == "" {
			return nil
		}
		marker = page.NextMarker
	}
}

// pollWindow is the guard against runaway polling: once the poll loop has
// been running this long since it started, it stops regardless of handler
// progress rather than spinning against the backend forever (a last-resort ceiling, not an
// expected path).
const pollWindow = 24 * time.Hour
