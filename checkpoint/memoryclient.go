package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// executionRecord is one execution's full in-process state, held by
// InMemoryClient.
type executionRecord struct {
	token string
	ops   map[string]*Operation
}

// InMemoryClient is a Client suitable for tests and local development: it
// holds every execution's operation log in process memory and applies
// updates synchronously, with no simulated latency or failure.
//
// Registered under the name "memory" (see checkpoint.init), the default
// ExecutorConfig.Client.
type InMemoryClient struct {
	mu         sync.Mutex
	executions map[string]*executionRecord
}

// NewInMemoryClient returns an empty InMemoryClient.
func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{executions: make(map[string]*executionRecord)}
}

// NewExecution seeds a fresh execution with its EXECUTION operation and
// returns its executionArn and initial token, for use by test harnesses
// and cmd/durable-worker's illustrative entry point.
func (c *InMemoryClient) NewExecution(inputPayload string) (executionArn, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	executionArn = "arn:local:execution:" + uuid.New().String()
	token = uuid.New().String()

	execOp := &Operation{
		ID:               "0",
		Kind:             KindExecution,
		Status:           StatusSucceeded,
		ExecutionDetails: &ExecutionDetails{InputPayload: inputPayload},
	}
	c.executions[executionArn] = &executionRecord{
		token: token,
		ops:   map[string]*Operation{execOp.ID: execOp},
	}
	return executionArn, token
}

func (c *InMemoryClient) Checkpoint(ctx context.Context, executionArn, token string, updates []OperationUpdate) (CheckpointResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.executions[executionArn]
	if !ok {
		return CheckpointResult{}, fmt.Errorf("%w: unknown execution %s", ErrTransport, executionArn)
	}
	if token != "" && rec.token != token {
		return CheckpointResult{}, fmt.Errorf("%w: have %s, want %s", ErrTokenConflict, token, rec.token)
	}

	var changed []*Operation
	for _, u := range updates {
		if u.ID == "" {
			continue // poll update: no transition, just a no-op round trip
		}
		op := applyUpdate(rec.ops[u.ID], u)
		rec.ops[u.ID] = op
		changed = append(changed, op.Clone())
	}

	rec.token = uuid.New().String()
	return CheckpointResult{NewToken: rec.token, NewOperations: changed}, nil
}

// Token returns the current checkpoint token for executionArn, for a host
// adapter to persist out-of-band and resupply on the next invocation that
// resumes a suspended execution.
func (c *InMemoryClient) Token(executionArn string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.executions[executionArn]
	if !ok {
		return "", fmt.Errorf("%w: unknown execution %s", ErrTransport, executionArn)
	}
	return rec.token, nil
}

func (c *InMemoryClient) GetExecutionState(ctx context.Context, executionArn, token, marker string) (ExecutionStateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.executions[executionArn]
	if !ok {
		return ExecutionStateResult{}, fmt.Errorf("%w: unknown execution %s", ErrTransport, executionArn)
	}

	ops := make([]*Operation, 0, len(rec.ops))
	for _, op := range rec.ops {
		ops = append(ops, op.Clone())
	}
	return ExecutionStateResult{Operations: ops, NextMarker: ""}, nil
}

// applyUpdate folds an OperationUpdate onto the existing record (nil if
// this is the operation's first update), producing the new Operation a
// real backend would persist.
func applyUpdate(existing *Operation, u OperationUpdate) *Operation {
	op := existing
	if op == nil {
		op = &Operation{ID: u.ID, Kind: u.Kind, Name: u.Name}
	}

	switch u.Action {
	case ActionStart:
		op.Status = StatusStarted
		op.WaitOptions = u.WaitOptions
		op.CallbackOptions = u.CallbackOptions
		op.ContextOptions = u.ContextOptions
		op.InvokeOptions = u.InvokeOptions
		if op.CallbackOptions != nil && op.CallbackOptions.CallbackID == "" {
			op.CallbackOptions.CallbackID = uuid.New().String()
		}
	case ActionSucceed:
		op.Status = StatusSucceeded
		op.Result = u.Payload
	case ActionFail:
		op.Status = StatusFailed
		op.Error = u.Error
	case ActionRetry:
		op.Status = StatusPending
		op.Attempt++
		op.NextScheduleTimestamp = u.NextScheduleTimestamp
	case ActionCancel:
		op.Status = StatusCancelled
	}
	return op
}
