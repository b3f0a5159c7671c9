package checkpoint_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
)

func TestInMemoryClient_CheckpointStartThenSucceed(t *testing.T) {
	c := checkpoint.NewInMemoryClient()
	arn, token := c.NewExecution(`"World"`)

	result, err := c.Checkpoint(context.Background(), arn, token, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindStep, Name: "create", Action: checkpoint.ActionStart},
	})
	if err != nil {
		t.Fatalf("Checkpoint(START) error = %v", err)
	}
	if len(result.NewOperations) != 1 || result.NewOperations[0].Status != checkpoint.StatusStarted {
		t.Fatalf("Checkpoint(START) result = %+v, want one STARTED operation", result.NewOperations)
	}

	result2, err := c.Checkpoint(context.Background(), arn, result.NewToken, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindStep, Name: "create", Action: checkpoint.ActionSucceed, Payload: `"HELLO"`},
	})
	if err != nil {
		t.Fatalf("Checkpoint(SUCCEED) error = %v", err)
	}
	if result2.NewOperations[0].Status != checkpoint.StatusSucceeded {
		t.Errorf("Status = %v, want SUCCEEDED", result2.NewOperations[0].Status)
	}
	if result2.NewOperations[0].Result != `"HELLO"` {
		t.Errorf("Result = %q, want %q", result2.NewOperations[0].Result, `"HELLO"`)
	}
}

func TestInMemoryClient_TokenConflict(t *testing.T) {
	c := checkpoint.NewInMemoryClient()
	arn, _ := c.NewExecution(`""`)

	_, err := c.Checkpoint(context.Background(), arn, "stale-token", []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionStart},
	})
	if !errors.Is(err, checkpoint.ErrTokenConflict) {
		t.Errorf("Checkpoint(stale token) error = %v, want ErrTokenConflict", err)
	}
}

func TestInMemoryClient_RetryIncrementsAttempt(t *testing.T) {
	c := checkpoint.NewInMemoryClient()
	arn, token := c.NewExecution(`""`)

	result, err := c.Checkpoint(context.Background(), arn, token, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionStart},
	})
	if err != nil {
		t.Fatalf("Checkpoint(START) error = %v", err)
	}

	for i := 0; i < 2; i++ {
		result, err = c.Checkpoint(context.Background(), arn, result.NewToken, []checkpoint.OperationUpdate{
			{ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionRetry},
		})
		if err != nil {
			t.Fatalf("Checkpoint(RETRY) error = %v", err)
		}
	}

	if result.NewOperations[0].Attempt != 2 {
		t.Errorf("Attempt = %d, want 2", result.NewOperations[0].Attempt)
	}
}
