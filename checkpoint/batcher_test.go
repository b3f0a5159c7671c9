package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/config"
)

func TestBatcher_SubmitFlushesAndCompletesFuture(t *testing.T) {
	client := checkpoint.NewInMemoryClient()
	arn, token := client.NewExecution(`""`)
	store := checkpoint.NewStore()

	var terminal []*checkpoint.Operation
	b := checkpoint.NewBatcher(client, store, arn, token, config.BatcherConfig{
		MaxItems:   10,
		MaxBytes:   10000,
		FlushDelay: 5 * time.Millisecond,
	}, func(op *checkpoint.Operation) {
		terminal = append(terminal, op)
	})
	defer b.Shutdown(context.Background())

	done := b.Submit(checkpoint.OperationUpdate{
		ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionSucceed, Payload: `"ok"`,
	}, 5*time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit future error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit future did not complete in time")
	}

	op := store.Get("1")
	if op == nil || op.Status != checkpoint.StatusSucceeded {
		t.Errorf("store.Get(1) = %+v, want SUCCEEDED", op)
	}
	if len(terminal) != 1 || terminal[0].ID != "1" {
		t.Errorf("onTerminal callback = %+v, want one call for id 1", terminal)
	}
}

func TestBatcher_ZeroFlushDelayFlushesImmediately(t *testing.T) {
	client := checkpoint.NewInMemoryClient()
	arn, token := client.NewExecution(`""`)
	store := checkpoint.NewStore()

	b := checkpoint.NewBatcher(client, store, arn, token, config.DefaultBatcherConfig(), nil)
	defer b.Shutdown(context.Background())

	done := b.Submit(checkpoint.OperationUpdate{
		ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionStart,
	}, 0)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit future error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Submit future did not complete in time")
	}
}

func TestBatcher_PollIsANoOpTransition(t *testing.T) {
	client := checkpoint.NewInMemoryClient()
	arn, token := client.NewExecution(`""`)
	store := checkpoint.NewStore()

	b := checkpoint.NewBatcher(client, store, arn, token, config.DefaultBatcherConfig(), nil)
	defer b.Shutdown(context.Background())

	done := b.Poll()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Poll() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Poll() did not complete in time")
	}
}

func TestBatcher_ShutdownDrainsPending(t *testing.T) {
	client := checkpoint.NewInMemoryClient()
	arn, token := client.NewExecution(`""`)
	store := checkpoint.NewStore()

	b := checkpoint.NewBatcher(client, store, arn, token, config.BatcherConfig{
		MaxItems: 10, MaxBytes: 10000, FlushDelay: time.Minute,
	}, nil)

	done := b.Submit(checkpoint.OperationUpdate{
		ID: "1", Kind: checkpoint.KindStep, Action: checkpoint.ActionStart,
	}, time.Minute)

	if err := b.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Submit future error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pending submit was not drained by Shutdown")
	}
}
