package completion_test

import (
	"sync"
	"testing"

	"github.com/tailored-agentic-units/durable-kernel/completion"
)

func TestRegistry_AttachBeforeComplete(t *testing.T) {
	r := completion.NewRegistry()
	var got completion.Result
	var wg sync.WaitGroup
	wg.Add(1)

	r.Attach("op-1", func(result completion.Result) {
		got = result
		wg.Done()
	})

	r.Complete("op-1", "done")
	wg.Wait()

	if got != "done" {
		t.Errorf("callback result = %v, want %q", got, "done")
	}
}

func TestRegistry_AttachAfterComplete(t *testing.T) {
	r := completion.NewRegistry()
	r.Complete("op-1", "done")

	var got completion.Result
	r.Attach("op-1", func(result completion.Result) {
		got = result
	})

	if got != "done" {
		t.Errorf("callback result = %v, want %q (synchronous invoke on already-complete slot)", got, "done")
	}
}

func TestRegistry_MultipleWaiters(t *testing.T) {
	r := completion.NewRegistry()
	var mu sync.Mutex
	var results []completion.Result

	for i := 0; i < 5; i++ {
		r.Attach("op-1", func(result completion.Result) {
			mu.Lock()
			results = append(results, result)
			mu.Unlock()
		})
	}

	r.Complete("op-1", 42)

	if len(results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(results))
	}
	for _, got := range results {
		if got != 42 {
			t.Errorf("result = %v, want 42", got)
		}
	}
}

func TestRegistry_CompleteAtMostOnce(t *testing.T) {
	r := completion.NewRegistry()
	r.Complete("op-1", "first")
	r.Complete("op-1", "second")

	var got completion.Result
	r.Attach("op-1", func(result completion.Result) {
		got = result
	})

	if got != "first" {
		t.Errorf("result = %v, want %q (second Complete must be a no-op)", got, "first")
	}
}

func TestRegistry_ConcurrentAttachComplete(t *testing.T) {
	for i := 0; i < 200; i++ {
		r := completion.NewRegistry()
		done := make(chan completion.Result, 1)

		go r.Complete("op-1", "value")
		go r.Attach("op-1", func(result completion.Result) {
			done <- result
		})

		got := <-done
		if got != "value" {
			t.Fatalf("result = %v, want %q", got, "value")
		}
	}
}
