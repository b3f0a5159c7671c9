package durable_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/config"
	"github.com/tailored-agentic-units/durable-kernel/durable"
	"github.com/tailored-agentic-units/durable-kernel/retry"
)

// fastTestConfig returns an ExecutorConfig tuned for sub-second tests: a
// short batch flush window, a fast poll cadence, and the quiet "noop"
// observer so test output isn't drowned in slog lines.
func fastTestConfig(clientName string) config.ExecutorConfig {
	cfg := config.DefaultExecutorConfig()
	cfg.Client = clientName
	cfg.Observer = "noop"
	cfg.Batcher.FlushDelay = 5 * time.Millisecond
	cfg.Poll.InitialDelay = 5 * time.Millisecond
	cfg.Poll.Period = 10 * time.Millisecond
	return cfg
}

// newTestClient registers a fresh InMemoryClient under a name unique to the
// calling test, since checkpoint's client registry is process-global and
// tests run in the same binary.
func newTestClient(t *testing.T) (*checkpoint.InMemoryClient, string) {
	t.Helper()
	client := checkpoint.NewInMemoryClient()
	name := "test-" + t.Name()
	checkpoint.RegisterClient(name, client)
	return client, name
}

func newTestExecutor(t *testing.T, clientName string) *durable.Executor {
	t.Helper()
	executor, err := durable.NewExecutor(fastTestConfig(clientName))
	if err != nil {
		t.Fatalf("NewExecutor() error = %v", err)
	}
	return executor
}

// fixedFastRetry runs a step body at most maxAttempts times (maxAttempts-1
// retries) with a fixed, millisecond-scale delay. retry.FixedDelay clamps its delay to a 1s floor, which is too
// slow for these tests, so this is a standalone Policy implementation.
type fixedFastRetry struct {
	maxAttempts int
	delay       time.Duration
}

func (p fixedFastRetry) Decide(err error, attempt int) retry.Decision {
	if attempt+1 >= p.maxAttempts {
		return retry.Stop
	}
	return retry.Decision{Retry: true, Delay: p.delay}
}

func awaitRun(t *testing.T, resultCh <-chan runOutcome) runOutcome {
	t.Helper()
	select {
	case o := <-resultCh:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("Executor.Run did not return in time")
		return runOutcome{}
	}
}

type runOutcome struct {
	result durable.RunResult
	err    error
}

func runAsync(executor *durable.Executor, arn, token string, handler durable.Handler) <-chan runOutcome {
	out := make(chan runOutcome, 1)
	go func() {
		result, err := executor.Run(context.Background(), arn, token, handler)
		out <- runOutcome{result, err}
	}()
	return out
}

func TestExecutor_SequentialSteps(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		first, err := durable.Step(goCtx, root, "first", func(context.Context) (string, error) {
			return "a", nil
		}).Get(goCtx)
		if err != nil {
			return nil, err
		}
		second, err := durable.Step(goCtx, root, "second", func(context.Context) (string, error) {
			return first + "b", nil
		}).Get(goCtx)
		if err != nil {
			return nil, err
		}
		return second, nil
	}

	outcome := awaitRun(t, runAsync(executor, arn, token, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", outcome.result.Status)
	}
	if outcome.result.Result != `"ab"` {
		t.Errorf("Result = %s, want %q", outcome.result.Result, `"ab"`)
	}
}

func TestExecutor_StepRetrySucceedsAfterTransientFailure(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	attempts := 0
	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		value, err := durable.Step(goCtx, root, "flaky", func(context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", fmt.Errorf("transient failure #%d", attempts)
			}
			return "recovered", nil
		}, durable.WithRetryPolicy(fixedFastRetry{maxAttempts: 5, delay: 5 * time.Millisecond})).Get(goCtx)
		return value, err
	}

	outcome := awaitRun(t, runAsync(executor, arn, token, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", outcome.result.Status)
	}
	if outcome.result.Result != `"recovered"` {
		t.Errorf("Result = %s, want %q", outcome.result.Result, `"recovered"`)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecutor_StepInterruptedOnReplayAtMostOnce(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)

	// Simulate a crash after START but before any terminal update reached
	// the backend.
	if _, err := client.Checkpoint(context.Background(), arn, token, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindStep, Name: "flaky", Action: checkpoint.ActionStart},
	}); err != nil {
		t.Fatalf("seed Checkpoint() error = %v", err)
	}
	resumeToken, err := client.Token(arn)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	executor := newTestExecutor(t, name)
	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		_, err := durable.Step(goCtx, root, "flaky", func(context.Context) (string, error) {
			return "ran", nil
		}, durable.WithSemantics(durable.AtMostOncePerRetry)).Get(goCtx)
		return nil, err
	}

	outcome := awaitRun(t, runAsync(executor, arn, resumeToken, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusFailed {
		t.Fatalf("Status = %s, want FAILED", outcome.result.Status)
	}
	if outcome.result.Error == nil || !strings.Contains(outcome.result.Error.ErrorType, "StepInterruptedError") {
		t.Errorf("Error = %+v, want a StepInterruptedError", outcome.result.Error)
	}
}

func TestExecutor_WaitDelaysResult(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	const delay = 80 * time.Millisecond
	start := time.Now()
	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		if err := durable.Wait(goCtx, root, "cooldown", delay).Get(goCtx); err != nil {
			return nil, err
		}
		return "done", nil
	}

	outcome := awaitRun(t, runAsync(executor, arn, token, handler))
	elapsed := time.Since(start)
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", outcome.result.Status)
	}
	if elapsed < delay {
		t.Errorf("elapsed = %s, want >= %s", elapsed, delay)
	}
}

func TestExecutor_ChildContextFanOutWithAllOf(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	items := []string{"widget", "gadget", "gizmo"}
	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		priced, err := durable.ChildContext(goCtx, root, "price-items", func(goCtx context.Context, child *durable.Context) ([]string, error) {
			futures := make([]durable.Future[string], 0, len(items))
			for _, item := range items {
				item := item
				futures = append(futures, durable.Step(goCtx, child, "price-"+item, func(context.Context) (string, error) {
					return item + ":priced", nil
				}))
			}
			return durable.AllOf(goCtx, futures...)
		}).Get(goCtx)
		return priced, err
	}

	outcome := awaitRun(t, runAsync(executor, arn, token, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", outcome.result.Status)
	}
	want := `["widget:priced","gadget:priced","gizmo:priced"]`
	if outcome.result.Result != want {
		t.Errorf("Result = %s, want %s", outcome.result.Result, want)
	}
}

func TestExecutor_AnyOfReturnsFirstSuccess(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		losing := durable.Step(goCtx, root, "losing", func(context.Context) (string, error) {
			return "", fmt.Errorf("always fails")
		}, durable.WithRetryPolicy(retry.NoRetry()))
		winning := durable.Step(goCtx, root, "winning", func(context.Context) (string, error) {
			return "winner", nil
		})
		value, err := durable.AnyOf(goCtx, durable.Future[string](losing), durable.Future[string](winning))
		return value, err
	}

	outcome := awaitRun(t, runAsync(executor, arn, token, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusSucceeded {
		t.Fatalf("Status = %s, want SUCCEEDED", outcome.result.Status)
	}
	if outcome.result.Result != `"winner"` {
		t.Errorf("Result = %s, want %q", outcome.result.Result, `"winner"`)
	}
}

func TestExecutor_InvokeSuspendsThenResolvesOnReplay(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)
	executor := newTestExecutor(t, name)

	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		value, err := durable.Invoke(goCtx, root, "charge-card", "payments.charge", `{"amount":100}`, durable.InvokeOptions{
			Timeout: time.Minute,
		}).Get(goCtx)
		return value, err
	}

	first := awaitRun(t, runAsync(executor, arn, token, handler))
	if first.err != nil {
		t.Fatalf("first Run() error = %v", first.err)
	}
	if first.result.Status != durable.StatusPending {
		t.Fatalf("first Status = %s, want PENDING", first.result.Status)
	}

	// An external resolver settles the invoke out of band, directly against
	// the backend, exactly as a real chained-function completion would.
	resumeToken, err := client.Token(arn)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if _, err := client.Checkpoint(context.Background(), arn, resumeToken, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindInvoke, Name: "charge-card", Action: checkpoint.ActionSucceed, Payload: `"charged"`},
	}); err != nil {
		t.Fatalf("resolver Checkpoint() error = %v", err)
	}

	resumeToken, err = client.Token(arn)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	second := awaitRun(t, runAsync(executor, arn, resumeToken, handler))
	if second.err != nil {
		t.Fatalf("second Run() error = %v", second.err)
	}
	if second.result.Status != durable.StatusSucceeded {
		t.Fatalf("second Status = %s, want SUCCEEDED", second.result.Status)
	}
	// Invoke.Get returns the raw payload `"charged"`; the handler returns it
	// as a Go string, which the executor serializes once more.
	if second.result.Result != `"\"charged\""` {
		t.Errorf("Result = %s, want %q", second.result.Result, `"\"charged\""`)
	}
}

func TestExecutor_NonDeterministicReplayDetected(t *testing.T) {
	client, name := newTestClient(t)
	arn, token := client.NewExecution(`""`)

	// Seed a cached operation "1" as a WAIT; the handler below mints its
	// first operation as a STEP instead, which must be rejected rather than
	// silently reconciled.
	if _, err := client.Checkpoint(context.Background(), arn, token, []checkpoint.OperationUpdate{
		{ID: "1", Kind: checkpoint.KindWait, Name: "cooldown", Action: checkpoint.ActionStart},
	}); err != nil {
		t.Fatalf("seed Checkpoint() error = %v", err)
	}
	resumeToken, err := client.Token(arn)
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	executor := newTestExecutor(t, name)
	handler := func(goCtx context.Context, root *durable.Context) (any, error) {
		_, err := durable.Step(goCtx, root, "validate", func(context.Context) (string, error) {
			return "ok", nil
		}).Get(goCtx)
		return nil, err
	}

	outcome := awaitRun(t, runAsync(executor, arn, resumeToken, handler))
	if outcome.err != nil {
		t.Fatalf("Run() error = %v", outcome.err)
	}
	if outcome.result.Status != durable.StatusFailed {
		t.Fatalf("Status = %s, want FAILED", outcome.result.Status)
	}
	if outcome.result.Error == nil || !strings.Contains(outcome.result.Error.ErrorType, "NonDeterministicError") {
		t.Errorf("Error = %+v, want a NonDeterministicError", outcome.result.Error)
	}
}
