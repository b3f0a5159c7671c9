package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/tailored-agentic-units/durable-kernel/checkpoint"
	"github.com/tailored-agentic-units/durable-kernel/config"
	"github.com/tailored-agentic-units/durable-kernel/durable"
	"github.com/tailored-agentic-units/durable-kernel/observability"
)

// orderResult is the payload a run of the sample handler returns; it has no
// bearing on the runtime itself, only on this command's own demonstration
// handler below.
type orderResult struct {
	ValidatedAt string   `json:"validatedAt"`
	LineTotals  []string `json:"lineTotals"`
}

func main() {
	var (
		configFile = flag.String("config", "", "Path to executor config JSON file (optional)")
		storeDir   = flag.String("store-dir", "", "Directory for on-disk checkpoint state (defaults to the in-memory client)")
		payload    = flag.String("payload", `{"items":["widget","gadget"]}`, "Input payload delivered to the sample handler")
		verbose    = flag.Bool("verbose", false, "Enable debug-level logging to stderr")
	)
	flag.Parse()

	var logLevel slog.Level
	if *verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	cfg := config.DefaultExecutorConfig()
	if *configFile != "" {
		loaded, err := loadExecutorConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg.Merge(loaded)
	}

	executionArn, token, err := seedExecution(*storeDir, &cfg, *payload)
	if err != nil {
		log.Fatalf("failed to seed execution: %v", err)
	}

	executor, err := durable.NewExecutor(cfg)
	if err != nil {
		log.Fatalf("failed to build executor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := executor.Run(ctx, executionArn, token, processOrder)
	if err != nil {
		log.Fatalf("execution run failed: %v", err)
	}

	switch result.Status {
	case durable.StatusSucceeded:
		if result.Spilled {
			fmt.Printf("execution %s succeeded; result exceeded the inline envelope and must be fetched separately\n", executionArn)
		} else {
			fmt.Printf("execution %s succeeded: %s\n", executionArn, result.Result)
		}
	case durable.StatusFailed:
		fmt.Printf("execution %s failed: %s: %s\n", executionArn, result.Error.ErrorType, result.Error.ErrorMessage)
	case durable.StatusPending:
		fmt.Printf("execution %s suspended (PENDING); each run of this command seeds a new execution, so this one is not resumed\n", executionArn)
	}
}

// loadExecutorConfig reads a JSON executor config file.
func loadExecutorConfig(filename string) (*config.ExecutorConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg config.ExecutorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// seedExecution creates a fresh execution against either the file-backed
// store (when storeDir is set) or the default in-memory one, registering
// whichever client the caller chose so durable.NewExecutor resolves it by
// name, and returns the identifiers Executor.Run needs to append to it.
func seedExecution(storeDir string, cfg *config.ExecutorConfig, payload string) (executionArn, token string, err error) {
	if storeDir == "" {
		client := checkpoint.NewInMemoryClient()
		checkpoint.RegisterClient("memory", client)
		cfg.Client = "memory"
		executionArn, token = client.NewExecution(payload)
		return executionArn, token, nil
	}

	client := checkpoint.NewFileClient(storeDir)
	checkpoint.RegisterClient("file", client)
	cfg.Client = "file"
	return client.NewExecution(payload)
}

// processOrder is an illustrative handler exercising every durable operation
// kind: a Step for validation, a ChildContext fanning out per-item pricing
// Steps gathered with AllOf, and a Wait standing in for a cooldown before
// the handler returns its final result.
func processOrder(goCtx context.Context, root *durable.Context) (result any, err error) {
	var order struct {
		Items []string `json:"items"`
	}
	input := root.InputPayload()
	if err := json.Unmarshal([]byte(input), &order); err != nil {
		return nil, fmt.Errorf("decode order payload: %w", err)
	}

	validated, err := durable.Step(goCtx, root, "validate-order", func(goCtx context.Context) (string, error) {
		if len(order.Items) == 0 {
			return "", fmt.Errorf("order has no line items")
		}
		return time.Now().UTC().Format(time.RFC3339), nil
	}).Get(goCtx)
	if err != nil {
		return nil, err
	}

	pricingCtx := durable.ChildContext(goCtx, root, "price-items", func(goCtx context.Context, child *durable.Context) ([]string, error) {
		futures := make([]durable.Future[string], 0, len(order.Items))
		for _, item := range order.Items {
			futures = append(futures, durable.Step(goCtx, child, "price-"+item, func(goCtx context.Context) (string, error) {
				return item + ":priced", nil
			}))
		}
		return durable.AllOf(goCtx, futures...)
	})
	lineTotals, err := pricingCtx.Get(goCtx)
	if err != nil {
		return nil, err
	}

	if err := durable.Wait(goCtx, root, "cooldown", time.Second).Get(goCtx); err != nil {
		return nil, err
	}

	return orderResult{ValidatedAt: validated, LineTotals: lineTotals}, nil
}
