package checkpoint

import (
	"context"
	"fmt"
	"sync"
)

// CheckpointResult is the outcome of a Client.Checkpoint call: either the
// full batch is accepted and a fresh token returned, or the call fails and
// the caller retries with the unchanged token.
type CheckpointResult struct {
	NewToken      string
	NewOperations []*Operation
}

// ExecutionStateResult is the outcome of a Client.GetExecutionState call.
type ExecutionStateResult struct {
	Operations []*Operation
	NextMarker string
}

// Client is the backend checkpoint service contract. The runtime never
// assumes a transport: HTTP, gRPC, or Connect details are modeled entirely
// behind this interface.
type Client interface {
	// Checkpoint submits updates atomically against token. No retry is
	// hidden inside this layer; errors are surfaced to the caller.
	Checkpoint(ctx context.Context, executionArn, token string, updates []OperationUpdate) (CheckpointResult, error)

	// GetExecutionState fetches a page of an execution's operation log,
	// used on entry when the initial payload carries a marker and for
	// payloads too large to embed inline.
	GetExecutionState(ctx context.Context, executionArn, token, marker string) (ExecutionStateResult, error)
}

var (
	clients      = map[string]Client{}
	clientsMutex sync.RWMutex
)

// GetClient returns a registered Client by name.
func GetClient(name string) (Client, error) {
	clientsMutex.RLock()
	defer clientsMutex.RUnlock()

	c, exists := clients[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClient, name)
	}
	return c, nil
}

// RegisterClient adds or replaces a named Client in the global registry.
func RegisterClient(name string, c Client) {
	clientsMutex.Lock()
	defer clientsMutex.Unlock()
	clients[name] = c
}

func init() {
	RegisterClient("memory", NewInMemoryClient())
}
