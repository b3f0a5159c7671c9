package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// ConnectClient is the production Client backend: it speaks to a durable-
// execution backend over Connect's unary RPC protocol. Requests and
// responses are carried as structpb.Struct, a fully-implemented
// proto.Message from the protobuf module's well-known-types package, built
// from each OperationUpdate/Operation's JSON-tagged field set — this needs
// no generated *_connect.go stubs, only the procedure path the backend
// exposes, using the same manual-client construction connect-go supports
// without codegen.
type ConnectClient struct {
	checkpointClient     *connect.Client[structpb.Struct, structpb.Struct]
	executionStateClient *connect.Client[structpb.Struct, structpb.Struct]
}

// NewConnectClient constructs a ConnectClient against baseURL, e.g.
// "https://durable.example.internal". httpClient is typically
// http.DefaultClient or one configured with the caller's TLS/auth
// transport; this package never handles credentials itself, leaving them
// entirely to httpClient.
func NewConnectClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *ConnectClient {
	return &ConnectClient{
		checkpointClient: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient, baseURL+"/durable.v1.CheckpointService/Checkpoint", opts...,
		),
		executionStateClient: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient, baseURL+"/durable.v1.CheckpointService/GetExecutionState", opts...,
		),
	}
}

func (c *ConnectClient) Checkpoint(ctx context.Context, executionArn, token string, updates []OperationUpdate) (CheckpointResult, error) {
	payload, err := toStruct(map[string]any{
		"executionArn": executionArn,
		"token":        token,
		"updates":      updates,
	})
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := c.checkpointClient.CallUnary(ctx, connect.NewRequest(payload))
	if err != nil {
		return CheckpointResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var result CheckpointResult
	if err := fromStruct(resp.Msg, &result); err != nil {
		return CheckpointResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return result, nil
}

func (c *ConnectClient) GetExecutionState(ctx context.Context, executionArn, token, marker string) (ExecutionStateResult, error) {
	payload, err := toStruct(map[string]any{
		"executionArn": executionArn,
		"token":        token,
		"marker":       marker,
	})
	if err != nil {
		return ExecutionStateResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := c.executionStateClient.CallUnary(ctx, connect.NewRequest(payload))
	if err != nil {
		return ExecutionStateResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var result ExecutionStateResult
	if err := fromStruct(resp.Msg, &result); err != nil {
		return ExecutionStateResult{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return result, nil
}

// toStruct round-trips v through encoding/json into a structpb.Struct: the
// simplest way to get a generic JSON-object-shaped proto.Message without
// hand-authoring .proto-generated field accessors for every wire type.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct is toStruct's inverse: it re-encodes the Struct back to JSON
// and unmarshals into out, a regular Go struct pointer.
func fromStruct(s *structpb.Struct, out any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
