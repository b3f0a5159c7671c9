package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// onDiskExecution is the JSON shape persisted per execution under
// FileClient's root.
type onDiskExecution struct {
	Token string                `json:"token"`
	Ops   map[string]*Operation `json:"ops"`
}

// FileClient is a durable local Client backend: each execution's state is
// one JSON file under root, written atomically so a crash mid-write never
// leaves a corrupt or partially-written file behind.
//
// Grounded directly on memory.fileStore.Save's temp-file-then-rename
// pattern: write to a sibling ".tmp-*" file, fsync and close it, then
// os.Rename into place — rename is atomic on the same filesystem, so a
// reader never observes a half-written execution log.
type FileClient struct {
	root string
	mu   sync.Mutex
}

// NewFileClient returns a FileClient persisting execution logs under root.
func NewFileClient(root string) *FileClient {
	return &FileClient{root: root}
}

func (c *FileClient) path(executionArn string) string {
	return filepath.Join(c.root, executionArn+".json")
}

func (c *FileClient) load(executionArn string) (*onDiskExecution, error) {
	data, err := os.ReadFile(c.path(executionArn))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrExecutionEmpty, executionArn)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var rec onDiskExecution
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &rec, nil
}

func (c *FileClient) save(executionArn string, rec *onDiskExecution) error {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	path := c.path(executionArn)
	tmp, err := os.CreateTemp(c.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// NewExecution seeds a fresh on-disk execution log and returns its
// executionArn and initial token.
func (c *FileClient) NewExecution(inputPayload string) (executionArn, token string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	executionArn = "arn:local-file:execution:" + uuid.New().String()
	token = uuid.New().String()

	execOp := &Operation{
		ID:               "0",
		Kind:             KindExecution,
		Status:           StatusSucceeded,
		ExecutionDetails: &ExecutionDetails{InputPayload: inputPayload},
	}
	rec := &onDiskExecution{
		Token: token,
		Ops:   map[string]*Operation{execOp.ID: execOp},
	}
	if err := c.save(executionArn, rec); err != nil {
		return "", "", err
	}
	return executionArn, token, nil
}

func (c *FileClient) Checkpoint(ctx context.Context, executionArn, token string, updates []OperationUpdate) (CheckpointResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.load(executionArn)
	if err != nil {
		return CheckpointResult{}, err
	}
	if token != "" && rec.Token != token {
		return CheckpointResult{}, fmt.Errorf("%w: have %s, want %s", ErrTokenConflict, token, rec.Token)
	}

	var changed []*Operation
	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		op := applyUpdate(rec.Ops[u.ID], u)
		rec.Ops[u.ID] = op
		changed = append(changed, op.Clone())
	}

	rec.Token = uuid.New().String()
	if err := c.save(executionArn, rec); err != nil {
		return CheckpointResult{}, err
	}

	return CheckpointResult{NewToken: rec.Token, NewOperations: changed}, nil
}

// Token returns the current checkpoint token for executionArn, for a host
// adapter to persist out-of-band and resupply on the next invocation that
// resumes a suspended execution.
func (c *FileClient) Token(executionArn string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.load(executionArn)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

func (c *FileClient) GetExecutionState(ctx context.Context, executionArn, token, marker string) (ExecutionStateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.load(executionArn)
	if err != nil {
		return ExecutionStateResult{}, err
	}

	ops := make([]*Operation, 0, len(rec.Ops))
	for _, op := range rec.Ops {
		ops = append(ops, op.Clone())
	}
	return ExecutionStateResult{Operations: ops}, nil
}
