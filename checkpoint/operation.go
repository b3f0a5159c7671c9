// Package checkpoint implements the operation data model, the backend
// CheckpointClient contract, the in-memory OperationStore, and the
// CheckpointBatcher that consolidates updates into bounded backend calls.
package checkpoint

import "time"

// Kind identifies what an Operation represents.
type Kind string

const (
	KindExecution Kind = "EXECUTION"
	KindStep      Kind = "STEP"
	KindWait      Kind = "WAIT"
	KindInvoke    Kind = "INVOKE"
	KindCallback  Kind = "CALLBACK"
	KindContext   Kind = "CONTEXT"
)

// Status is an operation's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusReady     Status = "READY"
	StatusStarted   Status = "STARTED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusStopped   Status = "STOPPED"
)

// Terminal reports whether s is one of the five terminal statuses that can
// never be downgraded once reached locally.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusTimedOut, StatusStopped:
		return true
	default:
		return false
	}
}

// Action is the transition an OperationUpdate requests.
type Action string

const (
	ActionStart   Action = "START"
	ActionSucceed Action = "SUCCEED"
	ActionFail    Action = "FAIL"
	ActionRetry   Action = "RETRY"
	ActionCancel  Action = "CANCEL"
)

// WaitOptions carries Wait-kind scheduling detail.
type WaitOptions struct {
	WaitSeconds int64 `json:"waitSeconds"`
}

// CallbackOptions carries Callback-kind detail.
type CallbackOptions struct {
	TimeoutSeconds          int64  `json:"timeoutSeconds,omitempty"`
	HeartbeatTimeoutSeconds int64  `json:"heartbeatTimeoutSeconds,omitempty"`
	CallbackID              string `json:"callbackId,omitempty"`
}

// ContextOptions carries ChildContext-kind detail.
type ContextOptions struct {
	ReplayChildren bool `json:"replayChildren"`
}

// ChainedInvokeOptions carries Invoke-kind detail.
type ChainedInvokeOptions struct {
	FunctionName string `json:"functionName"`
	Payload      string `json:"payload,omitempty"`
	TimeoutSecs  int64  `json:"timeoutSeconds,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
}

// ExecutionDetails holds the root EXECUTION operation's input payload.
type ExecutionDetails struct {
	InputPayload string `json:"inputPayload"`
}

// ErrorPayload is the wire shape of a captured typed error, matching
// codec.ErrorRecord's JSON encoding (kept as a separate type here so this
// package does not import codec for its data model).
type ErrorPayload struct {
	ErrorType    string   `json:"errorType"`
	ErrorMessage string   `json:"errorMessage"`
	ErrorData    string   `json:"errorData,omitempty"`
	StackTrace   []string `json:"stackTrace,omitempty"`
}

// Operation is one record in an execution's checkpoint log.
type Operation struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId,omitempty"`
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Status   Status  `json:"status"`
	Attempt  int     `json:"attempt"`

	Result string        `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`

	ScheduledEndTimestamp *time.Time `json:"scheduledEndTimestamp,omitempty"`
	NextScheduleTimestamp *time.Time `json:"nextScheduleTimestamp,omitempty"`

	ExecutionDetails *ExecutionDetails     `json:"executionDetails,omitempty"`
	WaitOptions      *WaitOptions          `json:"waitOptions,omitempty"`
	CallbackOptions  *CallbackOptions      `json:"callbackOptions,omitempty"`
	ContextOptions   *ContextOptions       `json:"contextOptions,omitempty"`
	InvokeOptions    *ChainedInvokeOptions `json:"chainedInvokeOptions,omitempty"`
}

// Clone returns a deep-enough copy for safe handoff across goroutines: the
// scalar fields and the optional sub-structs are copied, matching the
// depth memory.Cache.Get/Set clones values to before handing them to callers.
func (op *Operation) Clone() *Operation {
	if op == nil {
		return nil
	}
	clone := *op
	if op.ParentID != nil {
		id := *op.ParentID
		clone.ParentID = &id
	}
	if op.Error != nil {
		errCopy := *op.Error
		errCopy.StackTrace = append([]string(nil), op.Error.StackTrace...)
		clone.Error = &errCopy
	}
	if op.ExecutionDetails != nil {
		details := *op.ExecutionDetails
		clone.ExecutionDetails = &details
	}
	if op.WaitOptions != nil {
		wo := *op.WaitOptions
		clone.WaitOptions = &wo
	}
	if op.CallbackOptions != nil {
		co := *op.CallbackOptions
		clone.CallbackOptions = &co
	}
	if op.ContextOptions != nil {
		co := *op.ContextOptions
		clone.ContextOptions = &co
	}
	if op.InvokeOptions != nil {
		io := *op.InvokeOptions
		clone.InvokeOptions = &io
	}
	return &clone
}

// OperationUpdate is what the runtime submits to the backend to request a
// transition.
type OperationUpdate struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parentId,omitempty"`
	Kind     Kind    `json:"kind"`
	Name     string  `json:"name,omitempty"`
	Action   Action  `json:"action"`

	Payload string        `json:"payload,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`

	WaitOptions     *WaitOptions          `json:"waitOptions,omitempty"`
	CallbackOptions *CallbackOptions      `json:"callbackOptions,omitempty"`
	ContextOptions  *ContextOptions       `json:"contextOptions,omitempty"`
	InvokeOptions   *ChainedInvokeOptions `json:"chainedInvokeOptions,omitempty"`

	NextScheduleTimestamp *time.Time `json:"nextScheduleTimestamp,omitempty"`
}

// isEmpty reports whether update is the null/"poll" update: it carries no
// transition, only exists to nudge the batcher into making a backend call.
func (u *OperationUpdate) isEmpty() bool {
	return u.ID == "" && u.Action == ""
}

// PollUpdate returns the null update used purely to trigger a backend poll.
func PollUpdate() OperationUpdate {
	return OperationUpdate{}
}
