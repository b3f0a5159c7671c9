package durable

import (
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/durable-kernel/codec"
)

// Sentinel errors for the coordination core.
var (
	ErrNonDeterministic = errors.New("non-deterministic replay")
	ErrIllegalOperation = errors.New("illegal durable operation")
	ErrArgument         = errors.New("invalid durable operation argument")
)

// StepFailedError is raised by a Step's Get after its retry policy has
// exhausted attempts, carrying the reconstructed user error.
type StepFailedError struct {
	OperationID string
	Err         error
}

func (e *StepFailedError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.OperationID, e.Err)
}
func (e *StepFailedError) Unwrap() error { return e.Err }

// InvokeFailedError is raised by an Invoke's Get on a FAILED terminal status.
type InvokeFailedError struct {
	OperationID string
	Err         error
}

func (e *InvokeFailedError) Error() string {
	return fmt.Sprintf("invoke %s failed: %v", e.OperationID, e.Err)
}
func (e *InvokeFailedError) Unwrap() error { return e.Err }

// CallbackFailedError is raised by a Callback's Get on a FAILED terminal status.
type CallbackFailedError struct {
	OperationID string
	Err         error
}

func (e *CallbackFailedError) Error() string {
	return fmt.Sprintf("callback %s failed: %v", e.OperationID, e.Err)
}
func (e *CallbackFailedError) Unwrap() error { return e.Err }

// ChildContextFailedError is raised by a ChildContext's Get on a FAILED
// terminal status.
type ChildContextFailedError struct {
	OperationID string
	Err         error
}

func (e *ChildContextFailedError) Error() string {
	return fmt.Sprintf("child context %s failed: %v", e.OperationID, e.Err)
}
func (e *ChildContextFailedError) Unwrap() error { return e.Err }

// TimedOutError maps a TIMED_OUT terminal status (Invoke/Callback).
type TimedOutError struct {
	OperationID string
}

func (e *TimedOutError) Error() string { return fmt.Sprintf("operation %s timed out", e.OperationID) }

// StoppedError maps a STOPPED terminal status.
type StoppedError struct {
	OperationID string
}

func (e *StoppedError) Error() string { return fmt.Sprintf("operation %s stopped", e.OperationID) }

// CancelledError maps a CANCELLED terminal status.
type CancelledError struct {
	OperationID string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("operation %s cancelled", e.OperationID)
}

// StepInterruptedError is raised on replay when an AT_MOST_ONCE_PER_RETRY
// step's cached status is STARTED (not terminal).
type StepInterruptedError struct {
	OperationID string
}

func (e *StepInterruptedError) Error() string {
	return fmt.Sprintf("step %s interrupted before completion (at-most-once)", e.OperationID)
}

// NonDeterministicError wraps ErrNonDeterministic with the offending id.
// Fatal: no recovery.
type NonDeterministicError struct {
	OperationID string
	Detail      string
}

func (e *NonDeterministicError) Error() string {
	return fmt.Sprintf("%v: operation %s: %s", ErrNonDeterministic, e.OperationID, e.Detail)
}
func (e *NonDeterministicError) Unwrap() error { return ErrNonDeterministic }

// IllegalOperationError wraps ErrIllegalOperation: raised when an operation
// reaches a terminal status its kind does not handle, or when a completion
// arrives without an operation record.
type IllegalOperationError struct {
	Detail string
}

func (e *IllegalOperationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrIllegalOperation, e.Detail)
}
func (e *IllegalOperationError) Unwrap() error { return ErrIllegalOperation }

// errorFromRecord reconstructs a plain error from a codec.ErrorRecord
// carried on a FAILED operation.
func errorFromRecord(rec *codec.ErrorRecord) error {
	if rec == nil {
		return errors.New("operation failed with no error record")
	}
	return rec
}
