package checkpoint

import "errors"

// Sentinel errors for the checkpoint layer.
var (
	ErrUnknownClient  = errors.New("unknown checkpoint client")
	ErrAlreadyExists  = errors.New("checkpoint client already registered")
	ErrTokenConflict  = errors.New("checkpoint token conflict")
	ErrTransport      = errors.New("checkpoint transport failure")
	ErrIllegalStatus  = errors.New("illegal operation status")
	ErrExecutionEmpty = errors.New("execution has no operations")
)
