// Package codec serializes user payloads and typed errors crossing the
// checkpoint boundary. The runtime never assumes a wire format beyond the
// Codec contract: serialize to a string, deserialize back into a typed
// value, and round-trip an ErrorRecord with enough fidelity to reconstruct
// a typed error across a crash/replay boundary.
package codec

import "context"

// Codec serializes and deserializes durable operation payloads. Values
// round-tripped through a Codec must satisfy Deserialize(Serialize(x)) == x
// for all representable x; a Codec that cannot represent a value returns
// ErrSerialize rather than silently truncating it.
type Codec interface {
	// Serialize encodes value to its wire string form.
	Serialize(ctx context.Context, value any) (string, error)
	// Deserialize decodes data into a new value of the type out points to.
	// out must be a non-nil pointer.
	Deserialize(ctx context.Context, data string, out any) error
}

// StackFrame is one frame of a captured error's call stack, encoded on the
// wire as "className|methodName|fileName|lineNumber" (see EncodeStackFrame).
type StackFrame struct {
	ClassName  string
	MethodName string
	FileName   string
	LineNumber int
}

// ErrorRecord is the cross-language-stable representation of a typed error
// captured at a Step/Invoke/Callback/ChildContext boundary. ErrorType must
// be preserved exactly across a serialize/deserialize round trip so that
// retry policies and caller error-handling keyed on error class continue to
// work after a checkpoint/resume cycle.
type ErrorRecord struct {
	ErrorType    string       `json:"errorType"`
	ErrorMessage string       `json:"errorMessage"`
	ErrorData    string       `json:"errorData,omitempty"`
	StackFrames  []StackFrame `json:"-"`
	StackTrace   []string     `json:"stackTrace,omitempty"`
}

// Error implements the error interface so an ErrorRecord can be carried as
// a Go error value through the retry/completion machinery.
func (e *ErrorRecord) Error() string {
	if e.ErrorMessage == "" {
		return e.ErrorType
	}
	return e.ErrorType + ": " + e.ErrorMessage
}
