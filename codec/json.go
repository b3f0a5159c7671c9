package codec

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// JSONCodec is the default Codec: encoding/json with RFC3339 timestamps.
// It is the only Codec this module ships; a pluggable alternative is
// registered by name via Register and selected through ExecutorConfig.Codec.
type JSONCodec struct{}

// NewJSONCodec returns the default JSON codec.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (c *JSONCodec) Serialize(ctx context.Context, value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return string(b), nil
}

func (c *JSONCodec) Deserialize(ctx context.Context, data string, out any) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("%w: %v", ErrDeserialize, err)
	}
	return nil
}

// EncodeStackFrame renders a single frame as "className|methodName|fileName|lineNumber",
// the wire encoding used for ErrorRecord.StackTrace entries.
func EncodeStackFrame(f StackFrame) string {
	return strings.Join([]string{
		f.ClassName,
		f.MethodName,
		f.FileName,
		strconv.Itoa(f.LineNumber),
	}, "|")
}

// DecodeStackFrame parses a single "className|methodName|fileName|lineNumber"
// frame. Malformed frames are dropped rather than failing the whole record:
// an unknown wire shape is fatal only to the affected frame, not the whole
// deserialize.
func DecodeStackFrame(s string) (StackFrame, bool) {
	parts := strings.SplitN(s, "|", 4)
	if len(parts) != 4 {
		return StackFrame{}, false
	}
	line, err := strconv.Atoi(parts[3])
	if err != nil {
		return StackFrame{}, false
	}
	return StackFrame{
		ClassName:  parts[0],
		MethodName: parts[1],
		FileName:   parts[2],
		LineNumber: line,
	}, true
}

// NewErrorRecord captures err as an ErrorRecord, encoding frames into the
// wire StackTrace form. typeName identifies the originating error class;
// callers at a Step/Invoke/Callback/ChildContext boundary supply it from
// the concrete error type they caught.
func NewErrorRecord(typeName string, err error, frames []StackFrame) *ErrorRecord {
	rec := &ErrorRecord{
		ErrorType:    typeName,
		ErrorMessage: err.Error(),
		StackFrames:  frames,
	}
	rec.StackTrace = make([]string, 0, len(frames))
	for _, f := range frames {
		rec.StackTrace = append(rec.StackTrace, EncodeStackFrame(f))
	}
	return rec
}

// HydrateStackFrames decodes ErrorRecord.StackTrace into ErrorRecord.StackFrames.
// Called after deserializing an ErrorRecord off the wire, where only
// StackTrace survives the JSON round trip.
func (e *ErrorRecord) HydrateStackFrames() {
	e.StackFrames = make([]StackFrame, 0, len(e.StackTrace))
	for _, s := range e.StackTrace {
		if f, ok := DecodeStackFrame(s); ok {
			e.StackFrames = append(e.StackFrames, f)
		}
	}
}
