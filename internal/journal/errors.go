package journal

import (
	"errors"
	"fmt"
)

// ErrFraming matches every error produced for malformed stream framing.
var ErrFraming = errors.New("journal framing error")

// Framing failure reasons. A *FramingError wraps exactly one of these.
var (
	ErrTruncatedLine     = errors.New("stream ended inside a line")
	ErrLineTooLong       = errors.New("line exceeds maximum size")
	ErrTruncatedHeader   = errors.New("not enough bytes for binary size")
	ErrFieldTooLarge     = errors.New("binary field exceeds maximum size")
	ErrTruncatedPayload  = errors.New("stream ended inside binary payload")
	ErrMissingTerminator = errors.New("binary payload not followed by newline")
)

var reasonCodes = map[error]string{
	ErrTruncatedLine:     "truncated_line",
	ErrLineTooLong:       "line_too_long",
	ErrTruncatedHeader:   "truncated_header",
	ErrFieldTooLarge:     "field_too_large",
	ErrTruncatedPayload:  "truncated_payload",
	ErrMissingTerminator: "missing_terminator",
}

// FramingError reports where and why a stream stopped parsing.
type FramingError struct {
	Reason error
	// Offset is the number of stream bytes consumed when the error was detected.
	Offset int64
	// Field names the binary field being decoded, if any.
	Field string
}

func (e *FramingError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%v at byte %d (field %q): %v", ErrFraming, e.Offset, e.Field, e.Reason)
	}
	return fmt.Sprintf("%v at byte %d: %v", ErrFraming, e.Offset, e.Reason)
}

func (e *FramingError) Unwrap() []error {
	return []error{ErrFraming, e.Reason}
}

// Code returns a short stable identifier for the failure reason, suitable for
// metric labels.
func (e *FramingError) Code() string {
	if code, ok := reasonCodes[e.Reason]; ok {
		return code
	}
	return "unknown"
}

// ReasonCode returns the FramingError code carried by err, or "" when err is
// not a framing error.
func ReasonCode(err error) string {
	var fe *FramingError
	if errors.As(err, &fe) {
		return fe.Code()
	}
	return ""
}
