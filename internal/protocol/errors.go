package protocol

import (
	"errors"
	"fmt"
)

// Domain errors for the protocol package.
var (
	// ErrMalformed is returned when a line does not have the structure of
	// any known record.
	ErrMalformed = errors.New("protocol: malformed record")

	// ErrBadValue is returned when a record is well-formed but its value
	// token cannot be decoded.
	ErrBadValue = errors.New("protocol: invalid value")

	// ErrLineTooLong is returned for lines exceeding MaxLineLength. The
	// remainder of the line is discarded.
	ErrLineTooLong = errors.New("protocol: line too long")
)

// ParseError describes a line that could not be decoded.
// It is recoverable: the offending record is dropped and reading continues.
type ParseError struct {
	Line   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %q", e.Err, e.Line)
	}
	return fmt.Sprintf("%v: %s: %q", e.Err, e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func malformed(line, reason string) *ParseError {
	return &ParseError{Line: line, Reason: reason, Err: ErrMalformed}
}

func badValue(line, reason string) *ParseError {
	return &ParseError{Line: line, Reason: reason, Err: ErrBadValue}
}
