package common

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the render pipeline. Request-shaped errors are always returned to the
// caller; only a DispatcherFault may be escalated to process level.
var (
	// ErrDegenerateTransform is returned when a transform's basis has a near-zero axis and cannot be decomposed.
	ErrDegenerateTransform = errors.New("degenerate transform")

	// ErrQueueFull is returned when an admitted job could not be placed on the bounded render queue.
	ErrQueueFull = errors.New("render queue full")

	// ErrDispatcherClosed is returned when a job is submitted after the dispatcher has been closed.
	ErrDispatcherClosed = errors.New("dispatcher closed")
)

// MissingFieldError reports a required request field that was not supplied.
type MissingFieldError struct {
	// Field is the wire name of the missing field (e.g. "width").
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// ParseError reports a request field that was present but could not be parsed.
type ParseError struct {
	// Field is the wire name of the malformed field.
	Field string
	// Err is the underlying parse failure.
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse field %q: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RenderFailure wraps any error raised while rendering an admitted job: a missing model, a decode
// error, a GPU failure or a recovered panic. It is surfaced once through the job's completion handle.
type RenderFailure struct {
	Cause error
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("render failed: %v", e.Cause)
}

func (e *RenderFailure) Unwrap() error {
	return e.Cause
}

// DispatcherFault is an internal invariant violation inside the dispatcher, such as a completion handle
// being resolved twice. It is the only error class that may terminate the process.
type DispatcherFault struct {
	Reason string
}

func (e *DispatcherFault) Error() string {
	return "dispatcher fault: " + e.Reason
}

// IsRequestError reports whether err describes a malformed inbound request.
//
// Parameters:
//   - err: the error to classify
//
// Returns:
//   - bool: true for MissingFieldError and ParseError
func IsRequestError(err error) bool {
	var missing *MissingFieldError
	var parse *ParseError
	return errors.As(err, &missing) || errors.As(err, &parse)
}
