package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrRunNotQueued   = errors.New("run is not queued")
	ErrObjectConflict = errors.New("object exists with different content")
)

// ErrorKind classifies a pipeline failure by origin so callers can map it
// to handling without inspecting transport details.
type ErrorKind string

const (
	// KindValidation marks input rejected before any backend call.
	KindValidation ErrorKind = "validation"
	// KindUnavailable marks a backend that stayed unreachable or kept
	// failing transiently after the client exhausted its retry budget.
	KindUnavailable ErrorKind = "unavailable"
	// KindUnauthorized marks rejected credentials. Never retried.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindConflict marks a storage key collision with different content.
	KindConflict ErrorKind = "conflict"
	// KindCanceled marks work cut short by context cancellation or deadline.
	KindCanceled ErrorKind = "canceled"
	// KindUnexpected marks responses that violate the backend contract.
	KindUnexpected ErrorKind = "unexpected"
)

// Error is the failure descriptor that crosses stage boundaries. Raw
// transport errors stay wrapped in Cause and never reach API consumers.
type Error struct {
	Kind      ErrorKind `json:"kind"`
	Stage     StageKind `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	// Attempts counts the calls actually issued before the failure surfaced.
	Attempts int   `json:"attempts,omitempty"`
	Cause    error `json:"-"`
}

func (e *Error) Error() string {
	if e.Stage != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s: [%s] %s: %v", e.Stage, e.Kind, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s: [%s] %s", e.Stage, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithStage returns a copy attributed to the given stage.
func (e *Error) WithStage(stage StageKind) *Error {
	clone := *e
	clone.Stage = stage
	return &clone
}

// NewError builds a structured error for the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf builds a structured error with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a structured error keeping cause for logs and unwrapping.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// CanceledError reports cancellation, distinguishing deadline expiry.
func CanceledError(cause error) *Error {
	msg := "canceled"
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "deadline exceeded"
	}
	return &Error{Kind: KindCanceled, Message: msg, Cause: cause}
}

// KindOf extracts the error kind, walking the wrap chain. Plain errors
// report KindUnexpected; nil reports the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnexpected
}

// IsRetryable reports whether a caller may retry the failed call as-is.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}
