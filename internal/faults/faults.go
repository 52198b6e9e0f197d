// Package faults defines the error taxonomy shared by the orchestration core
// and its surfaces. Every failure a caller can observe is classified by a
// machine-readable kind so reports can separate configuration mistakes,
// engine-load failures, per-job engine errors, and persistence errors.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable failure category.
type Kind string

const (
	// KindConfig marks a malformed or incomplete backend configuration.
	// Raised before any engine load is attempted.
	KindConfig Kind = "CONFIG_ERROR"
	// KindLoad marks an engine that failed to initialize. Fatal to the
	// whole batch that requested it.
	KindLoad Kind = "LOAD_ERROR"
	// KindRecognition marks one job's speech-to-text call failing.
	KindRecognition Kind = "RECOGNITION_ERROR"
	// KindSummarization marks one job's summarization call failing.
	KindSummarization Kind = "SUMMARIZATION_ERROR"
	// KindIO marks a result that could not be persisted.
	KindIO Kind = "IO_ERROR"
	// KindCancelled marks a job abandoned or never started due to
	// cancellation. Distinct from failure: the job did not run to an error.
	KindCancelled Kind = "CANCELLED"
	// KindUnavailable marks a backend decided unusable at configuration
	// time; every call on such an engine fails with this kind.
	KindUnavailable Kind = "BACKEND_UNAVAILABLE"
	// KindTimeout marks an engine call that exceeded its deadline.
	KindTimeout Kind = "TIMEOUT"
)

// Error is the coded error type used across the core.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error formats the fault with its kind and underlying cause.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New creates a fault with the given kind and message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a fault carrying an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Config builds a configuration fault.
func Config(format string, args ...any) *Error { return New(KindConfig, format, args...) }

// Load builds an engine-load fault.
func Load(cause error, format string, args ...any) *Error {
	return Wrap(KindLoad, cause, format, args...)
}

// Recognition builds a per-job recognition fault.
func Recognition(cause error, format string, args ...any) *Error {
	return Wrap(KindRecognition, cause, format, args...)
}

// Summarization builds a per-job summarization fault.
func Summarization(cause error, format string, args ...any) *Error {
	return Wrap(KindSummarization, cause, format, args...)
}

// IO builds a persistence fault.
func IO(cause error, format string, args ...any) *Error {
	return Wrap(KindIO, cause, format, args...)
}

// Cancelled builds a cancellation fault.
func Cancelled(format string, args ...any) *Error { return New(KindCancelled, format, args...) }

// Unavailable builds a backend-unavailable fault.
func Unavailable(format string, args ...any) *Error { return New(KindUnavailable, format, args...) }

// Timeout builds an engine-call timeout fault.
func Timeout(format string, args ...any) *Error { return New(KindTimeout, format, args...) }

// KindOf classifies an arbitrary error. Errors outside the taxonomy map to an
// empty kind so callers can treat them as internal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps a fault kind to the status code the REST surface returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfig:
		return http.StatusBadRequest
	case KindUnavailable, KindLoad:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
