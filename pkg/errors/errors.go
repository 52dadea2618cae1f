// Package errors provides standardized error types for use across livebridge packages.
//
// ContextualError is the base error type that captures component, operation, an
// optional failure kind and optional details. It implements the error and Unwrap
// interfaces for seamless integration with Go's errors package.
//
// Usage:
//
//	err := errors.NewKind("bridge", "Handshake", errors.ErrHandshake, someErr)
//	if stderrors.Is(err, errors.ErrHandshake) { ... }
package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Failure kinds. A ContextualError carrying one of these as its Kind matches it
// with errors.Is, independent of the wrapped cause.
var (
	// ErrHandshake means the client's first message was absent, malformed, or late.
	ErrHandshake = errors.New("handshake failed")

	// ErrUpstreamConnect means the upstream session could not be opened.
	ErrUpstreamConnect = errors.New("upstream connect failed")

	// ErrDecode means a client envelope could not be parsed.
	ErrDecode = errors.New("decode failed")

	// ErrSend means a fragment could not be written to the upstream session.
	ErrSend = errors.New("send failed")

	// ErrReceive means the upstream response stream failed.
	ErrReceive = errors.New("receive failed")
)

// ContextualError is a structured error type that provides consistent context
// about where and why an error occurred.
type ContextualError struct {
	// Component identifies the package that produced the error (e.g. "bridge", "gemini").
	Component string

	// Operation describes what was being done when the error occurred.
	Operation string

	// Kind is one of the package-level failure kinds, or nil.
	Kind error

	// Details holds optional structured metadata about the error.
	Details map[string]any

	// Cause is the underlying error, if any.
	Cause error
}

// New creates a ContextualError with the given component, operation, and cause.
func New(component, operation string, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Cause:     cause,
	}
}

// NewKind creates a ContextualError tagged with a failure kind.
func NewKind(component, operation string, kind, cause error) *ContextualError {
	return &ContextualError{
		Component: component,
		Operation: operation,
		Kind:      kind,
		Cause:     cause,
	}
}

// Error returns a human-readable representation of the error.
func (e *ContextualError) Error() string {
	base := fmt.Sprintf("[%s] %s", e.Component, e.Operation)

	if e.Kind != nil {
		base += ": " + e.Kind.Error()
	}

	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}

	return base
}

// Unwrap returns the underlying cause, enabling use with errors.Is and errors.As.
func (e *ContextualError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is this error's Kind.
func (e *ContextualError) Is(target error) bool {
	return e.Kind != nil && e.Kind == target
}

// WithDetails sets the details map and returns the error.
func (e *ContextualError) WithDetails(details map[string]any) *ContextualError {
	e.Details = details
	return e
}

// LogValue renders the error as a slog group: the message followed by the
// details in key order.
func (e *ContextualError) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.Details)+1)
	attrs = append(attrs, slog.String("msg", e.Error()))
	for _, k := range slices.Sorted(maps.Keys(e.Details)) {
		attrs = append(attrs, slog.Any(k, e.Details[k]))
	}
	return slog.GroupValue(attrs...)
}

