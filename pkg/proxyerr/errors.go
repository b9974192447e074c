// Package proxyerr defines the error kinds of spec.md §7, each mapping to
// a distinct propagation policy at the HTTP boundary.
package proxyerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error kinds spec.md §7 enumerates.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindPolicyRejection Kind = "PolicyRejection"
	KindUpstream       Kind = "UpstreamError"
	KindTimeout        Kind = "TimeoutError"
	KindProtocol       Kind = "ProtocolError"
	KindSink           Kind = "SinkError"
	KindInternal       Kind = "InternalError"
)

// Error is a typed, wrapped error carrying a Kind.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind, wrapping an underlying
// error for %w-style unwrapping.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it returns KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code spec.md §7's table specifies.
// SinkError has no HTTP representation since it is never propagated to a
// client; it maps to 0 as a sentinel for "do not surface."
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindPolicyRejection:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindProtocol:
		return http.StatusGatewayTimeout
	case KindSink:
		return 0
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsTerminal reports whether the kind always ends the stream (all kinds
// except SinkError, which is locally recovered per spec.md §7).
func IsTerminal(kind Kind) bool {
	return kind != KindSink
}
