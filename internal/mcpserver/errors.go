package mcpserver

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that translate to HTTP status codes.
// The set is closed; handlers switch on it and must not parse messages.
type Kind string

const (
	KindBadRequest       Kind = "bad_request"
	KindNotFound         Kind = "not_found"
	KindServerNotRunning Kind = "server_not_running"
	KindSpawn            Kind = "spawn_error"
	KindHandshake        Kind = "handshake_error"
	KindProtocol         Kind = "protocol_error"
	KindTimeout          Kind = "timeout"
	KindChildGone        Kind = "child_gone"
	KindConflict         Kind = "conflict"
)

// Error is the typed failure returned by the core. ProtocolError-kind
// errors additionally carry the child's JSON-RPC code and data.
type Error struct {
	Kind    Kind
	Message string
	Code    int    // JSON-RPC error code, KindProtocol only
	Data    []byte // JSON-RPC error data, KindProtocol only
	wrapped error
}

func (e *Error) Error() string {
	if e.Kind == KindProtocol {
		return fmt.Sprintf("%s: %s (code %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// errf builds a typed error with a formatted message; %w verbs chain the
// wrapped cause as usual.
func errf(kind Kind, format string, args ...any) *Error {
	formatted := fmt.Errorf(format, args...)
	return &Error{
		Kind:    kind,
		Message: formatted.Error(),
		wrapped: errors.Unwrap(formatted),
	}
}

// KindOf returns the Kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
