// Package ferror defines the gateway-wide error taxonomy (spec §7) shared by every adapter's error mapper. Each Kind
// carries the HTTP status an adapter should surface and the WebSocket close code, where one applies.
package ferror

import (
	"errors"
	"fmt"
)

// Kind enumerates the gateway's error taxonomy. Kinds are not Go types: a single Error value carries one Kind plus a
// human-readable message and an optional wrapped cause.
type Kind string

const (
	KindSecurity        Kind = "security_error"
	KindAuthentication  Kind = "authentication_error"
	KindAuthorization   Kind = "authorization_error"
	KindRateLimit       Kind = "rate_limit_exceeded"
	KindValidation      Kind = "validation_error"
	KindNoRoute         Kind = "no_route"
	KindMessageTooLarge Kind = "message_too_large"
	KindTimeout         Kind = "timeout"
	KindPublishFailed   Kind = "publish_failed"
	KindConnectFailed   Kind = "connect_failed"
	KindInternal        Kind = "internal"
)

// Error is the concrete error type returned across every gateway component's public API. Its Message is safe to
// show to an end user; it never includes a stack trace or internal identifier.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given kind with a user-facing message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind, attaching cause for logging while keeping message as the only
// user-visible text.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Is reports whether err (or any error it wraps) is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind
}

// From coerces err into a *Error: if err already wraps one, that one is returned unchanged; otherwise err is wrapped
// as KindInternal. Every adapter uses this to map a pipeline error to a transport response without a type switch.
func From(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(KindInternal, "internal error", err)
}

// HTTPStatus maps a Kind to the status code an adapter's error mapper should return (spec §4.8a, §7). Kinds with no
// entry here fall back to 500 (KindInternal's status), matching "any other -> 500".
func (k Kind) HTTPStatus() int {
	switch k {
	case KindSecurity:
		return 400
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindRateLimit:
		return 429
	case KindValidation:
		return 400
	case KindNoRoute:
		return 404
	case KindMessageTooLarge:
		return 413
	case KindTimeout:
		return 504
	case KindPublishFailed:
		return 502
	case KindConnectFailed:
		return 503
	default:
		return 500
	}
}
