package session

import "errors"

var (
	// ErrNotFound is returned when no session row matches the given token hash or session ID.
	ErrNotFound = errors.New("session: not found")
	// ErrRevoked is returned by Lookup when the matched session's status is not active.
	ErrRevoked = errors.New("session: revoked")
	// ErrExpired is returned by Lookup when the matched session's expires_at has passed.
	ErrExpired = errors.New("session: expired")
)
