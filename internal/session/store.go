package session

import (
	"context"
	"time"
)

// Store persists and queries sessions. *PGStore is the production implementation; auth manager tests use an
// in-memory fake satisfying the same interface.
type Store interface {
	// Create inserts a new session row.
	Create(ctx context.Context, s Session) error
	// LookupByTokenHash returns the session row for the given token hash. Returns ErrNotFound if no row matches.
	LookupByTokenHash(ctx context.Context, tokenHash string) (Session, error)
	// Revoke marks the session with the given ID as revoked. Idempotent: revoking an already-revoked session is not
	// an error.
	Revoke(ctx context.Context, sessionID string) error
	// Rotate atomically revokes oldSessionID and creates newSession, so a concurrent lookup never observes both
	// rows as active or neither as present.
	Rotate(ctx context.Context, oldSessionID string, newSession Session) error
	// Touch updates a session's last_activity timestamp.
	Touch(ctx context.Context, sessionID string) error
	// DeleteExpired removes every row whose expires_at has passed and returns the count removed.
	DeleteExpired(ctx context.Context) (int64, error)
	// PurgeRevokedOlderThan removes revoked rows whose created_at is older than the given cutoff and returns the
	// count removed.
	PurgeRevokedOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
