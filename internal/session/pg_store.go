package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boeni-industries/aico-gateway/internal/postgres"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a new PostgreSQL-backed session store.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, sess Session) error {
	return create(ctx, s.db, sess)
}

func create(ctx context.Context, q queryer, sess Session) error {
	meta, err := marshalMetadata(sess.Metadata)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO sessions (session_id, user_uuid, device_uuid, token_hash, created_at, expires_at, status, last_activity, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sess.SessionID, sess.UserUUID, sess.DeviceUUID, sess.TokenHash, sess.CreatedAt, sess.ExpiresAt, string(sess.Status), sess.LastActivity, meta)
	if err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

func (s *PGStore) LookupByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT session_id, user_uuid, device_uuid, token_hash, created_at, expires_at, status, last_activity, metadata
		FROM sessions WHERE token_hash = $1
	`, tokenHash)
	return scanSession(row)
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var status string
	var meta *string
	err := row.Scan(&sess.SessionID, &sess.UserUUID, &sess.DeviceUUID, &sess.TokenHash,
		&sess.CreatedAt, &sess.ExpiresAt, &status, &sess.LastActivity, &meta)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: scan: %w", err)
	}
	sess.Status = Status(status)
	if meta != nil {
		if err := json.Unmarshal([]byte(*meta), &sess.Metadata); err != nil {
			return Session{}, fmt.Errorf("session: unmarshal metadata: %w", err)
		}
	}
	return sess, nil
}

func (s *PGStore) Revoke(ctx context.Context, sessionID string) error {
	return revoke(ctx, s.db, sessionID)
}

func revoke(ctx context.Context, q queryer, sessionID string) error {
	_, err := q.Exec(ctx, `UPDATE sessions SET status = $1 WHERE session_id = $2`, string(StatusRevoked), sessionID)
	if err != nil {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// Rotate revokes oldSessionID and inserts newSession inside a single transaction, so a concurrent lookup never
// observes both rows active.
func (s *PGStore) Rotate(ctx context.Context, oldSessionID string, newSession Session) error {
	return postgres.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := revoke(ctx, tx, oldSessionID); err != nil {
			return err
		}
		return create(ctx, tx, newSession)
	})
}

func (s *PGStore) Touch(ctx context.Context, sessionID string) error {
	_, err := s.db.Exec(ctx, `UPDATE sessions SET last_activity = $1 WHERE session_id = $2`, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE expires_at < $1`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) PurgeRevokedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE status = $1 AND created_at < $2`, string(StatusRevoked), cutoff)
	if err != nil {
		return 0, fmt.Errorf("session: purge revoked: %w", err)
	}
	return tag.RowsAffected(), nil
}

// queryer is satisfied by both *pgxpool.Pool and pgx.Tx, letting create/revoke run either standalone or inside
// Rotate's transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func marshalMetadata(m map[string]string) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("session: marshal metadata: %w", err)
	}
	s := string(raw)
	return &s, nil
}
