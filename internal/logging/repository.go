package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists log entries to the `logs` table.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Postgres-backed log repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert writes one row to the `logs` table.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	var extra []byte
	if len(e.Extra) > 0 {
		var err error
		extra, err = json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("logging: marshal extra: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO logs (
			timestamp, level, subsystem, module, function_name, file_path,
			line_number, topic, message, user_uuid, session_id, trace_id, extra
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		e.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00"),
		e.Level.String(),
		e.Subsystem,
		e.Module,
		nullableString(e.FunctionName),
		nullableString(e.FilePath),
		nullableInt(e.LineNumber),
		nullableString(e.Topic),
		e.Message,
		nullableString(e.UserUUID),
		nullableString(e.SessionID),
		nullableString(e.TraceID),
		nullableBytes(extra),
	)
	if err != nil {
		return fmt.Errorf("logging: insert log row: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
