package authz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore implements RoleStore using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// NewPGStore creates a new PostgreSQL-backed role permission store.
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// PermissionsForRole returns the permission patterns granted to role. An unknown role has no rows and returns an
// empty slice, not an error -- an identity with a role nobody has defined simply contributes no extra permissions.
func (s *PGStore) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.db.Query(ctx, "SELECT pattern FROM role_permissions WHERE role = $1", role)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	var patterns []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
