package authz

import "context"

// RoleStore resolves a role name to its list of permission patterns. Role definitions are administered out of band
// (seeded via migration or an admin endpoint outside this package's scope); this interface only needs to read them.
type RoleStore interface {
	PermissionsForRole(ctx context.Context, role string) ([]string, error)
}
