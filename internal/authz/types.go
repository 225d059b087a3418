// Package authz implements the gateway's authorization manager (C8): role- and permission-pattern based access
// decisions, with a Valkey-backed memoization cache keyed by (user_uuid, roles-tuple).
package authz

// DefaultPolicy decides the outcome when no rule matches an authorize() call.
type DefaultPolicy string

const (
	PolicyDeny  DefaultPolicy = "deny"
	PolicyAllow DefaultPolicy = "allow"
)

// AllPermissions is the wildcard permission string that grants every action.
const AllPermissions = "*"

// RoleSet is a role's list of permission patterns.
type RoleSet struct {
	Role        string
	Permissions []string
}
