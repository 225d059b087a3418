// Package auth implements the gateway's authentication manager (C7): issuing and validating bearer tokens across
// the four supported methods, and the argon2id/HMAC primitives those methods are built on.
package auth

import "github.com/google/uuid"

// Method is one of the four authentication methods the gateway accepts, tried in this resolution order per
// request: Bearer, APIKey, SessionCookie, TrustedLocal (the last only via the local IPC adapter).
type Method string

const (
	MethodBearer        Method = "BEARER"
	MethodAPIKey        Method = "API_KEY"
	MethodSessionCookie Method = "SESSION_COOKIE"
	MethodTrustedLocal  Method = "TRUSTED_LOCAL"
)

// Identity describes an authenticated principal.
type Identity struct {
	UserUUID    uuid.UUID
	Username    string
	Roles       []string
	Permissions []string
	Method      Method
}

// TrustedLocalUUID is the fixed identifier the local IPC adapter's TRUSTED_LOCAL principal carries. It is not a
// randomly generated UUID because every local-IPC request must resolve to the exact same scope-limited identity.
var TrustedLocalUUID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// TrustedLocalPermission is the sole permission pattern granted to the TRUSTED_LOCAL identity, per the original
// source's constrained local principal: local IPC never gets full admin rights.
const TrustedLocalPermission = "local.*"

// NewTrustedLocalIdentity returns the fixed, scope-limited identity the local IPC adapter authenticates every
// request as.
func NewTrustedLocalIdentity() Identity {
	return Identity{
		UserUUID:    TrustedLocalUUID,
		Username:    "trusted-local",
		Roles:       nil,
		Permissions: []string{TrustedLocalPermission},
		Method:      MethodTrustedLocal,
	}
}
