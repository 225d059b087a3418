package auth

import "context"

// Credentials carries whatever authentication material an adapter extracted from one request. At most the fields
// relevant to the adapter's transport are populated; Resolve picks the first method present in the fixed
// BEARER -> API_KEY -> SESSION_COOKIE -> TRUSTED_LOCAL resolution order.
type Credentials struct {
	BearerToken   string
	APIKeyID      string
	APIKeySecret  string
	SessionCookie string
	IsLocalIPC    bool // set only by the local IPC adapter; TRUSTED_LOCAL is never valid elsewhere
}

// Resolve authenticates req's credentials using whichever method is present, in the fixed resolution order.
func (m *Manager) Resolve(ctx context.Context, req Credentials) (Identity, error) {
	switch {
	case req.BearerToken != "":
		return m.AuthenticateJWT(ctx, req.BearerToken)
	case req.APIKeyID != "":
		return m.AuthenticateAPIKey(ctx, req.APIKeyID, req.APIKeySecret)
	case req.SessionCookie != "":
		return m.AuthenticateJWT(ctx, req.SessionCookie)
	case req.IsLocalIPC:
		return m.AuthenticateTrustedLocal(ctx), nil
	default:
		return Identity{}, ErrNoCredentials
	}
}
