package auth

import "errors"

// Sentinel errors surfaced by the auth manager. The REST and WebSocket adapters map these to ferror.KindAuthentication.
var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrExpired            = errors.New("auth: token expired")
	ErrRevoked            = errors.New("auth: token revoked")
	ErrInvalid            = errors.New("auth: token invalid")
	ErrWrongTokenType     = errors.New("auth: wrong token type for this operation")
	ErrNoCredentials      = errors.New("auth: no credentials presented")
)
