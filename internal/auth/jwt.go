package auth

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType distinguishes an access token from a refresh token within the same claims shape.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Issuer is the fixed `iss` claim every token issued by this gateway carries.
const Issuer = "aico-api-gateway"

// Claims is the JWT claims shape for both access and refresh tokens.
type Claims struct {
	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Type        string   `json:"type"`
	jwt.RegisteredClaims
}

// signToken composes and signs claims for identity with the given type, ttl, and secret.
func signToken(identity Identity, tokenType TokenType, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("auth: signing secret must not be empty")
	}

	perms := append([]string(nil), identity.Permissions...)
	sort.Strings(perms)

	now := time.Now().UTC()
	claims := Claims{
		Username:    identity.Username,
		Roles:       append([]string(nil), identity.Roles...),
		Permissions: perms,
		Type:        string(tokenType),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserUUID.String(),
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// parseToken parses and signature-verifies a token string, without checking expiry, by using
// jwt.WithoutClaimsValidation in the parser; the caller maps expired/invalid distinctly.
func parseToken(tokenStr string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, ErrExpired
		}
		return claims, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !token.Valid {
		return claims, ErrInvalid
	}
	return claims, nil
}

// UserUUID parses the claims' subject as a UUID.
func (c *Claims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// ToIdentity converts validated claims into an Identity.
func (c *Claims) ToIdentity(method Method) (Identity, error) {
	id, err := c.UserUUID()
	if err != nil {
		return Identity{}, fmt.Errorf("auth: claims subject is not a valid UUID: %w", err)
	}
	return Identity{
		UserUUID:    id,
		Username:    c.Username,
		Roles:       c.Roles,
		Permissions: c.Permissions,
		Method:      method,
	}, nil
}
