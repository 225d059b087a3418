package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/session"
)

// AuditTopic is the bus topic the manager publishes an event to on every authenticate/issue/revoke/refresh call,
// success or failure, mirroring the original AuthenticationManager's audit logging.
const AuditTopic = "system/audit/auth"

// AuditPublisher is the subset of the bus client the manager needs to emit audit events. It is optional: a nil
// publisher simply means no audit events are emitted.
type AuditPublisher interface {
	PublishNew(ctx context.Context, topic string, payload any) error
}

// Config holds the manager's tunable parameters.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Argon2     Argon2Params
}

// Argon2Params is the current Argon2id tuning the manager hashes and rehashes API key secrets with. A stored hash
// whose own parameters drift from these (e.g. after an operator raises Memory) is rotated on next successful
// AuthenticateAPIKey call, mirroring the original AuthenticationManager's lazy hash rotation on login.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params matches the original AuthenticationManager's defaults.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Memory: 65536, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

// DefaultConfig returns the spec's default TTLs: 15 minutes access, a longer-lived refresh token.
func DefaultConfig() Config {
	return Config{
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Argon2:     DefaultArgon2Params(),
	}
}

// Manager is the gateway's authentication manager (C7). It issues and validates tokens across the BEARER, API_KEY,
// SESSION_COOKIE, and TRUSTED_LOCAL methods.
type Manager struct {
	cfg      Config
	secret   []byte
	hashKey  string        // hex-encoded HMAC key for token_hash, per internal/auth.HMACIdentifier
	sessions session.Store // nil means "session service unavailable": falls back to an in-memory revocation set
	apiKeys  ApiKeyStore
	audit    AuditPublisher
	log      zerolog.Logger

	revokedMu sync.Mutex
	revoked   map[string]struct{} // fallback revocation set, keyed by token string
}

// ApiKeyStore resolves an API key's secret hash and owning identity by key ID, for the API_KEY auth method.
type ApiKeyStore interface {
	LookupByKeyID(ctx context.Context, keyID string) (secretHash string, identity Identity, err error)

	// UpdateSecretHash persists a freshly-rotated Argon2id hash for keyID. Called best-effort after a successful
	// AuthenticateAPIKey whose stored hash no longer matches the manager's current Argon2 parameters; a failure
	// here must never fail the authentication it followed.
	UpdateSecretHash(ctx context.Context, keyID, newHash string) error
}

// New creates an authentication manager. sessions may be nil (session service unavailable: revocation falls back
// to an in-memory set, per spec). apiKeys and audit may be nil if the API_KEY method or audit logging is unused.
func New(cfg Config, signingSecret []byte, tokenHashKeyHex string, sessions session.Store, apiKeys ApiKeyStore, audit AuditPublisher, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		secret:   signingSecret,
		hashKey:  tokenHashKeyHex,
		sessions: sessions,
		apiKeys:  apiKeys,
		audit:    audit,
		log:      log.With().Str("component", "auth").Logger(),
		revoked:  make(map[string]struct{}),
	}
}

// AccessTTL returns the configured access token lifetime, for adapters reporting expires_in to a client without
// re-parsing the token they just received.
func (m *Manager) AccessTTL() time.Duration {
	return m.cfg.AccessTTL
}

func (m *Manager) tokenHash(token string) (string, error) {
	return HMACIdentifier(token, m.hashKey)
}

func (m *Manager) emitAudit(ctx context.Context, event string, identity Identity, ok bool, detail string) {
	if m.audit == nil {
		return
	}
	payload := map[string]any{
		"event":     event,
		"success":   ok,
		"detail":    detail,
		"user_uuid": identity.UserUUID.String(),
		"method":    string(identity.Method),
	}
	// Audit events are best-effort and must never block or fail the caller's request.
	if err := m.audit.PublishNew(ctx, AuditTopic, payload); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("failed to publish audit event")
	}
}

// GenerateAccessToken issues a signed access token for identity and, if a session service is configured, creates
// an active session row bound to deviceUUID.
func (m *Manager) GenerateAccessToken(ctx context.Context, identity Identity, deviceUUID string) (string, error) {
	return m.issueToken(ctx, identity, deviceUUID, TokenAccess, m.cfg.AccessTTL)
}

// GenerateRefreshToken issues a signed refresh token for identity, stored in a distinct session row from any
// access token.
func (m *Manager) GenerateRefreshToken(ctx context.Context, identity Identity, deviceUUID string) (string, error) {
	return m.issueToken(ctx, identity, deviceUUID, TokenRefresh, m.cfg.RefreshTTL)
}

func (m *Manager) issueToken(ctx context.Context, identity Identity, deviceUUID string, tokenType TokenType, ttl time.Duration) (string, error) {
	tok, err := signToken(identity, tokenType, m.secret, ttl)
	if err != nil {
		m.emitAudit(ctx, "issue_"+string(tokenType), identity, false, err.Error())
		return "", err
	}

	if m.sessions != nil {
		hash, err := m.tokenHash(tok)
		if err != nil {
			m.emitAudit(ctx, "issue_"+string(tokenType), identity, false, err.Error())
			return "", fmt.Errorf("auth: hash token: %w", err)
		}
		now := time.Now().UTC()
		sess := session.Session{
			SessionID:    uuid.New().String(),
			UserUUID:     identity.UserUUID.String(),
			DeviceUUID:   deviceUUID,
			TokenHash:    hash,
			CreatedAt:    now,
			ExpiresAt:    now.Add(ttl),
			Status:       session.StatusActive,
			LastActivity: now,
		}
		if err := m.sessions.Create(ctx, sess); err != nil {
			m.emitAudit(ctx, "issue_"+string(tokenType), identity, false, err.Error())
			return "", fmt.Errorf("auth: create session: %w", err)
		}
	}

	m.emitAudit(ctx, "issue_"+string(tokenType), identity, true, "")
	return tok, nil
}

// AuthenticateJWT validates a bearer token string against the session store (if configured) and its signature,
// returning the identity it encodes.
func (m *Manager) AuthenticateJWT(ctx context.Context, tokenStr string) (Identity, error) {
	if m.sessions != nil {
		hash, err := m.tokenHash(tokenStr)
		if err != nil {
			return Identity{}, fmt.Errorf("auth: hash token: %w", err)
		}
		sess, err := m.sessions.LookupByTokenHash(ctx, hash)
		switch {
		case err == session.ErrNotFound:
			// No session row at all: fall through to signature verification alone, matching "if session service
			// is configured" rather than "if a row exists" -- a configured-but-empty store still verifies.
		case err != nil:
			return Identity{}, fmt.Errorf("auth: session lookup: %w", err)
		default:
			if sess.Status != session.StatusActive || sess.Expired(time.Now().UTC()) {
				m.emitAudit(ctx, "authenticate", Identity{}, false, "session revoked or expired")
				return Identity{}, ErrRevoked
			}
		}
	} else if m.isRevokedFallback(tokenStr) {
		m.emitAudit(ctx, "authenticate", Identity{}, false, "token in fallback revocation set")
		return Identity{}, ErrRevoked
	}

	claims, err := parseToken(tokenStr, m.secret)
	if err != nil {
		m.emitAudit(ctx, "authenticate", Identity{}, false, err.Error())
		return Identity{}, err
	}

	identity, err := claims.ToIdentity(MethodBearer)
	if err != nil {
		m.emitAudit(ctx, "authenticate", Identity{}, false, err.Error())
		return Identity{}, ErrInvalid
	}

	m.emitAudit(ctx, "authenticate", identity, true, "")
	return identity, nil
}

func (m *Manager) isRevokedFallback(token string) bool {
	m.revokedMu.Lock()
	defer m.revokedMu.Unlock()
	_, ok := m.revoked[token]
	return ok
}

// RevokeToken marks the token's session row revoked, or, if the session store is unavailable, records it in an
// in-memory fallback revocation set. Idempotent.
func (m *Manager) RevokeToken(ctx context.Context, tokenStr string) error {
	if m.sessions == nil {
		m.revokedMu.Lock()
		m.revoked[tokenStr] = struct{}{}
		m.revokedMu.Unlock()
		m.emitAudit(ctx, "revoke", Identity{}, true, "fallback revocation set")
		return nil
	}

	hash, err := m.tokenHash(tokenStr)
	if err != nil {
		return fmt.Errorf("auth: hash token: %w", err)
	}
	sess, err := m.sessions.LookupByTokenHash(ctx, hash)
	if err == session.ErrNotFound {
		return nil // idempotent: nothing to revoke
	}
	if err != nil {
		return fmt.Errorf("auth: session lookup: %w", err)
	}
	if err := m.sessions.Revoke(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("auth: revoke session: %w", err)
	}
	m.emitAudit(ctx, "revoke", Identity{UserUUID: uuid.MustParse(sess.UserUUID)}, true, "")
	return nil
}

// RefreshToken validates current (an access or refresh token), atomically revokes its session and issues a new
// access token bound to a new session row, and returns the new token. Failure at any step leaves the current
// session untouched and returns no new token.
func (m *Manager) RefreshToken(ctx context.Context, current string) (string, error) {
	identity, err := m.AuthenticateJWT(ctx, current)
	if err != nil {
		return "", err
	}

	newTok, err := signToken(identity, TokenAccess, m.secret, m.cfg.AccessTTL)
	if err != nil {
		m.emitAudit(ctx, "refresh", identity, false, err.Error())
		return "", err
	}

	if m.sessions == nil {
		m.emitAudit(ctx, "refresh", identity, true, "no session service, stateless refresh")
		return newTok, nil
	}

	oldHash, err := m.tokenHash(current)
	if err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}
	oldSess, err := m.sessions.LookupByTokenHash(ctx, oldHash)
	if err != nil && err != session.ErrNotFound {
		return "", fmt.Errorf("auth: session lookup: %w", err)
	}

	newHash, err := m.tokenHash(newTok)
	if err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}
	now := time.Now().UTC()
	newSess := session.Session{
		SessionID:    uuid.New().String(),
		UserUUID:     identity.UserUUID.String(),
		DeviceUUID:   oldSess.DeviceUUID,
		TokenHash:    newHash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.cfg.AccessTTL),
		Status:       session.StatusActive,
		LastActivity: now,
	}

	if oldSess.SessionID != "" {
		if err := m.sessions.Rotate(ctx, oldSess.SessionID, newSess); err != nil {
			m.emitAudit(ctx, "refresh", identity, false, err.Error())
			return "", fmt.Errorf("auth: rotate session: %w", err)
		}
	} else if err := m.sessions.Create(ctx, newSess); err != nil {
		m.emitAudit(ctx, "refresh", identity, false, err.Error())
		return "", fmt.Errorf("auth: create session: %w", err)
	}

	m.emitAudit(ctx, "refresh", identity, true, "")
	return newTok, nil
}

// AuthenticateAPIKey resolves an API_KEY credential: keyID for O(1) lookup, secret verified against an Argon2id
// hash, mirroring the original's key-id-plus-hash API key table design rather than a bare token.
func (m *Manager) AuthenticateAPIKey(ctx context.Context, keyID, secret string) (Identity, error) {
	if m.apiKeys == nil {
		return Identity{}, ErrNoCredentials
	}
	hash, identity, err := m.apiKeys.LookupByKeyID(ctx, keyID)
	if err != nil {
		m.emitAudit(ctx, "authenticate_api_key", Identity{}, false, err.Error())
		return Identity{}, ErrInvalidCredentials
	}
	ok, err := VerifyPassword(secret, hash)
	if err != nil || !ok {
		m.emitAudit(ctx, "authenticate_api_key", identity, false, "secret mismatch")
		return Identity{}, ErrInvalidCredentials
	}
	identity.Method = MethodAPIKey

	// Lazy hash rotation: rehash with current parameters if the stored hash was generated with older settings.
	a := m.cfg.Argon2
	if NeedsRehash(hash, a.Memory, a.Iterations, a.Parallelism, a.SaltLength, a.KeyLength) {
		if newHash, hashErr := HashPassword(secret, a.Memory, a.Iterations, a.Parallelism, a.SaltLength, a.KeyLength); hashErr == nil {
			if updateErr := m.apiKeys.UpdateSecretHash(ctx, keyID, newHash); updateErr != nil {
				m.log.Warn().Err(updateErr).Str("key_id", keyID).Msg("failed to rotate API key secret hash")
			} else {
				m.log.Debug().Str("key_id", keyID).Msg("API key secret hash rotated to current Argon2 parameters")
			}
		}
	}

	m.emitAudit(ctx, "authenticate_api_key", identity, true, "")
	return identity, nil
}

// AuthenticateTrustedLocal returns the fixed local IPC identity. This method is only ever invoked by the local IPC
// adapter; other adapters never carry TRUSTED_LOCAL credentials.
func (m *Manager) AuthenticateTrustedLocal(ctx context.Context) Identity {
	identity := NewTrustedLocalIdentity()
	m.emitAudit(ctx, "authenticate_trusted_local", identity, true, "")
	return identity
}
