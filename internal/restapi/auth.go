package restapi

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/httputil"
)

// authenticateRequest is POST {prefix}/auth/authenticate's body: whichever credential the client holds. Exactly one
// of these is expected to be set; Resolve tries them in the same BEARER -> API_KEY -> SESSION_COOKIE order the
// pipeline itself uses for the TRUSTED_LOCAL-free methods.
type authenticateRequest struct {
	BearerToken  string `json:"bearer_token"`
	APIKeyID     string `json:"api_key_id"`
	APIKeySecret string `json:"api_key_secret"`
	DeviceUUID   string `json:"device_uuid"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// authenticate serves POST {prefix}/auth/authenticate (spec §6): resolves whichever credential the body carries,
// then issues a fresh access/refresh token pair for the resolved identity. Rate limiting is the only pipeline stage
// applied besides authentication itself; there is no message to authorize or route yet.
func (s *Server) authenticate(c fiber.Ctx) error {
	var body authenticateRequest
	if err := c.Bind().Body(&body); err != nil {
		return httputil.FailErr(c, ferror.New(ferror.KindValidation, "request body is not valid JSON"))
	}

	if s.rateLimit != nil {
		if err := s.rateLimit.Check(c.IP()); err != nil {
			s.metrics.recordError()
			return httputil.FailErr(c, ferror.From(err))
		}
	}

	creds := auth.Credentials{
		BearerToken:  body.BearerToken,
		APIKeyID:     body.APIKeyID,
		APIKeySecret: body.APIKeySecret,
	}

	identity, err := s.authMgr.Resolve(c.Context(), creds)
	if err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.Wrap(ferror.KindAuthentication, "authentication failed", err))
	}

	deviceUUID := body.DeviceUUID
	if deviceUUID == "" {
		deviceUUID = uuid.NewString()
	}

	accessTok, err := s.authMgr.GenerateAccessToken(c.Context(), identity, deviceUUID)
	if err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.Wrap(ferror.KindInternal, "failed to issue access token", err))
	}
	refreshTok, err := s.authMgr.GenerateRefreshToken(c.Context(), identity, deviceUUID)
	if err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.Wrap(ferror.KindInternal, "failed to issue refresh token", err))
	}

	return httputil.Success(c, tokenPairResponse{
		AccessToken:  accessTok,
		RefreshToken: refreshTok,
		ExpiresIn:    int(s.authMgr.AccessTTL().Seconds()),
	})
}

// refresh serves POST {prefix}/auth/refresh: rotates the presented refresh token for a new access token.
func (s *Server) refresh(c fiber.Ctx) error {
	var body refreshRequest
	if err := c.Bind().Body(&body); err != nil || body.RefreshToken == "" {
		return httputil.FailErr(c, ferror.New(ferror.KindValidation, "refresh_token is required"))
	}

	newAccessTok, err := s.authMgr.RefreshToken(c.Context(), body.RefreshToken)
	if err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.Wrap(ferror.KindAuthentication, "refresh failed", err))
	}

	return httputil.Success(c, tokenPairResponse{
		AccessToken: newAccessTok,
		ExpiresIn:   int(s.authMgr.AccessTTL().Seconds()),
	})
}

// logout serves POST {prefix}/auth/logout: revokes the presented access token.
func (s *Server) logout(c fiber.Ctx) error {
	token := bearerToken(c.Get("Authorization"))
	if token == "" {
		return httputil.FailErr(c, ferror.New(ferror.KindAuthentication, "missing bearer token"))
	}

	if err := s.authMgr.RevokeToken(c.Context(), token); err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.Wrap(ferror.KindInternal, "failed to revoke token", err))
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header value, returning "" if the header
// is absent or malformed.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
