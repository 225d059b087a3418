package restapi

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/httputil"
	"github.com/boeni-industries/aico-gateway/internal/pipeline"
)

// envelopeSource is the value every envelope this adapter builds carries as Metadata.Source.
const envelopeSource = "rest-adapter"

// catchAll serves every route under Config.Prefix that isn't one of the dedicated health/status/auth endpoints
// (spec §4.8a): it packs the method, path, and body into a MessageEnvelope and runs the shared pipeline.
// message_type is derived from the path with the route's prefix stripped, e.g. "POST /users/authenticate" under
// prefix "/api/v1" becomes message_type "api/users/authenticate", exactly per the spec's literal example.
func (s *Server) catchAll(c fiber.Ctx) error {
	messageType := "api" + strings.TrimPrefix(c.Path(), s.cfg.Prefix)

	var payload any = map[string]any{}
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			return httputil.FailErr(c, ferror.New(ferror.KindValidation, "request body is not valid JSON"))
		}
	}

	env, err := envelope.New(envelopeSource, messageType, payload)
	if err != nil {
		return httputil.FailErr(c, ferror.Wrap(ferror.KindInternal, "failed to build request envelope", err))
	}
	env = attachHeaderAttributes(env, c)

	outcome, err := pipeline.Run(c.Context(), s.deps, pipeline.Request{
		RemoteIP:    c.IP(),
		Credentials: credentialsFromRequest(c),
		Envelope:    env,
	})
	if err != nil {
		s.metrics.recordError()
		return httputil.FailErr(c, ferror.From(err))
	}

	if !outcome.Result.Success {
		s.metrics.recordError()
		kind := ferror.KindInternal
		if outcome.Result.TimedOut {
			kind = ferror.KindTimeout
		}
		return httputil.Fail(c, kind.HTTPStatus(), kind, outcome.Result.Error)
	}

	var data any
	if err := outcome.Result.Response.Unmarshal(&data); err != nil {
		data = json.RawMessage(outcome.Result.Response.Payload)
	}
	return httputil.Success(c, data)
}

// attachHeaderAttributes copies c's request headers into the envelope's attributes map, per spec §4.8a's
// "headers mapped to attributes". Multi-value headers are joined with a comma, matching net/http's Header.Get
// convention rather than keeping every value.
func attachHeaderAttributes(env envelope.Envelope, c fiber.Ctx) envelope.Envelope {
	for key, values := range c.GetReqHeaders() {
		env = env.WithAttribute(key, strings.Join(values, ","))
	}
	return env
}

// credentialsFromRequest extracts whatever auth material the request carries, in the fixed BEARER -> API_KEY ->
// SESSION_COOKIE resolution order (TRUSTED_LOCAL is never valid over REST).
func credentialsFromRequest(c fiber.Ctx) auth.Credentials {
	if token := bearerToken(c.Get("Authorization")); token != "" {
		return auth.Credentials{BearerToken: token}
	}
	if keyID := c.Get("X-API-Key-Id"); keyID != "" {
		return auth.Credentials{APIKeyID: keyID, APIKeySecret: c.Get("X-API-Key-Secret")}
	}
	if cookie := c.Cookies("session"); cookie != "" {
		return auth.Credentials{SessionCookie: cookie}
	}
	return auth.Credentials{}
}
