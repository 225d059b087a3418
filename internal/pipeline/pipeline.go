// Package pipeline runs the fixed adapter request pipeline shared by the REST, WebSocket, and local IPC adapters
// (spec §4.8): security filter, authenticate, rate limit, validate, authorize, route. Each adapter is responsible
// only for framing its transport's request into an envelope and mapping the returned error's Kind back onto its own
// wire format (HTTP status, close code, or reply envelope).
package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/authz"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/ratelimit"
	"github.com/boeni-industries/aico-gateway/internal/router"
	"github.com/boeni-industries/aico-gateway/internal/security"
	"github.com/boeni-industries/aico-gateway/internal/validator"
)

// Dependencies holds the components one pipeline.Run call threads a request through. Any field may be nil, in which
// case that stage is skipped entirely (useful for adapters or tests exercising only part of the pipeline); Router is
// the only stage every real caller needs.
type Dependencies struct {
	Security  *security.Filter
	Auth      *auth.Manager
	RateLimit *ratelimit.Limiter
	Validator *validator.Registry
	Authz     *authz.Resolver
	Router    *router.Router
}

// Request is one inbound call, already framed as an envelope by the calling adapter.
type Request struct {
	RemoteIP    string
	Credentials auth.Credentials
	Envelope    envelope.Envelope
}

// Outcome is what Run returns on success: the identity the request resolved to (useful for audit logging at the
// adapter level) and the router's result.
type Outcome struct {
	Identity auth.Identity
	Result   router.Result
}

// Run executes the pipeline against req. The returned error, if any, is always a *ferror.Error (see ferror.From),
// so callers can map it to a transport status via its Kind without a type switch.
func Run(ctx context.Context, deps Dependencies, req Request) (Outcome, error) {
	env := req.Envelope

	if deps.Security != nil {
		size, err := env.Size()
		if err != nil {
			return Outcome{}, ferror.Wrap(ferror.KindInternal, "failed to measure request size", err)
		}

		var payload any
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return Outcome{}, ferror.Wrap(ferror.KindValidation, "payload is not valid JSON", err)
			}
		}

		sanitized, err := deps.Security.Screen(req.RemoteIP, int64(size), payload)
		if err != nil {
			return Outcome{}, ferror.From(err)
		}

		raw, err := json.Marshal(sanitized)
		if err != nil {
			return Outcome{}, ferror.Wrap(ferror.KindInternal, "failed to re-marshal sanitized payload", err)
		}
		env.Payload = raw
	}

	var identity auth.Identity
	if deps.Auth != nil {
		var err error
		identity, err = deps.Auth.Resolve(ctx, req.Credentials)
		if err != nil {
			return Outcome{}, ferror.Wrap(ferror.KindAuthentication, "authentication failed", err)
		}
	}

	if deps.RateLimit != nil {
		if err := deps.RateLimit.Check(rateLimitKey(identity)); err != nil {
			return Outcome{Identity: identity}, ferror.From(err)
		}
	}

	if deps.Validator != nil {
		if err := deps.Validator.Validate(&env); err != nil {
			return Outcome{Identity: identity}, ferror.From(err)
		}
	}

	if deps.Authz != nil {
		allowed, err := deps.Authz.Authorize(ctx, identity, actionForTopic(env.Metadata.MessageType), &env)
		if err != nil {
			return Outcome{Identity: identity}, ferror.Wrap(ferror.KindInternal, "authorization check failed", err)
		}
		if !allowed {
			return Outcome{Identity: identity}, ferror.New(ferror.KindAuthorization, "not authorized")
		}
	}

	result, err := deps.Router.RouteMessage(ctx, env)
	if err != nil {
		return Outcome{Identity: identity}, ferror.From(err)
	}
	return Outcome{Identity: identity, Result: result}, nil
}

// rateLimitKey picks the rate limiter bucket key: the authenticated user's UUID once known, so per-user limits
// survive across connections/IPs; Check fails open on an empty key, matching an unauthenticated identity's
// zero-value UUID only once resolution itself already failed upstream.
func rateLimitKey(identity auth.Identity) string {
	return identity.UserUUID.String()
}

// actionForTopic derives the authorization action string from a message_type topic by replacing its "/" separators
// with authz's "." namespace separator (e.g. "conversation/send" -> "conversation.send"), so the router's
// slash-delimited topic_mapping and the authz resolver's dot-delimited permission patterns can share one
// message_type value without either side reformatting the other.
func actionForTopic(messageType string) string {
	return strings.ReplaceAll(messageType, "/", ".")
}
