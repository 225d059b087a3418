package authz

import (
	"github.com/gofiber/fiber/v3"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/ferror"
	"github.com/boeni-industries/aico-gateway/internal/httputil"
)

// RequirePermission returns Fiber middleware that authorizes the authenticated identity (stored in Locals by the
// REST adapter's auth middleware) against action. It carries no resource context, so the conversation.* same-user
// rule never applies here; use Resolver.Authorize directly from a handler when a resource envelope is available.
func RequirePermission(resolver *Resolver, action string) fiber.Handler {
	return func(c fiber.Ctx) error {
		identity, ok := c.Locals("identity").(auth.Identity)
		if !ok {
			return httputil.Fail(c, fiber.StatusUnauthorized, ferror.KindAuthentication, "authentication required")
		}

		allowed, err := resolver.Authorize(c.Context(), identity, action, nil)
		if err != nil {
			return httputil.Fail(c, fiber.StatusInternalServerError, ferror.KindInternal, "failed to evaluate permissions")
		}
		if !allowed {
			return httputil.Fail(c, fiber.StatusForbidden, ferror.KindAuthorization, "you do not have the required permissions")
		}

		return c.Next()
	}
}
