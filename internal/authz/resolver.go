package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/boeni-industries/aico-gateway/internal/auth"
	"github.com/boeni-industries/aico-gateway/internal/envelope"
)

// conversationActionPrefix is the action namespace the same-user context rule applies to.
const conversationActionPrefix = "conversation."

// Resolver is the gateway's authorization manager (C8). It evaluates role/permission rules against a requested
// action, memoizing the per-(user, roles) derived permission union.
type Resolver struct {
	roles  RoleStore
	cache  Cache
	policy DefaultPolicy
	log    zerolog.Logger
}

// NewResolver creates an authorization resolver. cache may be nil, in which case every call recomputes the role
// union (correct, just uncached).
func NewResolver(roles RoleStore, cache Cache, policy DefaultPolicy, log zerolog.Logger) *Resolver {
	if policy == "" {
		policy = PolicyDeny
	}
	return &Resolver{
		roles:  roles,
		cache:  cache,
		policy: policy,
		log:    log.With().Str("component", "authz").Logger(),
	}
}

// Authorize decides whether identity may perform action against the optional resource envelope, per spec §4.5:
// allow if the identity's own permissions or any of its roles' derived permissions match action by exact value,
// "*", or a "P*" prefix pattern; or if resource is supplied, action starts with "conversation.", and the envelope's
// source matches the identity's user UUID. Otherwise the configured default policy decides.
func (r *Resolver) Authorize(ctx context.Context, identity auth.Identity, action string, resource *envelope.Envelope) (bool, error) {
	if matchAny(identity.Permissions, action) {
		return true, nil
	}

	rolePerms, err := r.roleUnion(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("authz: resolve role permissions: %w", err)
	}
	if matchAny(rolePerms, action) {
		return true, nil
	}

	if resource != nil && strings.HasPrefix(action, conversationActionPrefix) &&
		resource.Metadata.Source == identity.UserUUID.String() {
		return true, nil
	}

	return r.policy == PolicyAllow, nil
}

// roleUnion returns the union of permission patterns granted by every role identity holds, using the cache keyed
// by (user_uuid, roles-tuple) when available.
func (r *Resolver) roleUnion(ctx context.Context, identity auth.Identity) ([]string, error) {
	key := cacheKey(identity.UserUUID.String(), identity.Roles)

	if r.cache != nil {
		perms, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.log.Warn().Err(err).Msg("permission cache get failed, falling through to compute")
		} else if ok {
			return perms, nil
		}
	}

	perms, err := r.compute(ctx, identity.Roles)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, key, perms); err != nil {
			r.log.Warn().Err(err).Msg("permission cache set failed")
		}
	}

	return perms, nil
}

func (r *Resolver) compute(ctx context.Context, roles []string) ([]string, error) {
	seen := make(map[string]struct{})
	var union []string
	for _, role := range roles {
		patterns, err := r.roles.PermissionsForRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("permissions for role %q: %w", role, err)
		}
		for _, p := range patterns {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			union = append(union, p)
		}
	}
	return union, nil
}

// matchAny reports whether action matches any pattern in perms, per the exact/"*"/"P*"-prefix rule.
func matchAny(perms []string, action string) bool {
	for _, p := range perms {
		if matchPattern(p, action) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, action string) bool {
	if pattern == AllPermissions {
		return true
	}
	if pattern == action {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(action, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// cacheKey builds the memoization key for a (user_uuid, roles-tuple) pair. Roles are sorted so that role order on
// the identity never produces a cache miss for an otherwise-identical set.
func cacheKey(userUUID string, roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return userUUID + ":" + strings.Join(sorted, ",")
}
