package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// CacheTTL is the default time-to-live for a cached permission union.
	CacheTTL = 300 * time.Second

	// CachePrefix is the key prefix for cached permission unions in Valkey.
	CachePrefix = "aico:authz:perms"

	// InvalidateChannel is the Valkey pub/sub channel used to signal role-permission changes.
	InvalidateChannel = "aico.authz.invalidate"
)

// Cache stores the computed permission union for a (user_uuid, roles-tuple) key.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, perms []string) error
	DeleteByUser(ctx context.Context, userUUID string) error
	DeleteAll(ctx context.Context) error
}

// ValkeyCache implements Cache using Valkey/Redis.
type ValkeyCache struct {
	client *redis.Client
}

// NewValkeyCache creates a Valkey-backed permission cache.
func NewValkeyCache(client *redis.Client) *ValkeyCache {
	return &ValkeyCache{client: client}
}

func valkeyKey(key string) string {
	return CachePrefix + ":" + key
}

func (c *ValkeyCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	val, err := c.client.Get(ctx, valkeyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var perms []string
	if err := json.Unmarshal([]byte(val), &perms); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached permissions: %w", err)
	}
	return perms, true, nil
}

func (c *ValkeyCache) Set(ctx context.Context, key string, perms []string) error {
	data, err := json.Marshal(perms)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	if err := c.client.Set(ctx, valkeyKey(key), data, CacheTTL).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// DeleteByUser removes every cached permission union for userUUID, across every roles-tuple it was ever memoized
// under (a role change invalidates all of them, since the key embeds the role set).
func (c *ValkeyCache) DeleteByUser(ctx context.Context, userUUID string) error {
	return c.scanAndDelete(ctx, valkeyKey(userUUID)+":*")
}

func (c *ValkeyCache) DeleteAll(ctx context.Context) error {
	return c.scanAndDelete(ctx, CachePrefix+":*")
}

func (c *ValkeyCache) scanAndDelete(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan keys %q: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}
