package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const catalogKey = "permissions:catalog"

// Cache wraps Redis based caching for the permission catalog. The catalog is
// reference data that changes only on deploys, so a short TTL is enough and
// a cold or unreachable Redis just means a database read.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Fetch loads the cached catalog or populates it using the loader.
func (c *Cache) Fetch(ctx context.Context, loader func(context.Context) ([]Permission, error)) ([]Permission, error) {
	if loader == nil {
		return nil, errors.New("permissions: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	raw, err := c.client.Get(ctx, catalogKey).Bytes()
	if err == nil {
		var cached []Permission
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Corrupt payload: drop it and fall through to the loader.
		_ = c.client.Del(ctx, catalogKey).Err()
	} else if !errors.Is(err, redis.Nil) {
		return loader(ctx)
	}

	list, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(list); err == nil {
		_ = c.client.Set(ctx, catalogKey, data, c.ttl).Err()
	}
	return list, nil
}

// Invalidate drops the cached catalog.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, catalogKey).Err()
}
