package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache backs the Cache contract with a shared Redis instance,
// letting a fleet of webpodsd instances share one cache (SPEC_FULL.md
// §5 "Shared-resource policy"). Each pool is namespaced as a key
// prefix; Clear uses SCAN rather than KEYS to avoid blocking the Redis
// event loop on a large keyspace.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) namespacedKey(pool, key string) string {
	return pool + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, pool, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.namespacedKey(pool, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, pool, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.namespacedKey(pool, key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, pool, key string) error {
	return c.client.Del(ctx, c.namespacedKey(pool, key)).Err()
}

// Clear scans pool's keyspace for pattern (a trailing "*" is passed
// straight through to Redis's own glob matching) and deletes matches in
// batches.
func (c *RedisCache) Clear(ctx context.Context, pool, pattern string) error {
	matchPattern := c.namespacedKey(pool, pattern)

	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, matchPattern, 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)
