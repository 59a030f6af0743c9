package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss reports that the requested key is not present in the cache.
var ErrMiss = errors.New("cache: miss")

// Cache wraps a Redis client with JSON serialization and key prefixing.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCache constructs a Cache. The ttl is the default expiry used by Set.
func NewCache(client *redis.Client, prefix string, ttl time.Duration) *Cache {
	if prefix == "" {
		prefix = "cache"
	}
	return &Cache{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

// Get fetches the key and unmarshals it into target. Returns ErrMiss when absent.
func (c *Cache) Get(ctx context.Context, key string, target any) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(data, target)
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	return c.SetTTL(ctx, key, value, c.ttl)
}

// SetTTL stores value under key with an explicit TTL. Zero means no expiry.
func (c *Cache) SetTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes the key from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Exists reports whether the key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Expire sets a new expiry on an existing key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.client.Expire(ctx, c.key(key), ttl).Err()
}

// Increment adds amount to a counter key and returns the new value.
func (c *Cache) Increment(ctx context.Context, key string, amount int64) (int64, error) {
	return c.client.IncrBy(ctx, c.key(key), amount).Result()
}

// Decrement subtracts amount from a counter key and returns the new value.
func (c *Cache) Decrement(ctx context.Context, key string, amount int64) (int64, error) {
	return c.client.DecrBy(ctx, c.key(key), amount).Result()
}
