// Package data provides data access layer implementations.
package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache key prefixes
const (
	// CacheKeyGuild is the prefix for guild config caches: guild:{id}
	CacheKeyGuild = "guild"
	// CacheKeySnippet is the prefix for snippet caches: snippet:{guild}:{name}
	CacheKeySnippet = "snippet"
	// CacheKeyCooldown is the prefix for command cooldowns: cooldown:{guild}:{user}:{cmd}
	CacheKeyCooldown = "cooldown"
)

// Cache TTL durations
const (
	// TTLGuild is the TTL for guild config caches (5 minutes)
	TTLGuild = 5 * time.Minute
	// TTLSnippet is the TTL for snippet caches (10 minutes)
	TTLSnippet = 10 * time.Minute
)

// l1Size caps the in-process tier; entries beyond this evict LRU-first.
const l1Size = 2048

// l1TTL keeps the in-process tier short-lived so cross-process
// invalidations converge quickly.
const l1TTL = 30 * time.Second

// ErrCacheNotFound is returned when a cache key does not exist
var ErrCacheNotFound = errors.New("cache: key not found")

// CacheClient defines the interface for cache operations.
// Implementations must be thread-safe and handle serialization/deserialization.
type CacheClient interface {
	// Get retrieves a value from cache and deserializes it into dest.
	// Returns ErrCacheNotFound if key doesn't exist.
	Get(ctx context.Context, key string, dest interface{}) error

	// Set stores a value in cache with the specified TTL.
	// The value is serialized to JSON before storage.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key from cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache.
	Exists(ctx context.Context, key string) (bool, error)
}

// tieredCache layers an in-process LRU in front of Redis. Reads that
// hit the LRU skip the network round trip; writes and deletes go to
// both tiers.
type tieredCache struct {
	local  *expirable.LRU[string, []byte]
	client *redis.Client
}

// NewCacheClient creates a two-tier cache client backed by an
// in-process LRU and Redis. If the Redis client is nil, cache
// operations will gracefully fail.
func NewCacheClient(rdb *redis.Client) CacheClient {
	return &tieredCache{
		local:  expirable.NewLRU[string, []byte](l1Size, nil, l1TTL),
		client: rdb,
	}
}

// Get retrieves a value from cache and deserializes it into dest.
// Returns ErrCacheNotFound if the key doesn't exist in either tier.
func (c *tieredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if data, ok := c.local.Get(key); ok {
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
		}
		return nil
	}

	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("cache: failed to get key %s: %w", key, err)
	}

	c.local.Add(key, []byte(val))

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("cache: failed to unmarshal value for key %s: %w", key, err)
	}

	return nil
}

// Set stores a value in both tiers with the specified TTL.
// The value is serialized to JSON before storage.
func (c *tieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to set key %s: %w", key, err)
	}

	c.local.Add(key, data)

	return nil
}

// Delete removes a key from both tiers.
func (c *tieredCache) Delete(ctx context.Context, key string) error {
	c.local.Remove(key)

	if c.client == nil {
		return errors.New("cache: redis client is nil")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: failed to delete key %s: %w", key, err)
	}

	return nil
}

// Exists checks if a key exists in either tier.
func (c *tieredCache) Exists(ctx context.Context, key string) (bool, error) {
	if c.local.Contains(key) {
		return true, nil
	}

	if c.client == nil {
		return false, errors.New("cache: redis client is nil")
	}

	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: failed to check existence of key %s: %w", key, err)
	}

	return count > 0, nil
}

// BuildCacheKey constructs a cache key with the appropriate prefix.
// Examples:
//   - BuildCacheKey(CacheKeyGuild, "123") -> "guild:123"
//   - BuildCacheKey(CacheKeySnippet, "123", "rules") -> "snippet:123:rules"
func BuildCacheKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += ":" + part
	}
	return key
}
