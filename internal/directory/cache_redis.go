package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"kioskgw/pkg/platform/sentinel"
)

const (
	// Redis key prefix for cached participant records
	participantKeyPrefix = "participant:key:"
)

// RedisCache is a Redis-backed participant cache shared across gateway
// replicas. Records are stored as JSON.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithTTL bounds how long cached records live. Zero means no expiry; cached
// records are fully-enrolled participants whose enrollment state never
// regresses.
func WithTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

// NewRedisCache constructs a Redis-backed participant cache.
func NewRedisCache(client *redis.Client, opts ...RedisCacheOption) *RedisCache {
	cache := &RedisCache{client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

// Get returns the cached record for the key, or sentinel.ErrNotFound.
func (c *RedisCache) Get(ctx context.Context, naturalKey string) (*Record, error) {
	data, err := c.client.Get(ctx, participantKeyPrefix+naturalKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode cached participant: %w", err)
	}
	return &record, nil
}

// Set stores a record under the key.
func (c *RedisCache) Set(ctx context.Context, naturalKey string, record *Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode participant: %w", err)
	}
	if err := c.client.Set(ctx, participantKeyPrefix+naturalKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
