package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for deployments that run more than
// one gateway process. Redis expires keys after the TTL; StoredAt is still
// checked on read so both backends agree on freshness.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewRedisStore creates a Redis-backed store with the given TTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Layer implements the metrics layer name.
func (s *RedisStore) Layer() string { return "redis" }

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired(s.ttl, s.now()) {
		return nil, ErrCacheMiss
	}

	CacheSize.WithLabelValues(s.Layer()).Set(float64(len(data)))
	return &entry, nil
}

// Set stores entry under key with the store TTL, overwriting any previous
// value and resetting StoredAt.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	stored := *entry
	stored.Key = key.String()
	stored.StoredAt = s.now()

	data, err := sonic.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, stored.Key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues(s.Layer()).Set(float64(len(data)))
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
