package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "protalk:delivered:"

// RedisStore is a Store shared between worker instances.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed store. A non-positive ttl uses DefaultTTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Seen implements Store.
func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists delivered key: %w", err)
	}
	return n > 0, nil
}

// Mark implements Store.
func (s *RedisStore) Mark(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, keyPrefix+key, 1, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set delivered key: %w", err)
	}
	return nil
}
