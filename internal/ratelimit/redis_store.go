package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/giftwell/giftwell-backend/pkg/redis"
)

// RedisStore shares window counters across server processes. The key TTL is
// the window: INCR opens it, EXPIRE on the first hit bounds it, and Redis
// eviction closes it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store backed by the shared Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Incr(ctx context.Context, scope, actorID, origin string, window time.Duration) (int64, time.Duration, error) {
	key := s.client.RateLimitKey(scope, actorID, origin)
	count, err := s.client.IncrWithTTL(ctx, key, window)
	if err != nil {
		return 0, 0, fmt.Errorf("increment window counter: %w", err)
	}

	remaining, err := s.client.TTL(ctx, key)
	if err != nil {
		return 0, 0, fmt.Errorf("read window ttl: %w", err)
	}
	if remaining < 0 {
		// Counter without a TTL (EXPIRE raced or was lost). Treat as a full
		// fresh window rather than leaking an immortal counter.
		remaining = window
	}
	return count, remaining, nil
}
