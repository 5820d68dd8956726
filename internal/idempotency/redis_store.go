package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giftwell/giftwell-backend/pkg/redis"
)

// RedisStore shares idempotency records across server processes. Expiry is
// delegated to the key TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store backed by the shared Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, scope, actorID, clientKey string) (Record, bool, error) {
	raw, err := s.client.Get(ctx, s.client.IdempotencyKey(scope, actorID, clientKey))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get idempotency record: %w", err)
	}

	var record Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return record, true, nil
}

func (s *RedisStore) Put(ctx context.Context, scope, actorID, clientKey string, record Record, ttl time.Duration) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, s.client.IdempotencyKey(scope, actorID, clientKey), string(raw), ttl); err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}
