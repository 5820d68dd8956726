package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giftwell/giftwell-backend/pkg/redis"
)

const (
	uploadKind  = "upload"
	previewKind = "preview"
)

// RedisStore shares tickets across server processes. GETDEL makes the take
// atomic so no token is redeemed twice.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a store backed by the shared Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) PutUpload(ctx context.Context, ticket UploadTicket, ttl time.Duration) error {
	return s.put(ctx, uploadKind, ticket.Token, ticket, ttl)
}

func (s *RedisStore) TakeUpload(ctx context.Context, token string) (UploadTicket, bool, error) {
	var ticket UploadTicket
	found, err := s.take(ctx, uploadKind, token, &ticket)
	return ticket, found, err
}

func (s *RedisStore) PutPreview(ctx context.Context, ticket PreviewTicket, ttl time.Duration) error {
	return s.put(ctx, previewKind, ticket.Token, ticket, ttl)
}

func (s *RedisStore) TakePreview(ctx context.Context, token string) (PreviewTicket, bool, error) {
	var ticket PreviewTicket
	found, err := s.take(ctx, previewKind, token, &ticket)
	return ticket, found, err
}

func (s *RedisStore) put(ctx context.Context, kind, token string, ticket any, ttl time.Duration) error {
	raw, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode %s ticket: %w", kind, err)
	}
	if err := s.client.Set(ctx, s.client.TicketKey(kind, token), string(raw), ttl); err != nil {
		return fmt.Errorf("store %s ticket: %w", kind, err)
	}
	return nil
}

func (s *RedisStore) take(ctx context.Context, kind, token string, out any) (bool, error) {
	raw, err := s.client.GetDel(ctx, s.client.TicketKey(kind, token))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("take %s ticket: %w", kind, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s ticket: %w", kind, err)
	}
	return true, nil
}
