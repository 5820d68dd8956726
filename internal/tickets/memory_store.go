package tickets

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps tickets in process memory with lazy expiry pruning.
type MemoryStore struct {
	mu       sync.Mutex
	uploads  map[string]UploadTicket
	previews map[string]PreviewTicket
	now      func() time.Time
}

// NewMemoryStore returns an empty in-process ticket store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		uploads:  make(map[string]UploadTicket),
		previews: make(map[string]PreviewTicket),
		now:      now,
	}
}

func (s *MemoryStore) PutUpload(ctx context.Context, ticket UploadTicket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	s.uploads[ticket.Token] = ticket
	return nil
}

func (s *MemoryStore) TakeUpload(ctx context.Context, token string) (UploadTicket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	ticket, ok := s.uploads[token]
	if ok {
		delete(s.uploads, token)
	}
	return ticket, ok, nil
}

func (s *MemoryStore) PutPreview(ctx context.Context, ticket PreviewTicket, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	s.previews[ticket.Token] = ticket
	return nil
}

func (s *MemoryStore) TakePreview(ctx context.Context, token string) (PreviewTicket, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	ticket, ok := s.previews[token]
	if ok {
		delete(s.previews, token)
	}
	return ticket, ok, nil
}

func (s *MemoryStore) pruneLocked() {
	now := s.now()
	for token, ticket := range s.uploads {
		if !ticket.ExpiresAt.After(now) {
			delete(s.uploads, token)
		}
	}
	for token, ticket := range s.previews {
		if !ticket.ExpiresAt.After(now) {
			delete(s.previews, token)
		}
	}
}
