package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore keeps records in process memory. Expired entries are pruned
// lazily on access, so no background sweeper runs. State is per-process:
// with multiple server processes each enforces its own cache, which is the
// documented looseness of the memory backend.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, scope, actorID, clientKey string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	entry, ok := s.entries[memoryKey(scope, actorID, clientKey)]
	if !ok {
		return Record{}, false, nil
	}
	return entry.record, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, scope, actorID, clientKey string, record Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	s.entries[memoryKey(scope, actorID, clientKey)] = memoryEntry{
		record:    record,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *MemoryStore) pruneLocked() {
	now := s.now()
	for key, entry := range s.entries {
		if !entry.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

func memoryKey(scope, actorID, clientKey string) string {
	return scope + "\x00" + actorID + "\x00" + clientKey
}
