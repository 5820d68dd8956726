package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore counts windows in process memory. Expired windows are pruned
// lazily on access. State is per-process: with multiple server processes each
// enforces its own window, which is the documented looseness of this backend.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		windows: make(map[string]window),
		now:     now,
	}
}

func (s *MemoryStore) Incr(ctx context.Context, scope, actorID, origin string, windowLength time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	key := scope + "\x00" + actorID + "\x00" + origin
	current, ok := s.windows[key]
	if !ok || !current.expiresAt.After(now) {
		current = window{count: 0, expiresAt: now.Add(windowLength)}
	}
	current.count++
	s.windows[key] = current
	return current.count, current.expiresAt.Sub(now), nil
}

func (s *MemoryStore) pruneLocked(now time.Time) {
	for key, w := range s.windows {
		if !w.expiresAt.After(now) {
			delete(s.windows, key)
		}
	}
}
