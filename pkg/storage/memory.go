package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps objects in process memory. It backs local development
// and tests where no bucket is reachable.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	contentType string
	data        []byte
}

// NewMemoryBackend returns an empty in-process object store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]memoryObject)}
}

func (m *MemoryBackend) Upload(ctx context.Context, path, contentType string, data []byte) error {
	if path == "" {
		return fmt.Errorf("storage: object path is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[path] = memoryObject{contentType: contentType, data: stored}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, path)
	return nil
}

func (m *MemoryBackend) SignedReadURL(path string, expires time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.objects[path]; !ok {
		return "", fmt.Errorf("storage: object %q not found", path)
	}
	return fmt.Sprintf("memory://objects/%s?expires=%d", path, int64(expires.Seconds())), nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

// Object returns a stored object's content type and bytes. Test helper.
func (m *MemoryBackend) Object(path string) (string, []byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[path]
	if !ok {
		return "", nil, false
	}
	return obj.contentType, obj.data, true
}

// Len reports how many objects the backend holds. Test helper.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
