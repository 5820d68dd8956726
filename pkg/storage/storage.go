package storage

import (
	"context"
	"time"
)

// Backend abstracts the object store holding item images. Paths are opaque
// bucket-relative keys.
type Backend interface {
	Upload(ctx context.Context, path, contentType string, data []byte) error
	Delete(ctx context.Context, path string) error
	// SignedReadURL returns a time-limited URL for one object. Raw paths are
	// never exposed to visitors.
	SignedReadURL(path string, expires time.Duration) (string, error)
	Ping(ctx context.Context) error
}
