package tickets

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UploadTicket is a single-use capability for one object upload. Everything
// the ticket asserts is re-validated at redemption; the ticket only pins the
// storage path and the constraints the upload was prepared under.
type UploadTicket struct {
	Token       string    `json:"token"`
	WishlistID  uuid.UUID `json:"wishlist_id"`
	ItemID      uuid.UUID `json:"item_id"`
	OwnerID     string    `json:"owner_id"`
	StoragePath string    `json:"storage_path"`
	Mime        string    `json:"mime"`
	SizeBytes   int64     `json:"size_bytes"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PreviewTicket is a single-use capability for one signed object read.
type PreviewTicket struct {
	Token       string    `json:"token"`
	StoragePath string    `json:"storage_path"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store persists tickets by token. Take removes the ticket so no token can be
// observed twice; implementations may expire tickets lazily, the manager
// checks ExpiresAt regardless.
type Store interface {
	PutUpload(ctx context.Context, ticket UploadTicket, ttl time.Duration) error
	TakeUpload(ctx context.Context, token string) (UploadTicket, bool, error)
	PutPreview(ctx context.Context, ticket PreviewTicket, ttl time.Duration) error
	TakePreview(ctx context.Context, token string) (PreviewTicket, bool, error)
}

func newToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate ticket token: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
