package tickets

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/internal/wishlists"
	"github.com/giftwell/giftwell-backend/pkg/config"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/storage"
)

const ownerEmail = "owner@example.com"

func TestPrepareAndRedeemUpload(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	grant, err := env.manager.PrepareUpload(ctx, env.wishlistID, item.ID, ownerEmail, "grinder photo.png", "image/png", 2048)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if grant.Token == "" || grant.StoragePath == "" {
		t.Fatalf("incomplete grant: %+v", grant)
	}
	if strings.Contains(grant.StoragePath, " ") {
		t.Fatalf("storage path must not contain spaces: %s", grant.StoragePath)
	}
	if !strings.Contains(grant.StoragePath, item.ID.String()) {
		t.Fatalf("storage path must be keyed by item: %s", grant.StoragePath)
	}

	updated, err := env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if len(updated.Images) != 1 || updated.Images[0].StoragePath != grant.StoragePath {
		t.Fatalf("image reference not attached: %+v", updated.Images)
	}
	if _, _, ok := env.backend.Object(grant.StoragePath); !ok {
		t.Fatal("object not stored")
	}

	// Single use: the same token cannot be redeemed twice.
	_, err = env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/png", []byte("png-bytes"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidUploadToken {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrepareUploadValidation(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)
	archivedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	archived := env.seedItem(t, &archivedAt)
	full := env.seedItem(t, nil)
	fullImages := dbtypes.ImageRefs{}
	for i := 0; i < env.cfg.MaxImages; i++ {
		fullImages = append(fullImages, dbtypes.ImageRef{URL: "https://cdn.example.com/" + uuid.NewString()})
	}
	if err := env.db.Model(&models.Item{}).Where("id = ?", full.ID).Update("images", fullImages).Error; err != nil {
		t.Fatalf("seed images: %v", err)
	}

	cases := []struct {
		name   string
		itemID uuid.UUID
		owner  string
		mime   string
		size   int64
		want   pkgerrors.Code
	}{
		{"missing owner", item.ID, "", "image/png", 1024, pkgerrors.CodeActorUnresolvable},
		{"wrong owner", item.ID, "stranger@example.com", "image/png", 1024, pkgerrors.CodeForbidden},
		{"unknown item", uuid.New(), ownerEmail, "image/png", 1024, pkgerrors.CodeNotFound},
		{"archived item", archived.ID, ownerEmail, "image/png", 1024, pkgerrors.CodeArchived},
		{"bad mime", item.ID, ownerEmail, "application/pdf", 1024, pkgerrors.CodeInvalidMime},
		{"zero size", item.ID, ownerEmail, "image/png", 0, pkgerrors.CodeInvalidSize},
		{"too large", item.ID, ownerEmail, "image/png", env.cfg.MaxUploadBytes() + 1, pkgerrors.CodeFileTooLarge},
		{"image limit", full.ID, ownerEmail, "image/png", 1024, pkgerrors.CodeImageLimitReached},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.manager.PrepareUpload(ctx, env.wishlistID, tc.itemID, tc.owner, "photo.png", tc.mime, tc.size)
			if err == nil {
				t.Fatal("expected error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestRedeemUploadMimeMismatchConsumesTicketNotQuota(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	grant, err := env.manager.PrepareUpload(ctx, env.wishlistID, item.ID, ownerEmail, "photo.png", "image/png", 2048)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	_, err = env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/jpeg", []byte("jpeg-bytes"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidMime {
		t.Fatalf("unexpected error: %v", err)
	}

	// No quota consumed: the image list is untouched and nothing was stored.
	var reloaded models.Item
	if err := env.db.First(&reloaded, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if len(reloaded.Images) != 0 {
		t.Fatalf("image list must be unchanged: %+v", reloaded.Images)
	}
	if env.backend.Len() != 0 {
		t.Fatal("nothing should have been uploaded")
	}

	// The ticket was consumed by the failure.
	_, err = env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/png", []byte("png-bytes"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidUploadToken {
		t.Fatalf("ticket should be spent: %v", err)
	}
}

func TestRedeemUploadRevalidatesState(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	grant, err := env.manager.PrepareUpload(ctx, env.wishlistID, item.ID, ownerEmail, "photo.png", "image/png", 2048)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// The item is archived between preparation and redemption.
	now := env.now()
	if err := env.db.Model(&models.Item{}).Where("id = ?", item.ID).Update("archived_at", &now).Error; err != nil {
		t.Fatalf("archive item: %v", err)
	}

	_, err = env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/png", []byte("png-bytes"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeArchived {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedeemUploadExpiredTicket(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	grant, err := env.manager.PrepareUpload(ctx, env.wishlistID, item.ID, ownerEmail, "photo.png", "image/png", 2048)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	env.advance(env.cfg.UploadTTL + time.Second)
	_, err = env.manager.RedeemUpload(ctx, grant.Token, ownerEmail, "image/png", []byte("png-bytes"))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeInvalidUploadToken {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreatePreviewExternalImage(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)
	external := dbtypes.ImageRefs{{URL: "https://cdn.example.com/grinder.png"}}
	if err := env.db.Model(&models.Item{}).Where("id = ?", item.ID).Update("images", external).Error; err != nil {
		t.Fatalf("seed images: %v", err)
	}

	grant, err := env.manager.CreatePreview(ctx, env.wishlistID, item.ID, ownerEmail, 0)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if grant.URL != "https://cdn.example.com/grinder.png" || grant.Token != "" {
		t.Fatalf("external image must resolve directly: %+v", grant)
	}
}

func TestCreateAndRedeemPreviewManagedImage(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	upload, err := env.manager.PrepareUpload(ctx, env.wishlistID, item.ID, ownerEmail, "photo.png", "image/png", 2048)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := env.manager.RedeemUpload(ctx, upload.Token, ownerEmail, "image/png", []byte("png-bytes")); err != nil {
		t.Fatalf("redeem upload: %v", err)
	}

	grant, err := env.manager.CreatePreview(ctx, env.wishlistID, item.ID, ownerEmail, 0)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if grant.Token == "" || grant.URL != "" {
		t.Fatalf("managed image must issue a token: %+v", grant)
	}

	url, err := env.manager.RedeemPreview(ctx, grant.Token)
	if err != nil {
		t.Fatalf("redeem preview: %v", err)
	}
	if !strings.Contains(url, upload.StoragePath) {
		t.Fatalf("signed url must reference the object: %s", url)
	}

	// Preview tokens are single use too.
	if _, err := env.manager.RedeemPreview(ctx, grant.Token); err == nil {
		t.Fatal("expected spent token to fail")
	}
}

func TestCreatePreviewValidation(t *testing.T) {
	t.Parallel()

	env := newTicketEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	_, err := env.manager.CreatePreview(ctx, env.wishlistID, item.ID, "stranger@example.com", 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = env.manager.CreatePreview(ctx, env.wishlistID, item.ID, ownerEmail, 0)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("index out of range must be not found: %v", err)
	}
}

type ticketEnv struct {
	db         *gorm.DB
	manager    Manager
	backend    *storage.MemoryBackend
	cfg        config.TicketConfig
	wishlistID uuid.UUID
	current    time.Time
}

func newTicketEnv(t *testing.T) *ticketEnv {
	t.Helper()

	dsn := "file:tickets_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Wishlist{}, &models.Item{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env := &ticketEnv{
		db:         db,
		backend:    storage.NewMemoryBackend(),
		wishlistID: uuid.New(),
		current:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		cfg: config.TicketConfig{
			Backend:      "memory",
			UploadTTL:    10 * time.Minute,
			PreviewTTL:   5 * time.Minute,
			MaxImages:    4,
			MaxUploadMB:  8,
			AllowedMimes: []string{"image/png", "image/jpeg", "image/webp", "image/gif"},
		},
	}
	wishlist := models.Wishlist{
		ID:         env.wishlistID,
		OwnerEmail: ownerEmail,
		Title:      "Housewarming",
		CreatedAt:  env.current,
		UpdatedAt:  env.current,
	}
	if err := db.Create(&wishlist).Error; err != nil {
		t.Fatalf("seed wishlist: %v", err)
	}

	now := func() time.Time { return env.current }
	manager, err := NewManager(ManagerParams{
		Store:     NewMemoryStore(now),
		Items:     items.NewRepository(db, 2*time.Second),
		Wishlists: wishlists.NewRepository(db, 2*time.Second),
		Storage:   env.backend,
		Config:    env.cfg,
		Download:  5 * time.Minute,
		Now:       now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	env.manager = manager
	return env
}

func (e *ticketEnv) now() time.Time {
	return e.current
}

func (e *ticketEnv) advance(d time.Duration) {
	e.current = e.current.Add(d)
}

func (e *ticketEnv) seedItem(t *testing.T, archivedAt *time.Time) models.Item {
	t.Helper()
	item := models.Item{
		ID:         uuid.New(),
		WishlistID: e.wishlistID,
		Title:      "Espresso grinder",
		ArchivedAt: archivedAt,
		CreatedAt:  e.current,
		UpdatedAt:  e.current,
	}
	if err := e.db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}
