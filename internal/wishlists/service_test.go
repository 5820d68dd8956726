package wishlists

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
	"github.com/giftwell/giftwell-backend/pkg/enums"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/storage"
)

const ownerEmail = "owner@example.com"

func TestCreateWishlist(t *testing.T) {
	t.Parallel()

	env := newWishlistEnv(t)
	ctx := context.Background()

	wishlist, err := env.svc.Create(ctx, CreateInput{
		OwnerEmail: "  Owner@Example.com ",
		Title:      "Birthday",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if wishlist.OwnerEmail != ownerEmail {
		t.Fatalf("owner email must be normalized, got %q", wishlist.OwnerEmail)
	}

	loaded, err := env.svc.Get(ctx, wishlist.ID, ownerEmail)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Title != "Birthday" {
		t.Fatalf("unexpected title %q", loaded.Title)
	}
}

func TestCreateWishlistValidation(t *testing.T) {
	t.Parallel()

	env := newWishlistEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, CreateInput{Title: "No owner"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = env.svc.Create(ctx, CreateInput{OwnerEmail: ownerEmail})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	env := newWishlistEnv(t)
	ctx := context.Background()
	wishlist := env.seedWishlist(t)

	_, err := env.svc.Get(ctx, wishlist.ID, "stranger@example.com")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = env.svc.Get(ctx, uuid.New(), ownerEmail)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteCascades(t *testing.T) {
	t.Parallel()

	env := newWishlistEnv(t)
	ctx := context.Background()
	wishlist := env.seedWishlist(t)

	item := models.Item{
		ID:         uuid.New(),
		WishlistID: wishlist.ID,
		Title:      "Espresso grinder",
		Images: dbtypes.ImageRefs{
			{StoragePath: "images/owner/a/b/1-grinder.png"},
			{URL: "https://cdn.example.com/external.png"},
		},
		CreatedAt: env.current,
		UpdatedAt: env.current,
	}
	if err := env.db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := env.backend.Upload(ctx, "images/owner/a/b/1-grinder.png", "image/png", []byte("png")); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	rows := []any{
		&models.Reservation{
			ID: uuid.New(), ItemID: item.ID, ActorID: "visitor-a",
			Status: enums.ReservationStatusActive, CreatedAt: env.current, UpdatedAt: env.current,
		},
		&models.Contribution{
			ID: uuid.New(), ItemID: item.ID, ActorID: "visitor-b",
			AmountCents: 4000, CreatedAt: env.current,
		},
	}
	for _, row := range rows {
		if err := env.db.Create(row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	if err := env.svc.Delete(ctx, wishlist.ID, ownerEmail); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, probe := range []struct {
		name  string
		model any
	}{
		{"wishlists", &models.Wishlist{}},
		{"items", &models.Item{}},
		{"reservations", &models.Reservation{}},
		{"contributions", &models.Contribution{}},
	} {
		var count int64
		if err := env.db.Model(probe.model).Count(&count).Error; err != nil {
			t.Fatalf("count %s: %v", probe.name, err)
		}
		if count != 0 {
			t.Fatalf("expected %s to be empty, got %d rows", probe.name, count)
		}
	}

	if env.backend.Len() != 0 {
		t.Fatal("managed objects must be removed on teardown")
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	t.Parallel()

	env := newWishlistEnv(t)
	ctx := context.Background()
	wishlist := env.seedWishlist(t)

	err := env.svc.Delete(ctx, wishlist.ID, "stranger@example.com")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}
}

type wishlistEnv struct {
	db      *gorm.DB
	svc     Service
	backend *storage.MemoryBackend
	current time.Time
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newWishlistEnv(t *testing.T) *wishlistEnv {
	t.Helper()

	dsn := "file:wishlists_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Wishlist{}, &models.Item{}, &models.Reservation{}, &models.Contribution{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env := &wishlistEnv{
		db:      db,
		backend: storage.NewMemoryBackend(),
		current: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(db, 2*time.Second),
		Items:         items.NewRepository(db, 2*time.Second),
		Reservations:  reservations.NewRepository(db, 2*time.Second),
		Contributions: contributions.NewRepository(db, 2*time.Second),
		Tx:            gormTxRunner{db: db},
		Storage:       env.backend,
		Now:           func() time.Time { return env.current },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
	return env
}

func (e *wishlistEnv) seedWishlist(t *testing.T) models.Wishlist {
	t.Helper()
	wishlist := models.Wishlist{
		ID:         uuid.New(),
		OwnerEmail: ownerEmail,
		Title:      "Wedding",
		CreatedAt:  e.current,
		UpdatedAt:  e.current,
	}
	if err := e.db.Create(&wishlist).Error; err != nil {
		t.Fatalf("seed wishlist: %v", err)
	}
	return wishlist
}
