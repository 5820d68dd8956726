package items

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	"github.com/giftwell/giftwell-backend/pkg/enums"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
)

const ownerEmail = "owner@example.com"

func TestCreateItem(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	price := int64(4500)

	item, err := env.svc.Create(ctx, env.wishlistID, ownerEmail, CreateInput{
		Title:      "Espresso grinder",
		PriceCents: &price,
		ImageURLs:  []string{"https://cdn.example.com/a.png", "https://cdn.example.com/a.png", ""},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if item.Title != "Espresso grinder" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if len(item.Images) != 1 {
		t.Fatalf("image urls must be deduplicated and blanks dropped: %+v", item.Images)
	}
}

func TestCreateItemValidation(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	target := int64(10000)
	negative := int64(-1)

	cases := []struct {
		name  string
		owner string
		input CreateInput
		want  pkgerrors.Code
	}{
		{"missing owner", "", CreateInput{Title: "x"}, pkgerrors.CodeActorUnresolvable},
		{"wrong owner", "stranger@example.com", CreateInput{Title: "x"}, pkgerrors.CodeForbidden},
		{"empty title", ownerEmail, CreateInput{Title: "  "}, pkgerrors.CodeValidation},
		{"negative price", ownerEmail, CreateInput{Title: "x", PriceCents: &negative}, pkgerrors.CodeValidation},
		{"group funded without target", ownerEmail, CreateInput{Title: "x", IsGroupFunded: true}, pkgerrors.CodeValidation},
		{"target without group funding", ownerEmail, CreateInput{Title: "x", TargetCents: &target}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, env.wishlistID, tc.owner, tc.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, err)
			}
		})
	}
}

func TestUpdateItem(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	target := int64(10000)
	item := env.seedItem(t, seedInput{groupFunded: true, targetCents: &target})

	newTitle := "Stand mixer"
	newTarget := int64(15000)
	updated, err := env.svc.Update(ctx, env.wishlistID, item.ID, ownerEmail, UpdateInput{
		Title:       &newTitle,
		TargetCents: &newTarget,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != newTitle || *updated.TargetCents != newTarget {
		t.Fatalf("update not applied: %+v", updated)
	}

	plain := env.seedItem(t, seedInput{})
	_, err = env.svc.Update(ctx, env.wishlistID, plain.ID, ownerEmail, UpdateInput{TargetCents: &newTarget})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotGroupFunded {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateArchivedItem(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	archivedAt := env.current.Add(-time.Hour)
	item := env.seedItem(t, seedInput{archivedAt: &archivedAt})

	title := "New title"
	_, err := env.svc.Update(ctx, env.wishlistID, item.ID, ownerEmail, UpdateInput{Title: &title})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeArchived {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestArchiveReleasesActiveReservations(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, seedInput{})

	reservation := models.Reservation{
		ID:        uuid.New(),
		ItemID:    item.ID,
		ActorID:   "visitor-a",
		Status:    enums.ReservationStatusActive,
		CreatedAt: env.current,
		UpdatedAt: env.current,
	}
	if err := env.db.Create(&reservation).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	archived, err := env.svc.Archive(ctx, env.wishlistID, item.ID, ownerEmail)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !archived.Archived() {
		t.Fatal("item must report archived")
	}

	var reloaded models.Reservation
	if err := env.db.First(&reloaded, "id = ?", reservation.ID).Error; err != nil {
		t.Fatalf("reload reservation: %v", err)
	}
	if reloaded.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released, got %s", reloaded.Status)
	}

	// Archiving twice is a no-op, not an error.
	if _, err := env.svc.Archive(ctx, env.wishlistID, item.ID, ownerEmail); err != nil {
		t.Fatalf("second archive: %v", err)
	}
}

func TestListPublic(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	target := int64(10000)
	funded := env.seedItem(t, seedInput{groupFunded: true, targetCents: &target})
	plain := env.seedItem(t, seedInput{})
	archivedAt := env.current.Add(-time.Hour)
	env.seedItem(t, seedInput{archivedAt: &archivedAt})

	for _, row := range []any{
		&models.Reservation{
			ID: uuid.New(), ItemID: plain.ID, ActorID: "visitor-a",
			Status: enums.ReservationStatusActive, CreatedAt: env.current, UpdatedAt: env.current,
		},
		&models.Contribution{
			ID: uuid.New(), ItemID: funded.ID, ActorID: "visitor-a",
			AmountCents: 4000, CreatedAt: env.current,
		},
		&models.Contribution{
			ID: uuid.New(), ItemID: funded.ID, ActorID: "visitor-b",
			AmountCents: 3000, CreatedAt: env.current,
		},
	} {
		if err := env.db.Create(row).Error; err != nil {
			t.Fatalf("seed row: %v", err)
		}
	}

	list, err := env.svc.ListPublic(ctx, env.wishlistID)
	if err != nil {
		t.Fatalf("list public: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("archived items must be hidden, got %d entries", len(list))
	}

	byID := map[uuid.UUID]PublicItem{}
	for _, entry := range list {
		byID[entry.ID] = entry
	}

	if !byID[plain.ID].Held {
		t.Fatal("reserved item must report held")
	}
	if byID[plain.ID].Funding != nil {
		t.Fatal("non group funded item carries no funding block")
	}

	fundedView := byID[funded.ID]
	if fundedView.Held {
		t.Fatal("unreserved item must not report held")
	}
	if fundedView.Funding == nil {
		t.Fatal("group funded item must carry a funding block")
	}
	if fundedView.Funding.FundedCents != 7000 || fundedView.Funding.ContributorCount != 2 {
		t.Fatalf("unexpected funding: %+v", fundedView.Funding)
	}
}

func TestListOwnerRequiresOwnership(t *testing.T) {
	t.Parallel()

	env := newServiceEnv(t)
	ctx := context.Background()
	env.seedItem(t, seedInput{})

	_, err := env.svc.ListOwner(ctx, env.wishlistID, "stranger@example.com")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("unexpected error: %v", err)
	}

	list, err := env.svc.ListOwner(ctx, env.wishlistID, ownerEmail)
	if err != nil {
		t.Fatalf("list owner: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 item, got %d", len(list))
	}
}

type serviceEnv struct {
	db         *gorm.DB
	svc        Service
	wishlistID uuid.UUID
	current    time.Time
}

type seedInput struct {
	groupFunded bool
	targetCents *int64
	archivedAt  *time.Time
}

// wishlistRows is a minimal wishlist gateway reading straight from the test
// database.
type wishlistRows struct {
	db *gorm.DB
}

func (w wishlistRows) FindByID(ctx context.Context, id uuid.UUID) (*models.Wishlist, error) {
	var row models.Wishlist
	if err := w.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()

	dsn := "file:items_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Wishlist{}, &models.Item{}, &models.Reservation{}, &models.Contribution{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	env := &serviceEnv{
		db:         db,
		wishlistID: uuid.New(),
		current:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	wishlist := models.Wishlist{
		ID:         env.wishlistID,
		OwnerEmail: ownerEmail,
		Title:      "Birthday",
		CreatedAt:  env.current,
		UpdatedAt:  env.current,
	}
	if err := db.Create(&wishlist).Error; err != nil {
		t.Fatalf("seed wishlist: %v", err)
	}

	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(db, 2*time.Second),
		Wishlists:     wishlistRows{db: db},
		Reservations:  reservations.NewRepository(db, 2*time.Second),
		Contributions: contributions.NewRepository(db, 2*time.Second),
		Now:           func() time.Time { return env.current },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc
	return env
}

func (e *serviceEnv) seedItem(t *testing.T, in seedInput) models.Item {
	t.Helper()
	item := models.Item{
		ID:            uuid.New(),
		WishlistID:    e.wishlistID,
		Title:         "Espresso grinder",
		IsGroupFunded: in.groupFunded,
		TargetCents:   in.targetCents,
		ArchivedAt:    in.archivedAt,
		CreatedAt:     e.current,
		UpdatedAt:     e.current,
	}
	if err := e.db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}
