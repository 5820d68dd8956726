package reservations

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	"github.com/giftwell/giftwell-backend/pkg/enums"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
)

func TestReserveAndReplay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	view, replay, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if replay {
		t.Fatal("first reserve must not be a replay")
	}
	if view.Status != enums.ReservationStatusActive {
		t.Fatalf("expected active status, got %s", view.Status)
	}

	again, replay, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err != nil {
		t.Fatalf("reserve again: %v", err)
	}
	if !replay {
		t.Fatal("same visitor reserving twice must replay")
	}
	if again.ID != view.ID {
		t.Fatalf("replay returned a different reservation: %s vs %s", again.ID, view.ID)
	}
}

func TestReserveConflict(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	if _, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-b")
	if err == nil {
		t.Fatal("expected conflict")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeAlreadyReserved {
		t.Fatalf("unexpected error: %v", err)
	}
}

// staleReadRepo hides the active row from the first read so the insert lands
// on the partial unique index, the way a rival writer racing between read and
// write does.
type staleReadRepo struct {
	Repository
	staleReads int
}

func (s *staleReadRepo) ActiveForItem(ctx context.Context, itemID uuid.UUID) (*models.Reservation, error) {
	if s.staleReads > 0 {
		s.staleReads--
		return nil, gorm.ErrRecordNotFound
	}
	return s.Repository.ActiveForItem(ctx, itemID)
}

func TestConcurrentFirstReserveSingleWinner(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	if _, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a"); err != nil {
		t.Fatalf("winner reserve: %v", err)
	}

	// The loser's read predates the winner's write; its insert must collide
	// with the one-active-per-item index and recover by re-reading.
	repo := &staleReadRepo{Repository: NewRepository(env.db, 2*time.Second), staleReads: 1}
	racer, err := NewEngine(EngineParams{
		Repo:  repo,
		Items: items.NewRepository(env.db, 2*time.Second),
		Now:   env.now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	_, _, err = racer.Reserve(ctx, env.wishlistID, item.ID, "visitor-b")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeAlreadyReserved {
		t.Fatalf("loser must see the conflict, got %v", err)
	}

	var active int64
	if err := env.db.Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", item.ID, enums.ReservationStatusActive).
		Count(&active).Error; err != nil {
		t.Fatalf("count active rows: %v", err)
	}
	if active != 1 {
		t.Fatalf("expected exactly one active claim, got %d", active)
	}

	var loserRows int64
	if err := env.db.Model(&models.Reservation{}).
		Where("item_id = ? AND actor_id = ?", item.ID, "visitor-b").
		Count(&loserRows).Error; err != nil {
		t.Fatalf("count loser rows: %v", err)
	}
	if loserRows != 0 {
		t.Fatalf("losing insert must leave no row behind, got %d", loserRows)
	}
}

func TestUnreserveThenRowReuse(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	first, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	released, err := env.engine.Unreserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err != nil {
		t.Fatalf("unreserve: %v", err)
	}
	if released.Status != enums.ReservationStatusReleased {
		t.Fatalf("expected released status, got %s", released.Status)
	}

	// A fresh visitor may now claim the item.
	if _, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-b"); err != nil {
		t.Fatalf("reserve by second visitor: %v", err)
	}
	if _, err := env.engine.Unreserve(ctx, env.wishlistID, item.ID, "visitor-b"); err != nil {
		t.Fatalf("unreserve by second visitor: %v", err)
	}

	// The first visitor's released row is revived rather than duplicated.
	second, replay, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err != nil {
		t.Fatalf("re-reserve: %v", err)
	}
	if replay {
		t.Fatal("re-reserve after release is a fresh claim, not a replay")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the released row to be revived, got new id %s", second.ID)
	}

	var count int64
	if err := env.db.Model(&models.Reservation{}).
		Where("item_id = ? AND actor_id = ?", item.ID, "visitor-a").
		Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row per item/visitor pair, got %d", count)
	}
}

func TestUnreserveWithoutClaim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	_, err := env.engine.Unreserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err == nil {
		t.Fatal("expected error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNoActiveReservation {
		t.Fatalf("unexpected error: %v", err)
	}

	// Holding a released row is not enough either.
	if _, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := env.engine.Unreserve(ctx, env.wishlistID, item.ID, "visitor-a"); err != nil {
		t.Fatalf("unreserve: %v", err)
	}
	_, err = env.engine.Unreserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNoActiveReservation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveArchivedItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	archivedAt := env.now().Add(-time.Hour)
	item := env.seedItem(t, &archivedAt)

	_, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a")
	if err == nil {
		t.Fatal("expected error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeArchived {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveUnknownItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.engine.Reserve(ctx, env.wishlistID, uuid.New(), "visitor-a")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}

	// An item from another wishlist is equally invisible.
	item := env.seedItem(t, nil)
	_, _, err = env.engine.Reserve(ctx, uuid.New(), item.ID, "visitor-a")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveWithoutActor(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)

	_, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeActorUnresolvable {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = env.engine.Unreserve(ctx, env.wishlistID, item.ID, "")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeActorUnresolvable {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveBumpsItemUpdatedAt(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	item := env.seedItem(t, nil)
	before := item.UpdatedAt

	env.advance(time.Minute)
	if _, _, err := env.engine.Reserve(ctx, env.wishlistID, item.ID, "visitor-a"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	var reloaded models.Item
	if err := env.db.First(&reloaded, "id = ?", item.ID).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if !reloaded.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to move forward: %s vs %s", reloaded.UpdatedAt, before)
	}
}

type testEnv struct {
	db         *gorm.DB
	engine     Engine
	wishlistID uuid.UUID
	current    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Wishlist{}, &models.Item{}, &models.Reservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// The partial index lives in migration SQL in production.
	if err := db.Exec(
		"CREATE UNIQUE INDEX reservations_one_active_per_item_key ON reservations (item_id) WHERE status = 'active'",
	).Error; err != nil {
		t.Fatalf("create partial index: %v", err)
	}

	env := &testEnv{
		db:         db,
		wishlistID: uuid.New(),
		current:    time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	wishlist := models.Wishlist{
		ID:         env.wishlistID,
		OwnerEmail: "owner@example.com",
		Title:      "Birthday",
		CreatedAt:  env.current,
		UpdatedAt:  env.current,
	}
	if err := db.Create(&wishlist).Error; err != nil {
		t.Fatalf("seed wishlist: %v", err)
	}

	engine, err := NewEngine(EngineParams{
		Repo:  NewRepository(db, 2*time.Second),
		Items: items.NewRepository(db, 2*time.Second),
		Now:   env.now,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	env.engine = engine
	return env
}

func (e *testEnv) now() time.Time {
	return e.current
}

func (e *testEnv) advance(d time.Duration) {
	e.current = e.current.Add(d)
}

func (e *testEnv) seedItem(t *testing.T, archivedAt *time.Time) models.Item {
	t.Helper()
	price := int64(4500)
	item := models.Item{
		ID:         uuid.New(),
		WishlistID: e.wishlistID,
		Title:      "Espresso grinder",
		PriceCents: &price,
		ArchivedAt: archivedAt,
		CreatedAt:  e.current,
		UpdatedAt:  e.current,
	}
	if err := e.db.Create(&item).Error; err != nil {
		t.Fatalf("seed item: %v", err)
	}
	return item
}
