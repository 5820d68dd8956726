package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	"github.com/giftwell/giftwell-backend/pkg/enums"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/metrics"
)

// activeIndexConstraint is the partial unique index guaranteeing at most one
// active reservation per item. Concurrent winners are resolved by catching its
// violation and re-reading.
const activeIndexConstraint = "reservations_one_active_per_item_key"

type itemGateway interface {
	FindInWishlist(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error)
	Touch(ctx context.Context, itemID uuid.UUID, now time.Time) error
}

// ReservationView is the caller-facing projection of a claim.
type ReservationView struct {
	ID        uuid.UUID               `json:"id"`
	ItemID    uuid.UUID               `json:"item_id"`
	Status    enums.ReservationStatus `json:"status"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Engine enforces single-claim-per-item semantics.
type Engine interface {
	// Reserve claims the item for the actor. The bool result reports an
	// idempotent replay: the actor already held the claim and nothing changed.
	Reserve(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string) (ReservationView, bool, error)
	// Unreserve releases the caller's own active claim. Calling it without an
	// active claim fails with NO_ACTIVE_RESERVATION, never a silent no-op.
	Unreserve(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string) (ReservationView, error)
}

// EngineParams groups dependencies for the reservation engine.
type EngineParams struct {
	Repo    Repository
	Items   itemGateway
	Metrics *metrics.CoreMetrics
	Now     func() time.Time
}

type engine struct {
	repo    Repository
	items   itemGateway
	metrics *metrics.CoreMetrics
	now     func() time.Time
}

// NewEngine wires a reservation engine with the required dependencies.
func NewEngine(params EngineParams) (Engine, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item gateway is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &engine{
		repo:    params.Repo,
		items:   params.Items,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (e *engine) Reserve(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string) (ReservationView, bool, error) {
	if actorID == "" {
		return ReservationView{}, false, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "actor id is required")
	}
	if err := e.ensureReservable(ctx, wishlistID, itemID); err != nil {
		return ReservationView{}, false, err
	}

	// Two attempts: the second covers the window where the holder we lost to
	// releases (or is force-released) between our read and our write.
	for attempt := 0; attempt < 2; attempt++ {
		view, replay, retry, err := e.tryReserve(ctx, itemID, actorID)
		if err != nil {
			return ReservationView{}, false, err
		}
		if retry {
			continue
		}
		if !replay {
			if touchErr := e.items.Touch(ctx, itemID, e.now()); touchErr != nil {
				return ReservationView{}, false, classifyRepoError(touchErr, "touch item")
			}
		} else {
			e.metrics.IncIdempotentReplay("reserve")
		}
		return view, replay, nil
	}
	return ReservationView{}, false, pkgerrors.New(pkgerrors.CodeAlreadyReserved, "item is already reserved")
}

// tryReserve performs one optimistic pass. retry=true asks the caller to run
// the pass again after a conflict resolved to nobody holding the item.
func (e *engine) tryReserve(ctx context.Context, itemID uuid.UUID, actorID string) (ReservationView, bool, bool, error) {
	active, err := e.repo.ActiveForItem(ctx, itemID)
	switch {
	case err == nil:
		if active.ActorID == actorID {
			return toView(active), true, false, nil
		}
		e.metrics.IncReservationConflict()
		return ReservationView{}, false, false, pkgerrors.New(pkgerrors.CodeAlreadyReserved, "item is already reserved")
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to claim
	default:
		return ReservationView{}, false, false, classifyRepoError(err, "load active reservation")
	}

	now := e.now()
	revived, err := e.repo.Revive(ctx, itemID, actorID, now)
	if err != nil {
		if db.IsUniqueViolation(err, activeIndexConstraint) {
			return e.resolveConflict(ctx, itemID, actorID)
		}
		return ReservationView{}, false, false, classifyRepoError(err, "revive reservation")
	}
	if revived > 0 {
		return e.readOwn(ctx, itemID, actorID)
	}

	reservation := &models.Reservation{
		ID:        uuid.New(),
		ItemID:    itemID,
		ActorID:   actorID,
		Status:    enums.ReservationStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.repo.Insert(ctx, reservation); err != nil {
		if db.IsUniqueViolation(err, activeIndexConstraint) || db.IsUniqueViolation(err, "reservations_item_actor_key") {
			return e.resolveConflict(ctx, itemID, actorID)
		}
		return ReservationView{}, false, false, classifyRepoError(err, "insert reservation")
	}
	return toView(reservation), false, false, nil
}

// resolveConflict re-reads after a uniqueness violation and decides who won.
func (e *engine) resolveConflict(ctx context.Context, itemID uuid.UUID, actorID string) (ReservationView, bool, bool, error) {
	active, err := e.repo.ActiveForItem(ctx, itemID)
	switch {
	case err == nil:
		if active.ActorID == actorID {
			return toView(active), true, false, nil
		}
		e.metrics.IncReservationConflict()
		return ReservationView{}, false, false, pkgerrors.New(pkgerrors.CodeAlreadyReserved, "item is already reserved")
	case errors.Is(err, gorm.ErrRecordNotFound):
		// The winner vanished between the violation and our re-read.
		return ReservationView{}, false, true, nil
	default:
		return ReservationView{}, false, false, classifyRepoError(err, "re-read after conflict")
	}
}

func (e *engine) readOwn(ctx context.Context, itemID uuid.UUID, actorID string) (ReservationView, bool, bool, error) {
	reservation, err := e.repo.ForItemAndActor(ctx, itemID, actorID)
	if err != nil {
		return ReservationView{}, false, false, classifyRepoError(err, "load reservation")
	}
	return toView(reservation), false, false, nil
}

func (e *engine) Unreserve(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string) (ReservationView, error) {
	if actorID == "" {
		return ReservationView{}, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "actor id is required")
	}
	if err := e.ensureReservable(ctx, wishlistID, itemID); err != nil {
		return ReservationView{}, err
	}

	released, err := e.repo.Release(ctx, itemID, actorID, e.now())
	if err != nil {
		return ReservationView{}, classifyRepoError(err, "release reservation")
	}
	if released == 0 {
		return ReservationView{}, pkgerrors.New(pkgerrors.CodeNoActiveReservation, "no active reservation held by this visitor")
	}

	if err := e.items.Touch(ctx, itemID, e.now()); err != nil {
		return ReservationView{}, classifyRepoError(err, "touch item")
	}

	reservation, err := e.repo.ForItemAndActor(ctx, itemID, actorID)
	if err != nil {
		return ReservationView{}, classifyRepoError(err, "load reservation")
	}
	return toView(reservation), nil
}

func (e *engine) ensureReservable(ctx context.Context, wishlistID, itemID uuid.UUID) error {
	item, err := e.items.FindInWishlist(ctx, wishlistID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "item not found")
		}
		return classifyRepoError(err, "load item")
	}
	if item.Archived() {
		return pkgerrors.New(pkgerrors.CodeArchived, "item has been archived")
	}
	return nil
}

func toView(reservation *models.Reservation) ReservationView {
	return ReservationView{
		ID:        reservation.ID,
		ItemID:    reservation.ItemID,
		Status:    reservation.Status,
		CreatedAt: reservation.CreatedAt,
		UpdatedAt: reservation.UpdatedAt,
	}
}

func classifyRepoError(err error, message string) error {
	if db.IsTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
