package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/repo"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	"github.com/giftwell/giftwell-backend/pkg/enums"
)

// Repository manages persistence for reservation rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ActiveForItem(ctx context.Context, itemID uuid.UUID) (*models.Reservation, error)
	ForItemAndActor(ctx context.Context, itemID uuid.UUID, actorID string) (*models.Reservation, error)
	Insert(ctx context.Context, reservation *models.Reservation) error
	// Revive flips the caller's released row back to active. Returns the number
	// of rows changed (0 when no released row exists for the pair).
	Revive(ctx context.Context, itemID uuid.UUID, actorID string, now time.Time) (int64, error)
	// Release flips the caller's active row to released. Returns rows changed.
	Release(ctx context.Context, itemID uuid.UUID, actorID string, now time.Time) (int64, error)
	// ReleaseAllForItem force-releases every active claim on the item and
	// returns the actors that held them. Used by the archival cascade.
	ReleaseAllForItem(ctx context.Context, itemID uuid.UUID, now time.Time) ([]string, error)
	// ActiveItemIDs reports which of the given items currently carry an active
	// claim. Actor identities are never part of the answer.
	ActiveItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	DeleteByItemIDs(ctx context.Context, itemIDs []uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a reservation repository bound to the provided database.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db, timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx, 0)}
}

func (r *repository) ActiveForItem(ctx context.Context, itemID uuid.UUID) (*models.Reservation, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var reservation models.Reservation
	err := r.base.DB(ctx).
		Where("item_id = ? AND status = ?", itemID, enums.ReservationStatusActive).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) ForItemAndActor(ctx context.Context, itemID uuid.UUID, actorID string) (*models.Reservation, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var reservation models.Reservation
	err := r.base.DB(ctx).
		Where("item_id = ? AND actor_id = ?", itemID, actorID).
		First(&reservation).Error
	if err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (r *repository) Insert(ctx context.Context, reservation *models.Reservation) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Create(reservation).Error
}

func (r *repository) Revive(ctx context.Context, itemID uuid.UUID, actorID string, now time.Time) (int64, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	result := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND actor_id = ? AND status = ?", itemID, actorID, enums.ReservationStatusReleased).
		Updates(map[string]any{
			"status":     enums.ReservationStatusActive,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Release(ctx context.Context, itemID uuid.UUID, actorID string, now time.Time) (int64, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	result := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND actor_id = ? AND status = ?", itemID, actorID, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":     enums.ReservationStatusReleased,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ReleaseAllForItem(ctx context.Context, itemID uuid.UUID, now time.Time) ([]string, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var holders []string
	err := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", itemID, enums.ReservationStatusActive).
		Pluck("actor_id", &holders).Error
	if err != nil {
		return nil, err
	}
	if len(holders) == 0 {
		return nil, nil
	}

	err = r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("item_id = ? AND status = ?", itemID, enums.ReservationStatusActive).
		Updates(map[string]any{
			"status":     enums.ReservationStatusReleased,
			"updated_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	return holders, nil
}

func (r *repository) ActiveItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	held := make(map[uuid.UUID]bool, len(itemIDs))
	if len(itemIDs) == 0 {
		return held, nil
	}

	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var ids []uuid.UUID
	err := r.base.DB(ctx).
		Model(&models.Reservation{}).
		Where("item_id IN ? AND status = ?", itemIDs, enums.ReservationStatusActive).
		Pluck("item_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		held[id] = true
	}
	return held, nil
}

func (r *repository) DeleteByItemIDs(ctx context.Context, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}

	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Where("item_id IN ?", itemIDs).
		Delete(&models.Reservation{}).Error
}
