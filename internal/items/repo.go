package items

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/repo"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
)

// Repository manages persistence for wishlist items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.Item) error
	FindInWishlist(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error)
	ListByWishlist(ctx context.Context, wishlistID uuid.UUID) ([]models.Item, error)
	Update(ctx context.Context, item *models.Item) error
	// Touch bumps updated_at without changing anything else. Reservation and
	// contribution writes use it to invalidate caches keyed on the item.
	Touch(ctx context.Context, itemID uuid.UUID, now time.Time) error
	Archive(ctx context.Context, itemID uuid.UUID, now time.Time) error
	SetImages(ctx context.Context, itemID uuid.UUID, images dbtypes.ImageRefs, now time.Time) error
	IDsForWishlist(ctx context.Context, wishlistID uuid.UUID) ([]uuid.UUID, error)
	DeleteByWishlist(ctx context.Context, wishlistID uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns an item repository bound to the provided database.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db, timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx, 0)}
}

func (r *repository) Create(ctx context.Context, item *models.Item) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Create(item).Error
}

func (r *repository) FindInWishlist(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var item models.Item
	err := r.base.DB(ctx).
		Where("id = ? AND wishlist_id = ?", itemID, wishlistID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListByWishlist(ctx context.Context, wishlistID uuid.UUID) ([]models.Item, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var items []models.Item
	err := r.base.DB(ctx).
		Where("wishlist_id = ?", wishlistID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, item *models.Item) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Save(item).Error
}

func (r *repository) Touch(ctx context.Context, itemID uuid.UUID, now time.Time) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Model(&models.Item{}).
		Where("id = ?", itemID).
		Update("updated_at", now).Error
}

func (r *repository) Archive(ctx context.Context, itemID uuid.UUID, now time.Time) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Model(&models.Item{}).
		Where("id = ? AND archived_at IS NULL", itemID).
		Updates(map[string]any{
			"archived_at": now,
			"updated_at":  now,
		}).Error
}

func (r *repository) SetImages(ctx context.Context, itemID uuid.UUID, images dbtypes.ImageRefs, now time.Time) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Model(&models.Item{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"images":     images,
			"updated_at": now,
		}).Error
}

func (r *repository) IDsForWishlist(ctx context.Context, wishlistID uuid.UUID) ([]uuid.UUID, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var ids []uuid.UUID
	err := r.base.DB(ctx).
		Model(&models.Item{}).
		Where("wishlist_id = ?", wishlistID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) DeleteByWishlist(ctx context.Context, wishlistID uuid.UUID) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Where("wishlist_id = ?", wishlistID).
		Delete(&models.Item{}).Error
}
