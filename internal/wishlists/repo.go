package wishlists

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/repo"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
)

// Repository manages persistence for wishlist rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wishlist *models.Wishlist) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wishlist, error)
	Update(ctx context.Context, wishlist *models.Wishlist) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a wishlist repository bound to the provided database.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db, timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx, 0)}
}

func (r *repository) Create(ctx context.Context, wishlist *models.Wishlist) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Create(wishlist).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wishlist, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var wishlist models.Wishlist
	if err := r.base.DB(ctx).First(&wishlist, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wishlist, nil
}

func (r *repository) Update(ctx context.Context, wishlist *models.Wishlist) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Save(wishlist).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Delete(&models.Wishlist{}, "id = ?", id).Error
}
