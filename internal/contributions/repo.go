package contributions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/repo"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
)

// Totals is the raw ledger rollup for one item.
type Totals struct {
	ItemID               uuid.UUID `gorm:"column:item_id"`
	TotalCents           int64     `gorm:"column:total_cents"`
	DistinctContributors int64     `gorm:"column:distinct_contributors"`
}

// Repository manages the append-only contribution ledger. Rows are never
// updated or deleted individually; the only delete path is the wishlist
// teardown cascade.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, contribution *models.Contribution) error
	TotalsForItem(ctx context.Context, itemID uuid.UUID) (Totals, error)
	TotalsForItems(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]Totals, error)
	DeleteByItemIDs(ctx context.Context, itemIDs []uuid.UUID) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns a contribution repository bound to the provided database.
func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &repository{base: repo.NewBase(db, timeout)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx, 0)}
}

func (r *repository) Insert(ctx context.Context, contribution *models.Contribution) error {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).Create(contribution).Error
}

func (r *repository) TotalsForItem(ctx context.Context, itemID uuid.UUID) (Totals, error) {
	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	totals := Totals{ItemID: itemID}
	err := r.base.DB(ctx).
		Model(&models.Contribution{}).
		Select("COALESCE(SUM(amount_cents), 0) AS total_cents, COUNT(DISTINCT actor_id) AS distinct_contributors").
		Where("item_id = ?", itemID).
		Scan(&totals).Error
	if err != nil {
		return Totals{}, err
	}
	totals.ItemID = itemID
	return totals, nil
}

func (r *repository) TotalsForItems(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]Totals, error) {
	byItem := make(map[uuid.UUID]Totals, len(itemIDs))
	if len(itemIDs) == 0 {
		return byItem, nil
	}

	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	var rows []Totals
	err := r.base.DB(ctx).
		Model(&models.Contribution{}).
		Select("item_id, COALESCE(SUM(amount_cents), 0) AS total_cents, COUNT(DISTINCT actor_id) AS distinct_contributors").
		Where("item_id IN ?", itemIDs).
		Group("item_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		byItem[row.ItemID] = row
	}
	return byItem, nil
}

func (r *repository) DeleteByItemIDs(ctx context.Context, itemIDs []uuid.UUID) error {
	if len(itemIDs) == 0 {
		return nil
	}

	ctx, cancel := r.base.Bounded(ctx)
	defer cancel()

	return r.base.DB(ctx).
		Where("item_id IN ?", itemIDs).
		Delete(&models.Contribution{}).Error
}
