package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
)

// Item is a wishlist entry visitors may reserve or fund.
// TargetCents is always set when IsGroupFunded is true; once ArchivedAt is set
// the item no longer accepts reservation or contribution mutations.
type Item struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	WishlistID    uuid.UUID          `gorm:"column:wishlist_id;type:uuid;not null;index:items_wishlist_id_idx"`
	Title         string             `gorm:"column:title;not null"`
	PriceCents    *int64             `gorm:"column:price_cents"`
	IsGroupFunded bool               `gorm:"column:is_group_funded;not null;default:false"`
	TargetCents   *int64             `gorm:"column:target_cents"`
	Images        dbtypes.ImageRefs  `gorm:"column:images;type:jsonb"`
	ArchivedAt    *time.Time         `gorm:"column:archived_at"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// Archived reports whether the item has been soft-deleted by its owner.
func (i *Item) Archived() bool {
	return i != nil && i.ArchivedAt != nil
}
