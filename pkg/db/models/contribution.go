package models

import (
	"time"

	"github.com/google/uuid"
)

// Contribution is an append-only funding pledge toward a group-funded item.
// Rows are never mutated; they disappear only through the wishlist delete cascade.
type Contribution struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ItemID      uuid.UUID `gorm:"column:item_id;type:uuid;not null;index:contributions_item_id_idx"`
	ActorID     string    `gorm:"column:actor_id;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
