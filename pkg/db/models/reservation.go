package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/giftwell/giftwell-backend/pkg/enums"
)

// Reservation holds a visitor's exclusive claim on an item. One row exists per
// (item, actor) pair and is flipped between active and released rather than
// re-created; the partial unique index reservations_one_active_per_item_key
// guarantees at most one active row per item.
type Reservation struct {
	ID        uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ItemID    uuid.UUID               `gorm:"column:item_id;type:uuid;not null;index:reservations_item_id_idx;uniqueIndex:reservations_item_actor_key"`
	ActorID   string                  `gorm:"column:actor_id;not null;uniqueIndex:reservations_item_actor_key"`
	Status    enums.ReservationStatus `gorm:"column:status;not null"`
	CreatedAt time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
