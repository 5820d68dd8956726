package models

import (
	"time"

	"github.com/google/uuid"
)

// Wishlist is the owner-facing container for items.
type Wishlist struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OwnerEmail string     `gorm:"column:owner_email;not null;index:wishlists_owner_email_idx"`
	Title      string     `gorm:"column:title;not null"`
	EventDate  *time.Time `gorm:"column:event_date"`
	Note       *string    `gorm:"column:note"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
