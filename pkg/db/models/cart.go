package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// Cart is a buyer's pre-purchase container, owned by exactly one of a user or
// an anonymous session.
type Cart struct {
	ID        uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    *uuid.UUID       `gorm:"column:user_id;type:uuid"`
	SessionID *string          `gorm:"column:session_id"`
	Status    enums.CartStatus `gorm:"column:status;type:cart_status;not null;default:'active'"`
	Currency  enums.Currency   `gorm:"column:currency;not null;default:'USD'"`
	ExpiresAt time.Time        `gorm:"column:expires_at;not null"`
	Metadata  map[string]any   `gorm:"column:metadata;type:jsonb;serializer:json"`
	Items     []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// IsGuest reports whether the cart is keyed by an anonymous session.
func (c *Cart) IsGuest() bool {
	return c.UserID == nil && c.SessionID != nil
}
