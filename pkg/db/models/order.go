package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// Order is the durable record of a completed purchase. Only the webhook
// reconciler creates orders; payment_session_id is unique.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	OrderNumber      string            `gorm:"column:order_number;not null"`
	Status           enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	Subtotal         decimal.Decimal   `gorm:"column:subtotal;type:numeric(10,2);not null"`
	Discount         decimal.Decimal   `gorm:"column:discount;type:numeric(10,2);not null"`
	Total            decimal.Decimal   `gorm:"column:total;type:numeric(10,2);not null"`
	Currency         enums.Currency    `gorm:"column:currency;not null;default:'USD'"`
	PaymentSessionID string            `gorm:"column:payment_session_id;not null"`
	PaymentIntentID  *string           `gorm:"column:payment_intent_id"`
	BillingEmail     *string           `gorm:"column:billing_email"`
	BillingName      *string           `gorm:"column:billing_name"`
	CompletedAt      *time.Time        `gorm:"column:completed_at"`
	RefundedAt       *time.Time        `gorm:"column:refunded_at"`
	Metadata         map[string]any    `gorm:"column:metadata;type:jsonb;serializer:json"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is an immutable line denormalized at purchase time.
type OrderItem struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID     uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID     *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ProductTitle  string          `gorm:"column:product_title;not null"`
	ProductSlug   string          `gorm:"column:product_slug;not null"`
	VariantName   *string         `gorm:"column:variant_name"`
	Price         decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
	Currency      enums.Currency  `gorm:"column:currency;not null;default:'USD'"`
	DownloadToken *DownloadToken  `gorm:"foreignKey:OrderItemID"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
