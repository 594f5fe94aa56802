package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCompletedEvent fans out to loyalty, affiliate commission and referral
// consumers.
type OrderCompletedEvent struct {
	OrderID      uuid.UUID   `json:"orderId"`
	OrderNumber  string      `json:"orderNumber"`
	UserID       uuid.UUID   `json:"userId"`
	Total        string      `json:"total"`
	Currency     string      `json:"currency"`
	ProductIDs   []uuid.UUID `json:"productIds"`
	CouponCode   string      `json:"couponCode,omitempty"`
	AffiliateRef string      `json:"affiliateRef,omitempty"`
	CompletedAt  time.Time   `json:"completedAt"`
}

// OrderRefundedEvent drives affiliate commission reversal.
type OrderRefundedEvent struct {
	OrderID         uuid.UUID `json:"orderId"`
	UserID          uuid.UUID `json:"userId"`
	PaymentIntentID string    `json:"paymentIntentId"`
	Total           string    `json:"total"`
	AffiliateRef    string    `json:"affiliateRef,omitempty"`
	TokensRevoked   int64     `json:"tokensRevoked"`
	RefundedAt      time.Time `json:"refundedAt"`
}

type OrderFailedEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	UserID           uuid.UUID `json:"userId"`
	PaymentSessionID string    `json:"paymentSessionId"`
	Reason           string    `json:"reason"`
}

// NotificationRequestedEvent is consumed by the notification service, which
// owns templates and delivery.
type NotificationRequestedEvent struct {
	Template  string         `json:"template"`
	UserID    uuid.UUID      `json:"userId"`
	Email     string         `json:"email,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

type CartConvertedEvent struct {
	CartID  uuid.UUID `json:"cartId"`
	OrderID uuid.UUID `json:"orderId"`
	UserID  uuid.UUID `json:"userId"`
}

type CartAbandonedEvent struct {
	CartID    uuid.UUID  `json:"cartId"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	ItemCount int        `json:"itemCount"`
	ExpiredAt time.Time  `json:"expiredAt"`
}
