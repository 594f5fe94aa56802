package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentCustomer maps a user to the processor-side customer record.
type PaymentCustomer struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Provider           string    `gorm:"column:provider;not null;default:'stripe'"`
	ProviderCustomerID string    `gorm:"column:provider_customer_id;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}
