package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// OrderDTO is the order shape returned to buyers and admins.
type OrderDTO struct {
	ID           uuid.UUID         `json:"id"`
	UserID       uuid.UUID         `json:"user_id"`
	OrderNumber  string            `json:"order_number"`
	Status       enums.OrderStatus `json:"status"`
	Subtotal     string            `json:"subtotal"`
	Discount     string            `json:"discount"`
	Total        string            `json:"total"`
	Currency     enums.Currency    `json:"currency"`
	BillingEmail *string           `json:"billing_email,omitempty"`
	BillingName  *string           `json:"billing_name,omitempty"`
	ItemCount    int               `json:"item_count"`
	Items        []OrderItemDTO    `json:"items,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	RefundedAt   *time.Time        `json:"refunded_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

type OrderItemDTO struct {
	ID           uuid.UUID      `json:"id"`
	ProductID    uuid.UUID      `json:"product_id"`
	VariantID    *uuid.UUID     `json:"variant_id,omitempty"`
	ProductTitle string         `json:"product_title"`
	ProductSlug  string         `json:"product_slug"`
	VariantName  *string        `json:"variant_name,omitempty"`
	Price        string         `json:"price"`
	Currency     enums.Currency `json:"currency"`
	Download     *DownloadDTO   `json:"download,omitempty"`
}

type DownloadDTO struct {
	Token              string    `json:"token"`
	ExpiresAt          time.Time `json:"expires_at"`
	RemainingDownloads int       `json:"remaining_downloads"`
	Active             bool      `json:"active"`
}

// ListResult is one page of orders.
type ListResult struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func summaryDTO(o models.Order) OrderDTO {
	return OrderDTO{
		ID:           o.ID,
		UserID:       o.UserID,
		OrderNumber:  o.OrderNumber,
		Status:       o.Status,
		Subtotal:     o.Subtotal.StringFixed(2),
		Discount:     o.Discount.StringFixed(2),
		Total:        o.Total.StringFixed(2),
		Currency:     o.Currency,
		BillingEmail: o.BillingEmail,
		BillingName:  o.BillingName,
		ItemCount:    len(o.Items),
		CompletedAt:  o.CompletedAt,
		RefundedAt:   o.RefundedAt,
		CreatedAt:    o.CreatedAt,
	}
}

// DetailDTO includes lines and their download entitlements.
func DetailDTO(o models.Order) OrderDTO {
	dto := summaryDTO(o)
	dto.Items = make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		line := OrderItemDTO{
			ID:           item.ID,
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ProductTitle: item.ProductTitle,
			ProductSlug:  item.ProductSlug,
			VariantName:  item.VariantName,
			Price:        item.Price.StringFixed(2),
			Currency:     item.Currency,
		}
		if tok := item.DownloadToken; tok != nil {
			line.Download = &DownloadDTO{
				Token:              tok.Token,
				ExpiresAt:          tok.ExpiresAt,
				RemainingDownloads: tok.MaxDownloads - tok.DownloadCount,
				Active:             tok.IsActive,
			}
		}
		dto.Items = append(dto.Items, line)
	}
	return dto
}
