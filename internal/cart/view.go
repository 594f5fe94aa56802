package cart

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

// View is the rendered cart returned to buyers and cached per cart id.
type View struct {
	CartID    uuid.UUID        `json:"cart_id"`
	Status    enums.CartStatus `json:"status"`
	Currency  enums.Currency   `json:"currency"`
	ExpiresAt time.Time        `json:"expires_at"`
	Items     []ItemView       `json:"items"`
	Summary   Summary          `json:"summary"`
}

type ItemView struct {
	ID           uuid.UUID      `json:"id"`
	ProductID    uuid.UUID      `json:"product_id"`
	VariantID    *uuid.UUID     `json:"variant_id,omitempty"`
	ProductTitle string         `json:"product_title,omitempty"`
	ProductSlug  string         `json:"product_slug,omitempty"`
	VariantName  *string        `json:"variant_name,omitempty"`
	Quantity     int            `json:"quantity"`
	UnitPrice    string         `json:"unit_price"`
	Currency     enums.Currency `json:"currency"`
	AddedAt      time.Time      `json:"added_at"`
}

func newView(cart *models.Cart, items []models.CartItem) *View {
	view := &View{
		CartID:    cart.ID,
		Status:    cart.Status,
		Currency:  cart.Currency,
		ExpiresAt: cart.ExpiresAt,
		Items:     make([]ItemView, 0, len(items)),
		Summary:   Summarize(items, cart.Currency),
	}
	for _, item := range items {
		iv := ItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Currency:  item.Currency,
			AddedAt:   item.CreatedAt,
		}
		if item.Product != nil {
			iv.ProductTitle = item.Product.Title
			iv.ProductSlug = item.Product.Slug
		}
		if item.Variant != nil {
			name := item.Variant.Name
			iv.VariantName = &name
		}
		view.Items = append(view.Items, iv)
	}
	return view
}
