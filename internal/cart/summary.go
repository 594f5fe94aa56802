package cart

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// Summary carries cart totals in minor units plus their display strings.
type Summary struct {
	SubtotalCents int64          `json:"subtotal_cents"`
	DiscountCents int64          `json:"discount_cents"`
	TotalCents    int64          `json:"total_cents"`
	Subtotal      string         `json:"subtotal"`
	Discount      string         `json:"discount"`
	Total         string         `json:"total"`
	ItemCount     int            `json:"item_count"`
	Currency      enums.Currency `json:"currency"`
}

// Cents converts a major-unit amount to minor units, rounding half away from
// zero.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// FromCents renders minor units as a two-decimal major-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// Summarize totals items from their price snapshots. The discount is always
// zero; coupons are validated and recorded but not priced.
func Summarize(items []models.CartItem, fallback enums.Currency) Summary {
	var subtotal int64
	count := 0
	for _, item := range items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		subtotal += Cents(item.UnitPrice) * int64(qty)
		count += qty
	}

	currency := fallback
	if len(items) > 0 && items[0].Currency != "" {
		currency = items[0].Currency
	}
	if currency == "" {
		currency = enums.CurrencyUSD
	}

	var discount int64
	total := subtotal - discount
	return Summary{
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    total,
		Subtotal:      FromCents(subtotal).StringFixed(2),
		Discount:      FromCents(discount).StringFixed(2),
		Total:         FromCents(total).StringFixed(2),
		ItemCount:     count,
		Currency:      currency,
	}
}
