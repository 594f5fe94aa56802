package stripewebhook

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/checkout"
	"github.com/angelmondragon/assetdrop-backend/internal/effects"
	"github.com/angelmondragon/assetdrop-backend/internal/notifications"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox/payloads"
)

type cartConverter interface {
	Convert(ctx context.Context, cartID, orderID uuid.UUID) error
}

type notificationRequester interface {
	Request(ctx context.Context, req notifications.Request) error
}

type listInvalidator interface {
	InvalidateListCaches(ctx context.Context, userID uuid.UUID)
}

type couponRecorder interface {
	RecordUsage(ctx context.Context, code string) error
}

type CompletionParams struct {
	Carts         cartConverter
	Notifications notificationRequester
	OrderLists    listInvalidator
	Coupons       couponRecorder
	Tx            txRunner
	Outbox        outbox.Emitter
}

// CompletionEffects builds the steps that follow a committed order.
type CompletionEffects struct {
	carts         cartConverter
	notifications notificationRequester
	orderLists    listInvalidator
	coupons       couponRecorder
	tx            txRunner
	outbox        outbox.Emitter
}

func NewCompletionEffects(params CompletionParams) (*CompletionEffects, error) {
	switch {
	case params.Carts == nil:
		return nil, fmt.Errorf("cart converter required")
	case params.Notifications == nil:
		return nil, fmt.Errorf("notification requester required")
	case params.OrderLists == nil:
		return nil, fmt.Errorf("order list invalidator required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon recorder required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &CompletionEffects{
		carts:         params.Carts,
		notifications: params.Notifications,
		orderLists:    params.OrderLists,
		coupons:       params.Coupons,
		tx:            params.Tx,
		outbox:        params.Outbox,
	}, nil
}

// For returns the effects for a freshly created order, in dispatch order.
func (c *CompletionEffects) For(order *models.Order, meta *checkout.SessionMetadata) []effects.Effect {
	list := []effects.Effect{
		{Name: effects.CartConvert, Run: func(ctx context.Context) error {
			return c.carts.Convert(ctx, meta.CartID, order.ID)
		}},
		{Name: effects.NotificationConfirmed, Run: func(ctx context.Context) error {
			return c.notifications.Request(ctx, confirmationRequest(order))
		}},
		{Name: effects.InvalidateOrderLists, Run: func(ctx context.Context) error {
			c.orderLists.InvalidateListCaches(ctx, order.UserID)
			return nil
		}},
		{Name: effects.EventOrderCompleted, Run: func(ctx context.Context) error {
			event := completedEvent(order, meta)
			return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
				return c.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventOrderCompleted,
					AggregateType: enums.AggregateOrder,
					AggregateID:   order.ID,
					Data:          event,
				})
			})
		}},
	}
	if meta.CouponCode != "" {
		list = append(list, effects.Effect{Name: effects.CouponRecordUsage, Run: func(ctx context.Context) error {
			return c.coupons.RecordUsage(ctx, meta.CouponCode)
		}})
	}
	return list
}

func confirmationRequest(order *models.Order) notifications.Request {
	titles := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		titles = append(titles, item.ProductTitle)
	}
	req := notifications.Request{
		Template: notifications.TemplateOrderConfirmed,
		UserID:   order.UserID,
		Variables: map[string]any{
			"order_number": order.OrderNumber,
			"total":        order.Total.StringFixed(2),
			"currency":     order.Currency,
			"items":        titles,
		},
		DedupeKey: order.ID,
	}
	if order.BillingEmail != nil {
		req.Email = *order.BillingEmail
	}
	return req
}

func completedEvent(order *models.Order, meta *checkout.SessionMetadata) payloads.OrderCompletedEvent {
	productIDs := make([]uuid.UUID, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	event := payloads.OrderCompletedEvent{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		UserID:       order.UserID,
		Total:        order.Total.StringFixed(2),
		Currency:     string(order.Currency),
		ProductIDs:   productIDs,
		CouponCode:   meta.CouponCode,
		AffiliateRef: meta.AffiliateRef,
	}
	if order.CompletedAt != nil {
		event.CompletedAt = *order.CompletedAt
	}
	return event
}
