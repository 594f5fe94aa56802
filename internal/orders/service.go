package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/notifications"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/assetdrop-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tokenRevoker interface {
	DeactivateForOrderTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error)
}

type refunder interface {
	CreateRefund(ctx context.Context, paymentIntentID string) (string, error)
}

type notifier interface {
	RequestTx(ctx context.Context, tx *gorm.DB, req notifications.Request) error
}

// Service is the read and admin surface over completed purchases.
type Service interface {
	List(ctx context.Context, q Query) (*ListResult, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error)
	// AdminRefund refunds a completed order at the processor and then
	// applies the refund locally.
	AdminRefund(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error)
	// ApplyRefund marks the order paid by paymentIntentID refunded and
	// revokes its downloads. Applying it again changes nothing.
	ApplyRefund(ctx context.Context, paymentIntentID string) (*models.Order, error)
	// MarkFailed fails a not yet completed order for the payment session.
	MarkFailed(ctx context.Context, sessionID, reason string) (bool, error)
	InvalidateListCaches(ctx context.Context, userID uuid.UUID)
}

// Query filters an order listing. A nil UserID lists every buyer.
type Query struct {
	UserID *uuid.UUID
	Status *enums.OrderStatus
	From   *time.Time
	To     *time.Time
	Search string
	Limit  int
	Cursor string
}

func (q Query) firstUnfilteredPage() bool {
	return q.Status == nil && q.From == nil && q.To == nil && q.Search == "" &&
		pagination.CursorOrFirstPage(q.Cursor) == nil &&
		pagination.NormalizeLimit(q.Limit) == pagination.DefaultLimit
}

type ServiceParams struct {
	Repo          Repository
	Tx            txRunner
	Tokens        tokenRevoker
	Gateway       refunder
	Notifications notifier
	Outbox        outbox.Emitter
	Cache         CacheStore
	Config        config.OrdersConfig
	Logger        *logger.Logger
}

type service struct {
	repo          Repository
	tx            txRunner
	tokens        tokenRevoker
	gateway       refunder
	notifications notifier
	outbox        outbox.Emitter
	cache         *listCache
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("token revoker required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("order list cache store required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:          params.Repo,
		tx:            params.Tx,
		tokens:        params.Tokens,
		gateway:       params.Gateway,
		notifications: params.Notifications,
		outbox:        params.Outbox,
		cache:         &listCache{store: params.Cache, ttl: params.Config.ListCacheTTL, logg: logg},
		logg:          logg,
		now:           time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, q Query) (*ListResult, error) {
	cacheable := q.firstUnfilteredPage()
	if cacheable {
		if res, ok := s.cache.load(ctx, q.UserID); ok {
			return res, nil
		}
	}

	limit := pagination.NormalizeLimit(q.Limit)
	filter := listFilter{
		UserID: q.UserID,
		Status: q.Status,
		From:   q.From,
		To:     q.To,
		Search: q.Search,
		Limit:  limit + 1,
	}
	if cursor := pagination.CursorOrFirstPage(q.Cursor); cursor != nil {
		filter.Before = &cursor.Value
		if id, err := uuid.Parse(cursor.ID); err == nil {
			filter.BeforeID = &id
		}
	}

	rows, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	res := &ListResult{Orders: make([]OrderDTO, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		res.NextCursor = pagination.EncodeCursor(last.CreatedAt, last.ID.String())
	}
	for _, row := range rows {
		res.Orders = append(res.Orders, summaryDTO(row))
	}

	if cacheable {
		s.cache.save(ctx, q.UserID, res)
	}
	return res, nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	dto := DetailDTO(*order)
	return &dto, nil
}

func (s *service) AdminRefund(ctx context.Context, orderID uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed orders can be refunded").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.PaymentIntentID == nil || *order.PaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment to refund")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	refundID, err := s.gateway.CreateRefund(ctx, *order.PaymentIntentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund")
	}
	s.logg.Info(s.logg.WithField(ctx, "refund_id", refundID), "refund created at processor")

	if _, err := s.ApplyRefund(ctx, *order.PaymentIntentID); err != nil {
		return nil, err
	}
	refreshed, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	dto := DetailDTO(*refreshed)
	return &dto, nil
}

func (s *service) ApplyRefund(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	if paymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}

	var (
		order   *models.Order
		changed bool
		revoked int64
	)
	now := s.now().UTC()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = repo.FindByPaymentIntentForUpdate(ctx, paymentIntentID)
		if err != nil {
			return err
		}
		if order.Status == enums.OrderStatusRefunded {
			return nil
		}

		changed, err = repo.TransitionStatus(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing, enums.OrderStatusCompleted, enums.OrderStatusFailed},
			enums.OrderStatusRefunded,
			map[string]any{"refunded_at": now},
		)
		if err != nil || !changed {
			return err
		}
		order.Status = enums.OrderStatusRefunded
		order.RefundedAt = &now

		revoked, err = s.tokens.DeactivateForOrderTx(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		event := payloads.OrderRefundedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			PaymentIntentID: paymentIntentID,
			Total:           order.Total.StringFixed(2),
			AffiliateRef:    metadataString(order.Metadata, MetadataAffiliateRef),
			TokensRevoked:   revoked,
			RefundedAt:      now,
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data:          event,
		}); err != nil {
			return err
		}

		req := notifications.Request{
			Template: notifications.TemplateOrderRefunded,
			UserID:   order.UserID,
			Variables: map[string]any{
				"order_number": order.OrderNumber,
				"total":        order.Total.StringFixed(2),
				"currency":     order.Currency,
			},
		}
		if order.BillingEmail != nil {
			req.Email = *order.BillingEmail
		}
		return s.notifications.RequestTx(ctx, tx, req)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund")
	}

	if changed {
		s.InvalidateListCaches(ctx, order.UserID)
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
			"payment_intent_id": paymentIntentID,
			"tokens_revoked":    revoked,
		})
		s.logg.Info(logCtx, "order refunded")
	}
	return order, nil
}

func (s *service) MarkFailed(ctx context.Context, sessionID, reason string) (bool, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindBySessionID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		changed, err = repo.TransitionStatus(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusProcessing},
			enums.OrderStatusFailed, nil)
		if err != nil || !changed {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: payloads.OrderFailedEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				PaymentSessionID: sessionID,
				Reason:           reason,
			},
		})
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
	}
	return changed, nil
}

func (s *service) InvalidateListCaches(ctx context.Context, userID uuid.UUID) {
	s.cache.invalidate(ctx, userID)
}
