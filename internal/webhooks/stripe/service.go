package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/checkout"
	"github.com/angelmondragon/assetdrop-backend/internal/effects"
	"github.com/angelmondragon/assetdrop-backend/internal/orders"
	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/metrics"
)

const orderSessionConstraint = "ux_orders_payment_session_id"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type cartReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Cart, error)
	ListItemsByID(ctx context.Context, cartID uuid.UUID, itemIDs []uuid.UUID) ([]models.CartItem, error)
}

type tokenIssuer interface {
	IssueTx(ctx context.Context, tx *gorm.DB, orderItemID, userID uuid.UUID) (*models.DownloadToken, error)
}

type orderLifecycle interface {
	ApplyRefund(ctx context.Context, paymentIntentID string) (*models.Order, error)
	MarkFailed(ctx context.Context, sessionID, reason string) (bool, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, effects ...effects.Effect) error
}

type ServiceParams struct {
	Tx          txRunner
	Carts       cartReader
	Orders      orders.Repository
	OrderStates orderLifecycle
	Products    products.Repository
	Tokens      tokenIssuer
	Completion  *CompletionEffects
	Dispatcher  dispatcher
	Metrics     *metrics.WebhookMetrics
	Logger      *logger.Logger
}

// Service reconciles payment processor events into orders. Every event type
// is safe to receive more than once and in any order.
type Service struct {
	tx          txRunner
	carts       cartReader
	orders      orders.Repository
	orderStates orderLifecycle
	products    products.Repository
	tokens      tokenIssuer
	completion  *CompletionEffects
	dispatcher  dispatcher
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.OrderStates == nil {
		return nil, fmt.Errorf("order lifecycle service required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("products repository required")
	}
	if params.Tokens == nil {
		return nil, fmt.Errorf("download token issuer required")
	}
	if params.Completion == nil {
		return nil, fmt.Errorf("completion effects required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("effect dispatcher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		tx:          params.Tx,
		carts:       params.Carts,
		orders:      params.Orders,
		orderStates: params.OrderStates,
		products:    params.Products,
		tokens:      params.Tokens,
		completion:  params.Completion,
		dispatcher:  params.Dispatcher,
		metrics:     params.Metrics,
		logg:        logg,
		now:         time.Now,
	}, nil
}

// HandleEvent returns nil for events that are handled, ignored or can never
// succeed; a returned error means the processor should redeliver.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	start := s.now()
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	outcome, err := s.route(ctx, event)
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.Record(string(event.Type), outcome, s.now().Sub(start))
	return err
}

func (s *Service) route(ctx context.Context, event *stripe.Event) (string, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			s.logg.Error(ctx, "undecodable checkout session payload", err)
			return metrics.OutcomeUnrecoverable, nil
		}
		if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
			session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed payment methods finish with async_payment_succeeded
			s.logg.Info(s.logg.WithField(ctx, "payment_session_id", session.ID), "checkout session awaiting payment")
			return metrics.OutcomeIgnored, nil
		}
		return s.completeSession(ctx, session)
	case stripe.EventTypeCheckoutSessionAsyncPaymentFailed, stripe.EventTypeCheckoutSessionExpired:
		session, err := decodeSession(event)
		if err != nil {
			s.logg.Error(ctx, "undecodable checkout session payload", err)
			return metrics.OutcomeUnrecoverable, nil
		}
		return s.failSession(ctx, session, string(event.Type))
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			s.logg.Error(ctx, "undecodable charge payload", err)
			return metrics.OutcomeUnrecoverable, nil
		}
		return s.refundCharge(ctx, &charge)
	default:
		return metrics.OutcomeIgnored, nil
	}
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, err
	}
	if session.ID == "" {
		return nil, errors.New("checkout session id missing")
	}
	return &session, nil
}

func (s *Service) completeSession(ctx context.Context, session *stripe.CheckoutSession) (string, error) {
	ctx = s.logg.WithField(ctx, "payment_session_id", session.ID)
	if !checkout.IsPurchase(session.Metadata) {
		return metrics.OutcomeIgnored, nil
	}

	existing, err := s.orders.FindBySessionID(ctx, session.ID)
	if err == nil {
		s.logg.Info(s.logg.WithOrderID(ctx, existing.ID.String()), "order already exists for checkout session")
		return metrics.OutcomeDuplicate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing order")
	}

	meta, err := checkout.DecodeSessionMetadata(session.Metadata)
	if err != nil {
		s.logg.Error(ctx, "checkout session metadata unusable", err)
		return metrics.OutcomeUnrecoverable, nil
	}
	ctx = s.logg.WithCartID(ctx, meta.CartID.String())

	cart, err := s.carts.FindByID(ctx, meta.CartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Error(ctx, "cart for paid checkout session not found", err)
			return metrics.OutcomeUnrecoverable, nil
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	items, err := s.carts.ListItemsByID(ctx, cart.ID, meta.CartItemIDs)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}
	if len(items) == 0 {
		s.logg.Error(ctx, "paid checkout session lists no remaining cart items", errors.New("cart items missing"))
		return metrics.OutcomeUnrecoverable, nil
	}
	if len(items) != len(meta.CartItemIDs) {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"listed_items": len(meta.CartItemIDs),
			"found_items":  len(items),
		}), "checkout session lists cart items that no longer exist")
	}

	order, err := s.createOrder(ctx, session, meta, cart, items)
	if err != nil {
		if db.IsUniqueViolation(err, orderSessionConstraint) {
			if winner, findErr := s.orders.FindBySessionID(ctx, session.ID); findErr == nil {
				s.logg.Info(s.logg.WithOrderID(ctx, winner.ID.String()), "concurrent delivery already created the order")
				return metrics.OutcomeDuplicate, nil
			}
		}
		if pkgerrors.As(err) != nil {
			return "", err
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"order_number": order.OrderNumber,
		"item_count":   len(order.Items),
		"total":        order.Total.StringFixed(2),
	})
	s.logg.Info(logCtx, "order created from checkout session")

	_ = s.dispatcher.Dispatch(logCtx, s.completion.For(order, meta)...)
	return metrics.OutcomeProcessed, nil
}

func (s *Service) createOrder(
	ctx context.Context,
	session *stripe.CheckoutSession,
	meta *checkout.SessionMetadata,
	cart *models.Cart,
	items []models.CartItem,
) (*models.Order, error) {
	now := s.now().UTC()
	number, err := orders.NewOrderNumber(now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
	}

	subtotal := decimal.Zero
	lines := make([]models.OrderItem, 0, len(items))
	counts := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty < 1 {
			qty = 1
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(qty))))
		counts[item.ProductID]++
		lines = append(lines, snapshotLine(item))
	}

	order := &models.Order{
		ID:               uuid.New(),
		UserID:           meta.UserID,
		OrderNumber:      number,
		Status:           enums.OrderStatusCompleted,
		Subtotal:         subtotal,
		Discount:         decimal.Zero,
		Total:            subtotal,
		Currency:         cart.Currency,
		PaymentSessionID: session.ID,
		CompletedAt:      &now,
		Metadata:         orderMetadata(meta),
	}
	if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
		order.PaymentIntentID = &session.PaymentIntent.ID
	}
	if details := session.CustomerDetails; details != nil {
		if details.Email != "" {
			order.BillingEmail = &details.Email
		}
		if details.Name != "" {
			order.BillingName = &details.Name
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return err
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := repo.CreateItems(ctx, lines); err != nil {
			return err
		}
		for i := range lines {
			token, err := s.tokens.IssueTx(ctx, tx, lines[i].ID, order.UserID)
			if err != nil {
				return err
			}
			lines[i].DownloadToken = token
		}
		return s.products.WithTx(tx).IncrementDownloadCounts(ctx, counts)
	})
	if err != nil {
		return nil, err
	}
	order.Items = lines
	return order, nil
}

func snapshotLine(item models.CartItem) models.OrderItem {
	line := models.OrderItem{
		ID:        uuid.New(),
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Price:     item.UnitPrice,
		Currency:  item.Currency,
	}
	if item.Product != nil {
		line.ProductTitle = item.Product.Title
		line.ProductSlug = item.Product.Slug
	}
	if item.Variant != nil {
		name := item.Variant.Name
		line.VariantName = &name
	}
	return line
}

func orderMetadata(meta *checkout.SessionMetadata) map[string]any {
	out := map[string]any{orders.MetadataCartID: meta.CartID.String()}
	if meta.CouponCode != "" {
		out[orders.MetadataCouponCode] = meta.CouponCode
	}
	if meta.AffiliateRef != "" {
		out[orders.MetadataAffiliateRef] = meta.AffiliateRef
	}
	return out
}

func (s *Service) failSession(ctx context.Context, session *stripe.CheckoutSession, reason string) (string, error) {
	if !checkout.IsPurchase(session.Metadata) {
		return metrics.OutcomeIgnored, nil
	}
	ctx = s.logg.WithField(ctx, "payment_session_id", session.ID)
	changed, err := s.orderStates.MarkFailed(ctx, session.ID, reason)
	if err != nil {
		return "", err
	}
	if !changed {
		return metrics.OutcomeIgnored, nil
	}
	s.logg.Info(ctx, "order marked failed")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) refundCharge(ctx context.Context, charge *stripe.Charge) (string, error) {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		s.logg.Warn(s.logg.WithField(ctx, "charge_id", charge.ID), "refunded charge carries no payment intent")
		return metrics.OutcomeIgnored, nil
	}
	if !charge.Refunded {
		// partial refunds keep the order and its downloads
		return metrics.OutcomeIgnored, nil
	}
	ctx = s.logg.WithField(ctx, "payment_intent_id", charge.PaymentIntent.ID)
	if _, err := s.orderStates.ApplyRefund(ctx, charge.PaymentIntent.ID); err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			// the completion event may still be in flight; redelivery applies the
			// refund once the order exists instead of leaving it active
			s.logg.Warn(ctx, "refund for payment intent without an order, awaiting redelivery")
			return "", pkgerrors.New(pkgerrors.CodeConflict, "order for refunded payment not recorded yet")
		}
		return "", err
	}
	return metrics.OutcomeProcessed, nil
}
