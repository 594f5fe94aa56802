package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/cart"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/stripe"
)

type cartContents interface {
	Contents(ctx context.Context, id cart.Identity) (*models.Cart, []models.CartItem, error)
}

type couponValidator interface {
	Validate(ctx context.Context, code string, productIDs []uuid.UUID) (*models.Coupon, error)
}

// Service starts hosted payment sessions for a user's active cart.
type Service interface {
	CreateSession(ctx context.Context, input Input) (*Result, error)
}

type Input struct {
	UserID       uuid.UUID
	Email        string
	SuccessURL   string
	CancelURL    string
	CouponCode   string
	AffiliateRef string
}

type Result struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

type ServiceParams struct {
	Carts     cartContents
	Coupons   couponValidator
	Customers CustomerRepository
	Gateway   stripe.Gateway
	Config    config.CheckoutConfig
	Logger    *logger.Logger
}

type service struct {
	carts     cartContents
	coupons   couponValidator
	customers CustomerRepository
	gateway   stripe.Gateway
	cfg       config.CheckoutConfig
	logg      *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	if params.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		carts:     params.Carts,
		coupons:   params.Coupons,
		customers: params.Customers,
		gateway:   params.Gateway,
		cfg:       params.Config,
		logg:      logg,
	}, nil
}

func (s *service) CreateSession(ctx context.Context, input Input) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	successURL := firstNonEmpty(input.SuccessURL, s.cfg.SuccessURL)
	cancelURL := firstNonEmpty(input.CancelURL, s.cfg.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "success_url and cancel_url are required")
	}

	userCart, items, err := s.carts.Contents(ctx, cart.UserIdentity(input.UserID))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	ctx = s.logg.WithCartID(ctx, userCart.ID.String())

	couponCode := strings.TrimSpace(input.CouponCode)
	if couponCode != "" {
		coupon, err := s.coupons.Validate(ctx, couponCode, productIDs(items))
		if err != nil {
			return nil, err
		}
		couponCode = coupon.Code
	}

	customerID, err := s.ensureCustomer(ctx, input.UserID, input.Email)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}
	metadata := SessionMetadata{
		UserID:       input.UserID,
		CartID:       userCart.ID,
		CartItemIDs:  itemIDs,
		CouponCode:   couponCode,
		AffiliateRef: strings.TrimSpace(input.AffiliateRef),
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		CustomerID:        customerID,
		ClientReferenceID: userCart.ID.String(),
		SuccessURL:        successURL,
		CancelURL:         cancelURL,
		LineItems:         lineItems(items),
		Metadata:          metadata.Encode(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"session_id": session.ID,
		"item_count": len(items),
	})
	s.logg.Info(logCtx, "checkout session created")

	return &Result{SessionID: session.ID, RedirectURL: session.URL}, nil
}

// ensureCustomer returns the processor customer for the user, creating and
// recording one on first checkout.
func (s *service) ensureCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	existing, err := s.customers.FindByUser(ctx, userID)
	if err == nil {
		return existing.ProviderCustomerID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment customer")
	}

	customerID, err := s.gateway.CreateCustomer(ctx, stripe.CustomerParams{
		UserID: userID.String(),
		Email:  email,
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment customer")
	}

	mapping := &models.PaymentCustomer{UserID: userID, ProviderCustomerID: customerID}
	if err := s.customers.Create(ctx, mapping); err != nil {
		if !db.IsUniqueViolation(err, "ux_payment_customers_user") {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment customer")
		}
		// A parallel checkout stored its customer first; reuse it.
		winner, err := s.customers.FindByUser(ctx, userID)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment customer")
		}
		return winner.ProviderCustomerID, nil
	}
	return customerID, nil
}

func lineItems(items []models.CartItem) []stripe.LineItem {
	out := make([]stripe.LineItem, 0, len(items))
	for _, item := range items {
		qty := int64(item.Quantity)
		if qty < 1 {
			qty = 1
		}
		out = append(out, stripe.LineItem{
			Name:            lineName(item),
			UnitAmountCents: cart.Cents(item.UnitPrice),
			Quantity:        qty,
			Currency:        item.Currency.Lower(),
		})
	}
	return out
}

func lineName(item models.CartItem) string {
	name := "Digital product"
	if item.Product != nil && item.Product.Title != "" {
		name = item.Product.Title
	}
	if item.Variant != nil && item.Variant.Name != "" {
		name += " (" + item.Variant.Name + ")"
	}
	return name
}

func productIDs(items []models.CartItem) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		out = append(out, item.ProductID)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
