package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

// ErrNotConfigured is returned by the Unconfigured gateway.
var ErrNotConfigured = errors.New("payment processor is not configured")

// Gateway is the subset of the payment processor the fulfillment pipeline
// depends on. Implementations must be safe for concurrent use.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentIntentID string) (string, error)
}

type CustomerParams struct {
	UserID string
	Email  string
}

type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
	Currency        string
}

type CheckoutSessionParams struct {
	CustomerID        string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	LineItems         []LineItem
	// Metadata is attached to both the session and its payment intent.
	Metadata map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// api is the slice of stripe.Client used by the gateway.
type api interface {
	createCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	createCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	createRefund(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error)
}

type clientAPI struct {
	sc *stripe.Client
}

func (c clientAPI) createCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	return c.sc.V1Customers.Create(ctx, params)
}

func (c clientAPI) createCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return c.sc.V1CheckoutSessions.Create(ctx, params)
}

func (c clientAPI) createRefund(ctx context.Context, params *stripe.RefundCreateParams) (*stripe.Refund, error) {
	return c.sc.V1Refunds.Create(ctx, params)
}

type stripeGateway struct {
	api     api
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
}

// NewGateway returns a Stripe backed gateway, or the Unconfigured gateway when
// no API key is present so the rest of the service can still boot.
func NewGateway(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (Gateway, error) {
	if cfg.APIKey == "" {
		if logg != nil {
			logg.Warn(ctx, "stripe api key missing; payment gateway disabled")
		}
		return Unconfigured{}, nil
	}
	client, err := NewClient(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	return newStripeGateway(clientAPI{sc: client.API()}, cfg), nil
}

func newStripeGateway(a api, cfg config.StripeConfig) *stripeGateway {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &stripeGateway{
		api:     a,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        "stripe",
			MaxRequests: 1,
			Timeout:     cfg.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: isBreakerSuccess,
		}),
	}
}

// isBreakerSuccess keeps client side rejections (4xx) from opening the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode > 0 && stripeErr.HTTPStatusCode < 500
	}
	return false
}

func (g *stripeGateway) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.breaker.Execute(func() (any, error) {
		return fn(ctx)
	})
}

func (g *stripeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (string, error) {
	res, err := g.call(ctx, func(ctx context.Context) (any, error) {
		p := &stripe.CustomerCreateParams{
			Metadata: map[string]string{"userId": params.UserID},
		}
		if params.Email != "" {
			p.Email = stripe.String(params.Email)
		}
		return g.api.createCustomer(ctx, p)
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return res.(*stripe.Customer).ID, nil
}

func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error) {
	res, err := g.call(ctx, func(ctx context.Context) (any, error) {
		return g.api.createCheckoutSession(ctx, buildSessionParams(params))
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe checkout session: %w", err)
	}
	session := res.(*stripe.CheckoutSession)
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

func (g *stripeGateway) CreateRefund(ctx context.Context, paymentIntentID string) (string, error) {
	res, err := g.call(ctx, func(ctx context.Context) (any, error) {
		return g.api.createRefund(ctx, &stripe.RefundCreateParams{
			PaymentIntent: stripe.String(paymentIntentID),
		})
	})
	if err != nil {
		return "", fmt.Errorf("create stripe refund: %w", err)
	}
	return res.(*stripe.Refund).ID, nil
}

func buildSessionParams(params CheckoutSessionParams) *stripe.CheckoutSessionCreateParams {
	lines := make([]*stripe.CheckoutSessionCreateLineItemParams, 0, len(params.LineItems))
	for _, item := range params.LineItems {
		lines = append(lines, &stripe.CheckoutSessionCreateLineItemParams{
			Quantity: stripe.Int64(item.Quantity),
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:   stripe.String(item.Currency),
				UnitAmount: stripe.Int64(item.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	p := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems:  lines,
		Metadata:   params.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: params.Metadata,
		},
	}
	if params.CustomerID != "" {
		p.Customer = stripe.String(params.CustomerID)
	}
	if params.ClientReferenceID != "" {
		p.ClientReferenceID = stripe.String(params.ClientReferenceID)
	}
	return p
}

// Unconfigured is the gateway used when no processor credentials exist. Every
// call fails with ErrNotConfigured.
type Unconfigured struct{}

func (Unconfigured) CreateCustomer(context.Context, CustomerParams) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) CreateCheckoutSession(context.Context, CheckoutSessionParams) (*CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) CreateRefund(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}
