package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/internal/cart"
	"github.com/angelmondragon/assetdrop-backend/internal/coupons"
	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/assetdrop-backend/pkg/db/models"
	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
	"github.com/angelmondragon/assetdrop-backend/pkg/stripe"
)

type fakeGateway struct {
	mu        sync.Mutex
	customers int
	sessions  []stripe.CheckoutSessionParams
	err       error
}

func (g *fakeGateway) CreateCustomer(_ context.Context, params stripe.CustomerParams) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.customers++
	return "cus_" + params.UserID[:8], nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.sessions = append(g.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (g *fakeGateway) CreateRefund(context.Context, string) (string, error) {
	return "", errors.New("not used")
}

type fixture struct {
	conn    *gorm.DB
	carts   cart.Service
	gateway *fakeGateway
	svc     Service
}

func newFixture(t *testing.T, gateway stripe.Gateway) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	catalog, err := products.NewCatalog(products.NewRepository(conn))
	require.NoError(t, err)
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(conn),
		Tx:      db.NewFromConn(conn),
		Catalog: catalog,
		Cache:   redis.Unavailable(),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Config:  config.CartConfig{Expiry: time.Hour, DefaultCurrency: "USD"},
	})
	require.NoError(t, err)
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Carts:     carts,
		Coupons:   couponSvc,
		Customers: NewCustomerRepository(conn),
		Gateway:   gateway,
		Config:    config.CheckoutConfig{SuccessURL: "https://shop.test/success", CancelURL: "https://shop.test/cancel"},
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	f := &fixture{conn: conn, carts: carts, svc: svc}
	if fake, ok := gateway.(*fakeGateway); ok {
		f.gateway = fake
	}
	return f
}

func TestCreateSessionBuildsLineItemsAndMetadata(t *testing.T) {
	f := newFixture(t, &fakeGateway{})
	ctx := context.Background()
	userID := uuid.New()
	brushes := dbtest.MustProduct(t, f.conn, "brushes", "19.99")
	fonts := dbtest.MustProduct(t, f.conn, "fonts", "9.99")

	_, err := f.carts.AddItem(ctx, cart.UserIdentity(userID), cart.AddItemInput{ProductID: brushes.ID})
	require.NoError(t, err)
	view, err := f.carts.AddItem(ctx, cart.UserIdentity(userID), cart.AddItemInput{ProductID: fonts.ID})
	require.NoError(t, err)

	res, err := f.svc.CreateSession(ctx, Input{UserID: userID, Email: "buyer@example.com", AffiliateRef: "ref-7"})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.SessionID)
	assert.NotEmpty(t, res.RedirectURL)

	require.Len(t, f.gateway.sessions, 1)
	params := f.gateway.sessions[0]
	assert.Equal(t, "https://shop.test/success", params.SuccessURL)
	assert.Equal(t, view.CartID.String(), params.ClientReferenceID)
	require.Len(t, params.LineItems, 2)
	assert.Equal(t, int64(1999), params.LineItems[0].UnitAmountCents)
	assert.Equal(t, "brushes", params.LineItems[0].Name)
	assert.Equal(t, int64(999), params.LineItems[1].UnitAmountCents)
	assert.Equal(t, "usd", params.LineItems[1].Currency)

	meta, err := DecodeSessionMetadata(params.Metadata)
	require.NoError(t, err)
	assert.Equal(t, userID, meta.UserID)
	assert.Equal(t, view.CartID, meta.CartID)
	assert.ElementsMatch(t, []uuid.UUID{view.Items[0].ID, view.Items[1].ID}, meta.CartItemIDs)
	assert.Equal(t, "ref-7", meta.AffiliateRef)

	// the customer mapping is reused on the next checkout
	_, err = f.svc.CreateSession(ctx, Input{UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.customers)
	var mappings int64
	require.NoError(t, f.conn.Model(&models.PaymentCustomer{}).Count(&mappings).Error)
	assert.Equal(t, int64(1), mappings)
}

func TestCreateSessionRejectsEmptyCart(t *testing.T) {
	f := newFixture(t, &fakeGateway{})
	_, err := f.svc.CreateSession(context.Background(), Input{UserID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, f.gateway.sessions)
}

func TestCreateSessionValidatesCoupon(t *testing.T) {
	f := newFixture(t, &fakeGateway{})
	ctx := context.Background()
	userID := uuid.New()
	product := dbtest.MustProduct(t, f.conn, "pack", "5.00")
	_, err := f.carts.AddItem(ctx, cart.UserIdentity(userID), cart.AddItemInput{ProductID: product.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateSession(ctx, Input{UserID: userID, CouponCode: "NOPE"})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	require.NoError(t, f.conn.Create(&models.Coupon{
		ID:           uuid.New(),
		Code:         "LAUNCH",
		DiscountType: enums.CouponDiscountFixed,
		Value:        decimal.NewFromInt(2),
		Scope:        enums.CouponScopeAll,
		IsActive:     true,
	}).Error)

	_, err = f.svc.CreateSession(ctx, Input{UserID: userID, CouponCode: "launch"})
	require.NoError(t, err)
	meta, err := DecodeSessionMetadata(f.gateway.sessions[0].Metadata)
	require.NoError(t, err)
	assert.Equal(t, "LAUNCH", meta.CouponCode)
}

func TestCreateSessionMapsGatewayFailure(t *testing.T) {
	f := newFixture(t, stripe.Unconfigured{})
	ctx := context.Background()
	userID := uuid.New()
	product := dbtest.MustProduct(t, f.conn, "pack", "5.00")
	_, err := f.carts.AddItem(ctx, cart.UserIdentity(userID), cart.AddItemInput{ProductID: product.ID})
	require.NoError(t, err)

	_, err = f.svc.CreateSession(ctx, Input{UserID: userID})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.Retryable(err))
	assert.ErrorIs(t, err, stripe.ErrNotConfigured)

	var mappings int64
	require.NoError(t, f.conn.Model(&models.PaymentCustomer{}).Count(&mappings).Error)
	assert.Zero(t, mappings)
}
