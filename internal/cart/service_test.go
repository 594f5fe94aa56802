package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

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
)

var testCartConfig = config.CartConfig{
	IdentityCacheTTL: 5 * time.Minute,
	ViewCacheTTL:     2 * time.Minute,
	Expiry:           168 * time.Hour,
	DefaultCurrency:  "USD",
}

type fixture struct {
	conn  *gorm.DB
	svc   Service
	redis *miniredis.Miniredis
	cache *redis.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	f := newFixtureWithCache(t, cache)
	f.redis = mr
	return f
}

func newFixtureWithCache(t *testing.T, cache CacheStore) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	catalog, err := products.NewCatalog(products.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      db.NewFromConn(conn),
		Catalog: catalog,
		Cache:   cache,
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Config:  testCartConfig,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)
	f := &fixture{conn: conn, svc: svc}
	if client, ok := cache.(*redis.Client); ok {
		f.cache = client
	}
	return f
}

func errCode(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return ""
}

func TestSummarizeUsesCents(t *testing.T) {
	t.Parallel()

	items := []models.CartItem{
		{Quantity: 1, UnitPrice: mustDecimal(t, "19.99"), Currency: enums.CurrencyUSD},
		{Quantity: 1, UnitPrice: mustDecimal(t, "9.99"), Currency: enums.CurrencyUSD},
	}
	summary := Summarize(items, enums.CurrencyEUR)

	assert.Equal(t, int64(2998), summary.SubtotalCents)
	assert.Equal(t, int64(0), summary.DiscountCents)
	assert.Equal(t, int64(2998), summary.TotalCents)
	assert.Equal(t, "29.98", summary.Total)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, enums.CurrencyUSD, summary.Currency)

	empty := Summarize(nil, enums.CurrencyEUR)
	assert.Equal(t, "0.00", empty.Total)
	assert.Equal(t, enums.CurrencyEUR, empty.Currency)
}

func TestResolveRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Resolve(context.Background(), Identity{SessionID: "  "})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(err))
}

func TestResolveCreatesOnceAndCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := f.svc.Resolve(ctx, UserIdentity(userID))
	require.NoError(t, err)
	assert.Equal(t, enums.CartStatusActive, first.Status)
	assert.True(t, first.ExpiresAt.After(time.Now().Add(167*time.Hour)))

	cached, err := f.redis.Get(f.cache.CartIdentityKey("user", userID.String()))
	require.NoError(t, err)
	assert.Equal(t, first.ID.String(), cached)

	second, err := f.svc.Resolve(ctx, Identity{UserID: &userID, SessionID: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, f.conn.Model(&models.Cart{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestResolveIgnoresStaleCacheEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cart, err := f.svc.Resolve(ctx, SessionIdentity("sess-1"))
	require.NoError(t, err)

	key := f.cache.CartIdentityKey("session", "sess-1")
	require.NoError(t, f.redis.Set(key, uuid.NewString()))

	again, err := f.svc.Resolve(ctx, SessionIdentity("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID)

	cached, err := f.redis.Get(key)
	require.NoError(t, err)
	assert.Equal(t, cart.ID.String(), cached)
}

func TestResolveConcurrentCallersShareOneCart(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	userID := uuid.New()
	ids := make([]uuid.UUID, 8)
	var g errgroup.Group
	for i := range ids {
		i := i
		g.Go(func() error {
			cart, err := f.svc.Resolve(context.Background(), UserIdentity(userID))
			if err != nil {
				return err
			}
			ids[i] = cart.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

// gatedRepo holds the first FindActive until released.
type gatedRepo struct {
	Repository
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
	ctxErr   error
	observed chan struct{}
}

func (g *gatedRepo) FindActive(ctx context.Context, id Identity) (*models.Cart, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
		g.ctxErr = ctx.Err()
		close(g.observed)
	}
	return g.Repository.FindActive(ctx, id)
}

func TestResolveSurvivesCancelledLeader(t *testing.T) {
	conn := dbtest.Open(t)
	mr := miniredis.RunT(t)
	catalog, err := products.NewCatalog(products.NewRepository(conn))
	require.NoError(t, err)
	repo := &gatedRepo{
		Repository: NewRepository(conn),
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
		observed:   make(chan struct{}),
	}
	svc, err := NewService(ServiceParams{
		Repo:    repo,
		Tx:      db.NewFromConn(conn),
		Catalog: catalog,
		Cache:   redis.NewFromRaw(goredis.NewClient(&goredis.Options{Addr: mr.Addr()})),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
		Config:  testCartConfig,
		Logger:  logger.Nop(),
	})
	require.NoError(t, err)

	owner := SessionIdentity("sess-shared")
	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(leaderCtx, owner)
		leader <- err
	}()
	<-repo.entered

	follower := make(chan *models.Cart, 1)
	followerErr := make(chan error, 1)
	go func() {
		cart, err := svc.Resolve(context.Background(), owner)
		followerErr <- err
		follower <- cart
	}()

	cancel()
	assert.ErrorIs(t, <-leader, context.Canceled)
	close(repo.release)

	<-repo.observed
	assert.NoError(t, repo.ctxErr, "shared resolve must not inherit the leader's cancellation")
	require.NoError(t, <-followerErr)
	cart := <-follower
	require.NotNil(t, cart)
	assert.Equal(t, enums.CartStatusActive, cart.Status)
}

func TestAddItemIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustProduct(t, f.conn, "brushes", "19.99")
	owner := SessionIdentity("sess-add")

	view, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	view, err = f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 1, view.Items[0].Quantity)
	assert.Equal(t, "19.99", view.Items[0].UnitPrice)
	assert.Equal(t, "brushes", view.Items[0].ProductTitle)
	assert.Equal(t, int64(1999), view.Summary.TotalCents)

	var count int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAddItemSnapshotsVariantPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustProduct(t, f.conn, "fonts", "15.00")
	extended := dbtest.MustVariant(t, f.conn, product.ID, "extended", "45.00")
	basic := dbtest.MustVariant(t, f.conn, product.ID, "basic", "")
	owner := UserIdentity(uuid.New())

	_, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantID: &extended.ID})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID, VariantID: &basic.ID})
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, "45.00", view.Items[0].UnitPrice)
	assert.Equal(t, "15.00", view.Items[1].UnitPrice)
	assert.Equal(t, "60.00", view.Summary.Total)

	// a later price change does not touch the snapshot
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", product.ID).Update("price", "99.00").Error)
	fresh, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, "60.00", fresh.Summary.Total)
}

func TestAddItemValidatesProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := SessionIdentity("sess-invalid")
	draft := dbtest.MustProduct(t, f.conn, "draft", "5.00", dbtest.WithStatus(enums.ProductStatusDraft))
	other := dbtest.MustProduct(t, f.conn, "other", "5.00")
	foreign := dbtest.MustVariant(t, f.conn, other.ID, "foreign", "")
	published := dbtest.MustProduct(t, f.conn, "published", "5.00")

	_, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: uuid.New()})
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(err))

	_, err = f.svc.AddItem(ctx, owner, AddItemInput{ProductID: draft.ID})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(err))

	_, err = f.svc.AddItem(ctx, owner, AddItemInput{ProductID: published.ID, VariantID: &foreign.ID})
	assert.Equal(t, pkgerrors.CodeValidation, errCode(err))
}

func TestRemoveItemAndClear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := UserIdentity(uuid.New())
	a := dbtest.MustProduct(t, f.conn, "a", "1.00")
	b := dbtest.MustProduct(t, f.conn, "b", "2.00")

	_, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: a.ID})
	require.NoError(t, err)
	view, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: b.ID})
	require.NoError(t, err)
	require.Len(t, view.Items, 2)

	_, err = f.svc.RemoveItem(ctx, owner, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(err))

	// items of someone else's cart are invisible
	_, err = f.svc.RemoveItem(ctx, SessionIdentity("stranger"), view.Items[0].ID)
	assert.Equal(t, pkgerrors.CodeNotFound, errCode(err))

	view, err = f.svc.RemoveItem(ctx, owner, view.Items[0].ID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, b.ID, view.Items[0].ProductID)

	view, err = f.svc.Clear(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, "0.00", view.Summary.Total)
}

func TestGetServesCachedView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := SessionIdentity("sess-view")
	product := dbtest.MustProduct(t, f.conn, "icons", "3.50")

	view, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	assert.True(t, f.redis.Exists(f.cache.CartViewKey(view.CartID.String())))

	// rows removed behind the service's back stay visible until invalidation
	require.NoError(t, f.conn.Where("cart_id = ?", view.CartID).Delete(&models.CartItem{}).Error)
	cached, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, cached.Items, 1)
}

func TestMergeGuestCartDropsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	a := dbtest.MustProduct(t, f.conn, "a", "4.00")
	b := dbtest.MustProduct(t, f.conn, "b", "6.00")

	guest := SessionIdentity("sess-merge")
	_, err := f.svc.AddItem(ctx, guest, AddItemInput{ProductID: a.ID})
	require.NoError(t, err)
	guestView, err := f.svc.AddItem(ctx, guest, AddItemInput{ProductID: b.ID})
	require.NoError(t, err)

	_, err = f.svc.AddItem(ctx, UserIdentity(userID), AddItemInput{ProductID: a.ID})
	require.NoError(t, err)

	merged, err := f.svc.MergeGuestCart(ctx, userID, "sess-merge")
	require.NoError(t, err)
	require.Len(t, merged.Items, 2)
	held := []uuid.UUID{}
	for _, item := range merged.Items {
		assert.Equal(t, 1, item.Quantity)
		held = append(held, item.ProductID)
	}
	assert.ElementsMatch(t, []uuid.UUID{a.ID, b.ID}, held)
	assert.Equal(t, "10.00", merged.Summary.Total)

	var guestCart models.Cart
	require.NoError(t, f.conn.First(&guestCart, "id = ?", guestView.CartID).Error)
	assert.Equal(t, enums.CartStatusMerged, guestCart.Status)
	var remaining int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("cart_id = ?", guestView.CartID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	assert.False(t, f.redis.Exists(f.cache.CartIdentityKey("session", "sess-merge")))

	// the session now resolves to a fresh cart
	next, err := f.svc.Resolve(ctx, guest)
	require.NoError(t, err)
	assert.NotEqual(t, guestView.CartID, next.ID)
}

func TestMergeWithoutGuestCartReturnsUserCart(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	view, err := f.svc.MergeGuestCart(context.Background(), userID, "nobody")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	assert.Equal(t, enums.CartStatusActive, view.Status)
}

func TestPipelineSurvivesUnavailableCache(t *testing.T) {
	f := newFixtureWithCache(t, redis.Unavailable())
	ctx := context.Background()
	owner := UserIdentity(uuid.New())
	product := dbtest.MustProduct(t, f.conn, "textures", "7.25")

	cart, err := f.svc.Resolve(ctx, owner)
	require.NoError(t, err)

	view, err := f.svc.AddItem(ctx, owner, AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	assert.Equal(t, cart.ID, view.CartID)

	again, err := f.svc.Get(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, again.Items, 1)

	_, err = f.svc.MergeGuestCart(ctx, *owner.UserID, "sess-x")
	require.NoError(t, err)
}

func TestConvertIsOneShot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	product := dbtest.MustProduct(t, f.conn, "pack", "10.00")
	view, err := f.svc.AddItem(ctx, UserIdentity(userID), AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	orderID := uuid.New()

	require.NoError(t, f.svc.Convert(ctx, view.CartID, orderID))
	require.NoError(t, f.svc.Convert(ctx, view.CartID, orderID))

	var cart models.Cart
	require.NoError(t, f.conn.First(&cart, "id = ?", view.CartID).Error)
	assert.Equal(t, enums.CartStatusConverted, cart.Status)

	var items, events int64
	require.NoError(t, f.conn.Model(&models.CartItem{}).Where("cart_id = ?", view.CartID).Count(&items).Error)
	assert.Zero(t, items)
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCartConverted).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	assert.Equal(t, pkgerrors.CodeNotFound, errCode(f.svc.Convert(ctx, uuid.New(), orderID)))
}

func TestAbandonExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	product := dbtest.MustProduct(t, f.conn, "old", "1.00")
	stale, err := f.svc.AddItem(ctx, SessionIdentity("sess-old"), AddItemInput{ProductID: product.ID})
	require.NoError(t, err)
	fresh, err := f.svc.Resolve(ctx, SessionIdentity("sess-new"))
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, f.conn.Model(&models.Cart{}).Where("id = ?", stale.CartID).Update("expires_at", past).Error)

	n, err := f.svc.AbandonExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var carts []models.Cart
	require.NoError(t, f.conn.Order("created_at").Find(&carts).Error)
	statuses := map[uuid.UUID]enums.CartStatus{}
	for _, c := range carts {
		statuses[c.ID] = c.Status
	}
	assert.Equal(t, enums.CartStatusAbandoned, statuses[stale.CartID])
	assert.Equal(t, enums.CartStatusActive, statuses[fresh.ID])

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventCartAbandoned).Count(&events).Error)
	assert.Equal(t, int64(1), events)

	n, err = f.svc.AbandonExpired(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}
