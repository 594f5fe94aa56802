package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/assetdrop-backend/api/routes"
	"github.com/angelmondragon/assetdrop-backend/internal/cart"
	"github.com/angelmondragon/assetdrop-backend/internal/checkout"
	"github.com/angelmondragon/assetdrop-backend/internal/coupons"
	"github.com/angelmondragon/assetdrop-backend/internal/downloads"
	"github.com/angelmondragon/assetdrop-backend/internal/effects"
	"github.com/angelmondragon/assetdrop-backend/internal/notifications"
	"github.com/angelmondragon/assetdrop-backend/internal/orders"
	"github.com/angelmondragon/assetdrop-backend/internal/products"
	stripewebhook "github.com/angelmondragon/assetdrop-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/instance"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/metrics"
	"github.com/angelmondragon/assetdrop-backend/pkg/migrate"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
	"github.com/angelmondragon/assetdrop-backend/pkg/storage/gcs"
	"github.com/angelmondragon/assetdrop-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis only backs caches, idempotency and the webhook guard; the API
	// keeps serving without it.
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable, running without cache")
		redisClient = redis.Unavailable()
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	handler, err := buildHandler(ctx, cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(ctx, "failed to wire api services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID(),
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

func buildHandler(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	catalogRepo := products.NewRepository(conn)
	catalog, err := products.NewCatalog(catalogRepo)
	if err != nil {
		return nil, err
	}

	cartService, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(conn),
		Tx:      dbClient,
		Catalog: catalog,
		Cache:   redisClient,
		Outbox:  emitter,
		Config:  cfg.Cart,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	couponService, err := coupons.NewService(coupons.NewRepository(conn))
	if err != nil {
		return nil, err
	}

	gateway, err := stripe.NewGateway(ctx, cfg.Stripe, logg)
	if err != nil {
		return nil, err
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Carts:     cartService,
		Coupons:   couponService,
		Customers: checkout.NewCustomerRepository(conn),
		Gateway:   gateway,
		Config:    cfg.Checkout,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	var signer downloads.URLSigner
	if cfg.GCS.BucketName != "" {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return nil, err
		}
		signer = gcsClient
	}

	downloadsService, err := downloads.NewService(downloads.ServiceParams{
		Repo:    downloads.NewRepository(conn),
		Catalog: catalog,
		Locator: downloads.NewFileLocator(signer, cfg.Downloads),
		Config:  cfg.Downloads,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	notifier, err := notifications.NewService(dbClient, emitter)
	if err != nil {
		return nil, err
	}

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:          orders.NewRepository(conn),
		Tx:            dbClient,
		Tokens:        downloadsService,
		Gateway:       gateway,
		Notifications: notifier,
		Outbox:        emitter,
		Cache:         redisClient,
		Config:        cfg.Orders,
		Logger:        logg,
	})
	if err != nil {
		return nil, err
	}

	completion, err := stripewebhook.NewCompletionEffects(stripewebhook.CompletionParams{
		Carts:         cartService,
		Notifications: notifier,
		OrderLists:    ordersService,
		Coupons:       couponService,
		Tx:            dbClient,
		Outbox:        emitter,
	})
	if err != nil {
		return nil, err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Tx:          dbClient,
		Carts:       cart.NewRepository(conn),
		Orders:      orders.NewRepository(conn),
		OrderStates: ordersService,
		Products:    catalogRepo,
		Tokens:      downloadsService,
		Completion:  completion,
		Dispatcher:  effects.NewDispatcher(logg, metrics.NewEffectMetrics(prometheus.DefaultRegisterer)),
		Metrics:     metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		Logger:      logg,
	})
	if err != nil {
		return nil, err
	}

	guard, err := stripewebhook.NewEventGuard(redisClient, cfg.Webhook.EventGuardTTL)
	if err != nil {
		return nil, err
	}

	router := routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		prometheus.DefaultGatherer,
		cartService,
		checkoutService,
		ordersService,
		downloadsService,
		webhookService,
		guard,
	)
	return otelhttp.NewHandler(router, "api"), nil
}
