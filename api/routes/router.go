package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/assetdrop-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/assetdrop-backend/api/controllers/webhooks"
	"github.com/angelmondragon/assetdrop-backend/api/middleware"
	"github.com/angelmondragon/assetdrop-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/assetdrop-backend/internal/checkout"
	"github.com/angelmondragon/assetdrop-backend/internal/downloads"
	"github.com/angelmondragon/assetdrop-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/assetdrop-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	checkoutService checkoutsvc.Service,
	ordersService orders.Service,
	downloadsService downloads.Service,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard *stripewebhook.EventGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, cfg.Stripe.Secret, stripeWebhookGuard, logg))
	})

	idempotent := middleware.Idempotency(redisClient, logg)

	r.Route("/api/v1", func(r chi.Router) {
		// Download links are bearer tokens in their own right.
		r.Get("/downloads/{token}", controllers.DownloadRedeem(downloadsService, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.GuestSession(logg))
			r.Get("/", controllers.CartGet(cartService, logg))
			r.Delete("/", controllers.CartClear(cartService, logg))
			r.Post("/items", controllers.CartAddItem(cartService, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(cartService, logg))
			r.With(middleware.Auth(cfg.JWT, logg)).Post("/merge", controllers.CartMerge(cartService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.With(idempotent).Post("/checkout/sessions", controllers.CheckoutSession(checkoutService, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.OrdersList(ordersService, logg))
				r.Get("/{orderId}", controllers.OrderGet(ordersService, logg))
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrdersList(ordersService, logg))
			r.With(idempotent).Post("/{orderId}/refund", controllers.AdminOrderRefund(ordersService, logg))
		})
	})

	return r
}
