package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-session/api/controllers"
	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/redis"
)

const discountPolicyName = "discount"

// Params carries everything the HTTP surface needs.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Sessions controllers.SessionStore

	// Redis backs rate limiting and idempotency; nil disables both.
	Redis *redis.Client

	Pingers      map[string]controllers.Pinger
	BreakerState func() string
	Gatherer     prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg, sessions := p.Config, p.Logger, p.Sessions

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers, p.BreakerState))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	discountPolicy := middleware.NewRateLimitPolicy(
		discountPolicyName,
		cfg.RateLimit.DiscountWindow,
		cfg.RateLimit.DiscountLimit,
	)
	// A typed nil *redis.Client must not reach the middleware as a non-nil
	// interface.
	var idempotencyStore redis.IdempotencyStore
	discountLimit := func(next http.Handler) http.Handler { return next }
	if p.Redis != nil {
		idempotencyStore = p.Redis
		discountLimit = middleware.RateLimit(discountPolicy, p.Redis, logg)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.RateLimit.IdempotencyTTL, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(sessions, logg))
			r.Delete("/", controllers.CartClear(sessions, logg))
			r.Post("/refresh", controllers.CartRefresh(sessions, logg))
			r.Get("/summary", controllers.CartSummary(sessions, logg))
			r.Post("/items", controllers.CartAddItem(sessions, logg))
			r.Patch("/items/{itemID}", controllers.CartUpdateItem(sessions, logg))
			r.Delete("/items/{itemID}", controllers.CartRemoveItem(sessions, logg))
			r.With(discountLimit).Post("/discount", controllers.DiscountApply(sessions, logg))
			r.Delete("/discount", controllers.DiscountRemove(sessions, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", controllers.CheckoutGet(sessions, logg))
			r.Put("/shipping", controllers.CheckoutShipping(sessions, logg))
			r.Put("/payment", controllers.CheckoutPayment(sessions, logg))
			r.Post("/next", controllers.CheckoutNext(sessions, logg))
			r.Post("/previous", controllers.CheckoutPrevious(sessions, logg))
			r.Post("/goto", controllers.CheckoutGoTo(sessions, logg))
			r.Post("/reset", controllers.CheckoutReset(sessions, logg))
			r.Post("/submit", controllers.CheckoutSubmit(sessions, logg))
		})
	})

	return r
}
