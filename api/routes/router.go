package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventpass-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/eventpass-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/eventpass-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/eventpass-backend/api/controllers/webhooks"
	"github.com/angelmondragon/eventpass-backend/api/middleware"
	"github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/paystack"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
)

// Store is the Redis surface the HTTP middleware relies on.
type Store interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type webhookOutcomeHandler interface {
	HandleWebhookOutcome(ctx context.Context, outcome payments.Outcome) error
}

type webhookGuard interface {
	CheckAndMark(ctx context.Context, deliveryID string) (bool, error)
	Release(ctx context.Context, deliveryID string) error
}

type paystackParser interface {
	ParseEvent(body []byte, signature string) (*paystack.Event, error)
}

type stripeSigner interface {
	SigningSecret() string
}

// Dependencies carries everything the router mounts. Optional gateways are
// left nil when not configured and their webhook routes are not mounted.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	DB    controllers.Pinger
	Store Store

	Checkout checkoutcontrollers.Service
	Webhooks webhookOutcomeHandler
	Orders   orders.Service

	Paystack      paystackParser
	PaystackGuard webhookGuard
	Stripe        stripeSigner
	StripeGuard   webhookGuard

	Metrics prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.EmailLimit,
	)
	payPolicy := middleware.NewRateLimitPolicy(
		"pay",
		cfg.RateLimit.Window,
		cfg.RateLimit.PayIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessChecks(deps), logg))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	if deps.Paystack != nil {
		r.Post("/api/v1/webhooks/paystack", webhookcontrollers.PaystackWebhook(deps.Webhooks, deps.Paystack, deps.PaystackGuard, logg))
	}
	if deps.Stripe != nil {
		r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, deps.Stripe, deps.StripeGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(checkoutPolicy, deps.Store, logg))
		r.Use(middleware.Idempotency(deps.Store, logg))

		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Post("/", checkoutcontrollers.CreateSession(deps.Checkout, logg))

			r.Route("/{sessionId}", func(r chi.Router) {
				r.Get("/", checkoutcontrollers.GetSession(deps.Checkout, logg))
				r.Post("/items", checkoutcontrollers.AddItem(deps.Checkout, logg))
				r.Patch("/items/{lineKey}", checkoutcontrollers.UpdateItem(deps.Checkout, logg))
				r.Delete("/items/{lineKey}", checkoutcontrollers.RemoveItem(deps.Checkout, logg))
				r.Put("/contact", checkoutcontrollers.UpdateContact(deps.Checkout, logg))
				r.Put("/shipping", checkoutcontrollers.UpdateShipping(deps.Checkout, logg))
				r.Put("/terms", checkoutcontrollers.SetTerms(deps.Checkout, logg))
				r.Post("/navigate", checkoutcontrollers.Navigate(deps.Checkout, logg))
				r.With(middleware.RateLimit(payPolicy, deps.Store, logg)).
					Post("/pay", checkoutcontrollers.Pay(deps.Checkout, logg))
				r.Post("/payment-result", checkoutcontrollers.PaymentResult(deps.Checkout, logg))
			})
		})

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(deps.Orders, logg))
			r.Patch("/fulfillment-lines/{lineId}", ordercontrollers.UpdateFulfillment(deps.Orders, logg))
		})
	})

	return r
}

func readinessChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Store != nil {
		checks["redis"] = deps.Store
	}
	return checks
}
