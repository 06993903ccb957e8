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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/eventpass-backend/api/routes"
	"github.com/angelmondragon/eventpass-backend/internal/checkout"
	"github.com/angelmondragon/eventpass-backend/internal/events"
	"github.com/angelmondragon/eventpass-backend/internal/orders"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/pricing"
	"github.com/angelmondragon/eventpass-backend/internal/shipping"
	"github.com/angelmondragon/eventpass-backend/internal/webhooks"
	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/migrate"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/paystack"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/eventpass-backend/pkg/stripe"
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

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(promRegistry)

	currency, err := enums.ParseCurrency(cfg.Checkout.DefaultCurrency)
	if err != nil {
		logg.Error(context.Background(), "invalid default currency", err)
		os.Exit(1)
	}
	calculator, err := pricing.NewCalculator(pricing.FlatPlusPercent{
		FlatMinor:  cfg.Checkout.FeeFlatMinor,
		PercentBps: cfg.Checkout.FeePercentBps,
	}, currency)
	mustInit(logg, "fee calculator", err)

	shippingProvider, err := shipping.NewProvider(cfg.Shipping)
	mustInit(logg, "shipping provider", err)
	quoter, err := shipping.NewQuoter(shippingProvider, cfg.Checkout.QuoteTimeout, logg, checkoutMetrics)
	mustInit(logg, "shipping quoter", err)

	gatewayRegistry, paystackClient, stripeClient := buildGateways(cfg, logg)

	eventService, err := events.NewService(events.NewRepository(dbClient.DB()), redisClient, cfg.Checkout.EventCacheTTL, logg)
	mustInit(logg, "events service", err)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	finalizer, err := orders.NewFinalizer(orders.FinalizerParams{
		Repo:         ordersRepo,
		TxRunner:     dbClient,
		Outbox:       outboxService,
		Locks:        redisClient,
		Calculator:   calculator,
		Logger:       logg,
		Metrics:      checkoutMetrics,
		LockTTL:      cfg.Checkout.FinalizeLockTTL,
		SupportEmail: cfg.Checkout.SupportEmail,
	})
	mustInit(logg, "order finalizer", err)
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService)
	mustInit(logg, "orders service", err)

	sessionStore, err := checkout.NewRedisStore(redisClient, cfg.Checkout.SessionTTL)
	mustInit(logg, "checkout session store", err)
	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Store:           sessionStore,
		Calculator:      calculator,
		Quoter:          quoter,
		Gateways:        gatewayRegistry,
		Finalizer:       finalizer,
		Events:          eventService,
		Logger:          logg,
		Metrics:         checkoutMetrics,
		DefaultCurrency: currency,
		MaxLines:        cfg.Checkout.MaxLinesPerCart,
		FinalizeLockTTL: cfg.Checkout.FinalizeLockTTL,
		WebhookFinalize: cfg.FeatureFlags.WebhookFinalize,
	})
	mustInit(logg, "checkout service", err)

	deps := routes.Dependencies{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Store:    redisClient,
		Checkout: checkoutService,
		Webhooks: checkoutService,
		Orders:   ordersService,
		Metrics:  promRegistry,
	}
	if paystackClient != nil {
		guard, err := webhooks.NewGuard(redisClient, cfg.Checkout.WebhookGuardTTL, "paystack-webhook")
		mustInit(logg, "paystack webhook guard", err)
		deps.Paystack = paystackClient
		deps.PaystackGuard = guard
	}
	if stripeClient != nil {
		guard, err := webhooks.NewGuard(redisClient, cfg.Checkout.WebhookGuardTTL, "stripe-webhook")
		mustInit(logg, "stripe webhook guard", err)
		deps.Stripe = stripeClient
		deps.StripeGuard = guard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

// buildGateways registers every payment provider with credentials present.
// The configured default provider must be one of them.
func buildGateways(cfg *config.Config, logg *logger.Logger) (*payments.Registry, *paystack.Client, *pkgstripe.Client) {
	ctx := context.Background()
	var gateways []payments.Gateway

	var paystackClient *paystack.Client
	if cfg.Paystack.SecretKey != "" {
		client, err := paystack.NewClient(cfg.Paystack)
		mustInit(logg, "paystack client", err)
		gateway, err := payments.NewPaystackGateway(client)
		mustInit(logg, "paystack gateway", err)
		paystackClient = client
		gateways = append(gateways, gateway)
	}

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.APIKey != "" {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		mustInit(logg, "stripe client", err)
		gateway, err := payments.NewStripeGateway(payments.NewStripeIntentClient(client))
		mustInit(logg, "stripe gateway", err)
		stripeClient = client
		gateways = append(gateways, gateway)
	}

	defaultProvider, err := enums.ParsePaymentProvider(cfg.Checkout.DefaultProvider)
	mustInit(logg, "default payment provider", err)
	registry, err := payments.NewRegistry(defaultProvider, gateways...)
	mustInit(logg, "payment gateways", err)
	return registry, paystackClient, stripeClient
}

func mustInit(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to initialize "+name, err)
	os.Exit(1)
}
