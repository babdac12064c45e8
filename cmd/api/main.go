package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/srt-labs/modelmarket-backend/api/routes"
	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/internal/auth"
	"github.com/srt-labs/modelmarket-backend/internal/catalog"
	"github.com/srt-labs/modelmarket-backend/internal/entitlements"
	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/internal/plans"
	"github.com/srt-labs/modelmarket-backend/internal/subscriptions"
	"github.com/srt-labs/modelmarket-backend/internal/users"
	stripewebhook "github.com/srt-labs/modelmarket-backend/internal/webhooks/stripe"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/db"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/migrate"
	"github.com/srt-labs/modelmarket-backend/pkg/pubsub"
	"github.com/srt-labs/modelmarket-backend/pkg/redis"
	"github.com/srt-labs/modelmarket-backend/pkg/stripe"
)

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

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	usersRepo := users.NewRepository(dbClient.DB())
	plansRepo := plans.NewRepository(dbClient.DB())
	subsRepo := subscriptions.NewRepository(dbClient.DB())
	paymentsRepo := payments.NewRepository(dbClient.DB())
	auditRepo := audit.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())

	sinkParams := audit.SinkParams{Repo: auditRepo, Logger: logg}
	if cfg.GCP.ProjectID != "" && cfg.PubSub.LifecycleTopic != "" {
		pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		publisher, err := audit.NewPubSubPublisher(pubsubClient.LifecyclePublisher())
		if err != nil {
			logg.Error(context.Background(), "failed to create lifecycle publisher", err)
			os.Exit(1)
		}
		sinkParams.Publisher = publisher
	}
	auditSink, err := audit.NewSink(sinkParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create audit sink", err)
		os.Exit(1)
	}

	gateway, err := payments.NewStripeGateway(stripeClient, cfg.Payments)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	plansService, err := plans.NewService(plans.ServiceParams{Repo: plansRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	subscriptionsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:              subsRepo,
		PlanRepo:          plansRepo,
		PaymentsRepo:      paymentsRepo,
		Gateway:           gateway,
		Audit:             auditSink,
		TransactionRunner: dbClient,
		PaymentsConfig:    cfg.Payments,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:              paymentsRepo,
		Gateway:           gateway,
		Resolver:          subscriptionsService,
		TransactionRunner: dbClient,
		PaymentsConfig:    cfg.Payments,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	entitlementGuard, err := entitlements.NewGuard(entitlements.GuardParams{
		SubscriptionRepo: subsRepo,
		PlanRepo:         plansRepo,
		QuotaCounter:     redisClient,
		Config:           cfg.Entitlements,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement guard", err)
		os.Exit(1)
	}

	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repo:  catalogRepo,
		Guard: entitlementGuard,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		IntentRepo: paymentsRepo,
		Resolver:   subscriptionsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	stripeWebhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookEventTTL, "stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Auth:               authService,
			Plans:              plansService,
			Subscriptions:      subscriptionsService,
			Payments:           paymentsService,
			Catalog:            catalogService,
			Entitlements:       entitlementGuard,
			Audit:              auditSink,
			StripeClient:       stripeClient,
			StripeWebhook:      stripeWebhookService,
			StripeWebhookGuard: stripeWebhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
