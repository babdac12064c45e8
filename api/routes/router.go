package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/srt-labs/modelmarket-backend/api/controllers"
	webhookcontrollers "github.com/srt-labs/modelmarket-backend/api/controllers/webhooks"
	"github.com/srt-labs/modelmarket-backend/api/middleware"
	"github.com/srt-labs/modelmarket-backend/internal/audit"
	"github.com/srt-labs/modelmarket-backend/internal/auth"
	"github.com/srt-labs/modelmarket-backend/internal/catalog"
	"github.com/srt-labs/modelmarket-backend/internal/entitlements"
	"github.com/srt-labs/modelmarket-backend/internal/payments"
	"github.com/srt-labs/modelmarket-backend/internal/plans"
	subscriptionsvc "github.com/srt-labs/modelmarket-backend/internal/subscriptions"
	stripewebhook "github.com/srt-labs/modelmarket-backend/internal/webhooks/stripe"
	"github.com/srt-labs/modelmarket-backend/pkg/config"
	"github.com/srt-labs/modelmarket-backend/pkg/logger"
	"github.com/srt-labs/modelmarket-backend/pkg/redis"
	"github.com/srt-labs/modelmarket-backend/pkg/stripe"
)

// Services bundles everything the router mounts.
type Services struct {
	Auth          auth.Service
	Plans         *plans.Service
	Subscriptions subscriptionsvc.Service
	Payments      *payments.Service
	Catalog       *catalog.Service
	Entitlements  *entitlements.Guard
	Audit         *audit.Sink

	StripeClient       *stripe.Client
	StripeWebhook      *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
}

type pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP pinger,
	redisClient *redis.Client,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(svcs.StripeWebhook, svcs.StripeClient, svcs.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisClient, logg)).Post("/login", controllers.AuthLogin(svcs.Auth, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, redisClient, logg)).Post("/register", controllers.AuthRegister(svcs.Auth, logg))
	})

	r.Route("/api/v1/plans", func(r chi.Router) {
		r.Get("/", controllers.PlanList(svcs.Plans, logg))
		r.Get("/{planId}", controllers.PlanDetail(svcs.Plans, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/me", func(r chi.Router) {
			r.Get("/entitlement", controllers.EntitlementFetch(svcs.Entitlements, logg))
			r.Get("/events", controllers.AuditEventList(svcs.Audit, logg))
		})

		r.Route("/v1/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.SubscriptionCreate(svcs.Subscriptions, logg))
			r.Post("/cancel", controllers.SubscriptionCancel(svcs.Subscriptions, logg))
			r.Get("/", controllers.SubscriptionFetch(svcs.Subscriptions, logg))
		})

		r.Route("/v1/payments", func(r chi.Router) {
			r.Post("/intents", controllers.PaymentIntentCreate(svcs.Payments, logg))
			r.Get("/intents/{intentId}", controllers.PaymentIntentStatus(svcs.Payments, logg))
			r.Post("/intents/{intentId}/cancel", controllers.PaymentIntentCancel(svcs.Payments, logg))
			r.Get("/history", controllers.PaymentHistoryList(svcs.Payments, logg))
			r.Post("/methods", controllers.PaymentMethodAttach(svcs.Payments, logg))
			r.Get("/methods", controllers.PaymentMethodList(svcs.Payments, logg))
		})

		r.Route("/v1/models", func(r chi.Router) {
			r.Post("/", controllers.ModelCreate(svcs.Catalog, logg))
			r.Get("/", controllers.ModelList(svcs.Catalog, logg))
			r.Get("/{modelId}", controllers.ModelDetail(svcs.Catalog, logg))
			r.Patch("/{modelId}", controllers.ModelUpdate(svcs.Catalog, logg))
			r.Delete("/{modelId}", controllers.ModelDelete(svcs.Catalog, logg))
			r.Post("/{modelId}/download", controllers.ModelDownload(svcs.Catalog, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole("admin", logg))
		r.Get("/ping", controllers.AdminPing())
		r.Route("/v1/plans", func(r chi.Router) {
			r.Post("/", controllers.AdminPlanCreate(svcs.Plans, logg))
		})
	})

	return r
}
