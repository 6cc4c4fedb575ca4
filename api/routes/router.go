package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mentorloop/backend/api/controllers"
	webhookcontrollers "github.com/mentorloop/backend/api/controllers/webhooks"
	"github.com/mentorloop/backend/api/middleware"
	"github.com/mentorloop/backend/internal/accounts"
	checkoutsvc "github.com/mentorloop/backend/internal/checkout"
	"github.com/mentorloop/backend/internal/entitlements"
	"github.com/mentorloop/backend/internal/paymentrecords"
	"github.com/mentorloop/backend/internal/plans"
	"github.com/mentorloop/backend/internal/purchases"
	stripewebhook "github.com/mentorloop/backend/internal/webhooks/stripe"
	"github.com/mentorloop/backend/pkg/config"
	"github.com/mentorloop/backend/pkg/db"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/redis"
	"github.com/mentorloop/backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	registry *prometheus.Registry,
	planService plans.Service,
	checkoutService checkoutsvc.Service,
	entitlementService entitlements.Service,
	paymentService paymentrecords.Service,
	accountService accounts.Service,
	purchaseService purchases.Service,
	stripeClient *stripe.Client,
	webhookService *stripewebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/mentors/{mentorId}", func(r chi.Router) {
			r.Post("/plans", controllers.CreatePlan(planService, logg))
			r.Get("/plans", controllers.ListPlans(planService, logg))
			r.Delete("/plans/{planId}", controllers.RetirePlan(planService, logg))

			r.Post("/onboarding", controllers.StartOnboarding(accountService, logg))
			r.Get("/payout-account", controllers.PayoutAccountStatus(accountService, logg))

			r.Get("/payments", controllers.MentorPayments(paymentService, logg))
			r.Get("/payments/totals", controllers.MentorPaymentTotals(paymentService, logg))
		})

		r.Get("/mentees/{menteeId}/purchases", controllers.MenteePurchases(purchaseService, logg))
		r.Post("/mentees/{menteeId}/purchases/{purchaseId}/cancel", controllers.CancelSubscription(purchaseService, logg))

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Get("/entitlements", controllers.EntitlementCheck(entitlementService, logg))
		r.Post("/entitlements/consume", controllers.ConsumeSession(entitlementService, logg))
	})

	return r
}
