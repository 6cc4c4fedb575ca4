package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mentorloop/backend/api/routes"
	"github.com/mentorloop/backend/internal/accounts"
	checkoutsvc "github.com/mentorloop/backend/internal/checkout"
	"github.com/mentorloop/backend/internal/entitlements"
	"github.com/mentorloop/backend/internal/paymentrecords"
	"github.com/mentorloop/backend/internal/plans"
	"github.com/mentorloop/backend/internal/purchases"
	"github.com/mentorloop/backend/internal/sessions"
	stripewebhook "github.com/mentorloop/backend/internal/webhooks/stripe"
	"github.com/mentorloop/backend/pkg/config"
	"github.com/mentorloop/backend/pkg/db"
	"github.com/mentorloop/backend/pkg/logger"
	"github.com/mentorloop/backend/pkg/metrics"
	"github.com/mentorloop/backend/pkg/migrate"
	"github.com/mentorloop/backend/pkg/outbox"
	"github.com/mentorloop/backend/pkg/redis"
	"github.com/mentorloop/backend/pkg/stripe"
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
	gateway, err := stripe.NewGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build stripe gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	planRepo := plans.NewRepository(dbClient.DB())
	accountRepo := accounts.NewRepository(dbClient.DB())
	paymentRepo := paymentrecords.NewRepository(dbClient.DB())
	purchaseRepo := purchases.NewRepository(dbClient.DB())
	sessionRepo := sessions.NewRepository(dbClient.DB())
	outboxPublisher := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	planService, err := plans.NewService(plans.ServiceParams{
		Repo:            planRepo,
		Gateway:         gateway,
		DefaultCurrency: cfg.Platform.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create plan service", err)
		os.Exit(1)
	}

	accountService, err := accounts.NewService(accounts.ServiceParams{
		Repo:       accountRepo,
		Gateway:    gateway,
		ReturnURL:  cfg.Platform.ConnectReturnURL,
		RefreshURL: cfg.Platform.ConnectRefreshURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	paymentService, err := paymentrecords.NewService(paymentrecords.ServiceParams{
		Repo:       paymentRepo,
		FeePercent: int64(cfg.Platform.FeePercent),
		Currency:   cfg.Platform.Currency,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	purchaseService, err := purchases.NewService(purchases.ServiceParams{
		Repo:              purchaseRepo,
		Ledger:            paymentService,
		Plans:             planRepo,
		Gateway:           gateway,
		Publisher:         outboxPublisher,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase service", err)
		os.Exit(1)
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		Purchases: purchaseRepo,
		Sessions:  sessionRepo,
		Plans:     planRepo,
		Now:       time.Now,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Plans:      planRepo,
		Accounts:   accountService,
		Purchases:  purchaseService,
		Fees:       paymentService,
		Gateway:    gateway,
		FeePercent: float64(cfg.Platform.FeePercent),
		SuccessURL: cfg.Platform.CheckoutSuccessURL,
		CancelURL:  cfg.Platform.CheckoutCancelURL,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Stripe.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Purchases: purchaseService,
		Accounts:  accountService,
		Gateway:   gateway,
		Guard:     webhookGuard,
		Metrics:   webhookMetrics,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
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
		Addr: addr,
		Handler: routes.NewRouter(
			cfg, logg, dbClient, redisClient, registry,
			planService, checkoutService, entitlementService,
			paymentService, accountService, purchaseService,
			stripeClient, webhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		logg.Info(ctx, "shutting down api server")
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeoutCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
