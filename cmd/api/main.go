package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medrx/telehealth-platform/internal/api/router"
	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/internal/catalog"
	appconfig "github.com/medrx/telehealth-platform/internal/config"
	"github.com/medrx/telehealth-platform/internal/emr"
	"github.com/medrx/telehealth-platform/internal/events"
	"github.com/medrx/telehealth-platform/internal/intake"
	"github.com/medrx/telehealth-platform/internal/notify"
	"github.com/medrx/telehealth-platform/internal/observability/metrics"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/internal/payments"
	"github.com/medrx/telehealth-platform/internal/subscriptions"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting telehealth API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	// Postgres is optional in development; without it every store runs
	// in memory and the payment webhook stays unmounted (no dedupe store).
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("postgres unreachable", "error", err)
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	cat := catalog.Default()
	bookingMetrics := metrics.NewBookingMetrics(nil)

	var (
		patientsRepo patients.Repository
		subsRepo     subscriptions.Repository
		bookingRepo  booking.Repository
		paymentsRepo payments.Repository
		intakeRepo   intake.Repository
	)
	if pool != nil {
		patientsRepo = patients.NewPostgresRepository(pool)
		subsRepo = subscriptions.NewPostgresRepository(pool)
		bookingRepo = booking.NewPostgresRepository(pool)
		paymentsRepo = payments.NewPostgresRepository(pool)
		intakeRepo = intake.NewPostgresRepository(pool)
	} else {
		logger.Warn("no DATABASE_URL configured, using in-memory stores")
		patientsRepo = patients.NewInMemoryRepository()
		subsRepo = subscriptions.NewInMemoryRepository()
		bookingRepo = booking.NewInMemoryRepository()
		paymentsRepo = payments.NewInMemoryRepository()
		intakeRepo = intake.NewInMemoryRepository()
	}

	alerts := buildAlertService(ctx, cfg, logger)

	ledger := subscriptions.NewLedger(subsRepo, cat, patientsRepo, logger)
	scheduler := booking.NewScheduler(bookingRepo, cat, patientsRepo, ledger, alerts, bookingMetrics, logger)

	var provider payments.CheckoutProvider
	if cfg.AllowFakePayments {
		logger.Warn("fake payments enabled, checkouts settle without a provider")
		provider = payments.NewFakeCheckoutService(cfg.PublicBaseURL, logger)
	} else {
		provider = payments.NewHostedCheckoutService(
			cfg.CheckoutAPIKey, cfg.CheckoutBaseURL,
			cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL, logger)
	}
	paymentsService := payments.NewService(provider, paymentsRepo, scheduler, patientsRepo, logger)

	var webhookHandler *payments.WebhookHandler
	if pool != nil && cfg.CheckoutWebhookSecret != "" {
		processed := events.NewProcessedStore(pool)
		webhookHandler = payments.NewWebhookHandler(cfg.CheckoutWebhookSecret, paymentsService, processed, bookingMetrics, logger)
	}
	var fakeHandler *payments.FakeHandler
	if cfg.AllowFakePayments {
		fakeHandler = payments.NewFakeHandler(paymentsService, logger)
	}

	var emrHandler *emr.Handler
	var relay emr.Relay = emr.NewNopRelay(logger)
	if redisClient != nil && cfg.DrChronoClientID != "" {
		tokens := emr.NewTokenStore(redisClient)
		drchrono := emr.NewDrChronoClient(cfg.DrChronoClientID, cfg.DrChronoClientSecret, cfg.DrChronoRedirectURI, tokens, logger)
		if cfg.DrChronoBaseURL != "" {
			drchrono = drchrono.WithBaseURL(cfg.DrChronoBaseURL)
		}
		relay = drchrono
		emrHandler = emr.NewHandler(drchrono, logger)
	}

	extractor := intake.NewExtractor(cfg.OpenAIAPIKey, cfg.ExtractionModel, cfg.ExtractionTimeout, logger)
	intakeService := intake.NewService(intakeRepo, patientsRepo, relay, extractor, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		CatalogHandler:      catalog.NewHandler(cat, logger),
		BookingHandler:      booking.NewHandler(scheduler, logger),
		SubscriptionHandler: subscriptions.NewHandler(ledger, patientsRepo, logger),
		PaymentsHandler:     payments.NewHandler(paymentsService, logger),
		PaymentsWebhook:     webhookHandler,
		FakePayments:        fakeHandler,
		EMRHandler:          emrHandler,
		IntakeHandler:       intake.NewHandler(intakeService, logger),
		MetricsHandler:      promhttp.Handler(),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerSecond:  cfg.RateLimitPerSecond,
		RateLimitBurst:      cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildAlertService wires the practice notification channels from config.
// Channels without credentials stay off; with none configured alerts are
// logged and dropped.
func buildAlertService(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *notify.Service {
	var sms notify.SMSSender
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioFromNumber != "" {
		sms = notify.NewTwilioSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)
	}

	var email notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			email = sender
		}
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, SES alerts disabled", "error", err)
			break
		}
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger); sender != nil {
			email = sender
		}
	case "stub":
		email = notify.NewStubEmailSender(logger)
	}

	return notify.NewService(sms, cfg.SMSAlertNumber, email, cfg.AlertEmail, logger)
}
