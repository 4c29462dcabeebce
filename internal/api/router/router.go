package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/emr"
	httpmiddleware "github.com/medrx/telehealth-platform/internal/http/middleware"
	"github.com/medrx/telehealth-platform/internal/intake"
	"github.com/medrx/telehealth-platform/internal/payments"
	"github.com/medrx/telehealth-platform/internal/subscriptions"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Config holds the wired handlers and cross-cutting settings for the API router.
// Nil optional handlers leave their routes unmounted.
type Config struct {
	Logger *logging.Logger

	CatalogHandler      *catalog.Handler
	BookingHandler      *booking.Handler
	SubscriptionHandler *subscriptions.Handler
	PaymentsHandler     *payments.Handler
	PaymentsWebhook     *payments.WebhookHandler
	FakePayments        *payments.FakeHandler
	EMRHandler          *emr.Handler
	IntakeHandler       *intake.Handler

	MetricsHandler http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New assembles the chi router for the public API.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSecond > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
	}

	r.Get("/health", handleHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.CatalogHandler != nil {
			api.Get("/services", cfg.CatalogHandler.ListServices)
		}

		if cfg.BookingHandler != nil {
			api.Route("/appointments", func(appt chi.Router) {
				appt.Post("/", cfg.BookingHandler.Book)
				appt.Get("/", cfg.BookingHandler.ListByEmail)
				appt.Get("/{appointmentID}", cfg.BookingHandler.Get)
				appt.With(httpmiddleware.AdminJWT(cfg.AdminAuthSecret)).
					Patch("/{appointmentID}", cfg.BookingHandler.Update)
			})
		}

		if cfg.SubscriptionHandler != nil {
			api.Route("/subscriptions", func(sub chi.Router) {
				sub.Post("/", cfg.SubscriptionHandler.Create)
				sub.Get("/email/{email}", cfg.SubscriptionHandler.GetByEmail)
				sub.Patch("/{subscriptionID}", cfg.SubscriptionHandler.Update)
				sub.Get("/{subscriptionID}/usage", cfg.SubscriptionHandler.Usage)
			})
		}

		if cfg.PaymentsHandler != nil {
			api.Route("/payments", func(pay chi.Router) {
				pay.Post("/checkout/session", cfg.PaymentsHandler.CreateSession)
				pay.Get("/checkout/status/{sessionID}", cfg.PaymentsHandler.Status)
			})
		}
		if cfg.PaymentsWebhook != nil {
			api.Post("/webhooks/payments", cfg.PaymentsWebhook.Handle)
		}

		if cfg.EMRHandler != nil {
			api.Route("/emr/auth", func(auth chi.Router) {
				auth.Get("/authorize", cfg.EMRHandler.Authorize)
				auth.Get("/callback", cfg.EMRHandler.Callback)
				auth.Post("/refresh", cfg.EMRHandler.Refresh)
			})
		}

		if cfg.IntakeHandler != nil {
			api.Post("/intake/submit", cfg.IntakeHandler.Submit)
			api.Post("/intake/consents", cfg.IntakeHandler.Consents)
			api.Post("/voice/process-transcript", cfg.IntakeHandler.ProcessTranscript)
		}
	})

	// Local development shortcut: settle a checkout without a real provider.
	if cfg.FakePayments != nil {
		r.Post("/payments/fake/{appointmentID}/complete", cfg.FakePayments.Complete)
	}

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
