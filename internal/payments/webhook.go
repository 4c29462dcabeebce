package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/medrx/telehealth-platform/internal/observability/metrics"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Checkout-Signature"

type processedTracker interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

// WebhookHandler settles checkout sessions from provider callbacks.
type WebhookHandler struct {
	signingSecret string
	service       *Service
	processed     processedTracker
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
}

func NewWebhookHandler(signingSecret string, service *Service, processed processedTracker, m *metrics.BookingMetrics, logger *logging.Logger) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		signingSecret: signingSecret,
		service:       service,
		processed:     processed,
		metrics:       m,
		logger:        logger,
	}
}

type checkoutEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Session struct {
			ID          string `json:"id"`
			AmountCents int64  `json:"amount_cents"`
		} `json:"session"`
	} `json:"data"`
}

// Handle processes POST /api/webhooks/payments requests
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if !verifySignature(h.signingSecret, payload, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("checkout webhook signature rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var evt checkoutEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode checkout event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" || evt.Data.Session.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	defer func() {
		h.metrics.ObserveWebhookLatency(evt.Type, time.Since(start).Seconds())
	}()

	status, ok := statusForEvent(evt.Type)
	if !ok {
		// Unknown event types are acknowledged so the provider stops
		// redelivering them.
		h.logger.Debug("ignoring checkout event", "type", evt.Type)
		w.WriteHeader(http.StatusOK)
		return
	}

	won, err := h.processed.Claim(r.Context(), "checkout", evt.ID)
	if err != nil {
		h.logger.Error("processed claim failed", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !won {
		w.WriteHeader(http.StatusOK)
		return
	}

	session, err := h.service.Settle(r.Context(), evt.Data.Session.ID, status, evt.Data.Session.AmountCents)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			// Session we never opened; acknowledge to stop retries.
			h.logger.Warn("checkout event for unknown session",
				"event_id", evt.ID, "session_id", evt.Data.Session.ID)
			w.WriteHeader(http.StatusOK)
			return
		}
		// Give the claim back so the provider's retry is not a no-op.
		if relErr := h.processed.Release(r.Context(), "checkout", evt.ID); relErr != nil {
			h.logger.Error("failed to release event claim",
				"error", relErr, "event_id", evt.ID)
		}
		h.logger.Error("failed to settle checkout session",
			"error", err, "event_id", evt.ID, "session_id", evt.Data.Session.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.logger.Info("checkout event settled",
		"event_id", evt.ID,
		"session_id", session.ProviderSessionID,
		"appointment_id", session.AppointmentID,
		"status", session.Status,
	)
	w.WriteHeader(http.StatusOK)
}

func statusForEvent(eventType string) (SessionStatus, bool) {
	switch eventType {
	case "checkout.session.completed":
		return SessionCompleted, true
	case "checkout.session.expired":
		return SessionExpired, true
	case "checkout.session.failed":
		return SessionFailed, true
	default:
		return "", false
	}
}

func verifySignature(secret string, payload []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(header)))
}

// Sign computes the webhook signature for a payload. Exposed for the fake
// provider flow and tests.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
