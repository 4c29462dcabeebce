package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

var checkoutTracer = otel.Tracer("medrx.internal.payments.checkout")

// HostedCheckoutService creates hosted payment pages with the checkout
// vendor's REST API.
type HostedCheckoutService struct {
	apiKey     string
	baseURL    string
	successURL string
	cancelURL  string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewHostedCheckoutService(apiKey, baseURL, successURL, cancelURL string, logger *logging.Logger) *HostedCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &HostedCheckoutService{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		successURL: successURL,
		cancelURL:  cancelURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// CreateCheckoutSession opens a hosted checkout for the appointment. The
// appointment id rides along as both metadata and the idempotency key, so
// a retried create returns the vendor's original session.
func (s *HostedCheckoutService) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("payments: no checkout credentials configured")
	}
	if params.AppointmentID == "" {
		return nil, fmt.Errorf("payments: checkout requires appointment id")
	}

	ctx, span := checkoutTracer.Start(ctx, "checkout.create_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("medrx.appointment_id", params.AppointmentID),
		attribute.Int64("medrx.amount_cents", params.AmountCents),
	)

	successURL := params.SuccessURL
	if successURL == "" {
		successURL = s.successURL
	}
	cancelURL := params.CancelURL
	if cancelURL == "" {
		cancelURL = s.cancelURL
	}

	name := strings.TrimSpace(params.Description)
	if name == "" {
		name = "Telehealth visit"
	}

	body := map[string]any{
		"idempotency_key": buildIdempotencyKey(params.AppointmentID, params.AmountCents),
		"amount": map[string]any{
			"value":    params.AmountCents,
			"currency": "USD",
		},
		"description":    name,
		"customer_email": params.CustomerEmail,
		"success_url":    successURL,
		"cancel_url":     cancelURL,
		"metadata": map[string]string{
			"appointment_id": params.AppointmentID,
		},
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout payload: %w", err)
	}

	apiURL := s.baseURL + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("payments: checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: checkout api status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		Status      string `json:"status"`
		AmountCents int64  `json:"amount_cents"`
		ExpiresAt   string `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: checkout response: %w", err)
	}
	if parsed.ID == "" || parsed.URL == "" {
		return nil, fmt.Errorf("payments: checkout response missing session")
	}

	session := &CheckoutSession{
		ProviderSessionID: parsed.ID,
		URL:               parsed.URL,
		Status:            sessionStatusFrom(parsed.Status),
		AmountCents:       parsed.AmountCents,
	}
	if t, err := time.Parse(time.RFC3339, parsed.ExpiresAt); err == nil {
		session.ExpiresAt = t
	}

	s.logger.Info("checkout session created",
		"appointment_id", params.AppointmentID,
		"provider_session_id", session.ProviderSessionID,
		"amount_cents", params.AmountCents,
	)
	return session, nil
}

// GetCheckoutStatus polls the vendor for the session's current state.
func (s *HostedCheckoutService) GetCheckoutStatus(ctx context.Context, providerSessionID string) (*CheckoutSession, error) {
	if providerSessionID == "" {
		return nil, fmt.Errorf("payments: session id required")
	}

	ctx, span := checkoutTracer.Start(ctx, "checkout.get_session")
	defer span.End()
	span.SetAttributes(attribute.String("medrx.provider_session_id", providerSessionID))

	apiURL := s.baseURL + "/v1/checkout/sessions/" + providerSessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: checkout http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrSessionNotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("payments: checkout api status %d: %s", resp.StatusCode, string(payload))
	}

	var parsed struct {
		ID          string `json:"id"`
		URL         string `json:"url"`
		Status      string `json:"status"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("payments: checkout response: %w", err)
	}

	return &CheckoutSession{
		ProviderSessionID: parsed.ID,
		URL:               parsed.URL,
		Status:            sessionStatusFrom(parsed.Status),
		AmountCents:       parsed.AmountCents,
	}, nil
}

// WithBaseURL overrides the vendor API host (e.g. sandbox).
func (s *HostedCheckoutService) WithBaseURL(baseURL string) *HostedCheckoutService {
	if baseURL == "" {
		return s
	}
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// WithHTTPClient overrides the transport, used by tests.
func (s *HostedCheckoutService) WithHTTPClient(client *http.Client) *HostedCheckoutService {
	if client != nil {
		s.httpClient = client
	}
	return s
}

func sessionStatusFrom(raw string) SessionStatus {
	switch SessionStatus(strings.ToLower(raw)) {
	case SessionCompleted:
		return SessionCompleted
	case SessionExpired:
		return SessionExpired
	case SessionFailed:
		return SessionFailed
	default:
		return SessionOpen
	}
}

func buildIdempotencyKey(appointmentID string, amountCents int64) string {
	// Deterministic per (appointment, amount) so a retried create maps to
	// the same vendor session.
	seed := fmt.Sprintf("%s:%d", appointmentID, amountCents)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
