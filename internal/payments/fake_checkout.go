package payments

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/medrx/telehealth-platform/pkg/logging"
)

// FakeCheckoutService is a dev/demo provider that generates an internal URL
// and lets the caller "complete" payment without vendor credentials.
//
// This MUST be gated by configuration (ALLOW_FAKE_PAYMENTS) and should
// never be enabled in production.
type FakeCheckoutService struct {
	publicBaseURL string
	logger        *logging.Logger
}

func NewFakeCheckoutService(publicBaseURL string, logger *logging.Logger) *FakeCheckoutService {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutService{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

func (s *FakeCheckoutService) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	_ = ctx
	if params.AppointmentID == "" {
		return nil, fmt.Errorf("payments: fake checkout requires appointment id")
	}
	if s.publicBaseURL == "" {
		return nil, fmt.Errorf("payments: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(s.publicBaseURL) {
		return nil, fmt.Errorf("payments: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}

	s.logger.Warn("fake checkout session created, do not use in production",
		"appointment_id", params.AppointmentID)

	return &CheckoutSession{
		ProviderSessionID: "fake:" + params.AppointmentID,
		URL:               fmt.Sprintf("%s/payments/fake/%s", s.publicBaseURL, params.AppointmentID),
		Status:            SessionOpen,
		AmountCents:       params.AmountCents,
	}, nil
}

// GetCheckoutStatus always reports the session open; completion happens
// through the fake-complete endpoint driving the webhook path directly.
func (s *FakeCheckoutService) GetCheckoutStatus(ctx context.Context, providerSessionID string) (*CheckoutSession, error) {
	_ = ctx
	if !strings.HasPrefix(providerSessionID, "fake:") {
		return nil, ErrSessionNotFound
	}
	return &CheckoutSession{
		ProviderSessionID: providerSessionID,
		Status:            SessionOpen,
	}, nil
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
