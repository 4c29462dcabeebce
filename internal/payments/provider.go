// Package payments integrates the hosted checkout provider. Appointment
// prices are snapshotted by the booking scheduler; nothing in this package
// ever trusts an amount supplied by the client.
package payments

import (
	"context"
	"time"
)

// SessionStatus is the provider-side state of a checkout session.
type SessionStatus string

const (
	SessionOpen      SessionStatus = "open"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired"
	SessionFailed    SessionStatus = "failed"
)

// CheckoutParams describes the session to create. AmountCents comes from
// the appointment's price snapshot.
type CheckoutParams struct {
	AppointmentID string
	AmountCents   int64
	Description   string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the provider's view of a hosted checkout.
type CheckoutSession struct {
	ProviderSessionID string
	URL               string
	Status            SessionStatus
	AmountCents       int64
	ExpiresAt         time.Time
}

// CheckoutProvider creates hosted checkout sessions and reports their
// status. Implementations are the vendor HTTP client and the dev-only fake.
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, providerSessionID string) (*CheckoutSession, error)
}
