package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/internal/subscriptions"
)

type stubProvider struct {
	created  []CheckoutParams
	sessions map[string]*CheckoutSession
	err      error
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.created = append(p.created, params)
	session := &CheckoutSession{
		ProviderSessionID: "cs_stub_1",
		URL:               "https://checkout.example.com/cs_stub_1",
		Status:            SessionOpen,
		AmountCents:       params.AmountCents,
	}
	if p.sessions == nil {
		p.sessions = make(map[string]*CheckoutSession)
	}
	p.sessions[session.ProviderSessionID] = session
	return session, nil
}

func (p *stubProvider) GetCheckoutStatus(ctx context.Context, providerSessionID string) (*CheckoutSession, error) {
	if p.err != nil {
		return nil, p.err
	}
	s, ok := p.sessions[providerSessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

type paymentsFixture struct {
	service   *Service
	provider  *stubProvider
	scheduler *booking.Scheduler
	bookings  *booking.InMemoryRepository
}

func newPaymentsFixture(t *testing.T) (*paymentsFixture, string) {
	t.Helper()

	cat := catalog.Default()
	patientsRepo := patients.NewInMemoryRepository()
	ledger := subscriptions.NewLedger(subscriptions.NewInMemoryRepository(), cat, patientsRepo, nil)
	bookings := booking.NewInMemoryRepository()
	scheduler := booking.NewScheduler(bookings, cat, patientsRepo, ledger, nil, nil, nil)

	result, err := scheduler.Book(context.Background(), &booking.BookRequest{
		Name:        "Maria Lopez",
		Email:       "maria@example.com",
		Phone:       "+15551230001",
		ServiceID:   "hair-loss",
		ServiceKind: booking.KindOneOff,
		Date:        "2030-01-15",
		Time:        "10:00 AM",
		Timezone:    "America/Los_Angeles",
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}

	provider := &stubProvider{}
	service := NewService(provider, NewInMemoryRepository(), scheduler, patientsRepo, nil)
	return &paymentsFixture{
		service:   service,
		provider:  provider,
		scheduler: scheduler,
		bookings:  bookings,
	}, result.Appointment.ID
}

func TestCreateSession(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.AmountCents != 17500 {
		t.Errorf("amount = %d, want 17500 from the catalog snapshot", session.AmountCents)
	}
	if session.Status != SessionOpen {
		t.Errorf("status = %s", session.Status)
	}
	if len(f.provider.created) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(f.provider.created))
	}
	if f.provider.created[0].CustomerEmail != "maria@example.com" {
		t.Errorf("customer email = %q", f.provider.created[0].CustomerEmail)
	}

	// A second create reuses the open session instead of opening another.
	again, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("repeat CreateSession: %v", err)
	}
	if again.ProviderSessionID != session.ProviderSessionID {
		t.Errorf("expected session reuse, got %q and %q", session.ProviderSessionID, again.ProviderSessionID)
	}
	if len(f.provider.created) != 1 {
		t.Errorf("provider calls = %d after reuse, want 1", len(f.provider.created))
	}
}

func TestCreateSessionUnknownAppointment(t *testing.T) {
	f, _ := newPaymentsFixture(t)
	if _, err := f.service.CreateSession(context.Background(), "nope"); !errors.Is(err, booking.ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want ErrAppointmentNotFound", err)
	}
}

func TestCreateSessionNotPayable(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	if _, err := f.scheduler.ConfirmPayment(ctx, apptID, 17500, "cs_manual"); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if _, err := f.service.CreateSession(ctx, apptID); !errors.Is(err, ErrNotPayable) {
		t.Fatalf("err = %v, want ErrNotPayable", err)
	}
}

func TestSettleCompleted(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	settled, err := f.service.Settle(ctx, session.ProviderSessionID, SessionCompleted, 17500)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.Status != SessionCompleted {
		t.Errorf("session status = %s", settled.Status)
	}

	appt, err := f.scheduler.GetByID(ctx, apptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if appt.Status != booking.StatusScheduled {
		t.Errorf("appointment status = %s, want scheduled", appt.Status)
	}
	if appt.PaymentSessionID != session.ProviderSessionID {
		t.Errorf("payment session id = %q", appt.PaymentSessionID)
	}
}

func TestSettleCompletedAmountMismatch(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if _, err := f.service.Settle(ctx, session.ProviderSessionID, SessionCompleted, 100); !errors.Is(err, booking.ErrPaymentMismatch) {
		t.Fatalf("err = %v, want ErrPaymentMismatch", err)
	}

	appt, err := f.scheduler.GetByID(ctx, apptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if appt.Status != booking.StatusPendingPayment {
		t.Errorf("appointment status = %s, want unchanged pending_payment", appt.Status)
	}
}

func TestSettleExpiredReleasesSlot(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	settled, err := f.service.Settle(ctx, session.ProviderSessionID, SessionExpired, 0)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if settled.Status != SessionExpired {
		t.Errorf("session status = %s", settled.Status)
	}

	appt, err := f.scheduler.GetByID(ctx, apptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if appt.Status != booking.StatusCancelled {
		t.Errorf("appointment status = %s, want cancelled", appt.Status)
	}
}

func TestStatusPollSettles(t *testing.T) {
	f, apptID := newPaymentsFixture(t)
	ctx := context.Background()

	session, err := f.service.CreateSession(ctx, apptID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	// Provider completes the session out of band.
	f.provider.sessions[session.ProviderSessionID].Status = SessionCompleted
	f.provider.sessions[session.ProviderSessionID].AmountCents = 17500

	polled, err := f.service.Status(ctx, session.ProviderSessionID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if polled.Status != SessionCompleted {
		t.Errorf("session status = %s", polled.Status)
	}

	appt, err := f.scheduler.GetByID(ctx, apptID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if appt.Status != booking.StatusScheduled {
		t.Errorf("appointment status = %s, want scheduled", appt.Status)
	}
}
