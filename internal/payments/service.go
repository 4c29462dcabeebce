package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// ErrNotPayable is returned when the appointment is not awaiting payment.
var ErrNotPayable = errors.New("appointment is not awaiting payment")

type bookingConfirmer interface {
	GetByID(ctx context.Context, appointmentID string) (*booking.Appointment, error)
	ConfirmPayment(ctx context.Context, appointmentID string, paidAmountCents int64, paymentSessionID string) (*booking.Appointment, error)
	MarkPaymentFailed(ctx context.Context, appointmentID string) (*booking.Appointment, error)
}

// Service opens checkout sessions for pending appointments and settles
// them from provider callbacks or status polls.
type Service struct {
	provider CheckoutProvider
	repo     Repository
	booking  bookingConfirmer
	patients patients.Repository
	logger   *logging.Logger
}

func NewService(provider CheckoutProvider, repo Repository, scheduler bookingConfirmer, patientsRepo patients.Repository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		provider: provider,
		repo:     repo,
		booking:  scheduler,
		patients: patientsRepo,
		logger:   logger,
	}
}

// CreateSession opens (or reuses) a checkout session for the appointment.
// The charged amount is the appointment's price snapshot.
func (s *Service) CreateSession(ctx context.Context, appointmentID string) (*Session, error) {
	appt, err := s.booking.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status != booking.StatusPendingPayment {
		return nil, ErrNotPayable
	}

	if existing, err := s.repo.GetOpenByAppointment(ctx, appointmentID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	var email string
	if patient, err := s.patients.GetByID(ctx, appt.PatientID); err == nil {
		email = patient.Email
	}

	checkout, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		AppointmentID: appt.ID,
		AmountCents:   appt.PriceCents,
		Description:   appt.ServiceName,
		CustomerEmail: email,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: create session: %w", err)
	}

	session := &Session{
		ID:                uuid.New().String(),
		AppointmentID:     appt.ID,
		ProviderSessionID: checkout.ProviderSessionID,
		URL:               checkout.URL,
		AmountCents:       appt.PriceCents,
		Status:            SessionOpen,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("checkout session opened",
		"appointment_id", appt.ID,
		"provider_session_id", session.ProviderSessionID,
		"amount_cents", session.AmountCents,
	)
	return session, nil
}

// Status reconciles the local session against the provider's view. A
// completed session confirms the booking; an expired or failed one releases
// the slot.
func (s *Service) Status(ctx context.Context, providerSessionID string) (*Session, error) {
	session, err := s.repo.GetByProviderSessionID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != SessionOpen {
		return session, nil
	}

	checkout, err := s.provider.GetCheckoutStatus(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}
	if checkout.Status == SessionOpen {
		return session, nil
	}
	return s.Settle(ctx, providerSessionID, checkout.Status, checkout.AmountCents)
}

// Settle applies a terminal provider status. The paid amount is verified
// against the appointment price inside the booking scheduler; session ids
// that were settled before come back unchanged.
func (s *Service) Settle(ctx context.Context, providerSessionID string, status SessionStatus, paidAmountCents int64) (*Session, error) {
	session, err := s.repo.GetByProviderSessionID(ctx, providerSessionID)
	if err != nil {
		return nil, err
	}

	switch status {
	case SessionCompleted:
		if _, err := s.booking.ConfirmPayment(ctx, session.AppointmentID, paidAmountCents, providerSessionID); err != nil {
			return nil, err
		}
	case SessionExpired, SessionFailed:
		if _, err := s.booking.MarkPaymentFailed(ctx, session.AppointmentID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("payments: settle with non-terminal status %q", status)
	}

	return s.repo.UpdateStatus(ctx, providerSessionID, status)
}
