package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/medrx/telehealth-platform/internal/catalog"
	"github.com/medrx/telehealth-platform/internal/observability/metrics"
	"github.com/medrx/telehealth-platform/internal/patients"
	"github.com/medrx/telehealth-platform/internal/subscriptions"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Alert is the flat record handed to the notification relay once a booking
// is confirmed.
type Alert struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	ServiceName  string
	Date         string
	Time         string
	Timezone     string
}

// AlertSender notifies the practice about a confirmed booking. Failures are
// logged and never roll back the booking.
type AlertSender interface {
	SendBookingAlert(ctx context.Context, alert Alert) error
}

// Scheduler is the booking state machine. It is the only component allowed
// to create appointments, and it prices them exclusively from the catalog.
type Scheduler struct {
	repo     Repository
	catalog  *catalog.Catalog
	patients patients.Repository
	ledger   *subscriptions.Ledger
	alerts   AlertSender
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewScheduler creates a booking scheduler. alerts and m may be nil.
func NewScheduler(
	repo Repository,
	cat *catalog.Catalog,
	patientsRepo patients.Repository,
	ledger *subscriptions.Ledger,
	alerts AlertSender,
	m *metrics.BookingMetrics,
	logger *logging.Logger,
) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		repo:     repo,
		catalog:  cat,
		patients: patientsRepo,
		ledger:   ledger,
		alerts:   alerts,
		metrics:  m,
		logger:   logger,
	}
}

// Book validates the request, claims the slot and creates the appointment.
// One-off bookings come back in pending_payment with the catalog price
// snapshotted; subscription-covered bookings consume a visit and come back
// scheduled at price zero.
func (s *Scheduler) Book(ctx context.Context, req *BookRequest) (*BookResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	service, ok := s.catalog.Lookup(req.ServiceID)
	if !ok {
		s.metrics.ObserveBooking(string(req.ServiceKind), "invalid_service")
		return nil, ErrInvalidService
	}

	// Advisory pre-check. The store's insert-if-absent is the authority;
	// this just rejects the common conflict before any writes happen.
	taken, err := s.repo.SlotTaken(ctx, req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	if taken {
		s.metrics.ObserveSlotConflict()
		return nil, ErrSlotTaken
	}

	patient, err := s.patients.Resolve(ctx, req.Email, patients.Profile{
		Name:     req.Name,
		Phone:    req.Phone,
		Timezone: req.Timezone,
		Address:  req.Address,
	})
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:          uuid.New().String(),
		PatientID:   patient.ID,
		ServiceID:   service.ID,
		ServiceKind: req.ServiceKind,
		ServiceName: service.Title,
		Date:        req.Date,
		Time:        req.Time,
		Timezone:    req.Timezone,
		Notes:       req.Notes,
	}

	if req.ServiceKind == KindSubscription {
		sub, err := s.ledger.GetActive(ctx, patient.ID)
		if err != nil {
			if errors.Is(err, subscriptions.ErrNoActiveSubscription) {
				s.metrics.ObserveBooking(string(req.ServiceKind), "no_subscription")
			}
			return nil, err
		}
		if err := s.ledger.ReserveVisit(ctx, sub.ID); err != nil {
			if errors.Is(err, subscriptions.ErrLimitExceeded) {
				s.metrics.ObserveBooking(string(req.ServiceKind), "limit_exceeded")
			}
			return nil, err
		}
		appt.SubscriptionID = sub.ID
		appt.ServiceName = sub.PlanName
		appt.PriceCents = 0
		appt.PaymentStatus = PaymentPaid
		appt.Status = StatusScheduled
	} else {
		appt.PriceCents = service.PriceCents
		appt.PaymentStatus = PaymentPending
		appt.Status = StatusPendingPayment
	}

	if err := s.repo.Create(ctx, appt); err != nil {
		// Return the reserved visit if the slot race was lost after the
		// advisory check passed.
		if appt.SubscriptionID != "" {
			if relErr := s.ledger.ReleaseVisit(ctx, appt.SubscriptionID); relErr != nil {
				s.logger.Error("failed to release reserved visit",
					"error", relErr, "subscription_id", appt.SubscriptionID)
			}
		}
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveSlotConflict()
		}
		return nil, err
	}

	s.metrics.ObserveBooking(string(req.ServiceKind), "created")
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", patient.ID,
		"service_id", service.ID,
		"date", appt.Date,
		"time", appt.Time,
		"status", appt.Status,
	)

	// Subscription-covered bookings are confirmed immediately; alert now.
	if appt.Status == StatusScheduled {
		s.sendAlert(ctx, appt, patient)
	}

	return &BookResult{
		Appointment:     appt,
		RequiresPayment: appt.PaymentStatus == PaymentPending,
	}, nil
}

// ConfirmPayment finalizes a paid booking. Idempotent: repeated calls with
// the same arguments return the current state without re-firing the alert.
// The amount check defends against tampered or rounded provider callbacks.
func (s *Scheduler) ConfirmPayment(ctx context.Context, appointmentID string, paidAmountCents int64, paymentSessionID string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusPendingPayment {
		// Already confirmed (or cancelled): no-op, report current state.
		s.metrics.ObservePaymentConfirmation("noop")
		return appt, nil
	}

	if paidAmountCents != appt.PriceCents {
		s.metrics.ObservePaymentConfirmation("mismatch")
		s.logger.Warn("payment amount mismatch",
			"appointment_id", appointmentID,
			"expected_cents", appt.PriceCents,
			"paid_cents", paidAmountCents,
		)
		return nil, ErrPaymentMismatch
	}

	appt, changed, err := s.repo.ConfirmPayment(ctx, appointmentID, paymentSessionID)
	if err != nil {
		return nil, err
	}
	if !changed {
		s.metrics.ObservePaymentConfirmation("noop")
		return appt, nil
	}

	s.metrics.ObservePaymentConfirmation("confirmed")
	s.logger.Info("payment confirmed",
		"appointment_id", appt.ID, "amount_cents", paidAmountCents)

	patient, err := s.patients.GetByID(ctx, appt.PatientID)
	if err != nil {
		s.logger.Error("failed to load patient for booking alert",
			"error", err, "appointment_id", appt.ID)
		return appt, nil
	}
	s.sendAlert(ctx, appt, patient)
	return appt, nil
}

// MarkPaymentFailed cancels an unpaid hold whose checkout failed or
// expired, releasing the slot for other patients.
func (s *Scheduler) MarkPaymentFailed(ctx context.Context, appointmentID string) (*Appointment, error) {
	appt, err := s.repo.MarkPaymentFailed(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObservePaymentConfirmation("failed")
	s.logger.Info("payment failed, appointment cancelled", "appointment_id", appointmentID)
	return appt, nil
}

// Update applies a provider/admin patch. Reschedules re-run the slot
// conflict check through the store.
func (s *Scheduler) Update(ctx context.Context, appointmentID string, patch UpdatePatch) (*Appointment, error) {
	if patch.Empty() {
		return s.repo.GetByID(ctx, appointmentID)
	}
	appt, err := s.repo.Update(ctx, appointmentID, patch)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			s.metrics.ObserveSlotConflict()
		}
		return nil, err
	}
	s.logger.Info("appointment updated", "appointment_id", appointmentID)
	return appt, nil
}

// GetByID returns a single appointment.
func (s *Scheduler) GetByID(ctx context.Context, appointmentID string) (*Appointment, error) {
	return s.repo.GetByID(ctx, appointmentID)
}

// ListByEmail returns the patient's appointments, newest first. An unknown
// email yields an empty list, not an error.
func (s *Scheduler) ListByEmail(ctx context.Context, email string) ([]*Appointment, error) {
	patient, err := s.patients.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, patients.ErrPatientNotFound) {
			return []*Appointment{}, nil
		}
		return nil, err
	}
	appts, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, err
	}
	if appts == nil {
		appts = []*Appointment{}
	}
	return appts, nil
}

// sendAlert is strictly best-effort: a notification failure never unwinds
// the booking or payment state it follows.
func (s *Scheduler) sendAlert(ctx context.Context, appt *Appointment, patient *patients.Patient) {
	if s.alerts == nil {
		return
	}
	alert := Alert{
		PatientName:  patient.Name,
		PatientEmail: patient.Email,
		PatientPhone: patient.Phone,
		ServiceName:  appt.ServiceName,
		Date:         appt.Date,
		Time:         appt.Time,
		Timezone:     appt.Timezone,
	}
	if err := s.alerts.SendBookingAlert(ctx, alert); err != nil {
		s.metrics.ObserveAlert("failed")
		s.logger.Error("booking alert failed",
			"error", err, "appointment_id", appt.ID)
		return
	}
	s.metrics.ObserveAlert("sent")
}
