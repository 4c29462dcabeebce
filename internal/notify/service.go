package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/medrx/telehealth-platform/internal/booking"
	"github.com/medrx/telehealth-platform/pkg/logging"
)

// Service fans a booking alert out to the configured channels. Either
// channel may be nil; with both nil the service is a logged no-op.
type Service struct {
	sms     SMSSender
	email   EmailSender
	smsTo   string
	emailTo string
	logger  *logging.Logger
}

// NewService wires the alert channels. smsTo and emailTo are the practice
// contact points, not patient addresses.
func NewService(sms SMSSender, smsTo string, email EmailSender, emailTo string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sms:     sms,
		email:   email,
		smsTo:   smsTo,
		emailTo: emailTo,
		logger:  logger,
	}
}

// SendBookingAlert notifies the practice about a confirmed booking on every
// configured channel. Partial failures are reported but each channel is
// still attempted.
func (s *Service) SendBookingAlert(ctx context.Context, alert booking.Alert) error {
	body := formatAlert(alert)

	var errs []error
	sent := 0
	if s.sms != nil && s.smsTo != "" {
		if err := s.sms.SendSMS(ctx, s.smsTo, body); err != nil {
			s.logger.Error("booking alert sms failed", "error", err)
			errs = append(errs, err)
		} else {
			sent++
		}
	}
	if s.email != nil && s.emailTo != "" {
		msg := EmailMessage{
			To:      s.emailTo,
			Subject: fmt.Sprintf("New booking: %s on %s", alert.ServiceName, alert.Date),
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("booking alert email failed", "error", err)
			errs = append(errs, err)
		} else {
			sent++
		}
	}

	if sent == 0 && len(errs) == 0 {
		s.logger.Warn("booking alert skipped, no channels configured")
	}
	return errors.Join(errs...)
}

func formatAlert(alert booking.Alert) string {
	return fmt.Sprintf(
		"New appointment booked\n%s (%s, %s)\n%s\n%s at %s (%s)",
		alert.PatientName,
		alert.PatientEmail,
		alert.PatientPhone,
		alert.ServiceName,
		alert.Date,
		alert.Time,
		alert.Timezone,
	)
}

var _ booking.AlertSender = (*Service)(nil)
