// Package booking implements the appointment scheduler: slot allocation,
// the appointment lifecycle state machine and payment confirmation.
package booking

import (
	"strings"
	"time"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPendingPayment Status = "pending_payment"
	StatusScheduled      Status = "scheduled"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "no_show"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPendingPayment, StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// PaymentStatus tracks collection of the appointment's price.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// ServiceKind mirrors the two booking modes.
type ServiceKind string

const (
	KindOneOff       ServiceKind = "one_off"
	KindSubscription ServiceKind = "subscription"
)

// Appointment occupies exactly one (date, time) slot. Service title and
// price are snapshotted at creation and never re-read from the catalog.
type Appointment struct {
	ID               string        `json:"id"`
	PatientID        string        `json:"patient_id"`
	ServiceID        string        `json:"service_id"`
	ServiceKind      ServiceKind   `json:"service_kind"`
	ServiceName      string        `json:"service_name"`
	Date             string        `json:"date"` // YYYY-MM-DD
	Time             string        `json:"time"` // wall-clock, e.g. "10:00 AM"
	Timezone         string        `json:"timezone"`
	Status           Status        `json:"status"`
	PriceCents       int64         `json:"price_cents"`
	PaymentStatus    PaymentStatus `json:"payment_status"`
	PaymentSessionID string        `json:"payment_session_id,omitempty"`
	SubscriptionID   string        `json:"subscription_id,omitempty"`
	Notes            string        `json:"notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Blocking reports whether the appointment holds its slot. Everything but a
// cancellation blocks: an unpaid hold still reserves the slot so checkout
// cannot be raced.
func (a *Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// BookRequest is the input to Scheduler.Book.
type BookRequest struct {
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Phone       string      `json:"phone"`
	ServiceID   string      `json:"serviceId"`
	ServiceKind ServiceKind `json:"serviceType"`
	Date        string      `json:"date"`
	Time        string      `json:"time"`
	Timezone    string      `json:"timezone"`
	Address     string      `json:"address,omitempty"`
	Notes       string      `json:"notes,omitempty"`
}

// Validate checks required-field presence. Format validation beyond presence
// belongs to the request boundary, not the core.
func (r *BookRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Name) == "":
		return ErrMissingName
	case strings.TrimSpace(r.Email) == "":
		return ErrMissingEmail
	case strings.TrimSpace(r.Phone) == "":
		return ErrMissingPhone
	case strings.TrimSpace(r.ServiceID) == "":
		return ErrMissingService
	case strings.TrimSpace(r.Date) == "" || strings.TrimSpace(r.Time) == "":
		return ErrMissingSlot
	case strings.TrimSpace(r.Timezone) == "":
		return ErrMissingTimezone
	}
	if r.ServiceKind != KindOneOff && r.ServiceKind != KindSubscription {
		return ErrInvalidServiceKind
	}
	return nil
}

// BookResult is returned by Scheduler.Book.
type BookResult struct {
	Appointment     *Appointment `json:"appointment"`
	RequiresPayment bool         `json:"requiresPayment"`
}

// UpdatePatch carries the mutable appointment fields for PATCH requests.
// Date/time changes re-run the slot conflict check; the no-double-booking
// invariant is unconditional, there is no override that can break it.
type UpdatePatch struct {
	Status *Status `json:"status,omitempty"`
	Date   *string `json:"date,omitempty"`
	Time   *string `json:"time,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Empty reports whether the patch changes anything.
func (p *UpdatePatch) Empty() bool {
	return p.Status == nil && p.Date == nil && p.Time == nil && p.Notes == nil
}

// Reschedules reports whether the patch moves the appointment slot.
func (p *UpdatePatch) Reschedules() bool {
	return p.Date != nil || p.Time != nil
}
