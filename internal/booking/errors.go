package booking

import "errors"

var (
	// ErrInvalidService is returned when the service id is not in the catalog.
	ErrInvalidService = errors.New("invalid service id")

	// ErrSlotTaken is returned when the requested (date, time) slot is held
	// by a non-cancelled appointment.
	ErrSlotTaken = errors.New("this time slot is already booked")

	// ErrAppointmentNotFound is returned when no appointment matches the id.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrPaymentMismatch is returned when the collected amount does not equal
	// the appointment's snapshotted price.
	ErrPaymentMismatch = errors.New("paid amount does not match appointment price")

	// Validation errors, rejected before touching the store.
	ErrMissingName        = errors.New("name is required")
	ErrMissingEmail       = errors.New("email is required")
	ErrMissingPhone       = errors.New("phone is required")
	ErrMissingService     = errors.New("serviceId is required")
	ErrMissingSlot        = errors.New("date and time are required")
	ErrMissingTimezone    = errors.New("timezone is required")
	ErrInvalidServiceKind = errors.New("serviceType must be one_off or subscription")
)
