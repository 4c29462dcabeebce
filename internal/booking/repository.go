package booking

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines the interface for appointment storage. Create and
// Update must enforce slot uniqueness atomically: a plain read-then-insert
// is a race under concurrent load.
type Repository interface {
	// Create inserts the appointment, failing with ErrSlotTaken when a
	// non-cancelled appointment already holds the (date, time) slot.
	Create(ctx context.Context, appt *Appointment) error
	GetByID(ctx context.Context, id string) (*Appointment, error)
	// ListByPatient returns the patient's appointments, newest date first.
	ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error)
	// SlotTaken is the advisory pre-check; Create remains the authority.
	SlotTaken(ctx context.Context, date, timeOfDay string) (bool, error)
	// Update applies the patch. Moving to an occupied slot fails with
	// ErrSlotTaken; the no-double-booking invariant holds for reschedules
	// exactly as it does for creation.
	Update(ctx context.Context, id string, patch UpdatePatch) (*Appointment, error)
	// ConfirmPayment transitions pending_payment to scheduled/paid exactly
	// once; changed is false when the appointment was already past that
	// state so repeated webhook deliveries are no-ops.
	ConfirmPayment(ctx context.Context, id, paymentSessionID string) (appt *Appointment, changed bool, err error)
	// MarkPaymentFailed cancels a pending_payment appointment whose checkout
	// failed or expired, releasing its slot.
	MarkPaymentFailed(ctx context.Context, id string) (*Appointment, error)
}

// InMemoryRepository keeps appointments in maps under one mutex, giving the
// same atomicity the partial unique index provides in Postgres. Used by
// tests and the demo wiring.
type InMemoryRepository struct {
	mu    sync.Mutex
	appts map[string]*Appointment
	slots map[string]string // "date|time" -> appointment id holding the slot
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		appts: make(map[string]*Appointment),
		slots: make(map[string]string),
	}
}

func slotKey(date, timeOfDay string) string { return date + "|" + timeOfDay }

// Create checks and claims the slot under the lock.
func (r *InMemoryRepository) Create(ctx context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := slotKey(appt.Date, appt.Time)
	if _, taken := r.slots[key]; taken {
		return ErrSlotTaken
	}

	now := time.Now().UTC()
	cp := *appt
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.appts[cp.ID] = &cp
	r.slots[key] = cp.ID

	*appt = cp
	return nil
}

// GetByID retrieves an appointment by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *InMemoryRepository) getLocked(id string) (*Appointment, error) {
	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

// ListByPatient returns the patient's appointments ordered by date descending.
func (r *InMemoryRepository) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Appointment
	for _, appt := range r.appts {
		if appt.PatientID == patientID {
			cp := *appt
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date > out[j].Date
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SlotTaken reports whether a non-cancelled appointment holds the slot.
func (r *InMemoryRepository) SlotTaken(ctx context.Context, date, timeOfDay string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, taken := r.slots[slotKey(date, timeOfDay)]
	return taken, nil
}

// Update applies the patch under the lock, moving the slot claim if the
// appointment is rescheduled.
func (r *InMemoryRepository) Update(ctx context.Context, id string, patch UpdatePatch) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}

	newDate, newTime := appt.Date, appt.Time
	if patch.Date != nil {
		newDate = *patch.Date
	}
	if patch.Time != nil {
		newTime = *patch.Time
	}

	oldKey := slotKey(appt.Date, appt.Time)
	newKey := slotKey(newDate, newTime)
	if newKey != oldKey && appt.Blocking() {
		if holder, taken := r.slots[newKey]; taken && holder != id {
			return nil, ErrSlotTaken
		}
		delete(r.slots, oldKey)
		r.slots[newKey] = id
	}

	appt.Date = newDate
	appt.Time = newTime
	if patch.Status != nil {
		if err := r.applyStatusLocked(appt, *patch.Status); err != nil {
			return nil, err
		}
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}
	appt.UpdatedAt = time.Now().UTC()

	cp := *appt
	return &cp, nil
}

// applyStatusLocked moves the slot claim with the status transition.
// Reactivating out of cancelled re-contends for the slot: someone else may
// have booked it in the meantime, exactly as the partial unique index
// would refuse the row in Postgres.
func (r *InMemoryRepository) applyStatusLocked(appt *Appointment, status Status) error {
	wasBlocking := appt.Blocking()
	key := slotKey(appt.Date, appt.Time)

	willBlock := status != StatusCancelled
	if !wasBlocking && willBlock {
		if holder, taken := r.slots[key]; taken && holder != appt.ID {
			return ErrSlotTaken
		}
	}

	appt.Status = status
	switch {
	case wasBlocking && !appt.Blocking():
		delete(r.slots, key)
	case !wasBlocking && appt.Blocking():
		r.slots[key] = appt.ID
	}
	return nil
}

// ConfirmPayment transitions pending_payment -> scheduled/paid exactly once.
func (r *InMemoryRepository) ConfirmPayment(ctx context.Context, id, paymentSessionID string) (*Appointment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, false, ErrAppointmentNotFound
	}
	if appt.Status != StatusPendingPayment {
		cp := *appt
		return &cp, false, nil
	}

	appt.Status = StatusScheduled
	appt.PaymentStatus = PaymentPaid
	if paymentSessionID != "" {
		appt.PaymentSessionID = paymentSessionID
	}
	appt.UpdatedAt = time.Now().UTC()
	cp := *appt
	return &cp, true, nil
}

// MarkPaymentFailed cancels an unpaid hold, releasing the slot.
func (r *InMemoryRepository) MarkPaymentFailed(ctx context.Context, id string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusPendingPayment {
		cp := *appt
		return &cp, nil
	}

	appt.PaymentStatus = PaymentFailed
	r.applyStatusLocked(appt, StatusCancelled)
	appt.UpdatedAt = time.Now().UTC()
	cp := *appt
	return &cp, nil
}
