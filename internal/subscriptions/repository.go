package subscriptions

import (
	"context"
	"sync"
	"time"
)

// Repository defines the interface for subscription storage. ReserveVisit
// must be atomic with respect to concurrent bookings for the same
// subscription: check-against-limit and increment happen as one operation.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id string) (*Subscription, error)
	GetActiveByPatient(ctx context.Context, patientID string) (*Subscription, error)
	// ReserveVisit increments the cycle counter if limit is nil (unlimited)
	// or the counter is still below limit. Returns ErrLimitExceeded otherwise.
	ReserveVisit(ctx context.Context, id string, limit *int) error
	// ReleaseVisit undoes a reservation when the booking it was taken for
	// could not be committed.
	ReleaseVisit(ctx context.Context, id string) error
	// ChangePlan swaps the plan snapshot, resets the cycle counter to zero
	// and re-anchors the 30-day billing date.
	ChangePlan(ctx context.Context, id, planID, planName string, priceCents int64) (*Subscription, error)
	// UpdateStatus transitions the lifecycle state; cancellation stamps end_date.
	UpdateStatus(ctx context.Context, id string, status Status) (*Subscription, error)
}

// InMemoryRepository is a mutex-guarded Repository used in tests and demos.
// The lock makes reserve/release as atomic as the conditional SQL update.
type InMemoryRepository struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{subs: make(map[string]*Subscription)}
}

// Create enforces the one-active-subscription-per-patient invariant.
func (r *InMemoryRepository) Create(ctx context.Context, sub *Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.subs {
		if existing.PatientID == sub.PatientID && existing.Status == StatusActive {
			return ErrAlreadySubscribed
		}
	}
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

// GetByID retrieves a subscription by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

// GetActiveByPatient retrieves the patient's active subscription.
func (r *InMemoryRepository) GetActiveByPatient(ctx context.Context, patientID string) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		if sub.PatientID == patientID && sub.Status == StatusActive {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, ErrNoActiveSubscription
}

// ReserveVisit is a check-and-increment under the repository lock.
func (r *InMemoryRepository) ReserveVisit(ctx context.Context, id string, limit *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok || sub.Status != StatusActive {
		return ErrSubscriptionNotFound
	}
	if limit != nil && sub.VisitsThisCycle >= *limit {
		return ErrLimitExceeded
	}
	sub.VisitsThisCycle++
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// ReleaseVisit decrements the counter, never below zero.
func (r *InMemoryRepository) ReleaseVisit(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if sub.VisitsThisCycle > 0 {
		sub.VisitsThisCycle--
	}
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// ChangePlan swaps the plan snapshot and grants a fresh allowance.
func (r *InMemoryRepository) ChangePlan(ctx context.Context, id, planID, planName string, priceCents int64) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	now := time.Now().UTC()
	sub.PlanID = planID
	sub.PlanName = planName
	sub.MonthlyPriceCents = priceCents
	sub.VisitsThisCycle = 0
	sub.NextBillingDate = now.Add(BillingPeriod)
	sub.UpdatedAt = now
	cp := *sub
	return &cp, nil
}

// UpdateStatus transitions lifecycle state; cancellation stamps end_date.
// Moving to active re-contends for the one-active-per-patient slot, the
// same way reactivation hits the partial unique index in Postgres.
func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	if status == StatusActive && sub.Status != StatusActive {
		for _, existing := range r.subs {
			if existing.PatientID == sub.PatientID && existing.Status == StatusActive {
				return nil, ErrAlreadySubscribed
			}
		}
	}
	sub.Status = status
	now := time.Now().UTC()
	if status == StatusCancelled {
		sub.EndDate = &now
	}
	sub.UpdatedAt = now
	cp := *sub
	return &cp, nil
}
