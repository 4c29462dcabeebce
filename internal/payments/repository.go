package payments

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrSessionNotFound is returned when no payment session matches.
	ErrSessionNotFound = errors.New("payment session not found")
)

// Session is the locally persisted record of a hosted checkout session.
type Session struct {
	ID                string        `json:"id"`
	AppointmentID     string        `json:"appointment_id"`
	ProviderSessionID string        `json:"provider_session_id"`
	URL               string        `json:"url"`
	AmountCents       int64         `json:"amount_cents"`
	Status            SessionStatus `json:"status"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Repository persists checkout sessions so webhook and poll handlers can
// map provider session ids back to appointments.
type Repository interface {
	Create(ctx context.Context, session *Session) error
	GetByProviderSessionID(ctx context.Context, providerSessionID string) (*Session, error)
	GetOpenByAppointment(ctx context.Context, appointmentID string) (*Session, error)
	UpdateStatus(ctx context.Context, providerSessionID string, status SessionStatus) (*Session, error)
}

// InMemoryRepository is the dev/test session store.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byProvider map[string]*Session
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{byProvider: make(map[string]*Session)}
}

func (r *InMemoryRepository) Create(ctx context.Context, session *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	cp := *session
	r.byProvider[session.ProviderSessionID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByProviderSessionID(ctx context.Context, providerSessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byProvider[providerSessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryRepository) GetOpenByAppointment(ctx context.Context, appointmentID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.byProvider {
		if s.AppointmentID == appointmentID && s.Status == SessionOpen {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, providerSessionID string, status SessionStatus) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byProvider[providerSessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.Status = status
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}
