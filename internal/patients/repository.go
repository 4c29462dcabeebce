package patients

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPatientNotFound is returned when no patient matches the key.
var ErrPatientNotFound = errors.New("patient not found")

// ErrEmailRequired is returned when resolve is called without an email.
var ErrEmailRequired = errors.New("email is required")

// Repository defines the interface for patient storage
type Repository interface {
	// Resolve looks up a patient by email, creating the record if absent and
	// merging supplied profile fields if present.
	Resolve(ctx context.Context, email string, profile Profile) (*Patient, error)
	GetByEmail(ctx context.Context, email string) (*Patient, error)
	GetByID(ctx context.Context, id string) (*Patient, error)
	SetSubscriptionID(ctx context.Context, patientID, subscriptionID string) error
}

// InMemoryRepository is an in-memory Repository used in tests and demos.
type InMemoryRepository struct {
	mu      sync.RWMutex
	byEmail map[string]*Patient
	byID    map[string]*Patient
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byEmail: make(map[string]*Patient),
		byID:    make(map[string]*Patient),
	}
}

// Resolve upserts by email under a single lock.
func (r *InMemoryRepository) Resolve(ctx context.Context, email string, profile Profile) (*Patient, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if p, ok := r.byEmail[email]; ok {
		mergeProfile(p, profile)
		p.UpdatedAt = now
		cp := *p
		return &cp, nil
	}

	p := &Patient{
		ID:        uuid.New().String(),
		Name:      profile.Name,
		Email:     email,
		Phone:     profile.Phone,
		Timezone:  profile.Timezone,
		Address:   profile.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.byEmail[email] = p
	r.byID[p.ID] = p
	cp := *p
	return &cp, nil
}

// GetByEmail retrieves a patient by normalized email.
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByID retrieves a patient by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

// SetSubscriptionID records the patient's current subscription reference.
func (r *InMemoryRepository) SetSubscriptionID(ctx context.Context, patientID, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[patientID]
	if !ok {
		return ErrPatientNotFound
	}
	p.SubscriptionID = subscriptionID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// mergeProfile overwrites only the fields the caller supplied.
func mergeProfile(p *Patient, profile Profile) {
	if profile.Name != "" {
		p.Name = profile.Name
	}
	if profile.Phone != "" {
		p.Phone = profile.Phone
	}
	if profile.Timezone != "" {
		p.Timezone = profile.Timezone
	}
	if profile.Address != "" {
		p.Address = profile.Address
	}
}
