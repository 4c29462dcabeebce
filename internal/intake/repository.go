package intake

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Repository persists intake submissions.
type Repository interface {
	Create(ctx context.Context, sub *Submission) error
	GetByID(ctx context.Context, id string) (*Submission, error)
	SetConsents(ctx context.Context, id string, consents json.RawMessage) (*Submission, error)
	SetExtraction(ctx context.Context, id, transcript string, extracted json.RawMessage) (*Submission, error)
	MarkEMRSynced(ctx context.Context, id string) error
}

// InMemoryRepository is the dev/test store.
type InMemoryRepository struct {
	mu   sync.RWMutex
	subs map[string]*Submission
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{subs: make(map[string]*Submission)}
}

func (r *InMemoryRepository) Create(ctx context.Context, sub *Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(id)
}

func (r *InMemoryRepository) getLocked(id string) (*Submission, error) {
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (r *InMemoryRepository) SetConsents(ctx context.Context, id string, consents json.RawMessage) (*Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	sub.Consents = consents
	sub.UpdatedAt = time.Now()
	cp := *sub
	return &cp, nil
}

func (r *InMemoryRepository) SetExtraction(ctx context.Context, id, transcript string, extracted json.RawMessage) (*Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrSubmissionNotFound
	}
	sub.Transcript = transcript
	sub.Extracted = extracted
	sub.UpdatedAt = time.Now()
	cp := *sub
	return &cp, nil
}

func (r *InMemoryRepository) MarkEMRSynced(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return ErrSubmissionNotFound
	}
	sub.EMRSynced = true
	sub.UpdatedAt = time.Now()
	return nil
}
