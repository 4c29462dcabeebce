// Package events tracks external webhook deliveries so retried events are
// handled at most once.
package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore records (provider, event id) pairs that were already
// handled. Checkout providers redeliver webhooks on timeouts, so every
// handler claims the event id here before acting on it.
type ProcessedStore struct {
	pool execer
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec execer) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

// Claim atomically records the event id. It returns true when this call won
// the claim and the event should be processed, false when a previous
// delivery already did.
func (s *ProcessedStore) Claim(ctx context.Context, provider, eventID string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query, provider, eventID)
	if err != nil {
		return false, fmt.Errorf("events: claim event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// Release drops a claim so the provider's next redelivery can process the
// event. Handlers call this when processing fails after the claim was won;
// without it a transient failure would swallow the event for good.
func (s *ProcessedStore) Release(ctx context.Context, provider, eventID string) error {
	query := `
		DELETE FROM processed_events
		WHERE provider = $1 AND event_id = $2
	`
	if _, err := s.pool.Exec(ctx, query, provider, eventID); err != nil {
		return fmt.Errorf("events: release event: %w", err)
	}
	return nil
}
