package subscriptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const subscriptionColumns = `
	id, patient_id, plan_id, plan_name, monthly_price_cents, status,
	start_date, next_billing_date, end_date, visits_this_cycle,
	created_at, updated_at
`

// PostgresRepository stores subscriptions in the relational database.
// The one-active-per-patient invariant is enforced by a partial unique
// index, not by application reads.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("subscriptions: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new active subscription row.
func (r *PostgresRepository) Create(ctx context.Context, sub *Subscription) error {
	query := `
		INSERT INTO subscriptions (
			id, patient_id, plan_id, plan_name, monthly_price_cents, status,
			start_date, next_billing_date, visits_this_cycle
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.PatientID,
		sub.PlanID,
		sub.PlanName,
		sub.MonthlyPriceCents,
		sub.Status,
		sub.StartDate,
		sub.NextBillingDate,
		sub.VisitsThisCycle,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadySubscribed
		}
		return fmt.Errorf("subscriptions: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches a subscription by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+subscriptionColumns+`FROM subscriptions WHERE id = $1`, id)
	return scanSubscription(row, ErrSubscriptionNotFound)
}

// GetActiveByPatient fetches the patient's active subscription.
func (r *PostgresRepository) GetActiveByPatient(ctx context.Context, patientID string) (*Subscription, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+subscriptionColumns+`FROM subscriptions WHERE patient_id = $1 AND status = 'active'`,
		patientID,
	)
	return scanSubscription(row, ErrNoActiveSubscription)
}

// ReserveVisit is a single conditional update: increment only while the
// counter is below the plan ceiling. Two concurrent calls can never both
// pass the check on the same remaining visit.
func (r *PostgresRepository) ReserveVisit(ctx context.Context, id string, limit *int) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET visits_this_cycle = visits_this_cycle + 1, updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		  AND ($2::int IS NULL OR visits_this_cycle < $2::int)
	`, id, limit)
	if err != nil {
		return fmt.Errorf("subscriptions: reserve visit: %w", err)
	}
	if ct.RowsAffected() == 0 {
		// Distinguish a missing/inactive subscription from an exhausted one.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrLimitExceeded
	}
	return nil
}

// ReleaseVisit compensates a reservation whose booking failed to commit.
func (r *PostgresRepository) ReleaseVisit(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET visits_this_cycle = GREATEST(visits_this_cycle - 1, 0), updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("subscriptions: release visit: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ChangePlan swaps the plan snapshot, resets the cycle counter and
// re-anchors the 30-day billing date at the switch.
func (r *PostgresRepository) ChangePlan(ctx context.Context, id, planID, planName string, priceCents int64) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, plan_name = $3, monthly_price_cents = $4,
			visits_this_cycle = 0,
			next_billing_date = now() + interval '30 days',
			updated_at = now()
		WHERE id = $1
		RETURNING`+subscriptionColumns,
		id, planID, planName, priceCents,
	)
	return scanSubscription(row, ErrSubscriptionNotFound)
}

// UpdateStatus transitions lifecycle state; cancellation stamps end_date.
// Reactivation contends with the one-active partial index and surfaces
// ErrAlreadySubscribed when the patient already holds an active plan.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Subscription, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = $2,
			end_date = CASE WHEN $2 = 'cancelled' THEN now() ELSE end_date END,
			updated_at = now()
		WHERE id = $1
		RETURNING`+subscriptionColumns,
		id, status,
	)
	sub, err := scanSubscription(row, ErrSubscriptionNotFound)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrAlreadySubscribed
		}
		return nil, err
	}
	return sub, nil
}

func scanSubscription(row pgx.Row, notFound error) (*Subscription, error) {
	var sub Subscription
	if err := row.Scan(
		&sub.ID,
		&sub.PatientID,
		&sub.PlanID,
		&sub.PlanName,
		&sub.MonthlyPriceCents,
		&sub.Status,
		&sub.StartDate,
		&sub.NextBillingDate,
		&sub.EndDate,
		&sub.VisitsThisCycle,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		return nil, fmt.Errorf("subscriptions: scan failed: %w", err)
	}
	return &sub, nil
}
