package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `
	id, appointment_id, provider_session_id, url, amount_cents, status,
	created_at, updated_at
`

// PostgresRepository stores checkout sessions in the relational database.
type PostgresRepository struct {
	pool dbQuerier
}

type dbQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("payments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q dbQuerier) *PostgresRepository {
	if q == nil {
		panic("payments: querier required")
	}
	return &PostgresRepository{pool: q}
}

func (r *PostgresRepository) Create(ctx context.Context, session *Session) error {
	query := `
		INSERT INTO payment_sessions (
			id, appointment_id, provider_session_id, url, amount_cents, status
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		session.ID,
		session.AppointmentID,
		session.ProviderSessionID,
		session.URL,
		session.AmountCents,
		session.Status,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("payments: insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByProviderSessionID(ctx context.Context, providerSessionID string) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+sessionColumns+`FROM payment_sessions WHERE provider_session_id = $1`,
		providerSessionID,
	)
	return scanSession(row)
}

func (r *PostgresRepository) GetOpenByAppointment(ctx context.Context, appointmentID string) (*Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+sessionColumns+`
		FROM payment_sessions
		WHERE appointment_id = $1 AND status = 'open'
		ORDER BY created_at DESC
		LIMIT 1`,
		appointmentID,
	)
	return scanSession(row)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, providerSessionID string, status SessionStatus) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE payment_sessions
		SET status = $2, updated_at = now()
		WHERE provider_session_id = $1
		RETURNING`+sessionColumns,
		providerSessionID, status,
	)
	return scanSession(row)
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	if err := row.Scan(
		&s.ID,
		&s.AppointmentID,
		&s.ProviderSessionID,
		&s.URL,
		&s.AmountCents,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("payments: scan session: %w", err)
	}
	return &s, nil
}
