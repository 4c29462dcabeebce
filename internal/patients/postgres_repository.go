package patients

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Resolve upserts the patient keyed by email. The COALESCE/NULLIF dance keeps
// existing values when a profile field was not supplied with this request.
func (r *PostgresRepository) Resolve(ctx context.Context, email string, profile Profile) (*Patient, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	query := `
		INSERT INTO patients (id, name, email, phone, timezone, address)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			name      = COALESCE(NULLIF(EXCLUDED.name, ''), patients.name),
			phone     = COALESCE(NULLIF(EXCLUDED.phone, ''), patients.phone),
			timezone  = COALESCE(NULLIF(EXCLUDED.timezone, ''), patients.timezone),
			address   = COALESCE(NULLIF(EXCLUDED.address, ''), patients.address),
			updated_at = now()
		RETURNING id, name, email, phone, timezone, COALESCE(address, ''),
			COALESCE(subscription_id::text, ''), created_at, updated_at
	`
	row := r.pool.QueryRow(ctx, query,
		uuid.New(),
		profile.Name,
		email,
		profile.Phone,
		profile.Timezone,
		profile.Address,
	)
	var p Patient
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Timezone,
		&p.Address,
		&p.SubscriptionID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("patients: resolve failed: %w", err)
	}
	return &p, nil
}

// GetByEmail fetches a patient by normalized email.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	return r.get(ctx, `WHERE email = $1`, NormalizeEmail(email))
}

// GetByID fetches a patient by UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Patient, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *PostgresRepository) get(ctx context.Context, where string, arg any) (*Patient, error) {
	query := `
		SELECT id, name, email, phone, timezone, COALESCE(address, ''),
			COALESCE(subscription_id::text, ''), created_at, updated_at
		FROM patients
	` + where
	row := r.pool.QueryRow(ctx, query, arg)
	var p Patient
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Timezone,
		&p.Address,
		&p.SubscriptionID,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("patients: select failed: %w", err)
	}
	return &p, nil
}

// SetSubscriptionID records the patient's current subscription reference.
func (r *PostgresRepository) SetSubscriptionID(ctx context.Context, patientID, subscriptionID string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE patients SET subscription_id = NULLIF($2, '')::uuid, updated_at = now()
		WHERE id = $1
	`, patientID, subscriptionID)
	if err != nil {
		return fmt.Errorf("patients: set subscription: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}
