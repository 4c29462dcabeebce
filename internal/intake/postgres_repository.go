package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const submissionColumns = `
	id, patient_id, COALESCE(appointment_id::text, ''), questionnaire,
	consents, COALESCE(transcript, ''), extracted, emr_synced,
	created_at, updated_at
`

// PostgresRepository stores intake submissions with JSONB payloads.
type PostgresRepository struct {
	pool dbQuerier
}

type dbQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("intake: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, sub *Submission) error {
	query := `
		INSERT INTO intake_submissions (
			id, patient_id, appointment_id, questionnaire, consents, transcript
		)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, NULLIF($6, ''))
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.PatientID,
		sub.AppointmentID,
		sub.Questionnaire,
		sub.Consents,
		sub.Transcript,
	).Scan(&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("intake: insert submission: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Submission, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT`+submissionColumns+`FROM intake_submissions WHERE id = $1`, id)
	return scanSubmission(row)
}

func (r *PostgresRepository) SetConsents(ctx context.Context, id string, consents json.RawMessage) (*Submission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE intake_submissions
		SET consents = $2, updated_at = now()
		WHERE id = $1
		RETURNING`+submissionColumns,
		id, consents,
	)
	return scanSubmission(row)
}

func (r *PostgresRepository) SetExtraction(ctx context.Context, id, transcript string, extracted json.RawMessage) (*Submission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE intake_submissions
		SET transcript = NULLIF($2, ''), extracted = $3, updated_at = now()
		WHERE id = $1
		RETURNING`+submissionColumns,
		id, transcript, extracted,
	)
	return scanSubmission(row)
}

func (r *PostgresRepository) MarkEMRSynced(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE intake_submissions
		SET emr_synced = TRUE, updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("intake: mark emr synced: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrSubmissionNotFound
	}
	return nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var sub Submission
	if err := row.Scan(
		&sub.ID,
		&sub.PatientID,
		&sub.AppointmentID,
		&sub.Questionnaire,
		&sub.Consents,
		&sub.Transcript,
		&sub.Extracted,
		&sub.EMRSynced,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("intake: scan submission: %w", err)
	}
	return &sub, nil
}
