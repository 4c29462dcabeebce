package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const appointmentColumns = `
	id, patient_id, service_id, service_kind, service_name,
	appointment_date, appointment_time, timezone, status, price_cents,
	payment_status, COALESCE(payment_session_id, ''),
	COALESCE(subscription_id::text, ''), COALESCE(notes, ''),
	created_at, updated_at
`

// PostgresRepository stores appointments in the relational database. Slot
// uniqueness rides on the partial unique index over (appointment_date,
// appointment_time) WHERE status <> 'cancelled', so insert-if-absent is a
// single statement and never a read-then-write.
type PostgresRepository struct {
	pool dbQuerier
}

type dbQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q dbQuerier) *PostgresRepository {
	if q == nil {
		panic("booking: querier required")
	}
	return &PostgresRepository{pool: q}
}

// Create inserts a new appointment row, surfacing the slot index violation
// as ErrSlotTaken.
func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, service_id, service_kind, service_name,
			appointment_date, appointment_time, timezone, status, price_cents,
			payment_status, payment_session_id, subscription_id, notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			NULLIF($12, ''), NULLIF($13, '')::uuid, NULLIF($14, ''))
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		appt.ID,
		appt.PatientID,
		appt.ServiceID,
		appt.ServiceKind,
		appt.ServiceName,
		appt.Date,
		appt.Time,
		appt.Timezone,
		appt.Status,
		appt.PriceCents,
		appt.PaymentStatus,
		appt.PaymentSessionID,
		appt.SubscriptionID,
		appt.Notes,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isSlotViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("booking: insert failed: %w", err)
	}
	return nil
}

// GetByID fetches an appointment by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+appointmentColumns+`FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

// ListByPatient returns the patient's appointments ordered by date descending.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patientID string) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, created_at DESC`,
		patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("booking: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list rows: %w", err)
	}
	return out, nil
}

// SlotTaken reports whether a non-cancelled appointment holds the slot. This
// pre-check keeps the common conflict cheap; Create remains authoritative.
func (r *PostgresRepository) SlotTaken(ctx context.Context, date, timeOfDay string) (bool, error) {
	var exists int
	err := r.pool.QueryRow(ctx, `
		SELECT 1 FROM appointments
		WHERE appointment_date = $1 AND appointment_time = $2 AND status <> 'cancelled'
		LIMIT 1
	`, date, timeOfDay).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("booking: slot check: %w", err)
	}
	return true, nil
}

// Update applies the patch as one statement. A reschedule into an occupied
// slot trips the partial unique index and comes back as ErrSlotTaken, so
// the no-double-booking invariant survives reschedules too.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch UpdatePatch) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status           = COALESCE($2, status),
			appointment_date = COALESCE($3, appointment_date),
			appointment_time = COALESCE($4, appointment_time),
			notes            = COALESCE($5, notes),
			updated_at       = now()
		WHERE id = $1
		RETURNING`+appointmentColumns,
		id, patch.Status, patch.Date, patch.Time, patch.Notes,
	)
	appt, err := scanAppointment(row)
	if err != nil {
		if isSlotViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return appt, nil
}

// ConfirmPayment is a conditional update: only a pending_payment row
// transitions, so repeated confirmations are no-ops with changed=false.
func (r *PostgresRepository) ConfirmPayment(ctx context.Context, id, paymentSessionID string) (*Appointment, bool, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'scheduled',
			payment_status = 'paid',
			payment_session_id = COALESCE(NULLIF($2, ''), payment_session_id),
			updated_at = now()
		WHERE id = $1 AND status = 'pending_payment'
		RETURNING`+appointmentColumns,
		id, paymentSessionID,
	)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, true, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, false, err
	}

	// No pending row matched: either already confirmed or genuinely missing.
	appt, err = r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return appt, false, nil
}

// MarkPaymentFailed cancels an unpaid hold, releasing the slot.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, id string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled', payment_status = 'failed', updated_at = now()
		WHERE id = $1 AND status = 'pending_payment'
		RETURNING`+appointmentColumns,
		id,
	)
	appt, err := scanAppointment(row)
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func isSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var appt Appointment
	if err := row.Scan(
		&appt.ID,
		&appt.PatientID,
		&appt.ServiceID,
		&appt.ServiceKind,
		&appt.ServiceName,
		&appt.Date,
		&appt.Time,
		&appt.Timezone,
		&appt.Status,
		&appt.PriceCents,
		&appt.PaymentStatus,
		&appt.PaymentSessionID,
		&appt.SubscriptionID,
		&appt.Notes,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		if isSlotViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("booking: scan failed: %w", err)
	}
	return &appt, nil
}
