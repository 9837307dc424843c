package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const appointmentColumns = `id, tenant_id, professional_id, service_id, starts_at, duration_minutes,
	customer_name, customer_phone, status, hold_expires_at, payment_reference, payment_qr,
	total_cents, prepaid_cents, refunded, created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.TenantID,
		&a.ProfessionalID,
		&a.ServiceID,
		&a.StartsAt,
		&a.DurationMinutes,
		&a.CustomerName,
		&a.CustomerPhone,
		&a.Status,
		&a.HoldExpiresAt,
		&a.PaymentReference,
		&a.PaymentQR,
		&a.TotalCents,
		&a.PrepaidCents,
		&a.Refunded,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// guardedUpdate runs a status-guarded UPDATE ... RETURNING. When no row
// matches it tells a missing appointment apart from one another writer
// already moved.
func (r *PgRepository) guardedUpdate(ctx context.Context, id uuid.UUID, query string, args ...any) (*Appointment, error) {
	a, err := scanAppointment(r.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, err
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check appointment exists: %w", err)
	}
	if !exists {
		return nil, ErrAppointmentNotFound
	}
	return nil, ErrRaceLost
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error) {
	q := psql.Select(appointmentColumns).
		From("appointments").
		Where(sq.Eq{"tenant_id": f.TenantID}).
		OrderBy("starts_at ASC")

	if f.ProfessionalID != nil {
		q = q.Where(sq.Eq{"professional_id": *f.ProfessionalID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where(sq.Eq{"status": statuses})
	}
	if f.From != nil {
		q = q.Where(sq.GtOrEq{"starts_at": *f.From})
	}
	if f.To != nil {
		q = q.Where(sq.Lt{"starts_at": *f.To})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindHold(ctx context.Context, key HoldKey) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1
		  AND professional_id = $2
		  AND starts_at = $3
		  AND customer_phone = $4
		  AND status = 'pending_payment'
		ORDER BY created_at DESC
		LIMIT 1
	`, key.TenantID, key.ProfessionalID, key.StartsAt, key.CustomerPhone)
	return scanAppointment(row)
}

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	if err := a.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, tenant_id, professional_id, service_id, starts_at, ends_at, duration_minutes,
			customer_name, customer_phone, status, hold_expires_at, payment_reference, payment_qr,
			total_cents, prepaid_cents, refunded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, false, now(), now())
		RETURNING `+appointmentColumns,
		id, a.TenantID, a.ProfessionalID, a.ServiceID, a.StartsAt, a.EndsAt(), a.DurationMinutes,
		a.CustomerName, a.CustomerPhone, a.Status, a.HoldExpiresAt, a.PaymentReference, a.PaymentQR,
		a.TotalCents, a.PrepaidCents,
	)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return nil, fmt.Errorf("%w: %s", ErrSlotTaken, pgErr.ConstraintName)
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) ConfirmHold(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (*Appointment, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE appointments
		SET status = 'confirmed',
		    hold_expires_at = NULL,
		    payment_reference = COALESCE(payment_reference, NULLIF($2, '')),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending_payment'
		  AND hold_expires_at >= $3
		RETURNING `+appointmentColumns, id, paymentRef, now)
}

func (r *PgRepository) CancelHold(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE appointments
		SET status = 'cancelled',
		    hold_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending_payment'
		RETURNING `+appointmentColumns, id)
}

func (r *PgRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.guardedUpdate(ctx, id, `
		UPDATE appointments
		SET status = 'cancelled',
		    refunded = true,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'confirmed'
		  AND refunded = false
		RETURNING `+appointmentColumns, id)
}

func (r *PgRepository) FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending_payment'
		  AND hold_expires_at IS NOT NULL
		  AND hold_expires_at < $1
		ORDER BY hold_expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
