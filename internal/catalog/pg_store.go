package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// hoursColumns renders TIME columns as HH:MM text so they scan into strings.
const hoursColumns = `weekday, is_open,
	to_char(morning_start, 'HH24:MI'), to_char(morning_end, 'HH24:MI'),
	to_char(afternoon_start, 'HH24:MI'), to_char(afternoon_end, 'HH24:MI')`

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) GetProfessional(ctx context.Context, tenantID, id uuid.UUID) (*Professional, error) {
	var p Professional
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(phone, '')
		FROM professionals
		WHERE id = $1 AND tenant_id = $2 AND active
	`, id, tenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfessionalNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) GetService(ctx context.Context, tenantID, id uuid.UUID) (*Service, error) {
	var svc Service
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, duration_minutes, price_cents
		FROM services
		WHERE id = $1 AND tenant_id = $2 AND active
	`, id, tenantID).Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (s *PgStore) ListProfessionals(ctx context.Context, tenantID uuid.UUID) ([]Professional, error) {
	query, args, err := psql.Select("id", "tenant_id", "name", "COALESCE(phone, '')").
		From("professionals").
		Where(sq.Eq{"tenant_id": tenantID, "active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Professional
	for rows.Next() {
		var p Professional
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Phone); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgStore) ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error) {
	query, args, err := psql.Select("id", "tenant_id", "name", "duration_minutes", "price_cents").
		From("services").
		Where(sq.Eq{"tenant_id": tenantID, "active": true}).
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMinutes, &svc.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s *PgStore) ProfessionalSchedule(ctx context.Context, tenantID, professionalID uuid.UUID) (availability.ProfessionalSchedule, error) {
	var sched availability.ProfessionalSchedule

	err := s.pool.QueryRow(ctx, `
		SELECT custom_hours_enabled
		FROM professionals
		WHERE id = $1 AND tenant_id = $2
	`, professionalID, tenantID).Scan(&sched.Enabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return sched, ErrProfessionalNotFound
		}
		return sched, err
	}
	if !sched.Enabled {
		return sched, nil
	}

	days, err := s.weeklyHours(ctx, "professional_hours", sq.Eq{"professional_id": professionalID})
	if err != nil {
		return sched, fmt.Errorf("professional hours: %w", err)
	}
	sched.Days = days
	return sched, nil
}

func (s *PgStore) BusinessHours(ctx context.Context, tenantID uuid.UUID) (availability.BusinessHours, error) {
	days, err := s.weeklyHours(ctx, "business_hours", sq.Eq{"tenant_id": tenantID})
	if err != nil {
		return availability.BusinessHours{}, fmt.Errorf("business hours: %w", err)
	}
	return availability.BusinessHours{Days: days}, nil
}

func (s *PgStore) weeklyHours(ctx context.Context, table string, where sq.Eq) (availability.WeeklyHours, error) {
	query, args, err := psql.Select(hoursColumns).From(table).Where(where).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	days := make(availability.WeeklyHours)
	for rows.Next() {
		var (
			weekday                    int16
			open                       bool
			mStart, mEnd, aStart, aEnd *string
		)
		if err := rows.Scan(&weekday, &open, &mStart, &mEnd, &aStart, &aEnd); err != nil {
			return nil, err
		}

		day := availability.DayHours{Open: open}
		for _, pair := range [][2]*string{{mStart, mEnd}, {aStart, aEnd}} {
			if pair[0] == nil || pair[1] == nil {
				continue
			}
			iv, err := parseInterval(*pair[0], *pair[1])
			if err != nil {
				return nil, err
			}
			day.Intervals = append(day.Intervals, iv)
		}
		days[time.Weekday(weekday)] = day
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return days, nil
}

func parseInterval(start, end string) (availability.Interval, error) {
	s, err := availability.ParseTimeOfDay(start)
	if err != nil {
		return availability.Interval{}, err
	}
	e, err := availability.ParseTimeOfDay(end)
	if err != nil {
		return availability.Interval{}, err
	}
	return availability.Interval{Start: s, End: e}, nil
}

func (s *PgStore) DateBlocks(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]availability.DateBlock, error) {
	y, m, d := day.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, professional_id, block_date,
		       to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), COALESCE(reason, '')
		FROM date_blocks
		WHERE tenant_id = $1 AND block_date = $2
	`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.DateBlock
	for rows.Next() {
		var (
			b          availability.DateBlock
			start, end *string
		)
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ProfessionalID, &b.Date, &start, &end, &b.Reason); err != nil {
			return nil, err
		}
		if start != nil && end != nil {
			iv, err := parseInterval(*start, *end)
			if err != nil {
				return nil, err
			}
			b.Start, b.End = &iv.Start, &iv.End
		}
		out = append(out, b)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
