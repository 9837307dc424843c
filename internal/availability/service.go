package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
)

// ScheduleStore reads the hours and closures that shape a day.
type ScheduleStore interface {
	ProfessionalSchedule(ctx context.Context, tenantID, professionalID uuid.UUID) (ProfessionalSchedule, error)
	BusinessHours(ctx context.Context, tenantID uuid.UUID) (BusinessHours, error)
	DateBlocks(ctx context.Context, tenantID uuid.UUID, day time.Time) ([]DateBlock, error)
}

type AppointmentLister interface {
	ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error)
}

// occupyingStatuses are the rows that may still hold a slot; holds are
// filtered by expiry at read time.
var occupyingStatuses = []appointment.AppointmentStatus{
	appointment.StatusPending,
	appointment.StatusPendingPayment,
	appointment.StatusConfirmed,
}

type Service struct {
	schedules ScheduleStore
	appts     AppointmentLister
	calc      Calculator
	loc       *time.Location
	now       func() time.Time
}

func NewService(schedules ScheduleStore, appts AppointmentLister, granularity time.Duration, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		schedules: schedules,
		appts:     appts,
		calc:      NewCalculator(granularity),
		loc:       loc,
		now:       time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// Granularity is the step between candidate start times.
func (s *Service) Granularity() time.Duration {
	return s.calc.Granularity
}

// Slots returns the bookable start times of one professional on day.
func (s *Service) Slots(ctx context.Context, tenantID, professionalID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("service duration must be positive, got %d", durationMinutes)
	}

	dayStart, _ := DayBounds(day, s.loc)

	schedule, err := s.schedules.ProfessionalSchedule(ctx, tenantID, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load professional schedule: %w", err)
	}
	hours, err := s.schedules.BusinessHours(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("load business hours: %w", err)
	}
	blocks, err := s.schedules.DateBlocks(ctx, tenantID, dayStart)
	if err != nil {
		return nil, fmt.Errorf("load date blocks: %w", err)
	}
	appts, err := s.DayAppointments(ctx, tenantID, professionalID, dayStart)
	if err != nil {
		return nil, err
	}

	times := s.calc.Compute(Request{
		Date:            dayStart,
		Now:             s.now(),
		ProfessionalID:  professionalID,
		Schedule:        schedule,
		Business:        hours,
		Blocks:          blocks,
		Appointments:    appts,
		ServiceDuration: time.Duration(durationMinutes) * time.Minute,
	})

	out := make([]time.Time, len(times))
	for i, t := range times {
		out[i] = t.On(dayStart)
	}
	return out, nil
}

// DayAppointments lists the rows that may occupy the professional's day.
// A long appointment starting the previous evening is not considered.
func (s *Service) DayAppointments(ctx context.Context, tenantID, professionalID uuid.UUID, day time.Time) ([]appointment.Appointment, error) {
	dayStart, dayEnd := DayBounds(day, s.loc)
	appts, err := s.appts.ListAppointments(ctx, appointment.ListFilter{
		TenantID:       tenantID,
		ProfessionalID: &professionalID,
		Statuses:       occupyingStatuses,
		From:           &dayStart,
		To:             &dayEnd,
	})
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return appts, nil
}
