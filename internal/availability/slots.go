package availability

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
)

const DefaultGranularity = 30 * time.Minute

type Calculator struct {
	Granularity time.Duration
}

func NewCalculator(granularity time.Duration) Calculator {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return Calculator{Granularity: granularity}
}

// Request carries everything one day's slot computation reads.
// Date's location is the shop's; Now decides hold expiry and past days.
type Request struct {
	Date            time.Time
	Now             time.Time
	ProfessionalID  uuid.UUID
	Schedule        ProfessionalSchedule
	Business        BusinessHours
	Blocks          []DateBlock
	Appointments    []appointment.Appointment
	ServiceDuration time.Duration
}

// Compute lists bookable start times for the day, ascending.
// It reads only its arguments, so equal requests give equal answers.
func (c Calculator) Compute(req Request) []TimeOfDay {
	if req.ServiceDuration <= 0 {
		return nil
	}

	today := req.Now.In(req.Date.Location())
	if dayBefore(req.Date, today) {
		return nil
	}

	hours := resolveHours(req.Date.Weekday(), req.Schedule, req.Business)
	if !hours.Open {
		return nil
	}

	step := TimeOfDay(c.Granularity / time.Minute)
	if step <= 0 {
		step = TimeOfDay(DefaultGranularity / time.Minute)
	}
	duration := TimeOfDay(req.ServiceDuration / time.Minute)

	seen := make(map[TimeOfDay]struct{})
	var slots []TimeOfDay
	for _, iv := range hours.Intervals {
		for t := iv.Start; t+duration <= iv.End; t += step {
			if _, dup := seen[t]; dup {
				continue
			}
			if blocked(t, duration, req) || occupied(t.On(req.Date), req) {
				continue
			}
			seen[t] = struct{}{}
			slots = append(slots, t)
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// resolveHours picks the professional's hours, then the shop's, then the fallback.
func resolveHours(day time.Weekday, schedule ProfessionalSchedule, business BusinessHours) DayHours {
	if schedule.Enabled {
		if h, ok := schedule.Days[day]; ok {
			return h
		}
	}
	if h, ok := business.Days[day]; ok {
		return h
	}
	return FallbackHours
}

func blocked(t, duration TimeOfDay, req Request) bool {
	for _, b := range req.Blocks {
		if !b.appliesTo(req.ProfessionalID, req.Date) {
			continue
		}
		if b.FullDay() {
			return true
		}
		if t < *b.End && *b.Start < t+duration {
			return true
		}
	}
	return false
}

func occupied(start time.Time, req Request) bool {
	for i := range req.Appointments {
		a := &req.Appointments[i]
		if req.ProfessionalID != uuid.Nil && a.ProfessionalID != req.ProfessionalID {
			continue
		}
		if a.Occupies(req.Now) && a.Overlaps(start, req.ServiceDuration) {
			return true
		}
	}
	return false
}

// Conflicts returns the first appointment occupying [start, start+d) at now.
func Conflicts(appts []appointment.Appointment, start time.Time, d time.Duration, now time.Time) *appointment.Appointment {
	for i := range appts {
		if appts[i].Occupies(now) && appts[i].Overlaps(start, d) {
			return &appts[i]
		}
	}
	return nil
}

func dayBefore(date, today time.Time) bool {
	y1, m1, d1 := date.Date()
	y2, m2, d2 := today.Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return a.Before(b)
}
