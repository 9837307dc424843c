package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOfDay is a wall-clock time in minutes after midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS" (seconds are dropped).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	n, _ := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	if n < 2 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// On places t on date's calendar day in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(t)/60, int(t)%60, 0, 0, date.Location())
}

type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

type DayHours struct {
	Open      bool
	Intervals []Interval // morning and afternoon shifts
}

type WeeklyHours map[time.Weekday]DayHours

// ProfessionalSchedule overrides the shop's hours when Enabled.
type ProfessionalSchedule struct {
	Enabled bool
	Days    WeeklyHours
}

type BusinessHours struct {
	Days WeeklyHours
}

// FallbackHours apply when neither the professional nor the shop configured the weekday.
var FallbackHours = DayHours{
	Open: true,
	Intervals: []Interval{
		{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(12, 0)},
		{Start: NewTimeOfDay(14, 0), End: NewTimeOfDay(19, 0)},
	},
}

// DateBlock closes a whole day, or part of one, for the shop or a single professional.
type DateBlock struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ProfessionalID *uuid.UUID // nil blocks every professional
	Date           time.Time  // only the calendar day is used
	Start          *TimeOfDay // nil Start or End means the full day
	End            *TimeOfDay
	Reason         string
}

func (b DateBlock) FullDay() bool {
	return b.Start == nil || b.End == nil
}

func (b DateBlock) appliesTo(professionalID uuid.UUID, date time.Time) bool {
	if b.ProfessionalID != nil && *b.ProfessionalID != professionalID {
		return false
	}
	return sameDay(b.Date, date)
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// DayBounds returns [00:00, next 00:00) of date's calendar day in loc.
func DayBounds(date time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := date.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
