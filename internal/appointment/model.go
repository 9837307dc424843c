package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending        AppointmentStatus = "pending"
	StatusPendingPayment AppointmentStatus = "pending_payment"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusCompleted      AppointmentStatus = "completed"
	StatusCancelled      AppointmentStatus = "cancelled"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Appointment is the booking row. While Status is pending_payment it is a hold:
// HoldExpiresAt is set and PaymentReference names the gateway intent.
type Appointment struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ProfessionalID uuid.UUID
	ServiceID      uuid.UUID

	StartsAt        time.Time
	DurationMinutes int

	CustomerName  string
	CustomerPhone string

	Status           AppointmentStatus
	HoldExpiresAt    *time.Time
	PaymentReference *string
	PaymentQR        *string
	TotalCents       int64
	PrepaidCents     int64
	Refunded         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// HoldExpired reports whether a hold's window has closed at now.
// Holds stay valid through the exact expiry instant.
func (a *Appointment) HoldExpired(now time.Time) bool {
	return a.Status == StatusPendingPayment && a.HoldExpiresAt != nil && now.After(*a.HoldExpiresAt)
}

// Occupies reports whether the appointment blocks its time range at now.
// An expired hold stops occupying immediately, before any sweep cancels it.
func (a *Appointment) Occupies(now time.Time) bool {
	switch a.Status {
	case StatusPending, StatusConfirmed:
		return true
	case StatusPendingPayment:
		return a.HoldExpiresAt != nil && !now.After(*a.HoldExpiresAt)
	}
	return false
}

// Reserves reports whether storage counts the row against overlaps. Unlike
// Occupies it ignores hold expiry, which only the clock knows.
func (a *Appointment) Reserves() bool {
	switch a.Status {
	case StatusPending, StatusPendingPayment, StatusConfirmed:
		return true
	}
	return false
}

// Overlaps reports whether [start, start+d) intersects the appointment's range.
func (a *Appointment) Overlaps(start time.Time, d time.Duration) bool {
	return start.Before(a.EndsAt()) && a.StartsAt.Before(start.Add(d))
}

// CheckInvariants verifies the hold fields agree with the status.
func (a *Appointment) CheckInvariants() error {
	if !a.Status.Valid() {
		return fmt.Errorf("unknown status %q", a.Status)
	}
	hasExpiry := a.HoldExpiresAt != nil
	if hasExpiry != (a.Status == StatusPendingPayment) {
		return fmt.Errorf("hold_expires_at set=%t with status %s", hasExpiry, a.Status)
	}
	if a.Refunded && a.Status != StatusCancelled {
		return fmt.Errorf("refunded appointment in status %s", a.Status)
	}
	return nil
}

// HoldKey identifies a customer's hold attempt on one slot. A retry with the
// same key reuses the live hold instead of creating another.
type HoldKey struct {
	TenantID       uuid.UUID
	ProfessionalID uuid.UUID
	StartsAt       time.Time
	CustomerPhone  string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// ListFilter selects appointments for admin listings and day views.
type ListFilter struct {
	TenantID       uuid.UUID
	ProfessionalID *uuid.UUID
	Statuses       []AppointmentStatus
	From           *time.Time
	To             *time.Time
	Limit          int
	Offset         int
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Normalize clamps paging to the allowed range.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
