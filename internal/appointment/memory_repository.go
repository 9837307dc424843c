package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. Each method runs under one
// mutex, which gives the same all-or-nothing conditional updates the Postgres
// repository gets from a single UPDATE ... WHERE status = ... statement.
// Used by STORAGE_DRIVER=memory and by tests.
type MemoryRepository struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]*Appointment
	events []EventLog
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows: make(map[uuid.UUID]*Appointment),
		now:  time.Now,
	}
}

// WithClock makes created_at/updated_at follow the given clock.
func (r *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	r.now = now
	return r
}

func clone(a *Appointment) *Appointment {
	c := *a
	if a.HoldExpiresAt != nil {
		t := *a.HoldExpiresAt
		c.HoldExpiresAt = &t
	}
	if a.PaymentReference != nil {
		s := *a.PaymentReference
		c.PaymentReference = &s
	}
	if a.PaymentQR != nil {
		s := *a.PaymentQR
		c.PaymentQR = &s
	}
	return &c
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return clone(a), nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, f ListFilter) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.rows {
		if a.TenantID != f.TenantID {
			continue
		}
		if f.ProfessionalID != nil && a.ProfessionalID != *f.ProfessionalID {
			continue
		}
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.StartsAt.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.StartsAt.Before(*f.To) {
			continue
		}
		out = append(out, *clone(a))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func containsStatus(list []AppointmentStatus, s AppointmentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) FindHold(_ context.Context, key HoldKey) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found *Appointment
	for _, a := range r.rows {
		if a.Status != StatusPendingPayment ||
			a.TenantID != key.TenantID ||
			a.ProfessionalID != key.ProfessionalID ||
			!a.StartsAt.Equal(key.StartsAt) ||
			a.CustomerPhone != key.CustomerPhone {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return nil, ErrAppointmentNotFound
	}
	return clone(found), nil
}

func (r *MemoryRepository) Create(_ context.Context, a *Appointment) (*Appointment, error) {
	if err := a.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row := clone(a)
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if _, dup := r.rows[row.ID]; dup {
		return nil, fmt.Errorf("appointment %s already exists", row.ID)
	}
	if row.Reserves() {
		for _, other := range r.rows {
			if other.TenantID == row.TenantID && other.ProfessionalID == row.ProfessionalID &&
				other.Reserves() && other.Overlaps(row.StartsAt, row.EndsAt().Sub(row.StartsAt)) {
				return nil, fmt.Errorf("%w: overlaps appointment %s", ErrSlotTaken, other.ID)
			}
		}
	}
	now := r.now()
	row.Refunded = false
	row.CreatedAt = now
	row.UpdatedAt = now
	r.rows[row.ID] = row
	return clone(row), nil
}

// update applies mutate when guard accepts the current row.
func (r *MemoryRepository) update(id uuid.UUID, guard func(*Appointment) bool, mutate func(*Appointment)) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !guard(a) {
		return nil, ErrRaceLost
	}
	mutate(a)
	a.UpdatedAt = r.now()
	return clone(a), nil
}

func isHold(a *Appointment) bool {
	return a.Status == StatusPendingPayment
}

func (r *MemoryRepository) ConfirmHold(_ context.Context, id uuid.UUID, paymentRef string, now time.Time) (*Appointment, error) {
	live := func(a *Appointment) bool { return isHold(a) && !a.HoldExpired(now) }
	return r.update(id, live, func(a *Appointment) {
		a.Status = StatusConfirmed
		a.HoldExpiresAt = nil
		if a.PaymentReference == nil && paymentRef != "" {
			ref := paymentRef
			a.PaymentReference = &ref
		}
	})
}

func (r *MemoryRepository) CancelHold(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return r.update(id, isHold, func(a *Appointment) {
		a.Status = StatusCancelled
		a.HoldExpiresAt = nil
	})
}

func (r *MemoryRepository) MarkRefunded(_ context.Context, id uuid.UUID) (*Appointment, error) {
	return r.update(id,
		func(a *Appointment) bool { return a.Status == StatusConfirmed && !a.Refunded },
		func(a *Appointment) {
			a.Status = StatusCancelled
			a.Refunded = true
		})
}

func (r *MemoryRepository) FindExpiredHolds(_ context.Context, now time.Time, limit int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.rows {
		if a.Status == StatusPendingPayment && a.HoldExpiresAt != nil && a.HoldExpiresAt.Before(now) {
			out = append(out, *clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].HoldExpiresAt.Before(*out[j].HoldExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns the audit entries recorded so far, oldest first.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
