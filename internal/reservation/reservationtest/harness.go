// Package reservationtest wires a Coordinator to in-memory collaborators and
// a controllable clock.
package reservationtest

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify/notifytest"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment/paymenttest"
	redisclient "github.com/balbiss/remix-of-cut-style-hub-sub000/internal/redis"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
)

const (
	CustomerPhone     = "11922220000"
	ProfessionalPhone = "11911110000"
	ServicePriceCents = 10000
)

// Start is the reference instant: one hour before the 14:00 slot on
// Saturday 2024-06-01, UTC.
var Start = time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC)

// Slot is the 14:00 start used by most scenarios.
var Slot = time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)

type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type Harness struct {
	Clock        *Clock
	Repo         *appointment.MemoryRepository
	Catalog      *catalog.MemoryStore
	Availability *availability.Service
	Gateway      *paymenttest.Gateway
	Notifier     *notifytest.Notifier
	Deps         reservation.Dependencies
	Options      reservation.Options
	Coordinator  *reservation.Coordinator
	Refunds      *reservation.RefundCoordinator
	Logger       *zap.Logger

	TenantID       uuid.UUID
	ProfessionalID uuid.UUID
	ServiceID      uuid.UUID
}

func New(t testing.TB) *Harness {
	t.Helper()

	h := &Harness{
		Clock:          &Clock{t: Start},
		Catalog:        catalog.NewMemoryStore(),
		Gateway:        paymenttest.New(),
		Notifier:       notifytest.New(),
		Logger:         zaptest.NewLogger(t),
		TenantID:       uuid.New(),
		ProfessionalID: uuid.New(),
		ServiceID:      uuid.New(),
	}
	h.Repo = appointment.NewMemoryRepository().WithClock(h.Clock.Now)

	h.Catalog.PutProfessional(catalog.Professional{
		ID:       h.ProfessionalID,
		TenantID: h.TenantID,
		Name:     "Beto",
		Phone:    ProfessionalPhone,
	})
	h.Catalog.PutService(catalog.Service{
		ID:              h.ServiceID,
		TenantID:        h.TenantID,
		Name:            "Corte",
		DurationMinutes: 30,
		PriceCents:      ServicePriceCents,
	})

	h.Availability = availability.NewService(h.Catalog, h.Repo, 30*time.Minute, time.UTC).WithClock(h.Clock.Now)
	h.Options = reservation.Options{
		HoldDuration:  15 * time.Minute,
		PollInterval:  time.Millisecond,
		PrepayPercent: 50,
		Location:      time.UTC,
	}
	h.Deps = reservation.Dependencies{
		Repo:         h.Repo,
		Catalog:      h.Catalog,
		Availability: h.Availability,
		Locker:       redisclient.NewLocalSlotLocker(time.Second),
		Gateway:      h.Gateway,
		Dispatcher:   notify.NewDispatcher(h.Notifier, h.Logger, nil),
		Journal:      events.NewJournal(h.Repo, nil, h.Logger),
		Logger:       h.Logger,
	}
	h.Coordinator = reservation.NewCoordinator(h.Deps, h.Options).WithClock(h.Clock.Now)
	h.Refunds = reservation.NewRefundCoordinator(h.Deps, h.Options)
	return h
}

func (h *Harness) SlotRequest(startsAt time.Time) reservation.SlotRequest {
	return reservation.SlotRequest{
		TenantID:       h.TenantID,
		ProfessionalID: h.ProfessionalID,
		ServiceID:      h.ServiceID,
		StartsAt:       startsAt,
	}
}

func Customer(phone string) reservation.Customer {
	return reservation.Customer{Name: "Ana", Phone: phone}
}
