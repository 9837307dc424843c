package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment/paymenttest"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation"
	rt "github.com/balbiss/remix-of-cut-style-hub-sub000/internal/reservation/reservationtest"
)

func slotFree(t *testing.T, h *rt.Harness, at time.Time) bool {
	t.Helper()
	slots, err := h.Availability.Slots(context.Background(), h.TenantID, h.ProfessionalID, at, 30)
	require.NoError(t, err)
	for _, s := range slots {
		if s.Equal(at) {
			return true
		}
	}
	return false
}

func eventTypes(h *rt.Harness) []string {
	var out []string
	for _, ev := range h.Repo.Events() {
		out = append(out, ev.EventType)
	}
	return out
}

func TestBeginReservation_HappyPath(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	assert.Equal(t, "INT1", hold.PaymentReference)
	assert.Equal(t, "00020126pix-INT1", hold.QRPayload)
	assert.Equal(t, rt.Start.Add(15*time.Minute), hold.ExpiresAt)
	assert.Equal(t, int64(5000), hold.PrepaidCents)
	assert.False(t, hold.Reused)

	require.Len(t, h.Gateway.Created, 1)
	assert.Equal(t, int64(5000), h.Gateway.Created[0].AmountCents)
	assert.Equal(t, hold.HoldID.String(), h.Gateway.Created[0].IdempotencyKey)
	assert.False(t, slotFree(t, h, rt.Slot), "a live hold occupies its slot")

	h.Gateway.Script("INT1", payment.StatusPending, payment.StatusApproved)

	res, err := h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StillPending, res)

	h.Clock.Advance(5 * time.Second)
	res, err = h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Confirmed, res)

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, a.Status)
	assert.Nil(t, a.HoldExpiresAt)
	require.NotNil(t, a.PaymentReference)
	assert.Equal(t, "INT1", *a.PaymentReference)
	assert.NoError(t, a.CheckInvariants())

	assert.Len(t, h.Notifier.SentTo(rt.CustomerPhone), 1)
	assert.Len(t, h.Notifier.SentTo(rt.ProfessionalPhone), 1)
	assert.Len(t, h.Notifier.Sent(), 2)
	assert.Equal(t, []string{events.HoldCreated, events.HoldConfirmed}, eventTypes(h))

	res, err = h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Confirmed, res, "polling a settled hold repeats the outcome")
	assert.Len(t, h.Notifier.Sent(), 2, "no second confirmation")
}

func TestBeginReservation_ReusesLiveHold(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	first, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	h.Clock.Advance(15 * time.Minute)
	second, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	assert.True(t, second.Reused)
	assert.Equal(t, first.HoldID, second.HoldID)
	assert.Equal(t, first.PaymentReference, second.PaymentReference)
	assert.Equal(t, first.QRPayload, second.QRPayload)
	assert.Equal(t, first.ExpiresAt, second.ExpiresAt)
	assert.Equal(t, 1, h.Gateway.CreatedCount(), "no second payment intent")
}

func TestBeginReservation_ExpiredHoldIsReplaced(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	first, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	h.Clock.Advance(16 * time.Minute)
	second, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	assert.False(t, second.Reused)
	assert.NotEqual(t, first.HoldID, second.HoldID)
	assert.Equal(t, "INT2", second.PaymentReference)

	old, err := h.Repo.GetAppointmentByID(ctx, first.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, old.Status)
	require.Len(t, h.Notifier.SentTo(rt.CustomerPhone), 1)
	assert.Contains(t, h.Notifier.SentTo(rt.CustomerPhone)[0].Text, "expirou")
}

func TestBeginReservation_HeldSlotUnavailableUntilExpiry(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	_, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer("11933330000"))
	require.ErrorIs(t, err, reservation.ErrSlotUnavailable)

	h.Clock.Advance(15 * time.Minute)
	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer("11933330000"))
	require.ErrorIs(t, err, reservation.ErrSlotUnavailable, "hold is valid through its expiry instant")

	h.Clock.Advance(time.Second)
	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer("11933330000"))
	require.NoError(t, err, "an expired hold frees the slot before any sweep")
	assert.Equal(t, "INT2", hold.PaymentReference)
}

func TestBeginReservation_ConcurrentCustomersOneHold(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	const customers = 10
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		holds       int
		unavailable int
	)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(fmt.Sprintf("119000000%02d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				holds++
			case errors.Is(err, reservation.ErrSlotUnavailable):
				unavailable++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, holds)
	assert.Equal(t, customers-1, unavailable)
	assert.Equal(t, 1, h.Gateway.CreatedCount())

	appts, err := h.Repo.ListAppointments(ctx, appointment.ListFilter{TenantID: h.TenantID})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestBeginReservation_GatewayFailureCreatesNothing(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()
	boom := errors.New("connection refused")
	h.Gateway.CreateErr = boom

	_, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.Error(t, err)

	var gErr *payment.GatewayError
	require.True(t, errors.As(err, &gErr))
	assert.Equal(t, "create_intent", gErr.Op)
	assert.ErrorIs(t, err, boom)

	appts, err := h.Repo.ListAppointments(ctx, appointment.ListFilter{TenantID: h.TenantID})
	require.NoError(t, err)
	assert.Empty(t, appts)
	assert.True(t, slotFree(t, h, rt.Slot))

	h.Gateway.CreateErr = nil
	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err, "retry after a gateway failure succeeds")
}

func TestBeginReservation_Validation(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	_, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Start.Add(-time.Hour)), rt.Customer(rt.CustomerPhone))
	assert.ErrorIs(t, err, reservation.ErrSlotInPast)

	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), reservation.Customer{Name: "Ana"})
	assert.ErrorIs(t, err, reservation.ErrInvalidRequest)

	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot.Add(15*time.Minute)), rt.Customer(rt.CustomerPhone))
	assert.ErrorIs(t, err, reservation.ErrSlotUnavailable, "off-grid start")

	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(time.Date(2024, 6, 2, 12, 30, 0, 0, time.UTC)), rt.Customer(rt.CustomerPhone))
	assert.ErrorIs(t, err, reservation.ErrSlotUnavailable, "12:30 is lunch")

	req := h.SlotRequest(rt.Slot)
	req.ServiceID = uuid.New()
	_, err = h.Coordinator.BeginReservation(ctx, req, rt.Customer(rt.CustomerPhone))
	assert.Error(t, err)

	assert.Zero(t, h.Gateway.CreatedCount())
}

func TestBeginReservation_DateBlock(t *testing.T) {
	h := rt.New(t)
	start, end := availability.NewTimeOfDay(14, 0), availability.NewTimeOfDay(15, 0)
	h.Catalog.AddBlock(availability.DateBlock{
		TenantID: h.TenantID,
		Date:     rt.Slot,
		Start:    &start,
		End:      &end,
		Reason:   "reunião",
	})

	_, err := h.Coordinator.BeginReservation(context.Background(), h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	assert.ErrorIs(t, err, reservation.ErrSlotUnavailable)
}

func TestPollStatus_RejectedKeepsHold(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script("INT1", payment.StatusRejected)

	res, err := h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Rejected, res)

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPendingPayment, a.Status)
	assert.False(t, slotFree(t, h, rt.Slot))
	assert.Empty(t, h.Notifier.Attempts())
}

func TestPollStatus_InProcessKeepsPolling(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script("INT1", payment.StatusInProcess)

	res, err := h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StillPending, res)
}

func TestPollStatus_ExpiredHold(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script("INT1", payment.StatusApproved)

	h.Clock.Advance(15*time.Minute + time.Second)
	res, err := h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Expired, res)
	assert.Zero(t, h.Gateway.Polls["INT1"], "expiry is checked before the gateway")

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, a.Status)
	assert.Len(t, h.Notifier.SentTo(rt.CustomerPhone), 1)

	res, err = h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Expired, res)
	assert.Len(t, h.Notifier.Sent(), 1, "expiry message sent once")
}

func TestPollStatus_GatewayError(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.StatusErr = errors.New("timeout")

	_, err = h.Coordinator.PollStatus(ctx, hold.HoldID)
	var gErr *payment.GatewayError
	require.True(t, errors.As(err, &gErr))

	_, err = h.Coordinator.PollStatus(ctx, uuid.New())
	assert.ErrorIs(t, err, reservation.ErrHoldNotFound)
}

func TestAwaitOutcome(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script("INT1", payment.StatusPending, payment.StatusInProcess, payment.StatusApproved)

	res, err := h.Coordinator.AwaitOutcome(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Confirmed, res)
	assert.Equal(t, 3, h.Gateway.Polls["INT1"])
}

func TestAwaitOutcome_StopsOnCancel(t *testing.T) {
	h := rt.New(t)

	hold, err := h.Coordinator.BeginReservation(context.Background(), h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := h.Coordinator.AwaitOutcome(ctx, hold.HoldID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, reservation.StillPending, res)

	a, err := h.Repo.GetAppointmentByID(context.Background(), hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPendingPayment, a.Status, "closing the dialog keeps the hold")
}

func TestCancelReservation(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	require.NoError(t, h.Coordinator.CancelReservation(ctx, hold.HoldID))

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, a.Status)
	assert.Empty(t, h.Notifier.Attempts(), "cancel is silent")
	assert.True(t, slotFree(t, h, rt.Slot))

	err = h.Coordinator.CancelReservation(ctx, hold.HoldID)
	assert.ErrorIs(t, err, appointment.ErrInvalidState)

	err = h.Coordinator.CancelReservation(ctx, uuid.New())
	assert.ErrorIs(t, err, reservation.ErrHoldNotFound)
}

func TestCancelReservation_ConfirmedIsInvalid(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hold, err := h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script("INT1", payment.StatusApproved)
	res, err := h.Coordinator.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	require.Equal(t, reservation.Confirmed, res)

	err = h.Coordinator.CancelReservation(ctx, hold.HoldID)
	assert.ErrorIs(t, err, appointment.ErrInvalidState)
}

func TestCreateDirect(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	a, err := h.Coordinator.CreateDirect(ctx, reservation.DirectRequest{
		Slot:     h.SlotRequest(rt.Slot),
		Customer: rt.Customer(rt.CustomerPhone),
		Status:   appointment.StatusPending,
	})
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, a.Status)
	assert.Nil(t, a.HoldExpiresAt)
	assert.Equal(t, int64(rt.ServicePriceCents), a.TotalCents)
	assert.Zero(t, h.Gateway.CreatedCount())

	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer("11933330000"))
	assert.ErrorIs(t, err, reservation.ErrSlotUnavailable)

	_, err = h.Coordinator.CreateDirect(ctx, reservation.DirectRequest{
		Slot:     h.SlotRequest(rt.Slot),
		Customer: rt.Customer("11933330000"),
		Status:   appointment.StatusConfirmed,
	})
	assert.ErrorIs(t, err, reservation.ErrSlotUnavailable)

	_, err = h.Coordinator.CreateDirect(ctx, reservation.DirectRequest{
		Slot:     h.SlotRequest(rt.Slot.Add(time.Hour)),
		Customer: rt.Customer(rt.CustomerPhone),
		Status:   appointment.StatusPendingPayment,
	})
	assert.ErrorIs(t, err, reservation.ErrInvalidRequest)
}

func TestListAppointments_ClampsPaging(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := h.Coordinator.CreateDirect(ctx, reservation.DirectRequest{
			Slot:     h.SlotRequest(rt.Slot.Add(time.Duration(i) * 30 * time.Minute)),
			Customer: rt.Customer(rt.CustomerPhone),
			Status:   appointment.StatusConfirmed,
		})
		require.NoError(t, err)
	}

	appts, err := h.Coordinator.ListAppointments(ctx, appointment.ListFilter{TenantID: h.TenantID, Offset: -1})
	require.NoError(t, err)
	require.Len(t, appts, 3)
	assert.True(t, appts[0].StartsAt.Equal(rt.Slot))

	appts, err = h.Coordinator.ListAppointments(ctx, appointment.ListFilter{TenantID: h.TenantID, Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

// slowGateway stretches intent creation so concurrent reservations overlap
// while both are inside the slot lock.
type slowGateway struct {
	*paymenttest.Gateway
	delay time.Duration
}

func (g *slowGateway) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	time.Sleep(g.delay)
	return g.Gateway.CreateIntent(ctx, req)
}

// statusHookGateway runs onStatus once, before the first status answer.
type statusHookGateway struct {
	*paymenttest.Gateway
	once     sync.Once
	onStatus func()
}

func (g *statusHookGateway) GetStatus(ctx context.Context, intentID string) (payment.Status, error) {
	g.once.Do(g.onStatus)
	return g.Gateway.GetStatus(ctx, intentID)
}

func occupying(t *testing.T, h *rt.Harness) []appointment.Appointment {
	t.Helper()
	appts, err := h.Repo.ListAppointments(context.Background(), appointment.ListFilter{TenantID: h.TenantID})
	require.NoError(t, err)
	var out []appointment.Appointment
	for _, a := range appts {
		if a.Occupies(h.Clock.Now()) {
			out = append(out, a)
		}
	}
	return out
}

func TestBeginReservation_OverlappingRangesOneHold(t *testing.T) {
	for round := 0; round < 10; round++ {
		h := rt.New(t)
		ctx := context.Background()

		longService := uuid.New()
		h.Catalog.PutService(catalog.Service{
			ID:              longService,
			TenantID:        h.TenantID,
			Name:            "Corte e barba",
			DurationMinutes: 60,
			PriceCents:      15000,
		})
		deps := h.Deps
		deps.Gateway = &slowGateway{Gateway: h.Gateway, delay: 10 * time.Millisecond}
		c := reservation.NewCoordinator(deps, h.Options).WithClock(h.Clock.Now)

		long := h.SlotRequest(rt.Slot)
		long.ServiceID = longService
		short := h.SlotRequest(rt.Slot.Add(30 * time.Minute))

		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		for i, req := range []reservation.SlotRequest{long, short} {
			wg.Add(1)
			go func(i int, req reservation.SlotRequest) {
				defer wg.Done()
				_, errs[i] = c.BeginReservation(ctx, req, rt.Customer(fmt.Sprintf("1190000000%d", i)))
			}(i, req)
		}
		wg.Wait()

		var holds int
		for _, err := range errs {
			if err == nil {
				holds++
				continue
			}
			require.ErrorIs(t, err, reservation.ErrSlotUnavailable)
		}
		assert.Equal(t, 1, holds, "14:00-15:00 and 14:30-15:00 overlap")
		assert.Len(t, occupying(t, h), 1)
		assert.Equal(t, 1, h.Gateway.CreatedCount())
	}
}

func TestBeginReservation_LapsedOverlappingHoldIsReleased(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	longService := uuid.New()
	h.Catalog.PutService(catalog.Service{
		ID:              longService,
		TenantID:        h.TenantID,
		Name:            "Corte e barba",
		DurationMinutes: 60,
		PriceCents:      15000,
	})
	long := h.SlotRequest(rt.Slot)
	long.ServiceID = longService

	first, err := h.Coordinator.BeginReservation(ctx, long, rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)

	h.Clock.Advance(16 * time.Minute)
	_, err = h.Coordinator.BeginReservation(ctx, h.SlotRequest(rt.Slot.Add(30*time.Minute)), rt.Customer("11933330000"))
	require.NoError(t, err)

	old, err := h.Repo.GetAppointmentByID(ctx, first.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, old.Status)
	require.Len(t, h.Notifier.SentTo(rt.CustomerPhone), 1)
	assert.Contains(t, h.Notifier.SentTo(rt.CustomerPhone)[0].Text, "expirou")
	assert.Len(t, occupying(t, h), 1)
}

func TestPollStatus_HoldLapsesWhileGatewayAnswers(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hook := &statusHookGateway{Gateway: h.Gateway}
	deps := h.Deps
	deps.Gateway = hook
	c := reservation.NewCoordinator(deps, h.Options).WithClock(h.Clock.Now)

	hold, err := c.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script(hold.PaymentReference, payment.StatusApproved)

	var (
		rival    *reservation.HoldResult
		rivalErr error
	)
	hook.onStatus = func() {
		h.Clock.Advance(2 * time.Second)
		rival, rivalErr = c.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer("11933330000"))
	}

	h.Clock.Advance(15*time.Minute - time.Second)
	res, err := c.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	require.NoError(t, rivalErr)

	assert.Equal(t, reservation.Expired, res, "approval after the hold lapsed does not confirm")

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, a.Status)

	occ := occupying(t, h)
	require.Len(t, occ, 1)
	assert.Equal(t, rival.HoldID, occ[0].ID)
	assert.Empty(t, h.Notifier.SentTo(rt.ProfessionalPhone), "no confirmation went out")
}

func TestPollStatus_LapsedDuringGatewayCallIsReleased(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	hook := &statusHookGateway{Gateway: h.Gateway, onStatus: func() {}}
	deps := h.Deps
	deps.Gateway = hook
	c := reservation.NewCoordinator(deps, h.Options).WithClock(h.Clock.Now)

	hold, err := c.BeginReservation(ctx, h.SlotRequest(rt.Slot), rt.Customer(rt.CustomerPhone))
	require.NoError(t, err)
	h.Gateway.Script(hold.PaymentReference, payment.StatusApproved)
	hook.onStatus = func() { h.Clock.Advance(2 * time.Second) }

	h.Clock.Advance(15*time.Minute - time.Second)
	res, err := c.PollStatus(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Expired, res)

	a, err := h.Repo.GetAppointmentByID(ctx, hold.HoldID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, a.Status)
	require.Len(t, h.Notifier.SentTo(rt.CustomerPhone), 1)
	assert.Contains(t, h.Notifier.SentTo(rt.CustomerPhone)[0].Text, "expirou")
	assert.True(t, slotFree(t, h, rt.Slot))
}

func TestBeginReservation_NothingToPrepay(t *testing.T) {
	h := rt.New(t)
	ctx := context.Background()

	free := uuid.New()
	h.Catalog.PutService(catalog.Service{
		ID:              free,
		TenantID:        h.TenantID,
		Name:            "Retoque",
		DurationMinutes: 30,
		PriceCents:      1,
	})
	req := h.SlotRequest(rt.Slot)
	req.ServiceID = free

	_, err := h.Coordinator.BeginReservation(ctx, req, rt.Customer(rt.CustomerPhone))
	assert.ErrorIs(t, err, reservation.ErrInvalidRequest)
	assert.Zero(t, h.Gateway.CreatedCount())

	a, err := h.Coordinator.CreateDirect(ctx, reservation.DirectRequest{
		Slot:     req,
		Customer: rt.Customer(rt.CustomerPhone),
		Status:   appointment.StatusConfirmed,
	})
	require.NoError(t, err, "direct booking still works")
	assert.Equal(t, appointment.StatusConfirmed, a.Status)
}
