package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/availability"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/catalog"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/config"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/metrics"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
	redisclient "github.com/balbiss/remix-of-cut-style-hub-sub000/internal/redis"
)

var (
	ErrSlotUnavailable = errors.New("slot is not available")
	ErrSlotInPast      = errors.New("slot starts in the past")
	ErrSlotBeingBooked = errors.New("slot is currently being booked, please retry")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrInvalidRequest  = errors.New("invalid reservation request")
)

// PollResult is what one payment status check tells the customer.
type PollResult string

const (
	StillPending PollResult = "still_pending"
	Confirmed    PollResult = "confirmed"
	Expired      PollResult = "expired"
	Rejected     PollResult = "rejected"
)

// Options are the timing and pricing policy of holds.
type Options struct {
	HoldDuration  time.Duration
	PollInterval  time.Duration
	PrepayPercent int64
	Location      *time.Location
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		HoldDuration:  cfg.HoldDuration,
		PollInterval:  cfg.PollInterval,
		PrepayPercent: cfg.PrepayPercent,
		Location:      cfg.Location(),
	}
}

func (o Options) withDefaults() Options {
	if o.HoldDuration <= 0 {
		o.HoldDuration = 15 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PrepayPercent <= 0 || o.PrepayPercent > 100 {
		o.PrepayPercent = 50
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type SlotRequest struct {
	TenantID       uuid.UUID
	ProfessionalID uuid.UUID
	ServiceID      uuid.UUID
	StartsAt       time.Time
}

type Customer struct {
	Name  string
	Phone string
}

type HoldResult struct {
	HoldID           uuid.UUID
	QRPayload        string
	ExpiresAt        time.Time
	PaymentReference string
	PrepaidCents     int64
	Reused           bool
}

// Dependencies are the collaborators a Coordinator orchestrates.
type Dependencies struct {
	Repo         appointment.Repository
	Catalog      catalog.Store
	Availability *availability.Service
	Locker       redisclient.Locker
	Gateway      payment.Gateway
	Dispatcher   *notify.Dispatcher
	Journal      *events.Journal
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Coordinator owns the hold lifecycle from creation to confirmation or release.
// Hold transitions are status-guarded writes, so it can race the expiry sweep
// and other pollers without further locking. The slot lock only serializes
// hold creation.
type Coordinator struct {
	deps Dependencies
	opts Options
	now  func() time.Time
}

func NewCoordinator(deps Dependencies, opts Options) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{
		deps: deps,
		opts: opts.withDefaults(),
		now:  time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

func (c *Coordinator) PollInterval() time.Duration {
	return c.opts.PollInterval
}

// PrepayAmount is the share of total charged to secure a hold, rounded down.
func (c *Coordinator) PrepayAmount(totalCents int64) int64 {
	return totalCents * c.opts.PrepayPercent / 100
}

func validateCustomer(cust Customer) error {
	if strings.TrimSpace(cust.Name) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(cust.Phone) == "" {
		return fmt.Errorf("%w: customer phone is required", ErrInvalidRequest)
	}
	return nil
}

// BeginReservation returns a live hold for the slot and customer, reusing an
// unexpired one for the same customer or creating a new hold and payment intent.
func (c *Coordinator) BeginReservation(ctx context.Context, slot SlotRequest, cust Customer) (*HoldResult, error) {
	if err := validateCustomer(cust); err != nil {
		return nil, err
	}
	if c.now().After(slot.StartsAt) {
		return nil, ErrSlotInPast
	}

	svc, err := c.deps.Catalog.GetService(ctx, slot.TenantID, slot.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := c.deps.Catalog.GetProfessional(ctx, slot.TenantID, slot.ProfessionalID); err != nil {
		return nil, err
	}
	if c.PrepayAmount(svc.PriceCents) <= 0 {
		return nil, fmt.Errorf("%w: service %s has no prepayment to charge, book it directly", ErrInvalidRequest, svc.ID)
	}

	var result *HoldResult
	err = c.deps.Locker.WithSlotLock(ctx, c.lockKeys(slot, svc.DurationMinutes), func(lockCtx context.Context) error {
		existing, err := c.deps.Repo.FindHold(lockCtx, appointment.HoldKey{
			TenantID:       slot.TenantID,
			ProfessionalID: slot.ProfessionalID,
			StartsAt:       slot.StartsAt,
			CustomerPhone:  cust.Phone,
		})
		if err != nil && !errors.Is(err, appointment.ErrAppointmentNotFound) {
			return fmt.Errorf("find existing hold: %w", err)
		}

		if existing != nil {
			if !existing.HoldExpired(c.now()) {
				c.deps.Metrics.HoldReused()
				result = holdResult(existing, true)
				return nil
			}
			c.releaseExpired(lockCtx, existing, "reservation_retry")
		}

		if err := c.ensureBookable(lockCtx, slot, svc.DurationMinutes); err != nil {
			return err
		}
		if err := c.releaseOverlappingExpired(lockCtx, slot, svc.DurationMinutes); err != nil {
			return err
		}

		created, err := c.createHold(lockCtx, slot, cust, svc)
		if err != nil {
			return err
		}
		result = holdResult(created, false)
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	return result, nil
}

// lockKeys names every lock cell the requested range touches.
func (c *Coordinator) lockKeys(slot SlotRequest, durationMinutes int) []string {
	return redisclient.SlotKeys(slot.TenantID, slot.ProfessionalID, slot.StartsAt,
		time.Duration(durationMinutes)*time.Minute, c.deps.Availability.Granularity())
}

func lockError(err error) error {
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return ErrSlotBeingBooked
	case errors.Is(err, appointment.ErrSlotTaken):
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	return err
}

func holdResult(a *appointment.Appointment, reused bool) *HoldResult {
	res := &HoldResult{
		HoldID:       a.ID,
		PrepaidCents: a.PrepaidCents,
		Reused:       reused,
	}
	if a.HoldExpiresAt != nil {
		res.ExpiresAt = *a.HoldExpiresAt
	}
	if a.PaymentReference != nil {
		res.PaymentReference = *a.PaymentReference
	}
	if a.PaymentQR != nil {
		res.QRPayload = *a.PaymentQR
	}
	return res
}

// ensureBookable checks the start is one of the day's free slots at now.
func (c *Coordinator) ensureBookable(ctx context.Context, slot SlotRequest, durationMinutes int) error {
	slots, err := c.deps.Availability.Slots(ctx, slot.TenantID, slot.ProfessionalID, slot.StartsAt, durationMinutes)
	if err != nil {
		return fmt.Errorf("compute availability: %w", err)
	}
	for _, s := range slots {
		if s.Equal(slot.StartsAt) {
			return nil
		}
	}
	return ErrSlotUnavailable
}

// releaseOverlappingExpired cancels lapsed holds in the requested range.
// Reads already treat them as free, but storage counts them until cancelled.
func (c *Coordinator) releaseOverlappingExpired(ctx context.Context, slot SlotRequest, durationMinutes int) error {
	appts, err := c.deps.Availability.DayAppointments(ctx, slot.TenantID, slot.ProfessionalID, slot.StartsAt)
	if err != nil {
		return err
	}
	now := c.now()
	d := time.Duration(durationMinutes) * time.Minute
	for i := range appts {
		if appts[i].HoldExpired(now) && appts[i].Overlaps(slot.StartsAt, d) {
			c.releaseExpired(ctx, &appts[i], "reservation")
		}
	}
	return nil
}

func (c *Coordinator) createHold(ctx context.Context, slot SlotRequest, cust Customer, svc *catalog.Service) (*appointment.Appointment, error) {
	id := uuid.New()
	prepaid := c.PrepayAmount(svc.PriceCents)

	intent, err := c.deps.Gateway.CreateIntent(ctx, payment.IntentRequest{
		AmountCents:    prepaid,
		Description:    fmt.Sprintf("%s %s", svc.Name, slot.StartsAt.In(c.opts.Location).Format("02/01/2006 15:04")),
		Payer:          payment.Payer{Name: cust.Name, Phone: cust.Phone},
		IdempotencyKey: id.String(),
	})
	if err != nil {
		c.deps.Metrics.GatewayError("create_intent")
		return nil, asGatewayError("create_intent", err)
	}

	expiresAt := c.now().Add(c.opts.HoldDuration)
	ref := intent.ID
	qr := intent.QRPayload

	created, err := c.deps.Repo.Create(ctx, &appointment.Appointment{
		ID:               id,
		TenantID:         slot.TenantID,
		ProfessionalID:   slot.ProfessionalID,
		ServiceID:        slot.ServiceID,
		StartsAt:         slot.StartsAt,
		DurationMinutes:  svc.DurationMinutes,
		CustomerName:     strings.TrimSpace(cust.Name),
		CustomerPhone:    cust.Phone,
		Status:           appointment.StatusPendingPayment,
		HoldExpiresAt:    &expiresAt,
		PaymentReference: &ref,
		PaymentQR:        &qr,
		TotalCents:       svc.PriceCents,
		PrepaidCents:     prepaid,
	})
	if err != nil {
		// The intent is left unpaid at the provider and lapses there.
		c.deps.Logger.Error("failed to store hold after creating payment intent",
			zap.String("payment_reference", ref),
			zap.Error(err))
		return nil, fmt.Errorf("create hold: %w", err)
	}

	c.deps.Metrics.HoldCreated()
	c.deps.Journal.Record(ctx, created, events.HoldCreated, map[string]any{
		"payment_reference": ref,
		"hold_expires_at":   expiresAt,
		"prepaid_cents":     prepaid,
	})
	c.deps.Logger.Info("hold created",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("tenant_id", created.TenantID),
		zap.Time("hold_expires_at", expiresAt))

	return created, nil
}

func asGatewayError(op string, err error) error {
	var gErr *payment.GatewayError
	if errors.As(err, &gErr) {
		return err
	}
	return &payment.GatewayError{Op: op, Err: err}
}

// releaseExpired cancels an expired hold and tells the customer. It reports
// whether this call did the cancellation; a concurrent winner sends its own message.
func (c *Coordinator) releaseExpired(ctx context.Context, a *appointment.Appointment, by string) bool {
	cancelled, err := c.deps.Repo.CancelHold(ctx, a.ID)
	if err != nil {
		if errors.Is(err, appointment.ErrRaceLost) {
			c.deps.Logger.Debug("expired hold already resolved", zap.Stringer("appointment_id", a.ID))
		} else {
			c.deps.Logger.Warn("failed to cancel expired hold", zap.Stringer("appointment_id", a.ID), zap.Error(err))
		}
		return false
	}

	c.deps.Metrics.Transition(string(appointment.StatusCancelled), by)
	c.deps.Journal.Record(ctx, cancelled, events.HoldExpired, map[string]any{"reason": by})

	info := c.describe(ctx, cancelled)
	c.deps.Dispatcher.Deliver(ctx, notify.KindHoldExpired, cancelled.CustomerPhone, notify.HoldExpiredMessage(info))
	return true
}

// PollStatus runs one payment check for a hold.
func (c *Coordinator) PollStatus(ctx context.Context, holdID uuid.UUID) (PollResult, error) {
	a, err := c.deps.Repo.GetAppointmentByID(ctx, holdID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return "", ErrHoldNotFound
		}
		return "", fmt.Errorf("load hold: %w", err)
	}

	if a.Status != appointment.StatusPendingPayment {
		return settledResult(a)
	}

	if a.HoldExpired(c.now()) {
		if c.releaseExpired(ctx, a, "poll") {
			return Expired, nil
		}
		return c.resolved(ctx, holdID)
	}

	if a.PaymentReference == nil {
		return StillPending, nil
	}

	status, err := c.deps.Gateway.GetStatus(ctx, *a.PaymentReference)
	if err != nil {
		c.deps.Metrics.GatewayError("get_status")
		return "", asGatewayError("get_status", err)
	}

	switch status {
	case payment.StatusApproved:
		return c.confirm(ctx, a)
	case payment.StatusRejected, payment.StatusCancelled:
		// The hold keeps its slot until it expires so the customer can pay again.
		return Rejected, nil
	default:
		return StillPending, nil
	}
}

func settledResult(a *appointment.Appointment) (PollResult, error) {
	switch a.Status {
	case appointment.StatusConfirmed, appointment.StatusCompleted:
		return Confirmed, nil
	case appointment.StatusCancelled:
		return Expired, nil
	}
	return "", fmt.Errorf("%w: appointment %s is %s, not a hold", appointment.ErrInvalidState, a.ID, a.Status)
}

// resolved re-reads a hold after losing a transition race.
func (c *Coordinator) resolved(ctx context.Context, holdID uuid.UUID) (PollResult, error) {
	a, err := c.deps.Repo.GetAppointmentByID(ctx, holdID)
	if err != nil {
		return "", fmt.Errorf("reload hold: %w", err)
	}
	if a.Status == appointment.StatusPendingPayment {
		return StillPending, nil
	}
	return settledResult(a)
}

func (c *Coordinator) confirm(ctx context.Context, a *appointment.Appointment) (PollResult, error) {
	ref := ""
	if a.PaymentReference != nil {
		ref = *a.PaymentReference
	}

	now := c.now()
	confirmed, err := c.deps.Repo.ConfirmHold(ctx, a.ID, ref, now)
	if err != nil {
		if !errors.Is(err, appointment.ErrRaceLost) {
			return "", fmt.Errorf("confirm hold: %w", err)
		}
		res, rErr := c.lateApproval(ctx, a.ID, now)
		if rErr == nil && res == Expired {
			c.deps.Logger.Warn("payment approved for a hold that was already released",
				zap.Stringer("appointment_id", a.ID),
				zap.String("payment_reference", ref))
		}
		return res, rErr
	}

	c.deps.Metrics.Transition(string(appointment.StatusConfirmed), "payment")
	c.deps.Journal.Record(ctx, confirmed, events.HoldConfirmed, map[string]any{"payment_reference": ref})
	c.deps.Logger.Info("hold confirmed",
		zap.Stringer("appointment_id", confirmed.ID),
		zap.Stringer("tenant_id", confirmed.TenantID))

	info := c.describe(ctx, confirmed)
	c.deps.Dispatcher.Deliver(ctx, notify.KindConfirmedCustomer, confirmed.CustomerPhone, notify.ConfirmedCustomerMessage(info))
	c.deps.Dispatcher.Deliver(ctx, notify.KindConfirmedProfessional, info.ProfessionalPhone, notify.ConfirmedProfessionalMessage(info))

	return Confirmed, nil
}

// lateApproval settles a hold whose confirmation matched no row: either a
// concurrent writer resolved it, or it lapsed while the gateway answered.
// A lapsed hold is released here since its slot may already be someone else's.
func (c *Coordinator) lateApproval(ctx context.Context, holdID uuid.UUID, now time.Time) (PollResult, error) {
	a, err := c.deps.Repo.GetAppointmentByID(ctx, holdID)
	if err != nil {
		return "", fmt.Errorf("reload hold: %w", err)
	}
	if a.HoldExpired(now) {
		if c.releaseExpired(ctx, a, "poll") {
			return Expired, nil
		}
		return c.resolved(ctx, holdID)
	}
	if a.Status == appointment.StatusPendingPayment {
		return StillPending, nil
	}
	return settledResult(a)
}

// CancelReservation releases a hold the customer abandoned. No message is sent.
func (c *Coordinator) CancelReservation(ctx context.Context, holdID uuid.UUID) error {
	cancelled, err := c.deps.Repo.CancelHold(ctx, holdID)
	if err != nil {
		switch {
		case errors.Is(err, appointment.ErrAppointmentNotFound):
			return ErrHoldNotFound
		case errors.Is(err, appointment.ErrRaceLost):
			return fmt.Errorf("%w: hold is no longer awaiting payment", appointment.ErrInvalidState)
		}
		return fmt.Errorf("cancel hold: %w", err)
	}

	c.deps.Metrics.Transition(string(appointment.StatusCancelled), "customer")
	c.deps.Journal.Record(ctx, cancelled, events.HoldCancelled, map[string]any{"reason": "customer"})
	return nil
}

// AwaitOutcome polls a hold every PollInterval until it leaves still_pending
// or ctx ends. Gateway errors are logged and the next tick retries.
func (c *Coordinator) AwaitOutcome(ctx context.Context, holdID uuid.UUID) (PollResult, error) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		res, err := c.PollStatus(ctx, holdID)
		if err != nil {
			var gErr *payment.GatewayError
			if !errors.As(err, &gErr) {
				return "", err
			}
			c.deps.Logger.Warn("payment status check failed", zap.Stringer("appointment_id", holdID), zap.Error(err))
		} else if res != StillPending {
			return res, nil
		}

		select {
		case <-ctx.Done():
			return StillPending, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DirectRequest books without online prepayment.
type DirectRequest struct {
	Slot     SlotRequest
	Customer Customer
	Status   appointment.AppointmentStatus // pending or confirmed
}

// CreateDirect books a pay-at-shop (pending) or already settled (confirmed)
// appointment. It skips the hours check but not occupancy.
func (c *Coordinator) CreateDirect(ctx context.Context, req DirectRequest) (*appointment.Appointment, error) {
	if req.Status != appointment.StatusPending && req.Status != appointment.StatusConfirmed {
		return nil, fmt.Errorf("%w: direct bookings are pending or confirmed, got %q", ErrInvalidRequest, req.Status)
	}
	if err := validateCustomer(req.Customer); err != nil {
		return nil, err
	}
	slot := req.Slot
	if c.now().After(slot.StartsAt) {
		return nil, ErrSlotInPast
	}

	svc, err := c.deps.Catalog.GetService(ctx, slot.TenantID, slot.ServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := c.deps.Catalog.GetProfessional(ctx, slot.TenantID, slot.ProfessionalID); err != nil {
		return nil, err
	}

	var created *appointment.Appointment
	err = c.deps.Locker.WithSlotLock(ctx, c.lockKeys(slot, svc.DurationMinutes), func(lockCtx context.Context) error {
		appts, err := c.deps.Availability.DayAppointments(lockCtx, slot.TenantID, slot.ProfessionalID, slot.StartsAt)
		if err != nil {
			return err
		}
		duration := time.Duration(svc.DurationMinutes) * time.Minute
		if conflict := availability.Conflicts(appts, slot.StartsAt, duration, c.now()); conflict != nil {
			return ErrSlotUnavailable
		}
		if err := c.releaseOverlappingExpired(lockCtx, slot, svc.DurationMinutes); err != nil {
			return err
		}

		created, err = c.deps.Repo.Create(lockCtx, &appointment.Appointment{
			TenantID:        slot.TenantID,
			ProfessionalID:  slot.ProfessionalID,
			ServiceID:       slot.ServiceID,
			StartsAt:        slot.StartsAt,
			DurationMinutes: svc.DurationMinutes,
			CustomerName:    strings.TrimSpace(req.Customer.Name),
			CustomerPhone:   req.Customer.Phone,
			Status:          req.Status,
			TotalCents:      svc.PriceCents,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, lockError(err)
	}

	c.deps.Journal.Record(ctx, created, events.AppointmentCreated, map[string]any{"status": created.Status})
	return created, nil
}

// Appointment loads one appointment.
func (c *Coordinator) Appointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return c.deps.Repo.GetAppointmentByID(ctx, id)
}

// ListAppointments clamps paging and lists a tenant's appointments.
func (c *Coordinator) ListAppointments(ctx context.Context, f appointment.ListFilter) ([]appointment.Appointment, error) {
	appts, err := c.deps.Repo.ListAppointments(ctx, f.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func (c *Coordinator) describe(ctx context.Context, a *appointment.Appointment) notify.AppointmentInfo {
	return notify.Describe(ctx, c.deps.Catalog, a, c.opts.Location)
}
