package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/events"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/metrics"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
)

// RefundCoordinator reverses a confirmed, prepaid appointment for an admin.
type RefundCoordinator struct {
	repo       appointment.Repository
	catalog    notify.CatalogReader
	gateway    payment.Gateway
	dispatcher *notify.Dispatcher
	journal    *events.Journal
	metrics    *metrics.Metrics
	logger     *zap.Logger
	loc        *time.Location
}

func NewRefundCoordinator(deps Dependencies, opts Options) *RefundCoordinator {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &RefundCoordinator{
		repo:       deps.Repo,
		catalog:    deps.Catalog,
		gateway:    deps.Gateway,
		dispatcher: deps.Dispatcher,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		loc:        opts.Location,
	}
}

// Refund returns the prepayment and cancels the appointment. The row is only
// written after the gateway accepts the refund; a gateway error comes back
// unchanged and leaves the appointment as it was.
func (r *RefundCoordinator) Refund(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error) {
	a, err := r.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Status != appointment.StatusConfirmed || a.PaymentReference == nil || *a.PaymentReference == "" || a.Refunded {
		return nil, fmt.Errorf("%w: appointment %s is %s (refunded=%t), refund needs a paid confirmed appointment",
			appointment.ErrInvalidState, a.ID, a.Status, a.Refunded)
	}
	ref := *a.PaymentReference

	if err := r.gateway.Refund(ctx, ref, reason); err != nil {
		r.metrics.GatewayError("refund")
		r.logger.Warn("refund rejected by payment gateway",
			zap.Stringer("appointment_id", a.ID),
			zap.String("payment_reference", ref),
			zap.Error(err))
		return nil, err
	}

	refunded, err := r.repo.MarkRefunded(ctx, a.ID)
	if err != nil {
		if errors.Is(err, appointment.ErrRaceLost) {
			// Another refund or a status change landed after our read.
			r.logger.Error("payment refunded but appointment changed concurrently",
				zap.Stringer("appointment_id", a.ID),
				zap.String("payment_reference", ref))
			return nil, fmt.Errorf("%w: appointment changed during refund", appointment.ErrInvalidState)
		}
		r.logger.Error("payment refunded but appointment update failed",
			zap.Stringer("appointment_id", a.ID),
			zap.String("payment_reference", ref),
			zap.Error(err))
		return nil, fmt.Errorf("mark refunded: %w", err)
	}

	r.metrics.Transition(string(appointment.StatusCancelled), "refund")
	r.journal.Record(ctx, refunded, events.AppointmentRefunded, map[string]any{
		"payment_reference": ref,
		"reason":            reason,
		"prepaid_cents":     refunded.PrepaidCents,
	})
	r.logger.Info("appointment refunded",
		zap.Stringer("appointment_id", refunded.ID),
		zap.Stringer("tenant_id", refunded.TenantID))

	info := notify.Describe(ctx, r.catalog, refunded, r.loc)
	r.dispatcher.Deliver(ctx, notify.KindRefunded, refunded.CustomerPhone, notify.RefundedMessage(info, reason))

	return refunded, nil
}
