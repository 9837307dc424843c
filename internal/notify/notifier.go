package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/metrics"
)

// Notifier is the messaging provider boundary.
type Notifier interface {
	// UserReachable reports whether phone has an account that can receive messages.
	UserReachable(ctx context.Context, phone string) (bool, error)
	Send(ctx context.Context, phone, message string) error
}

// NotificationError is a failed delivery. Callers log it and move on.
type NotificationError struct {
	Phone string
	Err   error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", maskPhone(e.Phone), e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

type Kind string

const (
	KindConfirmedCustomer     Kind = "confirmed_customer"
	KindConfirmedProfessional Kind = "confirmed_professional"
	KindHoldExpired           Kind = "hold_expired"
	KindRefunded              Kind = "refunded"
)

// Dispatcher sends advisory messages. It never returns an error: the state
// change that triggered the message has already been written.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewDispatcher(n Notifier, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{notifier: n, logger: logger, metrics: m}
}

// Deliver checks the phone is reachable and sends message. It reports
// whether the message was handed to the provider.
func (d *Dispatcher) Deliver(ctx context.Context, kind Kind, phone, message string) bool {
	if d == nil {
		return false
	}
	log := d.logger.With(zap.String("kind", string(kind)), zap.String("phone", maskPhone(phone)))

	if phone == "" {
		log.Debug("notification skipped, no phone")
		d.metrics.Notification(string(kind), "unreachable")
		return false
	}

	ok, err := d.notifier.UserReachable(ctx, phone)
	if err != nil {
		log.Warn("notification reachability check failed", zap.Error(err))
		d.metrics.Notification(string(kind), "failed")
		return false
	}
	if !ok {
		log.Info("notification skipped, phone has no reachable account")
		d.metrics.Notification(string(kind), "unreachable")
		return false
	}

	if err := d.notifier.Send(ctx, phone, message); err != nil {
		log.Warn("notification send failed", zap.Error(err))
		d.metrics.Notification(string(kind), "failed")
		return false
	}

	d.metrics.Notification(string(kind), "sent")
	return true
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "***" + phone[len(phone)-4:]
}
