package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/appointment"
)

type EventStore interface {
	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}

// Journal records lifecycle events in the audit table and on the event bus.
// Both writes are best-effort and only logged on failure. A nil Journal
// records nothing.
type Journal struct {
	store  EventStore
	pub    Publisher
	logger *zap.Logger
}

func NewJournal(store EventStore, pub Publisher, logger *zap.Logger) *Journal {
	if pub == nil {
		pub = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{store: store, pub: pub, logger: logger}
}

func (j *Journal) Record(ctx context.Context, a *appointment.Appointment, eventType string, payload map[string]any) {
	if j == nil {
		return
	}
	now := time.Now()

	data, err := json.Marshal(payload)
	if err != nil {
		j.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	apptID := a.ID
	if err := j.store.InsertEvent(ctx, appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
	}); err != nil {
		j.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.Stringer("appointment_id", a.ID),
			zap.Error(err))
	}

	if err := j.pub.Publish(ctx, Event{
		ID:            uuid.New(),
		Type:          eventType,
		AppointmentID: a.ID,
		TenantID:      a.TenantID,
		OccurredAt:    now,
		Payload:       payload,
	}); err != nil {
		j.logger.Warn("failed to publish event",
			zap.String("event_type", eventType),
			zap.Stringer("appointment_id", a.ID),
			zap.Error(err))
	}
}
