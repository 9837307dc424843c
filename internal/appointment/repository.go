package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrRaceLost means a status-guarded update matched no row because another
	// writer already moved the appointment. Losers treat it as a no-op.
	ErrRaceLost = errors.New("appointment already resolved by a concurrent writer")

	// ErrInvalidState rejects an operation the current status does not allow.
	ErrInvalidState = errors.New("operation not allowed in current appointment state")

	// ErrSlotTaken is the storage backstop against double booking: the new row
	// overlaps another pending, pending_payment or confirmed row of the same
	// professional. Expired holds still count until they are cancelled.
	ErrSlotTaken = errors.New("time range already taken")
)

// Repository contains all DB interactions needed by the reservation core.
// Every status change is a single conditional write guarded by the expected
// current status; none of them read first.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]Appointment, error)

	// FindHold returns the newest pending_payment row for key, expired or not.
	FindHold(ctx context.Context, key HoldKey) (*Appointment, error)

	// Create inserts a row, failing with ErrSlotTaken when it would overlap
	// another reserving row.
	Create(ctx context.Context, a *Appointment) (*Appointment, error)

	// ConfirmHold moves a pending_payment row whose hold is still live at now
	// to confirmed, clears hold_expires_at and fills payment_reference when it
	// is still empty.
	ConfirmHold(ctx context.Context, id uuid.UUID, paymentRef string, now time.Time) (*Appointment, error)

	// CancelHold moves pending_payment to cancelled.
	CancelHold(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// MarkRefunded moves an unrefunded confirmed row to cancelled with refunded=true.
	MarkRefunded(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindExpiredHolds lists pending_payment rows whose hold ended before now.
	FindExpiredHolds(ctx context.Context, now time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
