package payment

import (
	"context"
	"fmt"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusInProcess Status = "in_process"
)

type Payer struct {
	Name  string
	Phone string
	Email string
}

type IntentRequest struct {
	AmountCents    int64
	Description    string
	Payer          Payer
	IdempotencyKey string
}

type Intent struct {
	ID        string
	QRPayload string
}

// Gateway is the PIX provider boundary.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetStatus(ctx context.Context, intentID string) (Status, error)
	Refund(ctx context.Context, intentID, reason string) error
}

// GatewayError reports a provider that was unreachable or refused the request.
// It is always surfaced to the caller and never retried here.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment gateway %s: status %d: %s", e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("payment gateway %s: %s", e.Op, msg)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
