package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway for local runs and load simulation.
// Intents report pending until approveAfter has passed, then approved.
type Sandbox struct {
	mu           sync.Mutex
	approveAfter time.Duration
	created      map[string]time.Time
	refunded     map[string]bool
	now          func() time.Time
}

func NewSandbox(approveAfter time.Duration) *Sandbox {
	return &Sandbox{
		approveAfter: approveAfter,
		created:      make(map[string]time.Time),
		refunded:     make(map[string]bool),
		now:          time.Now,
	}
}

func (s *Sandbox) CreateIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, &GatewayError{Op: "create", Message: "amount must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := "SBX-" + uuid.NewString()
	s.created[id] = s.now()
	return &Intent{
		ID:        id,
		QRPayload: fmt.Sprintf("00020126sandbox%s5204000053039865802BR%d", id, req.AmountCents),
	}, nil
}

func (s *Sandbox) GetStatus(_ context.Context, intentID string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created, ok := s.created[intentID]
	if !ok {
		return "", &GatewayError{Op: "status", StatusCode: 404, Message: "payment not found"}
	}
	if s.refunded[intentID] {
		return StatusCancelled, nil
	}
	if s.now().Sub(created) >= s.approveAfter {
		return StatusApproved, nil
	}
	return StatusPending, nil
}

func (s *Sandbox) Refund(_ context.Context, intentID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.created[intentID]; !ok {
		return &GatewayError{Op: "refund", StatusCode: 404, Message: "payment not found"}
	}
	s.refunded[intentID] = true
	return nil
}
