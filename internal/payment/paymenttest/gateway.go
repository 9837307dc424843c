// Package paymenttest provides a scriptable in-memory payment gateway.
package paymenttest

import (
	"context"
	"fmt"
	"sync"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/payment"
)

// Gateway hands out intents INT1, INT2, ... and answers status polls from a
// per-intent script. Once a script runs out the last status repeats.
type Gateway struct {
	mu sync.Mutex

	CreateErr error
	StatusErr error
	RefundErr error

	next     int
	scripts  map[string][]payment.Status
	Created  []payment.IntentRequest
	Polls    map[string]int
	Refunded map[string]string
}

func New() *Gateway {
	return &Gateway{
		scripts:  make(map[string][]payment.Status),
		Polls:    make(map[string]int),
		Refunded: make(map[string]string),
	}
}

// Script sets the statuses GetStatus returns for intentID, in order.
func (g *Gateway) Script(intentID string, statuses ...payment.Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[intentID] = statuses
}

func (g *Gateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.CreateErr != nil {
		return nil, g.CreateErr
	}
	g.next++
	g.Created = append(g.Created, req)
	id := fmt.Sprintf("INT%d", g.next)
	return &payment.Intent{ID: id, QRPayload: "00020126pix-" + id}, nil
}

func (g *Gateway) GetStatus(_ context.Context, intentID string) (payment.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.StatusErr != nil {
		return "", g.StatusErr
	}
	n := g.Polls[intentID]
	g.Polls[intentID] = n + 1

	script := g.scripts[intentID]
	if len(script) == 0 {
		return payment.StatusPending, nil
	}
	if n >= len(script) {
		return script[len(script)-1], nil
	}
	return script[n], nil
}

func (g *Gateway) Refund(_ context.Context, intentID, reason string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.RefundErr != nil {
		return g.RefundErr
	}
	g.Refunded[intentID] = reason
	return nil
}

func (g *Gateway) CreatedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Created)
}
