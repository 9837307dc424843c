// Package notifytest provides a recording notifier for tests.
package notifytest

import (
	"context"
	"errors"
	"sync"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
)

var ErrSendFailed = errors.New("send failed")

type Message struct {
	Phone string
	Text  string
}

// Notifier records every message. Phones in Unreachable report no account;
// phones in Failing fail to send. Attempts counts Send calls, Sent only successes.
type Notifier struct {
	mu sync.Mutex

	Unreachable map[string]bool
	Failing     map[string]bool
	FailAll     bool

	attempts []Message
	sent     []Message
}

func New() *Notifier {
	return &Notifier{
		Unreachable: make(map[string]bool),
		Failing:     make(map[string]bool),
	}
}

func (n *Notifier) UserReachable(_ context.Context, phone string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.Unreachable[phone], nil
}

func (n *Notifier) Send(_ context.Context, phone, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	msg := Message{Phone: phone, Text: message}
	n.attempts = append(n.attempts, msg)
	if n.FailAll || n.Failing[phone] {
		return &notify.NotificationError{Phone: phone, Err: ErrSendFailed}
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *Notifier) Attempts() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.attempts...)
}

func (n *Notifier) Sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}

// SentTo returns the successful messages for phone.
func (n *Notifier) SentTo(phone string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []Message
	for _, m := range n.sent {
		if m.Phone == phone {
			out = append(out, m)
		}
	}
	return out
}
