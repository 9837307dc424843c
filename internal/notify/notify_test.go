package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify"
	"github.com/balbiss/remix-of-cut-style-hub-sub000/internal/notify/notifytest"
)

func TestWhatsAppClient(t *testing.T) {
	var sent map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("apikey"))
		switch r.URL.Path {
		case "/chat/whatsappNumbers/shop":
			var body map[string][]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			exists := body["numbers"][0] == "5511999990000"
			_ = json.NewEncoder(w).Encode([]map[string]any{{"exists": exists, "number": body["numbers"][0]}})
		case "/message/sendText/shop":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := notify.NewWhatsAppClient(srv.URL, "key", "shop", 100)
	ctx := context.Background()

	ok, err := c.UserReachable(ctx, "(11) 99999-0000")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UserReachable(ctx, "11 98888-0000")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Send(ctx, "11999990000", "oi"))
	assert.Equal(t, "5511999990000", sent["number"])
	assert.Equal(t, "oi", sent["text"])
}

func TestWhatsAppClient_FailureIsNotificationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := notify.NewWhatsAppClient(srv.URL, "", "shop", 100).Send(context.Background(), "11999990000", "oi")
	var nErr *notify.NotificationError
	require.True(t, errors.As(err, &nErr))
	assert.NotContains(t, nErr.Error(), "99999", "phone is masked")
}

func TestDispatcher_Deliver(t *testing.T) {
	n := notifytest.New()
	n.Unreachable["111"] = true
	n.Failing["222"] = true
	d := notify.NewDispatcher(n, zaptest.NewLogger(t), nil)
	ctx := context.Background()

	assert.True(t, d.Deliver(ctx, notify.KindHoldExpired, "333", "hi"))
	assert.False(t, d.Deliver(ctx, notify.KindHoldExpired, "111", "hi"), "unreachable is skipped")
	assert.False(t, d.Deliver(ctx, notify.KindHoldExpired, "222", "hi"), "failure is swallowed")
	assert.False(t, d.Deliver(ctx, notify.KindHoldExpired, "", "hi"))

	assert.Len(t, n.Attempts(), 2, "no send attempt for unreachable or empty phones")
	assert.Len(t, n.Sent(), 1)
}

func TestMessages(t *testing.T) {
	info := notify.AppointmentInfo{
		CustomerName:     "Ana",
		ProfessionalName: "Beto",
		ServiceName:      "Corte",
		StartsAt:         time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC),
		PrepaidCents:     5000,
	}

	assert.Contains(t, notify.ConfirmedCustomerMessage(info), "R$ 50,00")
	assert.Contains(t, notify.ConfirmedCustomerMessage(info), "01/06/2024 às 14:00")
	assert.Contains(t, notify.ConfirmedProfessionalMessage(info), "Ana")
	assert.Contains(t, notify.HoldExpiredMessage(info), "expirou")
	assert.Contains(t, notify.RefundedMessage(info, "barbeiro doente"), "Motivo: barbeiro doente")
}
