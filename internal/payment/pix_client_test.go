package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixClient_CreateIntent(t *testing.T) {
	var got createPaymentRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "hold-1", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 1234567, "status": "pending",
			"point_of_interaction": {"transaction_data": {"qr_code": "00020126pix"}}}`))
	}))
	defer srv.Close()

	c := NewPixClient(srv.URL+"/", "tok")
	intent, err := c.CreateIntent(context.Background(), IntentRequest{
		AmountCents:    5000,
		Description:    "Corte",
		Payer:          Payer{Name: "Ana", Phone: "+55 (11) 99999-0000"},
		IdempotencyKey: "hold-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "1234567", intent.ID)
	assert.Equal(t, "00020126pix", intent.QRPayload)
	assert.Equal(t, 50.0, got.TransactionAmount)
	assert.Equal(t, "pix", got.PaymentMethodID)
	assert.Equal(t, "5511999990000@clientes.cutstyle.app", got.Payer.Email)
}

func TestPixClient_GetStatus(t *testing.T) {
	statuses := map[string]Status{
		"1": StatusApproved,
		"2": StatusRejected,
		"3": StatusCancelled,
		"4": StatusInProcess,
		"5": StatusPending,
	}
	raw := map[string]string{"1": "approved", "2": "rejected", "3": "cancelled", "4": "authorized", "5": "pending"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/payments/"):]
		_, _ = w.Write([]byte(`{"id": ` + id + `, "status": "` + raw[id] + `"}`))
	}))
	defer srv.Close()

	c := NewPixClient(srv.URL, "tok")
	for id, want := range statuses {
		got, err := c.GetStatus(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestPixClient_ErrorsAreGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message": "invalid payer"}`))
	}))
	defer srv.Close()

	c := NewPixClient(srv.URL, "tok")

	_, err := c.CreateIntent(context.Background(), IntentRequest{AmountCents: 100})
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "create", gwErr.Op)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Contains(t, gwErr.Error(), "invalid payer")

	err = c.Refund(context.Background(), "1", "customer request")
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "refund", gwErr.Op)
}

func TestPixClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewPixClient(srv.URL, "tok").GetStatus(context.Background(), "1")
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Zero(t, gwErr.StatusCode)
}
