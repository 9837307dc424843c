package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PixClient talks to a Mercado Pago style payments API.
type PixClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewPixClient(baseURL, accessToken string) *PixClient {
	return &PixClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(accessToken),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type pixPayer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

type createPaymentRequest struct {
	TransactionAmount float64  `json:"transaction_amount"`
	Description       string   `json:"description"`
	PaymentMethodID   string   `json:"payment_method_id"`
	Payer             pixPayer `json:"payer"`
}

type paymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode string `json:"qr_code"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (c *PixClient) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, &GatewayError{Op: "create", Message: "amount must be positive"}
	}

	email := req.Payer.Email
	if email == "" {
		// The provider requires an email; phone-only customers get a placeholder.
		email = fmt.Sprintf("%s@clientes.cutstyle.app", digits(req.Payer.Phone))
	}

	body := createPaymentRequest{
		TransactionAmount: float64(req.AmountCents) / 100,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		Payer:             pixPayer{Email: email, FirstName: req.Payer.Name},
	}

	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	var resp paymentResponse
	if err := c.do(ctx, "create", http.MethodPost, "/v1/payments", key, body, &resp); err != nil {
		return nil, err
	}

	qr := resp.PointOfInteraction.TransactionData.QRCode
	if resp.ID.String() == "" || qr == "" {
		return nil, &GatewayError{Op: "create", Message: "response missing payment id or qr code"}
	}

	return &Intent{ID: resp.ID.String(), QRPayload: qr}, nil
}

func (c *PixClient) GetStatus(ctx context.Context, intentID string) (Status, error) {
	var resp paymentResponse
	if err := c.do(ctx, "status", http.MethodGet, "/v1/payments/"+intentID, "", nil, &resp); err != nil {
		return "", err
	}
	return normalizeStatus(resp.Status), nil
}

func (c *PixClient) Refund(ctx context.Context, intentID, reason string) error {
	body := map[string]any{"metadata": map[string]string{"reason": reason}}
	return c.do(ctx, "refund", http.MethodPost, "/v1/payments/"+intentID+"/refunds", uuid.NewString(), body, nil)
}

// normalizeStatus folds provider states we do not act on into in_process.
func normalizeStatus(s string) Status {
	switch s {
	case "pending":
		return StatusPending
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	case "cancelled", "refunded", "charged_back":
		return StatusCancelled
	default:
		return StatusInProcess
	}
}

func (c *PixClient) do(ctx context.Context, op, method, path, idempotencyKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return &GatewayError{Op: op, Err: err}
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return b.String()
}
