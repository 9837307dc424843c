package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// WhatsAppClient sends text messages through an Evolution-style HTTP API.
// Outbound calls share one token bucket so a large sweep cannot flood the provider.
type WhatsAppClient struct {
	url      string
	apiKey   string
	instance string
	http     *http.Client
	limiter  *rate.Limiter
}

func NewWhatsAppClient(url, apiKey, instance string, ratePerSec float64) *WhatsAppClient {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &WhatsAppClient{
		url:      strings.TrimRight(strings.TrimSpace(url), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		instance: instance,
		http: &http.Client{
			Timeout: 5 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

func (c *WhatsAppClient) UserReachable(ctx context.Context, phone string) (bool, error) {
	var resp []struct {
		Exists bool   `json:"exists"`
		Number string `json:"number"`
	}
	payload := map[string][]string{"numbers": {normalizePhone(phone)}}
	if err := c.post(ctx, "/chat/whatsappNumbers/"+c.instance, payload, &resp); err != nil {
		return false, &NotificationError{Phone: phone, Err: err}
	}
	for _, r := range resp {
		if r.Exists {
			return true, nil
		}
	}
	return false, nil
}

func (c *WhatsAppClient) Send(ctx context.Context, phone, message string) error {
	payload := map[string]string{
		"number": normalizePhone(phone),
		"text":   message,
	}
	if err := c.post(ctx, "/message/sendText/"+c.instance, payload, nil); err != nil {
		return &NotificationError{Phone: phone, Err: err}
	}
	return nil
}

func (c *WhatsAppClient) post(ctx context.Context, path string, in, out any) error {
	if c.url == "" {
		return errors.New("notifier url not configured")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notifier returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// normalizePhone keeps digits and adds Brazil's country code to local numbers.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) == 10 || len(d) == 11 {
		d = "55" + d
	}
	return d
}
