package integrations

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

const (
	stripeAPIBase = "https://api.stripe.com/v1"

	// Webhook timestamps older than this are rejected to blunt replay.
	webhookTolerance = 5 * time.Minute
)

// Webhook verification errors.
var (
	ErrWebhookSignature = errors.New("stripe: webhook signature mismatch")
	ErrWebhookExpired   = errors.New("stripe: webhook timestamp outside tolerance")
)

// StripeClient drives payment intents and verifies inbound webhook
// events.
type StripeClient struct {
	secretKey     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
	log           logger.Logger

	// now is swappable in tests for webhook tolerance checks.
	now func() time.Time
}

// NewStripeClient constructs a StripeClient. Empty keys leave the
// client unconfigured.
func NewStripeClient(secretKey, webhookSecret string, log logger.Logger) *StripeClient {
	return &StripeClient{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		baseURL:       stripeAPIBase,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		log:           log.WithField("component", "stripe"),
		now:           time.Now,
	}
}

// Configured reports whether the API key is present.
func (c *StripeClient) Configured() bool {
	return c.secretKey != ""
}

type stripeIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Metadata     struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// CreatePaymentIntent opens a payment intent for the order total. The
// local order id rides along in metadata as the correlation id.
func (c *StripeClient) CreatePaymentIntent(ctx context.Context, order models.Order, customer models.User) (*PaymentIntent, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stripe: %s", ReasonNotConfigured)
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(toCents(order.Total), 10))
	form.Set("currency", "usd")
	form.Set("receipt_email", customer.Email)
	form.Set("metadata[order_id]", order.ID)
	form.Set("automatic_payment_methods[enabled]", "true")

	var resp stripeIntentResponse
	if err := c.do(ctx, http.MethodPost, "/payment_intents", form, &resp); err != nil {
		return nil, err
	}

	return &PaymentIntent{
		ID:           resp.ID,
		ClientSecret: resp.ClientSecret,
		Status:       resp.Status,
		Amount:       resp.Amount,
		OrderID:      resp.Metadata.OrderID,
	}, nil
}

// RetrievePaymentIntent fetches the current provider-side state of an
// intent.
func (c *StripeClient) RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stripe: %s", ReasonNotConfigured)
	}

	var resp stripeIntentResponse
	if err := c.do(ctx, http.MethodGet, "/payment_intents/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}

	return &PaymentIntent{
		ID:           resp.ID,
		ClientSecret: resp.ClientSecret,
		Status:       resp.Status,
		Amount:       resp.Amount,
		OrderID:      resp.Metadata.OrderID,
	}, nil
}

type stripeEvent struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string `json:"id"`
			Metadata struct {
				OrderID string `json:"order_id"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// VerifyWebhookEvent checks the Stripe-Signature header (t=...,v1=...)
// against an HMAC-SHA256 of "<t>.<payload>" and parses the event.
func (c *StripeClient) VerifyWebhookEvent(payload []byte, signatureHeader string) (*PaymentEvent, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("stripe webhook: %s", ReasonNotConfigured)
	}

	var ts string
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if ts == "" || len(signatures) == 0 {
		return nil, ErrWebhookSignature
	}

	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, ErrWebhookSignature
	}
	if d := c.now().Sub(time.Unix(epoch, 0)); d > webhookTolerance || d < -webhookTolerance {
		return nil, ErrWebhookExpired
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return nil, ErrWebhookSignature
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe webhook unmarshal: %w", err)
	}

	return &PaymentEvent{
		Type:            event.Type,
		PaymentIntentID: event.Data.Object.ID,
		OrderID:         event.Data.Object.Metadata.OrderID,
	}, nil
}

func (c *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("stripe request build: %w", err)
	}
	req.SetBasicAuth(c.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stripe: status %d, body: %s", resp.StatusCode, truncate(raw, 512))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("stripe unmarshal: %w", err)
		}
	}
	return nil
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
