package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

// WooClient talks to the WooCommerce REST API (wc/v3) using consumer
// key/secret query authentication.
type WooClient struct {
	baseURL        string
	consumerKey    string
	consumerSecret string
	httpClient     *http.Client
	log            logger.Logger
}

// NewWooClient constructs a WooClient. An empty base URL or credential
// leaves the client unconfigured; dispatches are then skipped.
func NewWooClient(baseURL, consumerKey, consumerSecret string, log logger.Logger) *WooClient {
	return &WooClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		log:            log.WithField("component", "woocommerce"),
	}
}

// Configured reports whether credentials are present.
func (c *WooClient) Configured() bool {
	return c.baseURL != "" && c.consumerKey != "" && c.consumerSecret != ""
}

type wooLineItem struct {
	ProductID int    `json:"product_id,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total,omitempty"`
}

type wooOrderRequest struct {
	Status     string            `json:"status"`
	SetPaid    bool              `json:"set_paid"`
	Billing    map[string]string `json:"billing,omitempty"`
	Shipping   map[string]string `json:"shipping,omitempty"`
	LineItems  []wooLineItem     `json:"line_items"`
	MetaData   []wooMeta         `json:"meta_data,omitempty"`
	CustomerID int               `json:"customer_id,omitempty"`
}

type wooMeta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type wooOrderResponse struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
}

// ForwardOrder mirrors a local order into WooCommerce and returns the
// external order id.
func (c *WooClient) ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*ForwardResult, error) {
	if !c.Configured() {
		return &ForwardResult{Status: StatusSkipped, Reason: ReasonNotConfigured}, nil
	}

	items := make([]wooLineItem, 0, len(order.Items))
	for _, it := range order.Items {
		line := wooLineItem{Quantity: it.Quantity, SKU: it.ProductID}
		if id, err := strconv.Atoi(it.ProductID); err == nil {
			line.ProductID = id
			line.SKU = ""
		}
		items = append(items, line)
	}

	payload := wooOrderRequest{
		Status:    "pending",
		LineItems: items,
		Billing: map[string]string{
			"first_name": customer.FirstName,
			"last_name":  customer.LastName,
			"email":      customer.Email,
		},
		Shipping: map[string]string{
			"address_1": order.ShippingAddress.Line1,
			"address_2": order.ShippingAddress.Line2,
			"city":      order.ShippingAddress.City,
			"state":     order.ShippingAddress.State,
			"postcode":  order.ShippingAddress.PostalCode,
			"country":   order.ShippingAddress.Country,
		},
		MetaData: []wooMeta{{Key: "medsupply_order_id", Value: order.ID}},
	}

	var resp wooOrderResponse
	if err := c.do(ctx, http.MethodPost, "/wp-json/wc/v3/orders", payload, &resp); err != nil {
		return nil, err
	}

	return &ForwardResult{
		Status:          StatusSuccess,
		ExternalOrderID: strconv.Itoa(resp.ID),
	}, nil
}

// MarkOrderPaid flags the mirrored order as paid, attaching the payment
// reference.
func (c *WooClient) MarkOrderPaid(ctx context.Context, externalOrderID, paymentRef string) error {
	if !c.Configured() {
		return fmt.Errorf("woocommerce: %s", ReasonNotConfigured)
	}

	payload := map[string]any{
		"set_paid":       true,
		"transaction_id": paymentRef,
	}

	var resp wooOrderResponse
	return c.do(ctx, http.MethodPut, "/wp-json/wc/v3/orders/"+url.PathEscape(externalOrderID), payload, &resp)
}

func (c *WooClient) do(ctx context.Context, method, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("woocommerce marshal: %w", err)
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("woocommerce url: %w", err)
	}
	q := u.Query()
	q.Set("consumer_key", c.consumerKey)
	q.Set("consumer_secret", c.consumerSecret)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("woocommerce request build: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("woocommerce request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("woocommerce: status %d, body: %s", resp.StatusCode, truncate(raw, 512))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("woocommerce unmarshal: %w", err)
		}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
