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

const defaultShipStationBaseURL = "https://ssapi.shipstation.com"

// ShipStationClient quotes rates and forwards orders to ShipStation
// using basic API key/secret authentication.
type ShipStationClient struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        logger.Logger
}

// NewShipStationClient constructs a ShipStationClient. An empty base
// URL falls back to the production API; empty credentials leave the
// client unconfigured.
func NewShipStationClient(baseURL, apiKey, apiSecret string, log logger.Logger) *ShipStationClient {
	if baseURL == "" {
		baseURL = defaultShipStationBaseURL
	}
	return &ShipStationClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.WithField("component", "shipstation"),
	}
}

// Configured reports whether credentials are present.
func (c *ShipStationClient) Configured() bool {
	return c.apiKey != "" && c.apiSecret != ""
}

type shipStationRate struct {
	ServiceCode  string  `json:"serviceCode"`
	ServiceName  string  `json:"serviceName"`
	ShipmentCost float64 `json:"shipmentCost"`
	OtherCost    float64 `json:"otherCost"`
	DeliveryDays int     `json:"deliveryDays"`
	CarrierCode  string  `json:"carrierCode"`
}

// EstimateRates quotes shipping services for an address and item list.
func (c *ShipStationClient) EstimateRates(ctx context.Context, address models.Address, items []models.OrderItem) ([]Rate, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("shipstation: %s", ReasonNotConfigured)
	}

	units := 0
	for _, it := range items {
		units += it.Quantity
	}

	payload := map[string]any{
		"carrierCode":    "stamps_com",
		"fromPostalCode": "",
		"toState":        address.State,
		"toCountry":      address.Country,
		"toPostalCode":   address.PostalCode,
		"toCity":         address.City,
		"weight": map[string]any{
			// Flat per-unit estimate; exact weights live in the
			// commerce mirror's catalog.
			"value": float64(units) * 8.0,
			"units": "ounces",
		},
	}

	var rates []shipStationRate
	if err := c.do(ctx, http.MethodPost, "/shipments/getrates", payload, &rates); err != nil {
		return nil, err
	}

	out := make([]Rate, 0, len(rates))
	for _, r := range rates {
		out = append(out, Rate{
			ServiceID: r.ServiceCode,
			Carrier:   r.CarrierCode,
			Cost:      r.ShipmentCost + r.OtherCost,
			ETADays:   r.DeliveryDays,
		})
	}
	return out, nil
}

type shipStationOrderResponse struct {
	OrderID     int64  `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

// ForwardOrder registers the order with ShipStation for fulfillment.
func (c *ShipStationClient) ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*ShipmentResult, error) {
	if !c.Configured() {
		return &ShipmentResult{Status: StatusSkipped, Reason: ReasonNotConfigured}, nil
	}

	items := make([]map[string]any, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, map[string]any{
			"sku":       it.ProductID,
			"name":      it.Name,
			"quantity":  it.Quantity,
			"unitPrice": it.Price,
		})
	}

	payload := map[string]any{
		"orderNumber":   order.ID,
		"orderDate":     order.CreatedAt.Format("2006-01-02T15:04:05"),
		"orderStatus":   "awaiting_payment",
		"amountPaid":    0,
		"orderTotal":    order.Total,
		"customerEmail": customer.Email,
		"billTo": map[string]any{
			"name": customer.FullName(),
		},
		"shipTo": map[string]any{
			"name":       customer.FullName(),
			"street1":    order.ShippingAddress.Line1,
			"street2":    order.ShippingAddress.Line2,
			"city":       order.ShippingAddress.City,
			"state":      order.ShippingAddress.State,
			"postalCode": order.ShippingAddress.PostalCode,
			"country":    order.ShippingAddress.Country,
		},
		"items": items,
	}

	var resp shipStationOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders/createorder", payload, &resp); err != nil {
		return nil, err
	}

	return &ShipmentResult{
		Status:             StatusSuccess,
		ExternalShipmentID: strconv.FormatInt(resp.OrderID, 10),
	}, nil
}

type shipStationStatusResponse struct {
	Orders []struct {
		OrderStatus string `json:"orderStatus"`
	} `json:"orders"`
}

// ShipmentStatus polls the provider-side status of a forwarded order.
func (c *ShipStationClient) ShipmentStatus(ctx context.Context, externalShipmentID string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("shipstation: %s", ReasonNotConfigured)
	}

	var resp shipStationStatusResponse
	path := "/orders?orderNumber=" + url.QueryEscape(externalShipmentID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Orders) == 0 {
		return "", fmt.Errorf("shipstation: order %s not found", externalShipmentID)
	}
	return resp.Orders[0].OrderStatus, nil
}

func (c *ShipStationClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("shipstation marshal: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("shipstation request build: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("shipstation request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("shipstation: status %d, body: %s", resp.StatusCode, truncate(raw, 512))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("shipstation unmarshal: %w", err)
		}
	}
	return nil
}
