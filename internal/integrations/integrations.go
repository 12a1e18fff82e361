// Package integrations defines the collaborator interfaces the order
// lifecycle depends on, plus thin HTTP clients for the real providers.
// Failures here are isolated per provider: they are recorded on the
// order's integration state and never cascade into rejecting the core
// transition they are attached to.
package integrations

import (
	"context"

	"github.com/example/medsupply/internal/models"
)

// Dispatch statuses recorded per provider.
const (
	StatusSuccess = "success"
	StatusPending = "pending"
	StatusSkipped = "skipped"
)

// Machine-readable reasons attached to skipped/pending dispatches.
const (
	ReasonNotConfigured      = "not_configured"
	ReasonAutoSubmitDisabled = "auto_submit_disabled"
	ReasonProviderError      = "provider_error"
	ReasonMirrorDisabled     = "mirror_disabled"
)

// ForwardResult is the outcome of pushing an order to the commerce
// mirror.
type ForwardResult struct {
	Status          string
	Reason          string
	ExternalOrderID string
}

// CommerceMirror is the external commerce platform orders are mirrored
// into (WooCommerce in production).
type CommerceMirror interface {
	Configured() bool
	ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*ForwardResult, error)
	MarkOrderPaid(ctx context.Context, externalOrderID, paymentRef string) error
}

// PaymentIntent is the provider-side payment reference for an order.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	OrderID      string
}

// PaymentEvent is a verified inbound webhook event.
type PaymentEvent struct {
	Type            string
	PaymentIntentID string
	OrderID         string
}

// PaymentProvider creates and retrieves payment intents and verifies
// inbound webhook events (Stripe in production).
type PaymentProvider interface {
	Configured() bool
	CreatePaymentIntent(ctx context.Context, order models.Order, customer models.User) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)
	VerifyWebhookEvent(payload []byte, signatureHeader string) (*PaymentEvent, error)
}

// Rate is one shipping-rate quote.
type Rate struct {
	ServiceID string  `json:"serviceId"`
	Carrier   string  `json:"carrier,omitempty"`
	Cost      float64 `json:"cost"`
	ETADays   int     `json:"etaDays"`
}

// ShipmentResult is the outcome of forwarding an order to the shipping
// provider.
type ShipmentResult struct {
	Status             string
	Reason             string
	ExternalShipmentID string
}

// ShippingProvider quotes rates and tracks shipments (ShipEngine /
// ShipStation in production).
type ShippingProvider interface {
	Configured() bool
	EstimateRates(ctx context.Context, address models.Address, items []models.OrderItem) ([]Rate, error)
	ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*ShipmentResult, error)
	ShipmentStatus(ctx context.Context, externalShipmentID string) (string, error)
}

// MirrorResult is the per-order outcome of a relational-mirror push.
type MirrorResult struct {
	Status string
	Reason string
}

// RelationalMirror is the optional secondary store kept eventually
// consistent with local order state by the background sync job.
type RelationalMirror interface {
	PersistOrder(ctx context.Context, order models.Order) (*MirrorResult, error)
	FetchByUserID(ctx context.Context, userID string) ([]models.Order, error)
}
