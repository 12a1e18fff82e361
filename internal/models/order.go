package models

import "time"

// Order statuses.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
	OrderStatusFulfilled = "fulfilled"
)

// Integration providers recorded in Order.IntegrationDetails.
const (
	ProviderWoo         = "woocommerce"
	ProviderStripe      = "stripe"
	ProviderShipStation = "shipstation"
	ProviderMirror      = "mirror"
)

// orderTransitions describes the order state machine:
// pending -> paid -> (cancelled | fulfilled), pending -> cancelled.
var orderTransitions = map[string][]string{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusCancelled, OrderStatusFulfilled},
}

// CanTransition reports whether an order may move from one status to
// another. Terminal statuses have no outgoing transitions.
func CanTransition(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// OrderItem is one checkout line.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

// Address is a shipping destination.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

// IntegrationResult records the outcome of one provider dispatch.
type IntegrationResult struct {
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	ExternalID string     `json:"externalId,omitempty"`
	Error      string     `json:"error,omitempty"`
	SyncedAt   *time.Time `json:"syncedAt,omitempty"`
}

// Order is a checkout persisted in the orders collection.
type Order struct {
	ID                 string                       `json:"id"`
	UserID             string                       `json:"userId"`
	Items              []OrderItem                  `json:"items"`
	Total              float64                      `json:"total"`
	ShippingTotal      float64                      `json:"shippingTotal"`
	TaxTotal           float64                      `json:"taxTotal"`
	Status             string                       `json:"status"`
	ReferralCode       string                       `json:"referralCode,omitempty"`
	PaymentIntentID    string                       `json:"paymentIntentId,omitempty"`
	WooOrderID         string                       `json:"wooOrderId,omitempty"`
	ShipStationOrderID string                       `json:"shipStationOrderId,omitempty"`
	ShippingAddress    Address                      `json:"shippingAddress"`
	IdempotencyKey     string                       `json:"idempotencyKey,omitempty"`
	CancelReason       string                       `json:"cancelReason,omitempty"`
	CancelledAt        *time.Time                   `json:"cancelledAt,omitempty"`
	MirrorSyncedAt     *time.Time                   `json:"mirrorSyncedAt,omitempty"`
	MirrorDirty        bool                         `json:"mirrorDirty,omitempty"`
	IntegrationDetails map[string]IntegrationResult `json:"integrationDetails,omitempty"`
	CreatedAt          time.Time                    `json:"createdAt"`
	UpdatedAt          time.Time                    `json:"updatedAt"`
}

// Terminal reports whether the order reached a final status.
func (o *Order) Terminal() bool {
	return len(orderTransitions[o.Status]) == 0
}

// NeedsMirrorSync reports whether the background job should push this
// order to the relational mirror.
func (o *Order) NeedsMirrorSync() bool {
	return o.MirrorSyncedAt == nil || o.MirrorDirty
}
