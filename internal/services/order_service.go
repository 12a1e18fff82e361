package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/utils"
	"github.com/example/medsupply/pkg/logger"
)

const (
	// Per-provider dispatch budget during checkout. A slow provider
	// degrades into a pending integration record, never a slow or
	// failed order.
	dispatchTimeout = 10 * time.Second

	idempotencyTTL = 24 * time.Hour
)

// OrderService drives the order state machine: pending -> paid ->
// (cancelled | fulfilled), with pending -> cancelled before payment.
type OrderService struct {
	orders    *repository.OrderRepository
	users     *repository.UserRepository
	settings  *repository.SettingsRepository
	referrals *ReferralService

	commerce integrations.CommerceMirror
	payments integrations.PaymentProvider
	shipping integrations.ShippingProvider
	notifier *TelegramService

	idem *idempotencyTable
	log  logger.Logger
}

// NewOrderService constructs an OrderService. Any collaborator may be
// nil; dispatches to a nil collaborator are recorded as skipped.
func NewOrderService(
	orders *repository.OrderRepository,
	users *repository.UserRepository,
	settings *repository.SettingsRepository,
	referrals *ReferralService,
	commerce integrations.CommerceMirror,
	payments integrations.PaymentProvider,
	shipping integrations.ShippingProvider,
	notifier *TelegramService,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		users:     users,
		settings:  settings,
		referrals: referrals,
		commerce:  commerce,
		payments:  payments,
		shipping:  shipping,
		notifier:  notifier,
		idem:      newIdempotencyTable(idempotencyTTL),
		log:       log.WithField("component", "orders"),
	}
}

// CreateOrderInput is the checkout payload after handler-level parsing.
type CreateOrderInput struct {
	UserID          string
	Items           []models.OrderItem
	ReferralCode    string
	ShippingAddress models.Address
	IdempotencyKey  string
}

// CreateOrderResult bundles the persisted order with the referral
// outcome. Replayed is true when an idempotency key matched a prior
// submission and no new order was created.
type CreateOrderResult struct {
	Order    models.Order
	Referral *ReferralCredit
	Replayed bool
}

// OrderTotals is the computed money breakdown for a set of items.
type OrderTotals struct {
	Subtotal      float64 `json:"subtotal"`
	ShippingTotal float64 `json:"shippingTotal"`
	TaxTotal      float64 `json:"taxTotal"`
	Total         float64 `json:"total"`
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return apperrors.NewFieldValidation("invalid order", map[string]string{
			"items": "order must contain at least one item",
		})
	}
	for i, it := range items {
		if it.ProductID == "" {
			return apperrors.NewFieldValidation("invalid order", map[string]string{
				fmt.Sprintf("items[%d].productId", i): "product id is required",
			})
		}
		if it.Quantity <= 0 {
			return apperrors.NewFieldValidation("invalid order", map[string]string{
				fmt.Sprintf("items[%d].quantity", i): "quantity must be positive",
			})
		}
		if it.Price < 0 || math.IsNaN(it.Price) || math.IsInf(it.Price, 0) {
			return apperrors.NewFieldValidation("invalid order", map[string]string{
				fmt.Sprintf("items[%d].price", i): "price must be a non-negative number",
			})
		}
	}
	return nil
}

func computeTotals(items []models.OrderItem, settings models.Settings) OrderTotals {
	subtotal := 0.0
	for _, it := range items {
		subtotal = utils.SumMoney(subtotal, utils.MulMoney(it.Price, it.Quantity))
	}

	shipping := settings.FlatShippingRate
	if settings.FreeShippingThreshold > 0 && subtotal >= settings.FreeShippingThreshold {
		shipping = 0
	}

	tax := utils.Commission(subtotal, settings.TaxRate)

	return OrderTotals{
		Subtotal:      subtotal,
		ShippingTotal: shipping,
		TaxTotal:      tax,
		Total:         utils.SumMoney(subtotal, shipping, tax),
	}
}

// EstimateOrderTotals recomputes the money breakdown for pre-checkout
// display. Nothing is persisted.
func (s *OrderService) EstimateOrderTotals(items []models.OrderItem) (*OrderTotals, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}
	totals := computeTotals(items, settings)
	return &totals, nil
}

// CreateOrder validates and persists a new pending order, applies the
// referral credit, and dispatches the order to the configured
// providers. Provider failures are recorded on the order, never
// propagated. Repeat submissions with the same idempotency key return
// the originally created order.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.IdempotencyKey != "" {
		if orderID, ok := s.idem.lookup(in.IdempotencyKey); ok {
			if existing, err := s.orders.FindByID(orderID); err == nil {
				return &CreateOrderResult{Order: *existing, Replayed: true}, nil
			}
		}
		if existing, err := s.orders.FindByIdempotencyKey(in.IdempotencyKey); err == nil {
			return &CreateOrderResult{Order: *existing, Replayed: true}, nil
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	customer, err := s.users.FindByID(in.UserID)
	if err != nil {
		return nil, err
	}

	settings, err := s.settings.Get()
	if err != nil {
		return nil, err
	}
	totals := computeTotals(in.Items, settings)

	order, err := s.orders.Insert(models.Order{
		UserID:             in.UserID,
		Items:              in.Items,
		Total:              totals.Total,
		ShippingTotal:      totals.ShippingTotal,
		TaxTotal:           totals.TaxTotal,
		Status:             models.OrderStatusPending,
		ReferralCode:       in.ReferralCode,
		ShippingAddress:    in.ShippingAddress,
		IdempotencyKey:     in.IdempotencyKey,
		IntegrationDetails: map[string]models.IntegrationResult{},
	})
	if err != nil {
		return nil, err
	}
	s.idem.remember(in.IdempotencyKey, order.ID)

	// Crediting the referrer is a cross-collection side effect. It is
	// eventually consistent with the order write; the credited-orders
	// guard keeps retries safe.
	credit, err := s.referrals.ApplyReferralCredit(CreditInput{
		ReferralCode: in.ReferralCode,
		Total:        totals.Total,
		PurchaserID:  in.UserID,
		OrderID:      order.ID,
	})
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"order": order.ID,
			"error": err.Error(),
		}).Error("referral credit failed")
		credit = nil
	}

	order = s.dispatchIntegrations(ctx, order, customer, settings)

	if s.notifier != nil {
		go s.notifier.NotifyNewOrder(*order, *customer, credit)
	}

	return &CreateOrderResult{Order: *order, Referral: credit}, nil
}

// dispatchIntegrations pushes the order to the commerce, payment and
// shipping providers, recording a per-provider outcome. External ids
// obtained synchronously are captured onto the order.
func (s *OrderService) dispatchIntegrations(ctx context.Context, order *models.Order, customer *models.User, settings models.Settings) *models.Order {
	details := map[string]models.IntegrationResult{}
	now := time.Now().UTC()
	var wooOrderID, paymentIntentID, shipStationOrderID string

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	// Commerce mirror.
	switch {
	case s.commerce == nil || !s.commerce.Configured():
		details[models.ProviderWoo] = models.IntegrationResult{
			Status: integrations.StatusSkipped,
			Reason: integrations.ReasonNotConfigured,
		}
	case !settings.AutoSubmitOrders:
		details[models.ProviderWoo] = models.IntegrationResult{
			Status: integrations.StatusSkipped,
			Reason: integrations.ReasonAutoSubmitDisabled,
		}
	default:
		result, err := s.commerce.ForwardOrder(dispatchCtx, *order, *customer)
		if err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Warn("commerce forward failed")
			details[models.ProviderWoo] = models.IntegrationResult{
				Status: integrations.StatusPending,
				Reason: integrations.ReasonProviderError,
				Error:  err.Error(),
			}
		} else {
			wooOrderID = result.ExternalOrderID
			details[models.ProviderWoo] = models.IntegrationResult{
				Status:     result.Status,
				Reason:     result.Reason,
				ExternalID: result.ExternalOrderID,
				SyncedAt:   &now,
			}
		}
	}

	// Payment provider.
	if s.payments == nil || !s.payments.Configured() {
		details[models.ProviderStripe] = models.IntegrationResult{
			Status: integrations.StatusSkipped,
			Reason: integrations.ReasonNotConfigured,
		}
	} else {
		intent, err := s.payments.CreatePaymentIntent(dispatchCtx, *order, *customer)
		if err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Warn("payment intent creation failed")
			details[models.ProviderStripe] = models.IntegrationResult{
				Status: integrations.StatusPending,
				Reason: integrations.ReasonProviderError,
				Error:  err.Error(),
			}
		} else {
			paymentIntentID = intent.ID
			details[models.ProviderStripe] = models.IntegrationResult{
				Status:     integrations.StatusSuccess,
				ExternalID: intent.ID,
				SyncedAt:   &now,
			}
		}
	}

	// Shipping provider.
	switch {
	case s.shipping == nil || !s.shipping.Configured():
		details[models.ProviderShipStation] = models.IntegrationResult{
			Status: integrations.StatusSkipped,
			Reason: integrations.ReasonNotConfigured,
		}
	case !settings.AutoSubmitOrders:
		details[models.ProviderShipStation] = models.IntegrationResult{
			Status: integrations.StatusSkipped,
			Reason: integrations.ReasonAutoSubmitDisabled,
		}
	default:
		result, err := s.shipping.ForwardOrder(dispatchCtx, *order, *customer)
		if err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": order.ID,
				"error": err.Error(),
			}).Warn("shipping forward failed")
			details[models.ProviderShipStation] = models.IntegrationResult{
				Status: integrations.StatusPending,
				Reason: integrations.ReasonProviderError,
				Error:  err.Error(),
			}
		} else {
			shipStationOrderID = result.ExternalShipmentID
			details[models.ProviderShipStation] = models.IntegrationResult{
				Status:     result.Status,
				Reason:     result.Reason,
				ExternalID: result.ExternalShipmentID,
				SyncedAt:   &now,
			}
		}
	}

	updated, err := s.orders.Update(order.ID, func(o *models.Order) {
		o.IntegrationDetails = details
		if wooOrderID != "" {
			o.WooOrderID = wooOrderID
		}
		if paymentIntentID != "" {
			o.PaymentIntentID = paymentIntentID
		}
		if shipStationOrderID != "" {
			o.ShipStationOrderID = shipStationOrderID
		}
	})
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"order": order.ID,
			"error": err.Error(),
		}).Error("failed to record integration state")
		return order
	}
	return updated
}

// GetOrder returns an order owned by the requesting user.
func (s *OrderService) GetOrder(userID, orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		// Ownership failures look identical to missing records so ids
		// cannot be probed.
		return nil, apperrors.ErrNotFound
	}
	return order, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(userID string) ([]models.Order, error) {
	return s.orders.FindByUserID(userID)
}

// CancelOrder transitions an order to cancelled on behalf of its owner.
func (s *OrderService) CancelOrder(userID, orderID, reason string) (*models.Order, error) {
	order, err := s.GetOrder(userID, orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, models.OrderStatusCancelled) {
		return nil, apperrors.ErrInvalidState
	}

	now := time.Now().UTC()
	return s.orders.Update(order.ID, func(o *models.Order) {
		o.Status = models.OrderStatusCancelled
		o.CancelReason = reason
		o.CancelledAt = &now
		o.MirrorDirty = true
	})
}

// BeginCheckout opens a payment intent for a pending order and stores
// the correlation id.
func (s *OrderService) BeginCheckout(ctx context.Context, userID, orderID string) (*integrations.PaymentIntent, error) {
	order, err := s.GetOrder(userID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, apperrors.ErrInvalidState
	}
	if s.payments == nil || !s.payments.Configured() {
		return nil, fmt.Errorf("payment provider %s", integrations.ReasonNotConfigured)
	}

	customer, err := s.users.FindByID(userID)
	if err != nil {
		return nil, err
	}

	intent, err := s.payments.CreatePaymentIntent(ctx, *order, *customer)
	if err != nil {
		return nil, err
	}

	if _, err := s.orders.Update(order.ID, func(o *models.Order) {
		o.PaymentIntentID = intent.ID
		o.MirrorDirty = true
	}); err != nil {
		return nil, err
	}
	return intent, nil
}

// FinalizePaymentIntent handles a verified payment confirmation: the
// local order transitions to paid, and the commerce mirror is notified
// best-effort. A mirror failure is logged, never raised; the local
// transition is authoritative and the sync job reconciles later.
func (s *OrderService) FinalizePaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	order, err := s.orders.FindByPaymentIntentID(paymentIntentID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusPaid {
		// Payment webhooks are retried by the provider; a second
		// confirmation is a no-op.
		return order, nil
	}
	if !models.CanTransition(order.Status, models.OrderStatusPaid) {
		return nil, apperrors.ErrInvalidState
	}

	updated, err := s.orders.Update(order.ID, func(o *models.Order) {
		o.Status = models.OrderStatusPaid
		o.MirrorDirty = true
	})
	if err != nil {
		return nil, err
	}

	if s.commerce != nil && s.commerce.Configured() && updated.WooOrderID != "" {
		notifyCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		if err := s.commerce.MarkOrderPaid(notifyCtx, updated.WooOrderID, paymentIntentID); err != nil {
			s.log.WithFields(map[string]interface{}{
				"order": updated.ID,
				"error": err.Error(),
			}).Warn("commerce paid notification failed, sync job will reconcile")
		}
	}

	if s.notifier != nil {
		go s.notifier.NotifyPaymentReceived(*updated)
	}

	return updated, nil
}

// MarkFulfilled records shipment completion reported by the shipping
// provider.
func (s *OrderService) MarkFulfilled(orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(order.Status, models.OrderStatusFulfilled) {
		return nil, apperrors.ErrInvalidState
	}
	return s.orders.Update(order.ID, func(o *models.Order) {
		o.Status = models.OrderStatusFulfilled
		o.MirrorDirty = true
	})
}

// EstimateShippingRates proxies a rate quote to the shipping provider.
func (s *OrderService) EstimateShippingRates(ctx context.Context, address models.Address, items []models.OrderItem) ([]integrations.Rate, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}
	if s.shipping == nil || !s.shipping.Configured() {
		return nil, fmt.Errorf("shipping provider %s", integrations.ReasonNotConfigured)
	}
	return s.shipping.EstimateRates(ctx, address, items)
}
