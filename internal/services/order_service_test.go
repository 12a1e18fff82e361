package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/pkg/logger"
)

// Collaborator fakes.

type fakeCommerce struct {
	configured   bool
	forwardCalls int
	paidCalls    int
	forwardErr   error
	paidErr      error
	externalID   string
	lastPaidID   string
}

func (f *fakeCommerce) Configured() bool { return f.configured }

func (f *fakeCommerce) ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*integrations.ForwardResult, error) {
	f.forwardCalls++
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	return &integrations.ForwardResult{Status: integrations.StatusSuccess, ExternalOrderID: f.externalID}, nil
}

func (f *fakeCommerce) MarkOrderPaid(ctx context.Context, externalOrderID, paymentRef string) error {
	f.paidCalls++
	f.lastPaidID = externalOrderID
	return f.paidErr
}

type fakePayments struct {
	configured bool
	createErr  error
	intentID   string
}

func (f *fakePayments) Configured() bool { return f.configured }

func (f *fakePayments) CreatePaymentIntent(ctx context.Context, order models.Order, customer models.User) (*integrations.PaymentIntent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &integrations.PaymentIntent{
		ID:           f.intentID,
		ClientSecret: f.intentID + "_secret",
		Status:       "requires_payment_method",
		OrderID:      order.ID,
	}, nil
}

func (f *fakePayments) RetrievePaymentIntent(ctx context.Context, id string) (*integrations.PaymentIntent, error) {
	return &integrations.PaymentIntent{ID: id, Status: "succeeded"}, nil
}

func (f *fakePayments) VerifyWebhookEvent(payload []byte, signatureHeader string) (*integrations.PaymentEvent, error) {
	return nil, errors.New("not used in tests")
}

type fakeShipping struct {
	configured bool
	forwardErr error
	externalID string
	statuses   map[string]string
	rateErr    error
}

func (f *fakeShipping) Configured() bool { return f.configured }

func (f *fakeShipping) EstimateRates(ctx context.Context, address models.Address, items []models.OrderItem) ([]integrations.Rate, error) {
	if f.rateErr != nil {
		return nil, f.rateErr
	}
	return []integrations.Rate{{ServiceID: "usps_priority", Cost: 9.95, ETADays: 3}}, nil
}

func (f *fakeShipping) ForwardOrder(ctx context.Context, order models.Order, customer models.User) (*integrations.ShipmentResult, error) {
	if f.forwardErr != nil {
		return nil, f.forwardErr
	}
	return &integrations.ShipmentResult{Status: integrations.StatusSuccess, ExternalShipmentID: f.externalID}, nil
}

func (f *fakeShipping) ShipmentStatus(ctx context.Context, externalShipmentID string) (string, error) {
	status, ok := f.statuses[externalShipmentID]
	if !ok {
		return "", errors.New("unknown shipment")
	}
	return status, nil
}

func newOrderService(env *testEnv, commerce integrations.CommerceMirror, payments integrations.PaymentProvider, shipping integrations.ShippingProvider) *OrderService {
	return NewOrderService(
		env.orders, env.users, env.settings, env.referrals,
		commerce, payments, shipping, nil,
		logger.NewNopLogger(),
	)
}

func checkoutItems() []models.OrderItem {
	return []models.OrderItem{
		{ProductID: "sku-100", Name: "Nitrile Gloves", Quantity: 2, Price: 25.00},
		{ProductID: "sku-200", Name: "Gauze Pads", Quantity: 1, Price: 50.00},
	}
}

func TestCreateOrderValidatesItems(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	tests := []struct {
		name  string
		items []models.OrderItem
	}{
		{"no items", nil},
		{"zero quantity", []models.OrderItem{{ProductID: "p", Quantity: 0, Price: 5}}},
		{"negative price", []models.OrderItem{{ProductID: "p", Quantity: 1, Price: -5}}},
		{"missing product id", []models.OrderItem{{Quantity: 1, Price: 5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
				UserID: buyer.ID,
				Items:  tt.items,
			})
			_, ok := apperrors.AsValidation(err)
			assert.True(t, ok, "expected validation error, got %v", err)
		})
	}
}

func TestCreateOrderComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(), // subtotal 100.00
	})
	require.NoError(t, err)

	defaults := models.DefaultSettings()
	assert.Equal(t, models.OrderStatusPending, res.Order.Status)
	assert.Equal(t, defaults.FlatShippingRate, res.Order.ShippingTotal, "100 is under the free-shipping threshold")
	assert.Equal(t, 100.00+defaults.FlatShippingRate, res.Order.Total)
}

func TestCreateOrderFreeShippingThreshold(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	env.createUser(t, "buyer@example.com", "DEF456")

	totals, err := svc.EstimateOrderTotals([]models.OrderItem{
		{ProductID: "sku-100", Quantity: 10, Price: 20.00}, // 200.00
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, totals.ShippingTotal)
	assert.Equal(t, 200.00, totals.Total)

	// Estimation persists nothing.
	orders, err := env.orders.All()
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCreateOrderRecordsSkippedIntegrations(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	for _, provider := range []string{models.ProviderWoo, models.ProviderStripe, models.ProviderShipStation} {
		detail := res.Order.IntegrationDetails[provider]
		assert.Equal(t, integrations.StatusSkipped, detail.Status, provider)
		assert.Equal(t, integrations.ReasonNotConfigured, detail.Reason, provider)
	}
}

func TestCreateOrderHonorsAutoSubmitDisabled(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.settings.Update(func(s *models.Settings) {
		s.AutoSubmitOrders = false
	})
	require.NoError(t, err)

	commerce := &fakeCommerce{configured: true, externalID: "woo-1"}
	shipping := &fakeShipping{configured: true, externalID: "ss-1"}
	svc := newOrderService(env, commerce, nil, shipping)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	assert.Zero(t, commerce.forwardCalls)
	assert.Equal(t, integrations.ReasonAutoSubmitDisabled, res.Order.IntegrationDetails[models.ProviderWoo].Reason)
	assert.Equal(t, integrations.ReasonAutoSubmitDisabled, res.Order.IntegrationDetails[models.ProviderShipStation].Reason)
}

func TestCreateOrderCapturesExternalIDs(t *testing.T) {
	env := newTestEnv(t)
	commerce := &fakeCommerce{configured: true, externalID: "woo-77"}
	payments := &fakePayments{configured: true, intentID: "pi_77"}
	shipping := &fakeShipping{configured: true, externalID: "ss-77"}
	svc := newOrderService(env, commerce, payments, shipping)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	assert.Equal(t, "woo-77", res.Order.WooOrderID)
	assert.Equal(t, "pi_77", res.Order.PaymentIntentID)
	assert.Equal(t, "ss-77", res.Order.ShipStationOrderID)
	assert.Equal(t, integrations.StatusSuccess, res.Order.IntegrationDetails[models.ProviderWoo].Status)
}

func TestCreateOrderSurvivesProviderFailure(t *testing.T) {
	env := newTestEnv(t)
	commerce := &fakeCommerce{configured: true, forwardErr: errors.New("woo is down")}
	svc := newOrderService(env, commerce, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err, "a provider outage must not fail checkout")

	detail := res.Order.IntegrationDetails[models.ProviderWoo]
	assert.Equal(t, integrations.StatusPending, detail.Status)
	assert.Equal(t, integrations.ReasonProviderError, detail.Reason)
	assert.Contains(t, detail.Error, "woo is down")
}

func TestCreateOrderIdempotencyKeyReplaysOriginal(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	in := CreateOrderInput{
		UserID:         buyer.ID,
		Items:          checkoutItems(),
		IdempotencyKey: "idem-abc",
	}

	first, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	orders, err := env.orders.All()
	require.NoError(t, err)
	assert.Len(t, orders, 1, "no duplicate order may be created")
}

func TestCreateOrderIdempotencySurvivesRestart(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	in := CreateOrderInput{
		UserID:         buyer.ID,
		Items:          checkoutItems(),
		IdempotencyKey: "idem-restart",
	}

	first, err := newOrderService(env, nil, nil, nil).CreateOrder(context.Background(), in)
	require.NoError(t, err)

	// A fresh service instance has an empty in-memory table but finds
	// the persisted key on the order record.
	second, err := newOrderService(env, nil, nil, nil).CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
}

func TestCancelOrder(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")
	other := env.createUser(t, "other@example.com", "GHI789")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	// Foreign orders look like missing orders.
	_, err = svc.CancelOrder(other.ID, res.Order.ID, "not mine")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = svc.CancelOrder(buyer.ID, "missing", "")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	cancelled, err := svc.CancelOrder(buyer.ID, res.Order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	assert.Equal(t, "changed my mind", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	// Cancelling an already-cancelled order is a conflict.
	_, err = svc.CancelOrder(buyer.ID, res.Order.ID, "again")
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestOrderStateMachine(t *testing.T) {
	assert.True(t, models.CanTransition(models.OrderStatusPending, models.OrderStatusPaid))
	assert.True(t, models.CanTransition(models.OrderStatusPending, models.OrderStatusCancelled))
	assert.True(t, models.CanTransition(models.OrderStatusPaid, models.OrderStatusFulfilled))
	assert.True(t, models.CanTransition(models.OrderStatusPaid, models.OrderStatusCancelled))
	assert.False(t, models.CanTransition(models.OrderStatusPaid, models.OrderStatusPending))
	assert.False(t, models.CanTransition(models.OrderStatusCancelled, models.OrderStatusPaid))
	assert.False(t, models.CanTransition(models.OrderStatusFulfilled, models.OrderStatusCancelled))
}

func TestFinalizePaymentIntent(t *testing.T) {
	env := newTestEnv(t)
	commerce := &fakeCommerce{configured: true, externalID: "woo-5"}
	payments := &fakePayments{configured: true, intentID: "pi_5"}
	svc := newOrderService(env, commerce, payments, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	res, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	paid, err := svc.FinalizePaymentIntent(context.Background(), "pi_5")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
	assert.Equal(t, res.Order.ID, paid.ID)
	assert.Equal(t, 1, commerce.paidCalls)
	assert.Equal(t, "woo-5", commerce.lastPaidID)

	// Retried webhook is a no-op.
	again, err := svc.FinalizePaymentIntent(context.Background(), "pi_5")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, again.Status)
	assert.Equal(t, 1, commerce.paidCalls)

	_, err = svc.FinalizePaymentIntent(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestFinalizePaymentIntentSurvivesMirrorFailure(t *testing.T) {
	env := newTestEnv(t)
	commerce := &fakeCommerce{configured: true, externalID: "woo-6", paidErr: errors.New("woo timeout")}
	payments := &fakePayments{configured: true, intentID: "pi_6"}
	svc := newOrderService(env, commerce, payments, nil)
	buyer := env.createUser(t, "buyer@example.com", "DEF456")

	_, err := svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: buyer.ID,
		Items:  checkoutItems(),
	})
	require.NoError(t, err)

	paid, err := svc.FinalizePaymentIntent(context.Background(), "pi_6")
	require.NoError(t, err, "a downstream notification failure must not roll back the transition")
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
}

// End-to-end referral checkout scenario: A refers, B buys, repeat call
// credits once.
func TestCheckoutWithReferralEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	svc := newOrderService(env, nil, nil, nil)

	userA := env.createUser(t, "a@example.com", "ABC123")
	userB := env.createUser(t, "b@example.com", "XYZ999")

	// Zero the tax/shipping noise so the total is exactly 100.00.
	_, err := env.settings.Update(func(s *models.Settings) {
		s.FlatShippingRate = 0
		s.TaxRate = 0
		s.FirstOrderBonusAmount = 0
	})
	require.NoError(t, err)

	in := CreateOrderInput{
		UserID:         userB.ID,
		Items:          []models.OrderItem{{ProductID: "sku-1", Quantity: 1, Price: 100.00}},
		ReferralCode:   "ABC123",
		IdempotencyKey: "checkout-1",
	}

	res, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res.Referral)
	assert.Equal(t, userA.ID, res.Referral.ReferrerID)
	assert.Equal(t, 5.00, res.Referral.Commission)

	storedA, err := env.users.FindByID(userA.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, storedA.ReferralCredits)
	assert.Equal(t, 1, storedA.TotalReferrals)
	assert.Contains(t, storedA.ReferralOrdersCredited, res.Order.ID)

	// Identical checkout replay: same order, credits unchanged.
	replay, err := svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, res.Order.ID, replay.Order.ID)

	storedA, err = env.users.FindByID(userA.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.00, storedA.ReferralCredits)
	assert.Equal(t, 1, storedA.TotalReferrals)
}
