package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/middleware"
	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/services"
	"github.com/example/medsupply/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	Items           []models.OrderItem `json:"items"`
	ReferralCode    string             `json:"referralCode"`
	ShippingAddress models.Address     `json:"shippingAddress"`
}

// CreateOrder allows authenticated users to place an order. Repeat
// submissions with the same Idempotency-Key header return the original
// order instead of creating a duplicate.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.orders.CreateOrder(c.Context(), services.CreateOrderInput{
		UserID:          userID,
		Items:           req.Items,
		ReferralCode:    req.ReferralCode,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  c.Get("Idempotency-Key"),
	})
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if result.Replayed {
		status = fiber.StatusOK
	}

	body := fiber.Map{
		"success":  true,
		"order":    result.Order,
		"replayed": result.Replayed,
	}
	if result.Referral != nil {
		body["referral"] = result.Referral
	}
	return c.Status(status).JSON(body)
}

// ListOrders returns the authenticated user's orders, newest first.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	orders, err := h.orders.ListOrders(userID)
	if err != nil {
		return err
	}

	page := utils.ParsePagination(c)
	total := len(orders)
	start := page.Offset
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}

	return c.JSON(fiber.Map{
		"success": true,
		"orders":  orders[start:end],
		"total":   total,
		"page":    page.Page,
		"limit":   page.Limit,
	})
}

// GetOrder returns a single order owned by the authenticated user.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	order, err := h.orders.GetOrder(userID, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels an order that has not yet shipped.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req cancelOrderRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	order, err := h.orders.CancelOrder(userID, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"order":   order,
	})
}

type estimateRequest struct {
	Items           []models.OrderItem `json:"items"`
	ShippingAddress models.Address     `json:"shippingAddress"`
}

// EstimateTotals returns the money breakdown for a cart without
// persisting anything.
func (h *OrderHandler) EstimateTotals(c *fiber.Ctx) error {
	var req estimateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	totals, err := h.orders.EstimateOrderTotals(req.Items)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"totals":  totals,
	})
}

// EstimateRates quotes shipping rates for a cart and destination.
func (h *OrderHandler) EstimateRates(c *fiber.Ctx) error {
	var req estimateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	rates, err := h.orders.EstimateShippingRates(c.Context(), req.ShippingAddress, req.Items)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"rates":   rates,
	})
}

// Checkout opens a payment intent for a pending order.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	intent, err := h.orders.BeginCheckout(c.Context(), userID, c.Params("id"))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"paymentIntentId": intent.ID,
		"clientSecret":    intent.ClientSecret,
	})
}
