package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/internal/integrations"
	"github.com/example/medsupply/internal/services"
	"github.com/example/medsupply/pkg/logger"
)

// WebhookHandler receives payment-provider callbacks.
type WebhookHandler struct {
	payments integrations.PaymentProvider
	orders   *services.OrderService
	log      logger.Logger
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(payments integrations.PaymentProvider, orders *services.OrderService, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		payments: payments,
		orders:   orders,
		log:      log.WithField("component", "webhooks"),
	}
}

// Stripe verifies and applies a Stripe webhook event. Signature
// failures are 400s; events for unknown payment intents are
// acknowledged so the provider stops retrying them.
func (h *WebhookHandler) Stripe(c *fiber.Ctx) error {
	if h.payments == nil || !h.payments.Configured() {
		return fiber.NewError(fiber.StatusServiceUnavailable, "payment provider not configured")
	}

	event, err := h.payments.VerifyWebhookEvent(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		h.log.WithField("error", err.Error()).Warn("webhook verification failed")
		return fiber.NewError(fiber.StatusBadRequest, "invalid webhook signature")
	}

	switch event.Type {
	case "payment_intent.succeeded":
		if _, err := h.orders.FinalizePaymentIntent(c.Context(), event.PaymentIntentID); err != nil {
			switch {
			case errors.Is(err, apperrors.ErrNotFound):
				// Acknowledge so the provider stops retrying an event
				// this system can never apply.
				h.log.WithField("paymentIntent", event.PaymentIntentID).
					Warn("webhook for unknown payment intent")
			case errors.Is(err, apperrors.ErrInvalidState):
				// Local state is authoritative; a confirmation for an
				// already-cancelled order is acknowledged, not retried.
				h.log.WithField("paymentIntent", event.PaymentIntentID).
					Warn("payment confirmed for an order in a terminal state")
			default:
				return err
			}
		}
	default:
		// Unhandled event types are acknowledged without action.
	}

	return c.JSON(fiber.Map{"received": true})
}
