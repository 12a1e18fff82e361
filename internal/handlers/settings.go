package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
)

// SettingsHandler exposes the singleton store settings to admins.
type SettingsHandler struct {
	settings *repository.SettingsRepository
}

// NewSettingsHandler constructs a SettingsHandler.
func NewSettingsHandler(settings *repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// Get returns the current settings.
func (h *SettingsHandler) Get(c *fiber.Ctx) error {
	settings, err := h.settings.Get()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "settings": settings})
}

// Pointer fields distinguish "not sent" from an explicit zero, so an
// admin can set a rate or threshold to 0.
type updateSettingsRequest struct {
	StoreName              *string  `json:"storeName"`
	SupportEmail           *string  `json:"supportEmail"`
	Currency               *string  `json:"currency"`
	ReferralCommissionRate *float64 `json:"referralCommissionRate"`
	FirstOrderBonusAmount  *float64 `json:"firstOrderBonusAmount"`
	TaxRate                *float64 `json:"taxRate"`
	FlatShippingRate       *float64 `json:"flatShippingRate"`
	FreeShippingThreshold  *float64 `json:"freeShippingThreshold"`
	AutoSubmitOrders       *bool    `json:"autoSubmitOrders"`
}

// Update patches the settings document.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.ReferralCommissionRate != nil && (*req.ReferralCommissionRate < 0 || *req.ReferralCommissionRate > 1) {
		return fiber.NewError(fiber.StatusBadRequest, "referralCommissionRate must be between 0 and 1")
	}
	if req.TaxRate != nil && (*req.TaxRate < 0 || *req.TaxRate > 1) {
		return fiber.NewError(fiber.StatusBadRequest, "taxRate must be between 0 and 1")
	}
	if req.FlatShippingRate != nil && *req.FlatShippingRate < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "flatShippingRate must not be negative")
	}
	if req.FirstOrderBonusAmount != nil && *req.FirstOrderBonusAmount < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "firstOrderBonusAmount must not be negative")
	}

	settings, err := h.settings.Update(func(s *models.Settings) {
		if req.StoreName != nil {
			s.StoreName = *req.StoreName
		}
		if req.SupportEmail != nil {
			s.SupportEmail = *req.SupportEmail
		}
		if req.Currency != nil {
			s.Currency = *req.Currency
		}
		if req.ReferralCommissionRate != nil {
			s.ReferralCommissionRate = *req.ReferralCommissionRate
		}
		if req.FirstOrderBonusAmount != nil {
			s.FirstOrderBonusAmount = *req.FirstOrderBonusAmount
		}
		if req.TaxRate != nil {
			s.TaxRate = *req.TaxRate
		}
		if req.FlatShippingRate != nil {
			s.FlatShippingRate = *req.FlatShippingRate
		}
		if req.FreeShippingThreshold != nil {
			s.FreeShippingThreshold = *req.FreeShippingThreshold
		}
		if req.AutoSubmitOrders != nil {
			s.AutoSubmitOrders = *req.AutoSubmitOrders
		}
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "settings": settings})
}
