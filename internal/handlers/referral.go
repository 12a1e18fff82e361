package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/middleware"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/services"
)

// ReferralHandler exposes the referral dashboard and the admin-side
// pooled-code lifecycle.
type ReferralHandler struct {
	referrals *services.ReferralService
	codes     *repository.ReferralCodeRepository
	ledger    *repository.LedgerRepository
}

// NewReferralHandler constructs a ReferralHandler.
func NewReferralHandler(referrals *services.ReferralService, codes *repository.ReferralCodeRepository, ledger *repository.LedgerRepository) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, codes: codes, ledger: ledger}
}

// Stats returns the authenticated user's referral standing.
func (h *ReferralHandler) Stats(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	stats, err := h.referrals.StatsFor(userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"stats":   stats,
	})
}

// Ledger returns the authenticated user's credit ledger entries.
func (h *ReferralHandler) Ledger(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	entries, err := h.ledger.EntriesFor(userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"entries": entries,
	})
}

// ListPoolCodes returns every pooled referral code.
func (h *ReferralHandler) ListPoolCodes(c *fiber.Ctx) error {
	if repID := c.Query("salesRepId"); repID != "" {
		codes, err := h.codes.ForSalesRep(repID)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "codes": codes})
	}

	codes, err := h.codes.All()
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "codes": codes})
}

// MintPoolCode creates a new unassigned pooled code.
func (h *ReferralHandler) MintPoolCode(c *fiber.Ctx) error {
	code, err := h.referrals.MintPoolCode()
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"code":    code,
	})
}

type poolCodeRequest struct {
	SalesRepID string `json:"salesRepId"`
	Note       string `json:"note"`
}

// AssignPoolCode hands an available pooled code to a sales rep.
func (h *ReferralHandler) AssignPoolCode(c *fiber.Ctx) error {
	var req poolCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.SalesRepID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "salesRepId is required")
	}

	code, err := h.referrals.AssignPoolCode(c.Params("id"), req.SalesRepID, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": code})
}

// RevokePoolCode pulls an assigned code back from its rep.
func (h *ReferralHandler) RevokePoolCode(c *fiber.Ctx) error {
	var req poolCodeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code, err := h.referrals.RevokePoolCode(c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": code})
}

// RetirePoolCode permanently retires a pooled code.
func (h *ReferralHandler) RetirePoolCode(c *fiber.Ctx) error {
	var req poolCodeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	code, err := h.referrals.RetirePoolCode(c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "code": code})
}
