package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
	"github.com/example/medsupply/internal/services"
	"github.com/example/medsupply/internal/utils"
)

// AdminHandler exposes back-office order operations.
type AdminHandler struct {
	orderRepo *repository.OrderRepository
	orders    *services.OrderService
	sync      *services.SyncService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(orderRepo *repository.OrderRepository, orders *services.OrderService, sync *services.SyncService) *AdminHandler {
	return &AdminHandler{orderRepo: orderRepo, orders: orders, sync: sync}
}

// ListOrders returns all orders across users, optionally filtered by
// status.
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	orders, err := h.orderRepo.All()
	if err != nil {
		return err
	}

	if status := c.Query("status"); status != "" {
		filtered := make([]models.Order, 0, len(orders))
		for _, o := range orders {
			if o.Status == status {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
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

// GetOrder returns any order by id, regardless of owner.
func (h *AdminHandler) GetOrder(c *fiber.Ctx) error {
	order, err := h.orderRepo.FindByID(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// MarkFulfilled records shipment completion for a paid order.
func (h *AdminHandler) MarkFulfilled(c *fiber.Ctx) error {
	order, err := h.orders.MarkFulfilled(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "order": order})
}

// TriggerSync runs one sync tick immediately instead of waiting for
// the timer.
func (h *AdminHandler) TriggerSync(c *fiber.Ctx) error {
	h.sync.RunOnce(c.Context())
	return c.JSON(fiber.Map{"success": true})
}
