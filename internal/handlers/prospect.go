package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/models"
	"github.com/example/medsupply/internal/repository"
)

var prospectStatuses = map[string]bool{
	models.ProspectStatusNew:       true,
	models.ProspectStatusContacted: true,
	models.ProspectStatusConverted: true,
	models.ProspectStatusClosed:    true,
}

// ProspectHandler manages the sales-prospect pipeline used by reps.
type ProspectHandler struct {
	prospects *repository.ProspectRepository
}

// NewProspectHandler constructs a ProspectHandler.
func NewProspectHandler(prospects *repository.ProspectRepository) *ProspectHandler {
	return &ProspectHandler{prospects: prospects}
}

// List returns every prospect, optionally filtered by status.
func (h *ProspectHandler) List(c *fiber.Ctx) error {
	prospects, err := h.prospects.All()
	if err != nil {
		return err
	}

	if status := c.Query("status"); status != "" {
		filtered := make([]models.Prospect, 0, len(prospects))
		for _, p := range prospects {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		prospects = filtered
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"prospects": prospects,
	})
}

// Get returns a single prospect.
func (h *ProspectHandler) Get(c *fiber.Ctx) error {
	prospect, err := h.prospects.FindByID(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "prospect": prospect})
}

type prospectRequest struct {
	Name       string `json:"name"`
	ClinicName string `json:"clinicName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Status     string `json:"status"`
	Notes      string `json:"notes"`
	SalesRepID string `json:"salesRepId"`
}

// Create registers a new prospect.
func (h *ProspectHandler) Create(c *fiber.Ctx) error {
	var req prospectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status != "" && !prospectStatuses[req.Status] {
		return fiber.NewError(fiber.StatusBadRequest, "unknown prospect status")
	}

	prospect, err := h.prospects.Insert(models.Prospect{
		Name:       req.Name,
		ClinicName: req.ClinicName,
		Email:      req.Email,
		Phone:      req.Phone,
		Status:     req.Status,
		Notes:      req.Notes,
		SalesRepID: req.SalesRepID,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"prospect": prospect,
	})
}

// Update patches an existing prospect. Empty fields are left untouched.
func (h *ProspectHandler) Update(c *fiber.Ctx) error {
	var req prospectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Status != "" && !prospectStatuses[req.Status] {
		return fiber.NewError(fiber.StatusBadRequest, "unknown prospect status")
	}

	prospect, err := h.prospects.Update(c.Params("id"), func(p *models.Prospect) {
		if req.Name != "" {
			p.Name = req.Name
		}
		if req.ClinicName != "" {
			p.ClinicName = req.ClinicName
		}
		if req.Email != "" {
			p.Email = req.Email
		}
		if req.Phone != "" {
			p.Phone = req.Phone
		}
		if req.Status != "" {
			p.Status = req.Status
		}
		if req.Notes != "" {
			p.Notes = req.Notes
		}
		if req.SalesRepID != "" {
			p.SalesRepID = req.SalesRepID
		}
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "prospect": prospect})
}
