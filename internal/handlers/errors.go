package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/example/medsupply/internal/apperrors"
	"github.com/example/medsupply/pkg/logger"
)

// ErrorHandler maps domain errors onto HTTP responses. Sentinels and
// validation errors become client errors; anything else is logged and
// returned as an opaque 500 so storage paths and provider internals
// never leak to callers.
func ErrorHandler(log logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		if ve, ok := apperrors.AsValidation(err); ok {
			body := fiber.Map{
				"success": false,
				"error":   ve.Message,
			}
			if len(ve.Fields) > 0 {
				body["fields"] = ve.Fields
			}
			return c.Status(fiber.StatusBadRequest).JSON(body)
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"success": false,
				"error":   fiberErr.Message,
			})
		}

		status := fiber.StatusInternalServerError
		message := "internal server error"
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			status, message = fiber.StatusNotFound, "not found"
		case errors.Is(err, apperrors.ErrConflict):
			status, message = fiber.StatusConflict, "conflict"
		case errors.Is(err, apperrors.ErrInvalidState):
			status, message = fiber.StatusConflict, "invalid state for this operation"
		default:
			log.WithFields(map[string]interface{}{
				"path":  c.Path(),
				"error": err.Error(),
			}).Error("unhandled request error")
		}

		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"error":   message,
		})
	}
}
