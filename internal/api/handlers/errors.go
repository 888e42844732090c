package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/localbook/backend/pkg/errdefs"
)

// respondError maps the error taxonomy onto HTTP statuses. Unknown
// errors become opaque 500s; the taxonomy's messages are safe to return
// verbatim.
func respondError(c *fiber.Ctx, err error) error {
	var (
		notFound   *errdefs.NotFoundError
		notReady   *errdefs.NotReadyError
		retrieval  *errdefs.RetrievalError
		generation *errdefs.GenerationError
	)

	switch {
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFound.Error(),
		})
	case errors.As(err, &notReady):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":      notReady.Error(),
			"source_ids": notReady.IDs,
		})
	case errors.As(err, &retrieval):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": retrieval.Error(),
		})
	case errors.As(err, &generation):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": generation.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}
}
