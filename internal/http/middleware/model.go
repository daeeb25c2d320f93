package middleware

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"attriflow/internal/attribution"
)

// ModelFilter resolves which attribution model a request reads through and
// stores its ID in the request context. An explicit model_id query param or
// X-Model-ID header wins; otherwise the default model is used. When no model
// is resolved the locals stay unset and handlers decide how to respond.
func ModelFilter(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		modelIDStr := c.Query("model_id", c.Get("X-Model-ID"))
		if modelIDStr != "" {
			modelID, err := strconv.ParseUint(modelIDStr, 10, 64)
			if err != nil {
				logger.Warn("Invalid model_id provided",
					slog.String("model_id", modelIDStr),
					slog.Any("error", err))
				return c.Status(fiber.StatusBadRequest).SendString("Invalid model_id")
			}
			c.Locals("model_id", uint(modelID))
			return c.Next()
		}

		defaultModel, err := attribution.GetDefaultModel(db)
		if err != nil {
			logger.Error("Failed to resolve default attribution model", slog.Any("error", err))
			return c.Next()
		}
		if defaultModel == nil {
			logger.Debug("No default attribution model configured - continuing without model_id")
			return c.Next()
		}

		c.Locals("model_id", defaultModel.ID)
		return c.Next()
	}
}
