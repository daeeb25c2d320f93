package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"attriflow/internal/onboarding"
)

// OnboardingCheck redirects to setup while no admin user exists. Applied to
// routes that require a configured instance.
func OnboardingCheck(db *gorm.DB, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		required, err := onboarding.IsOnboardingRequired(db)
		if err != nil {
			logger.Error("Failed to check if onboarding is required in middleware", slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).SendString("System error")
		}

		if required {
			// API clients get JSON instead of a redirect
			if c.Get("Accept") == "application/json" || c.Get("Content-Type") == "application/json" {
				return c.Status(fiber.StatusPreconditionRequired).JSON(fiber.Map{
					"error":     "System setup required",
					"setup_url": "/setup",
				})
			}

			logger.Info("Onboarding required, redirecting to setup",
				slog.String("path", c.Path()),
				slog.String("method", c.Method()))
			return c.Redirect("/setup", fiber.StatusFound)
		}

		return c.Next()
	}
}
