package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/onboarding"
)

// HomeIndexAction handles the root path with first-run setup check
func HomeIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	required, err := onboarding.IsOnboardingRequired(db)
	if err != nil {
		ctx.Logger.Error("Failed to check if setup is required", slog.Any("error", err))
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	if required {
		ctx.Logger.Info("Root path accessed, redirecting to setup")
		return ctx.Redirect("/setup", fiber.StatusFound)
	}

	ctx.Logger.Info("Root path accessed, redirecting to login")
	return ctx.Redirect("/login", fiber.StatusFound)
}
