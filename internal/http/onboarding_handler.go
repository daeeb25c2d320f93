package http

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attriflow/internal/onboarding"
)

// SetupRequest is the first-run setup payload
type SetupRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// SetupStatusAction reports whether first-run setup is still required
func SetupStatusAction(ctx *cartridge.Context) error {
	required, err := onboarding.IsOnboardingRequired(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to check setup status", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to check setup status",
		})
	}

	return ctx.JSON(fiber.Map{
		"setup_required": required,
	})
}

// SetupAction performs the first-run setup: it creates the admin account,
// registers the standard attribution models, and logs the new admin in.
func SetupAction(ctx *cartridge.Context) error {
	var req SetupRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request format",
		})
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email is required",
		})
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Please enter a valid email address",
		})
	}

	if strings.TrimSpace(req.Password) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password is required",
		})
	}
	if len(req.Password) < 8 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Password must be at least 8 characters long",
		})
	}

	db := ctx.DB()

	result, err := onboarding.CompleteOnboarding(db, ctx.Logger, onboarding.CompletionData{
		Email:    email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, onboarding.ErrSetupAlreadyCompleted) {
			return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Setup is already complete",
			})
		}
		ctx.Logger.Error("Failed to complete setup", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to complete setup",
		})
	}

	// Log the new admin in. A failure here is not fatal, they can log in
	// manually.
	if ctx.Session != nil {
		if err := ctx.Session.SetSession(ctx.Ctx, result.UserID); err != nil {
			ctx.Logger.Error("Failed to set session after setup", slog.Any("error", err))
		}
	}

	ctx.Logger.Info("First-run setup completed", slog.String("user_email", result.UserEmail))

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Setup completed",
		"user": fiber.Map{
			"id":    result.UserID,
			"email": result.UserEmail,
		},
	})
}
