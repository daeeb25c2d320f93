package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"
	"log/slog"

	"attriflow/internal/onboarding"
	"attriflow/internal/users"
)

// RenderLoginAction reports login state for the session entry point. The
// response carries no page body, the admin API is consumed headless.
func RenderLoginAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	required, err := onboarding.IsOnboardingRequired(db)
	if err != nil {
		ctx.Logger.Error("Failed to check if onboarding is required on login", slog.Any("error", err))
	}

	return ctx.JSON(fiber.Map{
		"authenticated":  ctx.Session.IsAuthenticated(ctx.Ctx),
		"setup_required": required,
	})
}

// ProcessLoginAction handles the login submission
func ProcessLoginAction(ctx *cartridge.Context) error {
	// Accept both form values and a JSON body
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")
	tz := ctx.FormValue("_tz")

	if email == "" && password == "" {
		var jsonBody struct {
			Email    string `json:"email"`
			Password string `json:"password"`
			Tz       string `json:"_tz"`
		}
		if err := ctx.BodyParser(&jsonBody); err == nil {
			if jsonBody.Email != "" {
				email = jsonBody.Email
			}
			if jsonBody.Password != "" {
				password = jsonBody.Password
			}
			if jsonBody.Tz != "" {
				tz = jsonBody.Tz
			}
		}
	}

	if email == "" || password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}

	db := ctx.DB()

	user, result := users.FindByEmail(db, email)

	// Always verify a password so response time does not reveal whether the
	// email exists.
	var passwordValid bool
	if result != nil {
		ctx.Logger.Debug("User not found during login",
			slog.String("email", email))
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // bcrypt hash of "dummy"
		crypto.VerifyPassword(dummyHash, password)
		passwordValid = false
	} else {
		passwordValid = crypto.VerifyPassword(user.EncryptedPassword, password)
		if !passwordValid {
			ctx.Logger.Debug("Invalid password attempt",
				slog.String("email", email))
		}
	}

	if !passwordValid {
		// Generic message, the email's existence stays private
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid email or password",
		})
	}

	if err := ctx.Session.SetSession(ctx.Ctx, user.ID); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Login failed",
		})
	}

	if err := users.TouchLastLogin(db, user.ID); err != nil {
		ctx.Logger.Warn("Failed to record last login", slog.Any("error", err))
	}

	ctx.Logger.Debug("Login successful",
		slog.String("email", email),
		slog.Int("userId", int(user.ID)))

	// Timezone cookie drives dashboard bucketing for this browser
	if tz != "" {
		tzExpiration := time.Now().Add(10 * 365 * 24 * time.Hour)
		ctx.Cookie(&fiber.Cookie{
			Name:     "_tz",
			Value:    tz,
			Path:     "/",
			MaxAge:   int((10 * 365 * 24 * time.Hour).Seconds()),
			Expires:  tzExpiration,
			Secure:   ctx.Config.IsProduction(),
			HTTPOnly: true,
			SameSite: "Lax",
		})
	}

	return ctx.JSON(fiber.Map{
		"message": "Login successful",
		"user": fiber.Map{
			"id":    user.ID,
			"email": user.Email,
		},
	})
}

// LogoutAction handles user logout
func LogoutAction(ctx *cartridge.Context) error {
	userID, isAuthenticated := ctx.Session.GetUserID(ctx.Ctx)
	ctx.Logger.Debug("Logout requested",
		slog.Uint64("userID", uint64(userID)),
		slog.Bool("isAuthenticated", isAuthenticated))

	ctx.Session.ClearSession(ctx.Ctx)

	ctx.ClearCookie("_tz")
	ctx.Cookie(&fiber.Cookie{
		Name:     "_tz",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Now().Add(-24 * time.Hour),
		Secure:   ctx.Config.IsProduction(),
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return ctx.JSON(fiber.Map{
		"message": "Logged out",
	})
}
