package http

import (
	"net"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"attriflow/internal/settings"
)

// validateIPList validates a comma-separated list of IP addresses
func validateIPList(ipList string) (bool, string) {
	if ipList == "" {
		return true, ""
	}

	// Split by commas and validate each IP
	ips := strings.Split(ipList, ",")
	for _, ip := range ips {
		// Trim whitespace
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}

		// Try to parse the IP
		parsed := net.ParseIP(ip)
		if parsed == nil {
			return false, "Invalid IP address format: " + ip
		}
	}

	return true, ""
}

// validateOriginList validates a comma-separated list of origins. Each entry
// must be an absolute http(s) URL; an empty list means any origin is allowed.
func validateOriginList(originList string) (bool, string) {
	if originList == "" {
		return true, ""
	}

	for _, origin := range strings.Split(originList, ",") {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}

		parsed, err := url.Parse(origin)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return false, "Invalid origin format: " + origin
		}
	}

	return true, ""
}

// connectorCredentialKeys is the allow-list of settings keys writable through
// the connector credentials endpoint.
var connectorCredentialKeys = map[string]bool{
	settings.KeyGA4PropertyID:       true,
	settings.KeyGA4AccessToken:      true,
	settings.KeyLinkedInAccountID:   true,
	settings.KeyLinkedInAccessToken: true,
	settings.KeyHubSpotAccessToken:  true,
	settings.KeyShopifyShopDomain:   true,
	settings.KeyShopifyAccessToken:  true,
}

// SettingsIndexAction returns all settings with sensitive values masked.
func SettingsIndexAction(ctx *cartridge.Context) error {
	display, err := settings.GetAllSettingsForDisplay(ctx.DB())
	if err != nil {
		ctx.Logger.Error("failed to load settings", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error fetching settings",
		})
	}

	return ctx.JSON(fiber.Map{"settings": display})
}

// SettingsIngestionAction updates the collect-API filters: excluded IPs and
// allowed origins.
func SettingsIngestionAction(ctx *cartridge.Context) error {
	var req struct {
		ExcludedIPs    string `json:"excluded_ips" form:"excluded_ips"`
		AllowedOrigins string `json:"allowed_origins" form:"allowed_origins"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if valid, msg := validateIPList(req.ExcludedIPs); !valid {
		ctx.Logger.Warn("invalid IP format submitted", slog.String("error", msg))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}
	if valid, msg := validateOriginList(req.AllowedOrigins); !valid {
		ctx.Logger.Warn("invalid origin format submitted", slog.String("error", msg))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	db := ctx.DB()
	if err := settings.UpdateSetting(db, "excluded_ips", req.ExcludedIPs); err != nil {
		ctx.Logger.Error("failed to update excluded_ips setting", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update ingestion settings",
		})
	}
	if err := settings.UpdateSetting(db, "allowed_origins", req.AllowedOrigins); err != nil {
		ctx.Logger.Error("failed to update allowed_origins setting", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update ingestion settings",
		})
	}

	ctx.Logger.Info("ingestion settings updated")
	return ctx.JSON(fiber.Map{"message": "Ingestion settings saved"})
}

// ConversionGoalsIndexAction returns the configured conversion goal names.
func ConversionGoalsIndexAction(ctx *cartridge.Context) error {
	goals, err := settings.GetConversionGoals(ctx.DB())
	if err != nil {
		ctx.Logger.Error("failed to load conversion goals", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error fetching conversion goals",
		})
	}

	return ctx.JSON(fiber.Map{"goals": goals})
}

// ConversionGoalsUpdateAction replaces the conversion goal list.
func ConversionGoalsUpdateAction(ctx *cartridge.Context) error {
	var req struct {
		Goals []string `json:"goals"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := settings.SaveConversionGoals(ctx.DB(), req.Goals); err != nil {
		ctx.Logger.Error("failed to save conversion goals", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save conversion goals",
		})
	}

	return ctx.JSON(fiber.Map{"message": "Conversion goals saved"})
}

// ConnectorCredentialsAction stores tokens for the marketing platform
// connectors. All keys are validated before anything is written so a bad
// payload never leaves a partial update behind.
func ConnectorCredentialsAction(ctx *cartridge.Context) error {
	var req struct {
		Credentials map[string]string `json:"credentials"`
	}
	if err := ctx.BodyParser(&req); err != nil || len(req.Credentials) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No credentials provided",
		})
	}

	for key := range req.Credentials {
		if !connectorCredentialKeys[key] {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown credential key: " + key,
			})
		}
	}

	db := ctx.DB()
	for key, value := range req.Credentials {
		if err := settings.SaveConnectorCredential(db, key, value); err != nil {
			ctx.Logger.Error("failed to save connector credential",
				slog.String("key", key), slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to save credentials",
			})
		}
	}

	ctx.Logger.Info("connector credentials updated", slog.Int("keys", len(req.Credentials)))
	return ctx.JSON(fiber.Map{"message": "Credentials saved"})
}

// GeoLiteCredentialsAction stores the MaxMind account used by the GeoLite
// database updater job.
func GeoLiteCredentialsAction(ctx *cartridge.Context) error {
	var req struct {
		AccountID  string `json:"account_id" form:"account_id"`
		LicenseKey string `json:"license_key" form:"license_key"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.AccountID) == "" || strings.TrimSpace(req.LicenseKey) == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Account ID and license key are required",
		})
	}

	if err := settings.SaveGeoLiteCredentials(ctx.DB(), req.AccountID, req.LicenseKey); err != nil {
		ctx.Logger.Error("failed to save GeoLite credentials", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save GeoLite credentials",
		})
	}

	return ctx.JSON(fiber.Map{"message": "GeoLite credentials saved"})
}

// AgentAPIKeyAction returns the agent API key, generating one on first use.
// Pass regenerate=true to rotate the key; the old key stops working
// immediately. This is the only endpoint that returns the raw key.
func AgentAPIKeyAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	var (
		key string
		err error
	)
	if ctx.Query("regenerate") == "true" {
		key, err = settings.RegenerateAgentAPIKey(db)
		if err == nil {
			ctx.Logger.Info("agent API key regenerated")
		}
	} else {
		key, err = settings.GetOrCreateAgentAPIKey(db)
	}
	if err != nil {
		ctx.Logger.Error("failed to provision agent API key", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to provision API key",
		})
	}

	return ctx.JSON(fiber.Map{"api_key": key})
}
