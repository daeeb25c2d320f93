package v1

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attriflow/internal/journeys"
	"attriflow/internal/settings"
)

const (
	msgTouchAccepted  = "Touch event accepted"
	errInvalidRequest = "Invalid request"
	errInvalidOrigin  = "Invalid origin"
)

// CollectTouchParams is the public collect payload. Everything except url is
// optional: anonymous visitors get a server-side signature, timestamps default
// to now, and traffic tags are read from the URL query when not set explicitly.
type CollectTouchParams struct {
	CustomerID     string    `json:"customer_id"`
	SessionID      string    `json:"session_id"`
	DeviceID       string    `json:"device_id"`
	UserID         string    `json:"user_id"`
	URL            string    `json:"url"`
	Referrer       string    `json:"referrer"`
	Channel        string    `json:"channel"`
	Source         string    `json:"source"`
	Medium         string    `json:"medium"`
	Campaign       string    `json:"campaign"`
	Term           string    `json:"term"`
	Content        string    `json:"content"`
	TouchType      string    `json:"touch_type"`
	EventName      string    `json:"event_name"`
	EventValue     *float64  `json:"event_value"`
	ConversionType string    `json:"conversion_type"`
	OccurredAt     time.Time `json:"occurred_at"`
	UserAgent      string    `json:"user_agent"`
}

// CollectTouchPublicAPIHandler ingests a touch event from the tracking SDK.
// A payload carrying a conversion_type or event_name records a conversion,
// which completes the customer's journey at processing time.
func CollectTouchPublicAPIHandler(ctx *cartridge.Context) error {
	params, err := validateAndParseRequest(ctx.Ctx, ctx.DBManager, ctx.Logger)
	if err != nil {
		ctx.Logger.Debug("Failed to validate touch request", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	return collectAndRespond(ctx, buildCollectInput(ctx, params))
}

// CollectConversionPublicAPIHandler is a convenience wrapper that records a
// conversion even when the payload names no goal. The processor falls back to
// the generic conversion name.
func CollectConversionPublicAPIHandler(ctx *cartridge.Context) error {
	params, err := validateAndParseRequest(ctx.Ctx, ctx.DBManager, ctx.Logger)
	if err != nil {
		ctx.Logger.Debug("Failed to validate conversion request", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	input := buildCollectInput(ctx, params)
	input.EventType = journeys.TouchEventTypeConversion
	return collectAndRespond(ctx, input)
}

// CollectTouchBeaconHandler handles touches sent via navigator.sendBeacon on
// page unload. Beacon responses are never read by the browser, so every
// outcome maps to 202.
func CollectTouchBeaconHandler(ctx *cartridge.Context) error {
	var params CollectTouchParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		return ctx.SendStatus(http.StatusAccepted)
	}

	if err := validateOrigin(ctx.Ctx, ctx.DBManager, ctx.Logger); err != nil {
		ctx.Logger.Debug("Invalid origin in beacon request")
		return ctx.SendStatus(http.StatusAccepted)
	}

	input := buildCollectInput(ctx, &params)
	if err := journeys.CollectTouchEvent(ctx.DBManager, ctx.Logger, input); err != nil {
		ctx.Logger.Error("Failed to collect beacon touch", slog.Any("error", err))
	}
	return ctx.SendStatus(http.StatusAccepted)
}

func collectAndRespond(ctx *cartridge.Context, input *journeys.CollectTouchInput) error {
	if err := journeys.CollectTouchEvent(ctx.DBManager, ctx.Logger, input); err != nil {
		ctx.Logger.Error("Failed to collect touch event", slog.Any("error", err))
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "busy") {
			// Custom status the SDK interprets as "retry with backoff"
			return ctx.Status(599).JSON(fiber.Map{})
		}

		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to collect touch event",
			"code":  "COLLECTION_ERROR",
		})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message": msgTouchAccepted,
		"status":  http.StatusAccepted,
	})
}

// buildCollectInput maps the wire payload onto the ingestion input. A named
// goal (conversion_type or event_name) turns the touch into a conversion.
func buildCollectInput(ctx *cartridge.Context, params *CollectTouchParams) *journeys.CollectTouchInput {
	conversionName := params.ConversionType
	if conversionName == "" {
		conversionName = params.EventName
	}

	eventType := journeys.TouchEventTypeTouch
	if conversionName != "" {
		eventType = journeys.TouchEventTypeConversion
	}

	return &journeys.CollectTouchInput{
		IPAddress:      getClientIP(ctx.Ctx),
		UserAgent:      requestUserAgent(ctx, params.UserAgent),
		CustomerID:     params.CustomerID,
		SessionID:      params.SessionID,
		DeviceID:       params.DeviceID,
		UserID:         params.UserID,
		ReferrerURL:    params.Referrer,
		EventType:      eventType,
		Channel:        params.Channel,
		TouchpointType: params.TouchType,
		ConversionName: conversionName,
		EventValue:     params.EventValue,
		Timestamp:      params.OccurredAt,
		RawURL:         mergeTrafficTags(params.URL, params),
	}
}

// requestUserAgent prefers the user agent reported in the payload, which
// survives proxies and beacon transports, over the request header.
func requestUserAgent(ctx *cartridge.Context, bodyUA string) string {
	if bodyUA != "" {
		return bodyUA
	}
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		return forwardedUA
	}
	return ctx.Get("User-Agent")
}

// mergeTrafficTags folds explicit source/medium/campaign/term/content fields
// into the URL query as UTM parameters so the processor reads traffic tags
// from a single place. Tags already on the URL win, that is what the visitor
// actually landed on.
func mergeTrafficTags(rawURL string, params *CollectTouchParams) string {
	tags := map[string]string{
		"utm_source":   params.Source,
		"utm_medium":   params.Medium,
		"utm_campaign": params.Campaign,
		"utm_term":     params.Term,
		"utm_content":  params.Content,
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	query := parsedURL.Query()
	changed := false
	for key, value := range tags {
		if value == "" || query.Get(key) != "" {
			continue
		}
		query.Set(key, value)
		changed = true
	}
	if !changed {
		return rawURL
	}

	parsedURL.RawQuery = query.Encode()
	return parsedURL.String()
}

func validateAndParseRequest(c *fiber.Ctx, dbManager cartridge.DBManager, logger *slog.Logger) (*CollectTouchParams, error) {
	var params CollectTouchParams
	if err := c.BodyParser(&params); err != nil {
		return nil, fiber.NewError(http.StatusBadRequest, errInvalidRequest)
	}

	// The Origin header is set by the browser and cannot be spoofed by
	// JavaScript, so it is the one signal worth checking here
	if err := validateOrigin(c, dbManager, logger); err != nil {
		return nil, err
	}

	return &params, nil
}

// validateOrigin enforces the allowed-origins setting against the Origin
// header, falling back to Referer for same-origin requests. An empty setting
// leaves the collect endpoint open, the default for self-hosted deployments
// that track sites not known upfront.
func validateOrigin(c *fiber.Ctx, dbManager cartridge.DBManager, logger *slog.Logger) error {
	allowed := settings.GetAllowedOrigins(dbManager.GetConnection())
	if len(allowed) == 0 {
		return nil
	}

	origin := c.Get("Origin")
	if origin == "" {
		origin = c.Get("Referer")
	}
	if origin == "" {
		logger.Debug("No Origin or Referer header present")
		return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
	}

	parsedURL, err := url.Parse(origin)
	if err != nil {
		logger.Debug("Failed to parse origin URL", slog.String("origin", origin), slog.Any("error", err))
		return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
	}

	hostname := parsedURL.Hostname()
	if originAllowed(hostname, allowed) {
		logger.Debug("Origin validated successfully",
			slog.String("origin", origin),
			slog.String("hostname", hostname))
		return nil
	}

	logger.Debug("Origin not in allowed list",
		slog.String("origin", origin),
		slog.String("hostname", hostname))
	return fiber.NewError(http.StatusForbidden, errInvalidOrigin)
}

// originAllowed matches a request hostname against the allowed entries.
// Subdomains of an allowed domain pass, app.example.com is the same property
// as example.com for attribution purposes.
func originAllowed(hostname string, allowed []string) bool {
	candidate := strings.ToLower(hostname)
	for _, entry := range allowed {
		entryHost := strings.ToLower(allowedHostname(entry))
		if entryHost == "" {
			continue
		}
		if candidate == entryHost || strings.HasSuffix(candidate, "."+entryHost) {
			return true
		}
	}
	return false
}

// allowedHostname extracts the comparable hostname from an allowed-origins
// entry, which operators write either as a bare domain or a full origin.
func allowedHostname(entry string) string {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "://") {
		if parsed, err := url.Parse(entry); err == nil && parsed.Hostname() != "" {
			return parsed.Hostname()
		}
	}
	if idx := strings.IndexAny(entry, "/:"); idx != -1 {
		entry = entry[:idx]
	}
	return entry
}

func handleError(c *fiber.Ctx, err error) error {
	if fiberErr, ok := err.(*fiber.Error); ok {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error": fiberErr.Message,
		})
	}

	return c.Status(http.StatusUnprocessableEntity).JSON(fiber.Map{
		"error": errInvalidRequest,
	})
}
