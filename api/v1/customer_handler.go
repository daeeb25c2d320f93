package v1

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attriflow/internal/config"
	"attriflow/internal/identity"
	"attriflow/internal/journeys"
	"attriflow/internal/pkg/geoip"
)

const customerTouchLimit = 25

type customerTouch struct {
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel,omitempty"`
	Source    string    `json:"source,omitempty"`
	Campaign  string    `json:"campaign,omitempty"`
	URL       string    `json:"url,omitempty"`
	TouchType string    `json:"touchType"`
}

// GetCustomerInfoHandler returns the identity and recent touch history the
// platform holds for the calling browser. The SDK uses it for its debug
// overlay; the response never exposes the IP or user agent the signature was
// derived from.
func GetCustomerInfoHandler(ctx *cartridge.Context) error {
	if strings.EqualFold(strings.TrimSpace(ctx.Get("Early-Data")), "1") {
		// TLS early data can be replayed; force the client to resend
		ctx.Logger.Info("Received early data request, returning 425 to force replay",
			slog.String("path", ctx.Path()))
		return ctx.Status(fiber.StatusTooEarly).JSON(fiber.Map{
			"error": "Replay required",
			"code":  "TOO_EARLY",
		})
	}

	userAgent := ctx.Get("User-Agent")
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}
	clientIP := getClientIP(ctx.Ctx)

	// The SDK passes its stored customer id when it has one; anonymous
	// callers are identified by the same signature ingestion would build.
	customerID := strings.TrimSpace(ctx.Query("cid"))
	if customerID == "" {
		requestURL := resolveCustomerContextURL(ctx.Ctx)
		hostParam := strings.TrimSpace(ctx.Query("w"))

		var host string
		switch {
		case hostParam != "":
			host = hostParam
		case requestURL != "":
			parsedURL, err := url.Parse(requestURL)
			if err != nil || parsedURL.Hostname() == "" {
				return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid origin context",
					"code":  "INVALID_CONTEXT",
				})
			}
			host = parsedURL.Hostname()
		default:
			host = strings.TrimSpace(ctx.Hostname())
		}
		if host == "" {
			return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing origin context",
				"code":  "MISSING_CONTEXT",
			})
		}

		cfg := ctx.Config.(*config.Config)
		customerID = identity.BuildCustomerSignature(host, clientIP, userAgent, cfg.PrivateKey)
	}

	db := ctx.DBManager.GetConnection()

	touches := make([]customerTouch, 0, customerTouchLimit)
	var points []journeys.Touchpoint
	err := db.Joins("JOIN customer_journeys ON customer_journeys.id = touchpoints.journey_id").
		Where("customer_journeys.customer_id = ?", customerID).
		Order("touchpoints.timestamp DESC").
		Limit(customerTouchLimit).
		Find(&points).Error
	if err != nil {
		ctx.Logger.Error("Failed to load customer touchpoints",
			slog.String("customer_id", customerID),
			slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load customer touches",
			"code":  "TOUCH_LOAD_ERROR",
		})
	}

	for _, point := range points {
		touches = append(touches, customerTouch{
			Timestamp: point.Timestamp,
			Channel:   point.Channel,
			Source:    point.Source,
			Campaign:  point.Campaign,
			TouchType: string(point.TouchpointType),
		})
	}

	// Touches still sitting in the ingestion queue have not been classified
	// yet but are better than an empty answer
	if len(touches) == 0 {
		var pending []journeys.IngestedTouchEvent
		err := db.Where("customer_signature = ?", customerID).
			Order("timestamp DESC").
			Limit(customerTouchLimit).
			Find(&pending).Error
		if err != nil {
			ctx.Logger.Error("Failed to load pending customer touches",
				slog.String("customer_id", customerID),
				slog.Any("error", err))
			return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load customer touches",
				"code":  "TOUCH_LOAD_ERROR",
			})
		}

		for _, event := range pending {
			touchType := event.TouchpointType
			if touchType == "" {
				touchType = string(journeys.TouchpointTypePageView)
			}
			touches = append(touches, customerTouch{
				Timestamp: event.Timestamp,
				Channel:   event.Channel,
				URL:       event.Hostname + event.Pathname,
				TouchType: touchType,
			})
		}
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"customerId":    customerID,
		"customerAlias": identity.CustomerAlias(customerID),
		"country":       strings.ToLower(geoip.CountryCode(clientIP)),
		"touches":       touches,
		"generatedAt":   time.Now().UTC().Format(time.RFC3339),
	})
}

// resolveCustomerContextURL returns the first usable context URL from the
// request, preferring the browser-set Origin header.
func resolveCustomerContextURL(c *fiber.Ctx) string {
	for _, candidate := range []string{
		c.Get("Origin"),
		c.Query("url"),
		c.Get("Referer"),
	} {
		value := strings.TrimSpace(candidate)
		if value == "" || strings.EqualFold(value, "null") {
			continue
		}
		return value
	}
	return ""
}
