package journeys

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attriflow/internal/config"
	"attriflow/internal/identity"
	"attriflow/internal/pkg/geoip"
	"attriflow/internal/settings"
)

// TouchEventType represents the type of ingested touch event.
type TouchEventType int

const (
	TouchEventTypeTouch      TouchEventType = 1
	TouchEventTypeConversion TouchEventType = 2
)

// IngestedTouchEvent represents a touch event stored temporarily before the
// processor assigns it to a journey.
type IngestedTouchEvent struct {
	ID                uint   `gorm:"primaryKey"`
	CustomerSignature string `gorm:"index"`
	SessionID         string
	DeviceID          string
	UserID            string
	Hostname          string `gorm:"index"`
	Pathname          string
	RawURL            string
	ReferrerHostname  string         `gorm:"index"`
	EventType         TouchEventType `gorm:"index"`
	Channel           string
	TouchpointType    string
	ConversionName    string `gorm:"index"`
	EventValue        sql.NullFloat64
	Timestamp         time.Time `gorm:"index"`
	UserAgent         string
	Country           string
	CreatedAt         time.Time `gorm:"index"`
	Processed         int       `gorm:"index"`
}

// CollectTouchInput defines the input required to collect a touch event.
type CollectTouchInput struct {
	IPAddress      string
	UserAgent      string
	CustomerID     string
	SessionID      string
	DeviceID       string
	UserID         string
	ReferrerURL    string
	EventType      TouchEventType
	Channel        string
	TouchpointType string
	ConversionName string
	EventValue     *float64
	Timestamp      time.Time
	RawURL         string
}

// urlData holds parsed URL components
type urlData struct {
	hostname string
	pathname string
	rawURL   string
}

// CountUnprocessedTouchEvents returns the ingestion backlog size
func CountUnprocessedTouchEvents(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&IngestedTouchEvent{}).Where("processed = 0").Count(&count).Error
	return count, err
}

// CollectTouchEvent stores a touch event in the IngestedTouchEvent table
func CollectTouchEvent(dbManager cartridge.DBManager, logger *slog.Logger, input *CollectTouchInput) error {
	if input.UserAgent == "" {
		input.UserAgent = "Unknown User Agent"
	}

	urlData, err := parseInputURL(input.RawURL, logger)
	if err != nil {
		logger.Warn("Failed to parse URL", slog.Any("error", err), slog.String("url", input.RawURL))
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	cfg := config.GetConfig()
	if urlData.hostname == "localhost" && cfg.Environment == config.Production {
		logger.Debug("Skipping touch event for localhost in production environment", slog.String("url", input.RawURL))
		return nil
	}

	excluded, err := settings.IsIPExcluded(input.IPAddress)
	if err != nil {
		logger.Error("Error checking IP exclusion", slog.Any("error", err))
	} else if excluded {
		logger.Debug("Skipping touch event for excluded IP", slog.String("ip", input.IPAddress))
		return nil
	}

	db := dbManager.GetConnection()
	tempEvent := prepareTouchEvent(logger, input, urlData)

	err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(tempEvent).Error
	})
	if err != nil {
		logger.Error("Failed to store ingested touch event", slog.Any("error", err))
		return fmt.Errorf("failed to store ingested touch event: %w", err)
	}

	return nil
}

// parseInputURL parses a URL string into its components
func parseInputURL(urlStr string, logger *slog.Logger) (*urlData, error) {
	if urlStr == "" {
		logger.Error("Empty URL provided")
		return nil, fmt.Errorf("empty URL provided")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		logger.Error("Failed to parse URL", slog.String("url", urlStr), slog.Any("error", err))
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		logger.Error("URL missing hostname", slog.String("url", urlStr))
		return nil, fmt.Errorf("URL missing hostname")
	}

	pathname := parsedURL.Path
	if pathname == "" {
		pathname = "/"
	}

	return &urlData{
		hostname: hostname,
		pathname: pathname,
		rawURL:   urlStr,
	}, nil
}

// prepareTouchEvent creates an IngestedTouchEvent from input data
func prepareTouchEvent(logger *slog.Logger, input *CollectTouchInput, urlData *urlData) *IngestedTouchEvent {
	referrerHostname := ""
	if input.ReferrerURL != "" {
		referrerData, err := parseInputURL(input.ReferrerURL, logger)
		if err == nil {
			referrerHostname = referrerData.hostname
		} else {
			logger.Warn("Failed to parse referrer URL", slog.String("referrer", input.ReferrerURL), slog.Any("error", err))
		}
	}

	// A referrer pointing back at the tracked site carries no channel signal
	if referrerHostname != "" && isSelfReferral(referrerHostname, urlData.hostname) {
		referrerHostname = ""
	}

	customerSignature := input.CustomerID
	if customerSignature == "" {
		customerSignature = identity.BuildCustomerSignature(
			urlData.hostname, input.IPAddress, input.UserAgent, config.GetConfig().PrivateKey)
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	eventValue := sql.NullFloat64{}
	if input.EventValue != nil {
		eventValue = sql.NullFloat64{Float64: *input.EventValue, Valid: true}
	}

	eventType := input.EventType
	if eventType == 0 {
		eventType = TouchEventTypeTouch
	}

	return &IngestedTouchEvent{
		CustomerSignature: customerSignature,
		SessionID:         input.SessionID,
		DeviceID:          input.DeviceID,
		UserID:            input.UserID,
		Hostname:          urlData.hostname,
		Pathname:          urlData.pathname,
		RawURL:            urlData.rawURL,
		ReferrerHostname:  referrerHostname,
		EventType:         eventType,
		Channel:           input.Channel,
		TouchpointType:    input.TouchpointType,
		ConversionName:    input.ConversionName,
		EventValue:        eventValue,
		Timestamp:         timestamp,
		UserAgent:         input.UserAgent,
		Country:           countryFromIP(input.IPAddress),
		CreatedAt:         time.Now().UTC(),
		Processed:         0,
	}
}

// isSelfReferral checks if a referrer hostname matches the tracked hostname.
// Only exact matches count, a blog subdomain linking to the main site is a
// legitimate referral.
func isSelfReferral(referrerHostname, hostname string) bool {
	if referrerHostname == "" || hostname == "" {
		return false
	}
	return strings.EqualFold(stripWWW(referrerHostname), stripWWW(hostname))
}

func stripWWW(hostname string) string {
	return strings.TrimPrefix(strings.ToLower(hostname), "www.")
}

// countryFromIP resolves an IP address to a lowercase ISO country code, or ""
// when the GeoIP database is unavailable or the lookup fails.
func countryFromIP(ipAddress string) string {
	return strings.ToLower(geoip.CountryCode(ipAddress))
}
