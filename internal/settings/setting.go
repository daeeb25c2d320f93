package settings

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

var excludedIPsCache *cache.Cache[string, []string]

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	defaults := []Setting{
		{Key: "excluded_ips", Value: ""},
		{Key: "allowed_origins", Value: ""},
		{Key: "conversion_goals", Value: "{\"goals\":[]}"},
	}
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		for _, setting := range defaults {
			// Use raw SQL for upsert
			err := tx.Exec(`
                INSERT INTO settings (key, value, created_at, updated_at)
                VALUES (?, ?, ?, ?)
                ON CONFLICT(key) DO NOTHING
            `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				slog.Default().Error("Failed to upsert setting", slog.String("key", setting.Key), slog.Any("error", err))
				return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
			}
		}
		return nil
	})

	// Initialize the cache
	loadCache(dbConn, slog.Default())

	return err
}

// IsIPExcluded reports whether touch events from this IP should be dropped
// at ingestion.
func IsIPExcluded(ip string) (bool, error) {
	// If the cache isn't initialized yet, return false
	if excludedIPsCache == nil {
		return false, nil
	}

	excludedIPs, err := excludedIPsCache.Get("excluded_ips")
	if err != nil {
		return false, fmt.Errorf("failed to check excluded IPs: %w", err)
	}

	for _, excludedIP := range excludedIPs {
		if excludedIP == ip {
			return true, nil
		}
	}
	return false, nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// UpdateSetting upserts a setting value and refreshes the excluded-IPs cache
func UpdateSetting(dbConn *gorm.DB, key string, value string) error {
	now := time.Now().UTC()
	err := sqlite.PerformWrite(slog.Default(), dbConn, func(tx *gorm.DB) error {
		return tx.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
        `, key, value, now, now).Error
	})
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}

	if excludedIPsCache != nil {
		excludedIPsCache.Clear()
		loadCache(dbConn, slog.Default())
	}
	return nil
}

// CreateOrUpdateSetting is an alias for UpdateSetting, kept for callers that
// read better with explicit upsert naming
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	return UpdateSetting(dbConn, key, value)
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) ([]string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).
			Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).Scan(&value).Error
		if err != nil {
			return nil, err
		}
		var ips []string
		for _, ip := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(ip); trimmed != "" {
				ips = append(ips, trimmed)
			}
		}
		return ips, nil
	}
	excludedIPsCache = cache.NewCache[string, []string](logger, 5*time.Minute, fetchFunc)
}

// GetAllowedOrigins returns the origins permitted to post touch events.
// An empty list means any origin is accepted.
func GetAllowedOrigins(dbConn *gorm.DB) []string {
	value, err := GetSetting(dbConn, "allowed_origins")
	if err != nil || strings.TrimSpace(value) == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ConversionGoals is the set of conversion types the dashboard highlights
type ConversionGoals struct {
	Goals []string `json:"goals"`
}

// GetConversionGoals retrieves the configured conversion goal names
func GetConversionGoals(db *gorm.DB) ([]string, error) {
	goalsJSON, err := GetSetting(db, "conversion_goals")
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			const emptyGoalsJSON = `{"goals":[]}`
			if err := CreateOrUpdateSetting(db, "conversion_goals", emptyGoalsJSON); err != nil {
				return []string{}, nil
			}
		}
		return []string{}, nil
	}

	if goalsJSON == "" {
		return []string{}, nil
	}

	var goals ConversionGoals
	if err := json.Unmarshal([]byte(goalsJSON), &goals); err != nil {
		return []string{}, nil
	}

	if goals.Goals == nil {
		return []string{}, nil
	}
	return goals.Goals, nil
}

// SaveConversionGoals saves the conversion goal names, trimming and deduping
func SaveConversionGoals(db *gorm.DB, goals []string) error {
	cleanedGoals := make([]string, 0, len(goals))
	goalMap := make(map[string]bool)
	for _, goal := range goals {
		cleanedGoal := strings.TrimSpace(goal)
		if cleanedGoal != "" && !goalMap[cleanedGoal] {
			goalMap[cleanedGoal] = true
			cleanedGoals = append(cleanedGoals, cleanedGoal)
		}
	}

	updatedJSON, err := json.Marshal(ConversionGoals{Goals: cleanedGoals})
	if err != nil {
		return fmt.Errorf("failed to marshal conversion_goals: %w", err)
	}

	if err := CreateOrUpdateSetting(db, "conversion_goals", string(updatedJSON)); err != nil {
		return fmt.Errorf("failed to save conversion_goals setting: %w", err)
	}

	return nil
}

// SettingResponse represents a setting key-value pair for API responses
type SettingResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// GeoLite settings keys
const (
	KeyGeoLiteAccountID  = "geolite_account_id"
	KeyGeoLiteLicenseKey = "geolite_license_key"
)

// Agent API settings keys
const (
	KeyAgentAPIKey = "agent_api_key"
)

// Connector credential keys. Tokens are provisioned out of band and pasted
// into the admin settings screen; there is no OAuth flow here.
const (
	KeyGA4PropertyID       = "ga4_property_id"
	KeyGA4AccessToken      = "ga4_access_token"
	KeyLinkedInAccountID   = "linkedin_account_id"
	KeyLinkedInAccessToken = "linkedin_access_token"
	KeyHubSpotAccessToken  = "hubspot_access_token"
	KeyShopifyShopDomain   = "shopify_shop_domain"
	KeyShopifyAccessToken  = "shopify_access_token"
)

// GetGeoLiteCredentials retrieves GeoLite account ID and license key
func GetGeoLiteCredentials(db *gorm.DB) (accountID string, licenseKey string, err error) {
	accountID, _ = GetSetting(db, KeyGeoLiteAccountID)
	licenseKey, _ = GetSetting(db, KeyGeoLiteLicenseKey)
	return accountID, licenseKey, nil
}

// SaveGeoLiteCredentials saves GeoLite account ID and license key
func SaveGeoLiteCredentials(db *gorm.DB, accountID string, licenseKey string) error {
	if err := CreateOrUpdateSetting(db, KeyGeoLiteAccountID, strings.TrimSpace(accountID)); err != nil {
		return fmt.Errorf("failed to save GeoLite account ID: %w", err)
	}
	if err := CreateOrUpdateSetting(db, KeyGeoLiteLicenseKey, strings.TrimSpace(licenseKey)); err != nil {
		return fmt.Errorf("failed to save GeoLite license key: %w", err)
	}
	return nil
}

// GetConnectorCredential retrieves a single connector credential, returning
// an empty string when unset.
func GetConnectorCredential(db *gorm.DB, key string) string {
	value, err := GetSetting(db, key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

// SaveConnectorCredential stores a connector credential
func SaveConnectorCredential(db *gorm.DB, key string, value string) error {
	if err := CreateOrUpdateSetting(db, key, strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("failed to save connector credential %s: %w", key, err)
	}
	return nil
}

// GetAgentAPIKey retrieves the agent API key
func GetAgentAPIKey(db *gorm.DB) (string, error) {
	return GetSetting(db, KeyAgentAPIKey)
}

// GetOrCreateAgentAPIKey returns the existing API key or generates a new one
func GetOrCreateAgentAPIKey(db *gorm.DB) (string, error) {
	key, err := GetAgentAPIKey(db)
	if err == nil && key != "" {
		return key, nil
	}
	return GenerateAgentAPIKey(db)
}

// GenerateAgentAPIKey creates a new random API key and stores it
func GenerateAgentAPIKey(db *gorm.DB) (string, error) {
	key := generateRandomToken(32)
	if err := CreateOrUpdateSetting(db, KeyAgentAPIKey, key); err != nil {
		return "", err
	}
	return key, nil
}

// RegenerateAgentAPIKey creates a new API key, replacing the old one
func RegenerateAgentAPIKey(db *gorm.DB) (string, error) {
	return GenerateAgentAPIKey(db)
}

// generateRandomToken creates a cryptographically secure random token
func generateRandomToken(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[randInt(len(charset))]
	}
	return string(b)
}

// randInt returns a cryptographically secure random int in [0, max)
func randInt(max int) int {
	var buf [1]byte
	_, _ = rand.Read(buf[:])
	return int(buf[0]) % max
}

// sensitiveKeySuffixes are masked when settings are listed for display
var sensitiveKeySuffixes = []string{"_access_token", "_license_key", "_api_key"}

func isSensitiveKey(key string) bool {
	if key == "license_key" {
		return true
	}
	for _, suffix := range sensitiveKeySuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

// GetAllSettingsForDisplay retrieves all settings with sensitive values
// masked for display
func GetAllSettingsForDisplay(db *gorm.DB) ([]SettingResponse, error) {
	var allSettings []Setting
	if err := db.Find(&allSettings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch settings: %w", err)
	}

	var result []SettingResponse
	for _, setting := range allSettings {
		value := setting.Value
		if isSensitiveKey(setting.Key) && value != "" {
			value = strings.Repeat("*", len(value))
		}
		result = append(result, SettingResponse{
			Key:   setting.Key,
			Value: value,
		})
	}
	return result, nil
}
