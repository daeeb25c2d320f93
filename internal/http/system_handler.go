package http

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/cache"

	"attriflow/internal/annotations"
	"attriflow/internal/attribution"
	"attriflow/internal/campaigns"
	"attriflow/internal/config"
	"attriflow/internal/insights"
	"attriflow/internal/jobs"
	"attriflow/internal/journeys"
	"attriflow/internal/settings"
)

// SystemExportDatabaseAction streams the SQLite database file as a backup
// download.
func SystemExportDatabaseAction(ctx *cartridge.Context) error {
	cfg := ctx.Config.(*config.Config)

	dbPath := cfg.DatabaseName
	if dbPath == "" {
		dbPath = filepath.Join(cfg.DatabasePath, fmt.Sprintf("%s-%s.db", cfg.AppName, cfg.Environment))
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		ctx.Logger.Error("Database file not found", slog.String("path", dbPath))
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Database file not found",
		})
	}

	file, err := os.Open(dbPath)
	if err != nil {
		ctx.Logger.Error("Failed to open database file", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read database file",
		})
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		ctx.Logger.Error("Failed to get database file info", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get database file info",
		})
	}

	ctx.Set("Content-Type", "application/octet-stream")
	ctx.Set("Content-Disposition", "attachment; filename=attriflow-backup.db")
	ctx.Set("Content-Length", strconv.FormatInt(fileInfo.Size(), 10))

	ctx.Logger.Info("Database exported", slog.String("path", dbPath), slog.Int64("size", fileInfo.Size()))

	_, err = io.Copy(ctx.Response().BodyWriter(), file)
	if err != nil {
		ctx.Logger.Error("Failed to stream database file", slog.Any("error", err))
		return err
	}

	return nil
}

// SystemHealthAction returns the system health status for UI warning indicators
func SystemHealthAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	// Check GeoLite status
	geoAccountID, geoLicenseKey, _ := settings.GetGeoLiteCredentials(db)
	geoConfigured := geoAccountID != "" && geoLicenseKey != ""

	cfg := config.GetConfig()
	geoDBPath := cfg.GeoDBPath
	if geoDBPath == "" {
		geoDBPath = filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	_, geoDBErr := os.Stat(geoDBPath)
	geoDBExists := geoDBErr == nil

	geoDownloadError, _ := settings.GetSetting(db, jobs.KeyGeoLiteDownloadError)

	// Get GeoLite last update time
	var geoLastUpdate string
	if lastUpdateStr, _ := settings.GetSetting(db, jobs.KeyGeoLiteLastUpdate); lastUpdateStr != "" {
		if t, err := time.Parse(time.RFC3339, lastUpdateStr); err == nil {
			geoLastUpdate = t.Format(time.RFC3339)
		}
	}

	// A default model must exist for the model-filter middleware to resolve
	// requests without an explicit model_id.
	defaultModel, err := attribution.GetDefaultModel(db)
	if err != nil {
		ctx.Logger.Error("Failed to check default model", slog.Any("error", err))
	}

	// Determine overall health and warning message
	var warning string
	switch {
	case defaultModel == nil && err == nil:
		warning = "No default attribution model configured"
	case geoConfigured && !geoDBExists && geoDownloadError != "":
		warning = "GeoLite database download failed"
	case geoConfigured && !geoDBExists:
		warning = "GeoLite database not yet downloaded"
	}

	return ctx.JSON(fiber.Map{
		"healthy":             warning == "",
		"warning":             warning,
		"geolite_configured":  geoConfigured,
		"geolite_db_exists":   geoDBExists,
		"geolite_last_update": geoLastUpdate,
		"geolite_error":       geoDownloadError,
	})
}

// SystemStatsAction returns row counts and storage usage for the admin
// system page.
func SystemStatsAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	counts := map[string]interface{}{
		"journeys":       &journeys.CustomerJourney{},
		"touchpoints":    &journeys.Touchpoint{},
		"pending_events": &journeys.IngestedTouchEvent{},
		"models":         &attribution.AttributionModel{},
		"results":        &attribution.AttributionResult{},
		"insights":       &insights.AttributionInsight{},
		"campaigns":      &campaigns.Campaign{},
		"annotations":    &annotations.Annotation{},
	}

	stats := make(map[string]int64, len(counts))
	for name, model := range counts {
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			ctx.Logger.Error("Failed to count rows", slog.String("table", name), slog.Any("error", err))
			return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Error fetching system stats",
			})
		}
		stats[name] = count
	}

	// Database file size
	cfg := ctx.Config.(*config.Config)
	var dbSizeBytes int64
	if info, err := os.Stat(cfg.GetDatabasePath()); err == nil {
		dbSizeBytes = info.Size()
	}

	return ctx.JSON(fiber.Map{
		"counts":        stats,
		"db_size_bytes": dbSizeBytes,
	})
}

// SystemPurgeCacheAction clears the generic cache table
func SystemPurgeCacheAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	rowsAffected, err := cache.PurgeAllCaches(db)
	if err != nil {
		ctx.Logger.Error("Failed to clear generic_cache", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear caches",
		})
	}

	ctx.Logger.Info("Caches purged successfully", slog.Int64("rows_deleted", rowsAffected))
	return ctx.JSON(fiber.Map{
		"message":      "All caches have been purged",
		"rows_deleted": rowsAffected,
	})
}

// SystemGeoLiteDownloadAction triggers an immediate GeoLite database download
func SystemGeoLiteDownloadAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	// Check if credentials are configured
	accountID, licenseKey, _ := settings.GetGeoLiteCredentials(db)
	if accountID == "" || licenseKey == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "GeoLite credentials not configured",
		})
	}

	// Trigger immediate download; it runs in the background
	cfg := ctx.Config.(*config.Config)
	jobs.TriggerImmediateDownload(db, ctx.Logger, cfg)

	ctx.Logger.Info("Manual GeoLite database download triggered")
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Database download started",
	})
}
