package jobs

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"attriflow/internal/config"
	"attriflow/internal/database"
	"attriflow/internal/pkg/geoip"
	"attriflow/internal/settings"
)

const (
	// MaxMind refreshes GeoLite editions weekly
	geoLiteRefreshInterval = 7 * 24 * time.Hour

	geoLiteDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"

	KeyGeoLiteLastUpdate    = "geolite_last_update"
	KeyGeoLiteDownloadError = "geolite_download_error"
)

// GeoLiteUpdaterJob keeps the local GeoLite2 database current so touchpoint
// country stamping stays accurate. It only runs when the operator has saved
// MaxMind credentials in settings.
type GeoLiteUpdaterJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewGeoLiteUpdaterJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *GeoLiteUpdaterJob {
	return &GeoLiteUpdaterJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *GeoLiteUpdaterJob) Run() error {
	db := j.dbManager.GetConnection()

	_, licenseKey, err := settings.GetGeoLiteCredentials(db)
	if err != nil || licenseKey == "" {
		j.logger.Debug("GeoLite credentials not configured, skipping update")
		return nil
	}

	age := time.Since(j.lastUpdatedAt(db))
	if age < geoLiteRefreshInterval {
		j.logger.Debug("GeoLite database is current", slog.Duration("age", age))
		return nil
	}

	j.logger.Info("Refreshing GeoLite database", slog.Duration("age", age))
	if err := refreshGeoDatabase(db, j.logger, licenseKey, j.geoDBPath()); err != nil {
		return err
	}

	j.logger.Info("GeoLite database refreshed")
	return nil
}

func (j *GeoLiteUpdaterJob) geoDBPath() string {
	if j.cfg.GeoDBPath != "" {
		return j.cfg.GeoDBPath
	}
	return filepath.Join("storage", "GeoLite2-City.mmdb")
}

func (j *GeoLiteUpdaterJob) lastUpdatedAt(db *gorm.DB) time.Time {
	raw, err := settings.GetSetting(db, KeyGeoLiteLastUpdate)
	if err != nil || raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

// refreshGeoDatabase downloads a fresh mmdb, swaps it into place, hot-reloads
// the in-memory reader, and records the outcome in settings. The last error is
// persisted so the admin system page can surface it.
func refreshGeoDatabase(db *gorm.DB, logger *slog.Logger, licenseKey, destPath string) error {
	if err := fetchAndInstallGeoDB(licenseKey, destPath); err != nil {
		logger.Error("GeoLite download failed", slog.Any("error", err))
		if saveErr := settings.CreateOrUpdateSetting(db, KeyGeoLiteDownloadError, err.Error()); saveErr != nil {
			logger.Error("Failed to record GeoLite download error", slog.Any("error", saveErr))
		}
		return err
	}

	// New touch events pick up the fresh database immediately
	geoip.ReloadGeoDB()

	if err := settings.CreateOrUpdateSetting(db, KeyGeoLiteDownloadError, ""); err != nil {
		logger.Error("Failed to clear GeoLite download error", slog.Any("error", err))
	}
	if err := settings.CreateOrUpdateSetting(db, KeyGeoLiteLastUpdate, time.Now().Format(time.RFC3339)); err != nil {
		logger.Error("Failed to record GeoLite update time", slog.Any("error", err))
	}
	return nil
}

func fetchAndInstallGeoDB(licenseKey, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create geo database directory: %w", err)
	}

	resp, err := http.Get(fmt.Sprintf(geoLiteDownloadURL, licenseKey))
	if err != nil {
		return fmt.Errorf("download GeoLite archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GeoLite download returned status %d", resp.StatusCode)
	}

	// Buffer the archive on disk; the tarball is tens of megabytes
	archive, err := os.CreateTemp("", "geolite-*.tar.gz")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	if _, err := io.Copy(archive, resp.Body); err != nil {
		return fmt.Errorf("save GeoLite archive: %w", err)
	}
	if _, err := archive.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	return extractMMDB(archive, destPath)
}

// extractMMDB pulls the single .mmdb entry out of the MaxMind tar.gz, which
// nests it under a dated directory.
func extractMMDB(archive io.Reader, destPath string) error {
	gzr, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("open gzip stream: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("no .mmdb file found in archive")
		}
		if err != nil {
			return fmt.Errorf("read tar entry: %w", err)
		}
		if !strings.HasSuffix(header.Name, ".mmdb") {
			continue
		}

		out, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("create database file: %w", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return fmt.Errorf("extract database file: %w", err)
		}
		return out.Close()
	}
}

// TriggerImmediateDownload refreshes the GeoLite database in the background,
// for use right after the operator saves new credentials so they do not have
// to wait for the weekly sweep.
func TriggerImmediateDownload(db *gorm.DB, logger *slog.Logger, cfg *config.Config) {
	go func() {
		_, licenseKey, err := settings.GetGeoLiteCredentials(db)
		if err != nil || licenseKey == "" {
			logger.Debug("GeoLite credentials not configured, skipping immediate download")
			return
		}

		destPath := cfg.GeoDBPath
		if destPath == "" {
			destPath = filepath.Join("storage", "GeoLite2-City.mmdb")
		}

		logger.Info("Starting immediate GeoLite download")
		if err := refreshGeoDatabase(db, logger, licenseKey, destPath); err != nil {
			return
		}
		logger.Info("Immediate GeoLite download complete")
	}()
}

// GetGeoLiteStatus reports configuration state for the admin system page.
func GetGeoLiteStatus(dbManager *database.DBManager) (configured bool, dbExists bool, lastUpdate time.Time) {
	db := dbManager.GetConnection()

	accountID, licenseKey, _ := settings.GetGeoLiteCredentials(db)
	configured = accountID != "" && licenseKey != ""

	geoDBPath := config.GetConfig().GeoDBPath
	if geoDBPath == "" {
		geoDBPath = filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	_, err := os.Stat(geoDBPath)
	dbExists = err == nil

	if raw, _ := settings.GetSetting(db, KeyGeoLiteLastUpdate); raw != "" {
		lastUpdate, _ = time.Parse(time.RFC3339, raw)
	}
	return
}
