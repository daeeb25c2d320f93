package jobs

import (
	"log/slog"
	"time"

	"attriflow/internal/attribution"
	"attriflow/internal/config"
	"attriflow/internal/database"
	"attriflow/internal/journeys"
)

// CleanupJob removes old processed touch events and abandons journeys with no
// recent activity
type CleanupJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewCleanupJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

func (j *CleanupJob) Run() error {
	if err := j.cleanupIngestedTouchEvents(); err != nil {
		return err
	}
	return j.abandonStaleJourneys()
}

// cleanupIngestedTouchEvents removes processed touch events older than the
// retention period. This helps with GDPR data minimization and reduces
// storage usage.
func (j *CleanupJob) cleanupIngestedTouchEvents() error {
	retentionDays := j.cfg.IngestedEventsRetentionDays
	db := j.dbManager.GetConnection()
	cutoffDate := time.Now().AddDate(0, 0, -retentionDays)

	// Count events to be deleted first
	var countToDelete int64
	if err := db.Model(&journeys.IngestedTouchEvent{}).
		Where("processed = 1 AND created_at < ?", cutoffDate).
		Count(&countToDelete).Error; err != nil {
		j.logger.Error("Failed to count old ingested touch events", slog.Any("error", err))
		return err
	}

	if countToDelete == 0 {
		j.logger.Debug("No old ingested touch events to clean up")
		return nil
	}

	// Delete in batches to avoid locking the database for too long
	batchSize := 1000
	totalDeleted := int64(0)

	for {
		result := db.Where("processed = 1 AND created_at < ?", cutoffDate).
			Limit(batchSize).
			Delete(&journeys.IngestedTouchEvent{})

		if result.Error != nil {
			j.logger.Error("Failed to delete old ingested touch events",
				slog.Any("error", result.Error),
				slog.Int64("deleted_so_far", totalDeleted))
			return result.Error
		}

		totalDeleted += result.RowsAffected

		if result.RowsAffected < int64(batchSize) {
			break
		}

		// Small delay between batches to prevent database lock contention
		time.Sleep(100 * time.Millisecond)
	}

	j.logger.Info("Cleaned up old ingested touch events",
		slog.Int64("deleted_count", totalDeleted),
		slog.Int("retention_days", retentionDays))

	return nil
}

// abandonStaleJourneys closes journeys whose last touch is older than the
// inactivity window, then rescores them so their decay anchor moves from the
// current clock to the stamped journey end.
func (j *CleanupJob) abandonStaleJourneys() error {
	db := j.dbManager.GetConnection()

	abandonedIDs, err := journeys.AbandonStaleJourneys(db, j.logger, j.cfg.JourneyInactivityDays)
	if err != nil {
		j.logger.Error("Failed to abandon stale journeys", slog.Any("error", err))
		return err
	}

	if len(abandonedIDs) == 0 {
		return nil
	}

	recalculated := attribution.RecalculateJourneys(db, j.logger, abandonedIDs)

	j.logger.Info("Abandoned stale journeys",
		slog.Int("abandoned", len(abandonedIDs)),
		slog.Int("recalculated", recalculated),
		slog.Int("inactivity_days", j.cfg.JourneyInactivityDays))

	return nil
}
