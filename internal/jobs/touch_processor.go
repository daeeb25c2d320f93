package jobs

import (
	"log/slog"

	"attriflow/internal/attribution"
	"attriflow/internal/database"
	"attriflow/internal/journeys"
)

const touchBatchSize = 100

// TouchProcessorJob drains the ingested touch event queue into journeys and
// touchpoints, then rescores any journey a conversion just closed.
type TouchProcessorJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewTouchProcessorJob(dbManager *database.DBManager, logger *slog.Logger) *TouchProcessorJob {
	return &TouchProcessorJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

// Run processes one batch of unprocessed touch events
func (j *TouchProcessorJob) Run() error {
	db := j.dbManager.GetConnection()

	var pending int64
	if err := db.Model(&journeys.IngestedTouchEvent{}).Where("processed = 0").Count(&pending).Error; err != nil {
		j.logger.Error("Failed to count unprocessed touch events", slog.Any("error", err))
		return err
	}

	if pending == 0 {
		j.logger.Debug("No pending touch events")
		return nil
	}

	j.logger.Info("Processing touch events", slog.Int64("pending", pending))

	result, err := journeys.ProcessUnprocessedTouchEvents(j.dbManager, j.logger, touchBatchSize)
	if err != nil {
		j.logger.Error("Failed to process touch events", slog.Any("error", err))
		return err
	}

	// Journeys closed by a conversion get scored under every active model
	// right away so dashboards pick up the sale on the next refresh.
	recalculated := 0
	if len(result.ClosedJourneyIDs) > 0 {
		recalculated = attribution.RecalculateJourneys(db, j.logger, result.ClosedJourneyIDs)
	}

	j.logger.Info("Touch events processed",
		slog.Int("processed", result.ProcessedCount),
		slog.Int("touchpoints", result.TouchpointCount),
		slog.Int("conversions", result.ConversionCount),
		slog.Int("skipped_bots", result.SkippedBots),
		slog.Int("journeys_recalculated", recalculated),
		slog.Int64("remaining", pending-int64(result.ProcessedCount)))

	return nil
}
