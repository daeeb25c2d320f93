package jobs

import (
	"context"
	"log/slog"
	"time"

	"attriflow/internal/config"
	"attriflow/internal/database"
	"attriflow/internal/insights"
)

// InsightsJob rebuilds the per-channel insight rollups for every active
// attribution model
type InsightsJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewInsightsJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *InsightsJob {
	return &InsightsJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run generates insights over the configured lookback window. The window
// aligns to UTC midnights so reruns on the same day overwrite the same rows
// instead of accumulating near-duplicates.
func (j *InsightsJob) Run(ctx context.Context) error {
	db := j.dbManager.GetConnection()

	timeout := time.Duration(j.cfg.InsightsTimeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	windowEnd := time.Now().UTC().Truncate(24 * time.Hour).Add(24 * time.Hour)
	windowStart := windowEnd.AddDate(0, 0, -j.cfg.InsightsLookbackDays)

	written, err := insights.GenerateForAllActiveModels(runCtx, db, j.logger, windowStart, windowEnd)
	if err != nil {
		j.logger.Error("Insight generation failed",
			slog.Int("rows_written", written),
			slog.Any("error", err))
		return err
	}

	j.logger.Info("Insight rollups generated",
		slog.Int("rows", written),
		slog.Time("window_start", windowStart),
		slog.Time("window_end", windowEnd))

	return nil
}
