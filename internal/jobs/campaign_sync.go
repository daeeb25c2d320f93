package jobs

import (
	"context"
	"log/slog"

	"attriflow/internal/connectors"
	"attriflow/internal/database"
)

// CampaignSyncJob sweeps the configured ad platform connectors and upserts
// their campaigns and spend figures
type CampaignSyncJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
}

func NewCampaignSyncJob(dbManager *database.DBManager, logger *slog.Logger) *CampaignSyncJob {
	return &CampaignSyncJob{
		dbManager: dbManager,
		logger:    logger,
	}
}

func (j *CampaignSyncJob) Run(ctx context.Context) error {
	synced := connectors.SyncConfigured(ctx, j.dbManager, j.logger, connectors.All())
	if synced > 0 {
		j.logger.Info("Campaign sync finished", slog.Int("campaigns", synced))
	}
	return nil
}
