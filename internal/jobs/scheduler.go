package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"attriflow/internal/config"
	"attriflow/internal/database"
)

const (
	cleanupInterval      = time.Hour
	insightsInterval     = 24 * time.Hour
	campaignSyncInterval = 6 * time.Hour
	geoLiteCheckInterval = 24 * time.Hour
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent touch processing runs
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	touchProcessor *TouchProcessorJob
	cleanupJob     *CleanupJob
	insightsJob    *InsightsJob
	campaignSync   *CampaignSyncJob
	geoLiteUpdater *GeoLiteUpdaterJob

	// Tickers for each job type
	touchTicker    *time.Ticker
	cleanupTicker  *time.Ticker
	insightsTicker *time.Ticker
	campaignTicker *time.Ticker
	geoLiteTicker  *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	// Initialize job instances
	s.touchProcessor = NewTouchProcessorJob(dbManager, logger)
	s.cleanupJob = NewCleanupJob(dbManager, logger, cfg)
	s.insightsJob = NewInsightsJob(dbManager, logger, cfg)
	s.campaignSync = NewCampaignSyncJob(dbManager, logger)
	s.geoLiteUpdater = NewGeoLiteUpdaterJob(dbManager, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other run is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous run still going", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")

	s.isRunning = true

	s.startTouchProcessingJob()
	s.cleanupTicker = s.startPeriodicJob("cleanup", cleanupInterval, s.cleanupJob.Run)
	s.insightsTicker = s.startPeriodicJob("insights", insightsInterval, func() error {
		return s.insightsJob.Run(s.ctx)
	})
	s.campaignTicker = s.startPeriodicJob("campaign_sync", campaignSyncInterval, func() error {
		return s.campaignSync.Run(s.ctx)
	})
	s.geoLiteTicker = s.startPeriodicJob("geolite_updater", geoLiteCheckInterval, s.geoLiteUpdater.Run)

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startTouchProcessingJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting touch processing job", slog.Duration("interval", interval))
	s.touchTicker = time.NewTicker(interval)

	go func() {
		// Run initial execution
		s.logger.Info("Running initial touch processing...")
		s.executeJobSafely("touch_processor", s.touchProcessor.Run)

		for {
			select {
			case <-s.touchTicker.C:
				s.executeJobSafely("touch_processor", s.touchProcessor.Run)
			case <-s.ctx.Done():
				s.logger.Info("Touch processing job stopped")
				return
			}
		}
	}()
}

// startPeriodicJob runs jobFunc once at startup and then on every tick until
// the scheduler context is cancelled.
func (s *Scheduler) startPeriodicJob(jobName string, interval time.Duration, jobFunc func() error) *time.Ticker {
	s.logger.Info("Starting background job",
		slog.String("job", jobName),
		slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)

	go func() {
		if err := jobFunc(); err != nil {
			s.logger.Error("Error in initial job run", slog.String("job", jobName), slog.Any("error", err))
		}

		for {
			select {
			case <-ticker.C:
				if err := jobFunc(); err != nil {
					s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
				}
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", jobName))
				return
			}
		}
	}()

	return ticker
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range []*time.Ticker{
		s.touchTicker, s.cleanupTicker, s.insightsTicker, s.campaignTicker, s.geoLiteTicker,
	} {
		if ticker != nil {
			ticker.Stop()
		}
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// ProcessTouchEvents allows manual triggering of touch processing, used by the
// system endpoints
func (s *Scheduler) ProcessTouchEvents() error {
	if !s.enabled {
		return nil
	}
	return s.touchProcessor.Run()
}
