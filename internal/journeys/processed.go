package journeys

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"log/slog"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attriflow/internal/campaigns"
	"attriflow/internal/pkg/channels"
	"attriflow/internal/pkg/referrers"
)

// TouchProcessingResult holds the results of batch touch event processing
type TouchProcessingResult struct {
	ProcessedCount   int
	TouchpointCount  int
	ConversionCount  int
	SkippedBots      int
	ClosedJourneyIDs []uint
}

// maxBatchesPerRun bounds how much of the backlog a single run loads into
// memory. The processing job runs every few seconds, so a deep backlog
// drains across runs instead of in one giant fetch.
const maxBatchesPerRun = 20

// ProcessUnprocessedTouchEvents drains the IngestedTouchEvent queue in
// batches, assigning each touch to an active journey and completing journeys
// on conversion events. ClosedJourneyIDs lists every journey completed during
// the run so callers can recompute attribution for them. A single run picks
// up at most batchSize * maxBatchesPerRun events, the rest waits for the
// next run.
func ProcessUnprocessedTouchEvents(dbManager cartridge.DBManager, logger *slog.Logger, batchSize int) (*TouchProcessingResult, error) {
	db := dbManager.GetConnection()
	result := &TouchProcessingResult{
		ClosedJourneyIDs: make([]uint, 0),
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	var tempEvents []IngestedTouchEvent
	err := db.Where("processed = 0").Order("id asc").
		Limit(batchSize * maxBatchesPerRun).
		Find(&tempEvents).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unprocessed touch events: %w", err)
	}

	if len(tempEvents) == 0 {
		logger.Info("No unprocessed touch events found")
		return result, nil
	}

	logger.Info("Processing unprocessed touch events", slog.Int("total", len(tempEvents)))

	// Process in batches
	for i := 0; i < len(tempEvents); i += batchSize {
		end := i + batchSize
		if end > len(tempEvents) {
			end = len(tempEvents)
		}
		batch := tempEvents[i:end]

		err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return processTouchBatch(tx, logger, batch, result)
		})
		if err != nil {
			logger.Error("Failed to process batch", slog.Int("start", i), slog.Int("end", end), slog.Any("error", err))
			continue
		}
		result.ProcessedCount += len(batch)
	}

	logger.Info("Processed touch events",
		slog.Int("processed", result.ProcessedCount),
		slog.Int("touchpoints", result.TouchpointCount),
		slog.Int("conversions", result.ConversionCount),
		slog.Int("skipped_bots", result.SkippedBots))
	return result, nil
}

// processTouchBatch processes a batch of IngestedTouchEvents within a transaction
func processTouchBatch(tx *gorm.DB, logger *slog.Logger, batch []IngestedTouchEvent, result *TouchProcessingResult) error {
	for i := range batch {
		tempEvent := &batch[i]

		if channels.IsBot(tempEvent.UserAgent) {
			logger.Debug("Skipping bot touch event",
				slog.Uint64("ingested_event_id", uint64(tempEvent.ID)),
				slog.String("user_agent", tempEvent.UserAgent))
			result.SkippedBots++
			continue
		}

		switch tempEvent.EventType {
		case TouchEventTypeConversion:
			if err := processConversionEvent(tx, logger, tempEvent, result); err != nil {
				return err
			}
		default:
			if err := processTouchEvent(tx, logger, tempEvent, result); err != nil {
				return err
			}
		}
	}

	// Mark all events in the batch (including skipped bots) as processed
	var eventIDs []uint
	for _, tempEvent := range batch {
		eventIDs = append(eventIDs, tempEvent.ID)
	}
	if len(eventIDs) > 0 {
		if err := tx.Model(&IngestedTouchEvent{}).Where("id IN ?", eventIDs).Update("processed", 1).Error; err != nil {
			return fmt.Errorf("failed to mark touch events as processed: %w", err)
		}
	}

	return nil
}

// processTouchEvent appends a classified touchpoint to the customer's active
// journey, opening a new journey when none exists.
func processTouchEvent(tx *gorm.DB, logger *slog.Logger, tempEvent *IngestedTouchEvent, result *TouchProcessingResult) error {
	journey, err := findOrCreateActiveJourneyInTx(tx, tempEvent)
	if err != nil {
		return fmt.Errorf("failed to resolve journey for touch event %d: %w", tempEvent.ID, err)
	}

	// A login touch on an anonymous journey attaches the known user id
	if tempEvent.UserID != "" && !journey.UserID.Valid {
		if err := tx.Model(&CustomerJourney{}).Where("id = ?", journey.ID).
			Update("user_id", tempEvent.UserID).Error; err != nil {
			return fmt.Errorf("failed to attach user id to journey %d: %w", journey.ID, err)
		}
	}

	touchpoint := buildTouchpoint(tx, logger, tempEvent)
	if err := appendTouchpointInTx(tx, journey.ID, touchpoint); err != nil {
		return fmt.Errorf("failed to append touchpoint for event %d: %w", tempEvent.ID, err)
	}

	result.TouchpointCount++
	return nil
}

// processConversionEvent completes the customer's active journey with the
// conversion value. A conversion without prior touches still records a
// journey, it just attributes to nothing.
func processConversionEvent(tx *gorm.DB, logger *slog.Logger, tempEvent *IngestedTouchEvent, result *TouchProcessingResult) error {
	journey, err := findOrCreateActiveJourneyInTx(tx, tempEvent)
	if err != nil {
		return fmt.Errorf("failed to resolve journey for conversion event %d: %w", tempEvent.ID, err)
	}

	conversionName := tempEvent.ConversionName
	if conversionName == "" {
		conversionName = "conversion"
	}

	if err := completeJourneyInTx(tx, journey.ID, tempEvent.EventValue, conversionName, tempEvent.Timestamp); err != nil {
		return fmt.Errorf("failed to complete journey %d: %w", journey.ID, err)
	}

	logger.Debug("Journey completed by conversion",
		slog.Uint64("journey_id", uint64(journey.ID)),
		slog.String("conversion", conversionName))

	result.ConversionCount++
	result.ClosedJourneyIDs = append(result.ClosedJourneyIDs, journey.ID)
	return nil
}

// findOrCreateActiveJourneyInTx returns the customer's open journey, creating
// one when the touch is the first contact since the last conversion.
func findOrCreateActiveJourneyInTx(tx *gorm.DB, tempEvent *IngestedTouchEvent) (*CustomerJourney, error) {
	var journey CustomerJourney
	err := tx.Where("customer_id = ? AND status = ?", tempEvent.CustomerSignature, JourneyStatusActive).
		Order("journey_start DESC").
		First(&journey).Error
	if err == nil {
		return &journey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query active journey: %w", err)
	}

	journey = CustomerJourney{
		CustomerID:   tempEvent.CustomerSignature,
		SessionID:    nullString(tempEvent.SessionID),
		DeviceID:     nullString(tempEvent.DeviceID),
		UserID:       nullString(tempEvent.UserID),
		JourneyStart: tempEvent.Timestamp,
		Status:       JourneyStatusActive,
	}
	if err := tx.Create(&journey).Error; err != nil {
		return nil, fmt.Errorf("failed to create journey: %w", err)
	}
	return &journey, nil
}

// buildTouchpoint classifies an ingested touch event into a touchpoint. The
// campaign link is resolved inside the caller's transaction so a brand new
// utm_campaign value creates its campaign row atomically with the touchpoint.
func buildTouchpoint(tx *gorm.DB, logger *slog.Logger, tempEvent *IngestedTouchEvent) *Touchpoint {
	utm, queryParams := extractURLParams(tempEvent.RawURL)

	// An explicit channel from the collect payload pins the classification,
	// server-side integrations know their channel better than the URL does.
	channel := tempEvent.Channel
	if channel == "" {
		channel = channels.Classify(channels.TouchContext{
			Source:       utm.source,
			Medium:       utm.medium,
			Campaign:     utm.campaign,
			ReferrerHost: tempEvent.ReferrerHostname,
			QueryParams:  queryParams,
		})
	}

	source := utm.source
	if source == "" && tempEvent.ReferrerHostname != "" {
		source = referrers.SourceName(tempEvent.ReferrerHostname)
	}

	platform := ""
	if tempEvent.ReferrerHostname != "" {
		platform = referrers.FriendlyName(tempEvent.ReferrerHostname)
	}

	var campaignID sql.NullInt64
	if utm.campaign != "" {
		id, err := campaigns.FindOrCreateByName(tx, utm.campaign)
		if err != nil {
			logger.Warn("Failed to link touchpoint campaign",
				slog.String("campaign", utm.campaign), slog.Any("error", err))
		} else {
			campaignID = sql.NullInt64{Int64: int64(id), Valid: true}
		}
	}

	touchpointType := TouchpointType(tempEvent.TouchpointType)
	if touchpointType == "" {
		touchpointType = TouchpointTypePageView
	}

	return &Touchpoint{
		CampaignID:     campaignID,
		Channel:        channel,
		Platform:       platform,
		Medium:         utm.medium,
		Source:         source,
		Campaign:       utm.campaign,
		TouchpointType: touchpointType,
		Country:        tempEvent.Country,
		Timestamp:      tempEvent.Timestamp,
		EventValue:     tempEvent.EventValue,
	}
}

// utmParams holds the UTM query parameters of a touch URL
type utmParams struct {
	source   string
	medium   string
	campaign string
	term     string
	content  string
}

// extractURLParams pulls UTM parameters and the full query string out of a
// raw URL. Click id parameters like gclid stay in the query map for the
// channel classifier.
func extractURLParams(rawURL string) (utmParams, map[string]string) {
	params := utmParams{}
	queryParams := make(map[string]string)

	if rawURL == "" {
		return params, queryParams
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return params, queryParams
	}

	for key, values := range parsedURL.Query() {
		if len(values) > 0 && values[0] != "" {
			queryParams[key] = values[0] // Take first value if multiple
		}
	}

	params.source = queryParams["utm_source"]
	params.medium = queryParams["utm_medium"]
	params.campaign = queryParams["utm_campaign"]
	params.term = queryParams["utm_term"]
	params.content = queryParams["utm_content"]
	return params, queryParams
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
