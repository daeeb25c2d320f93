package attribution

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attriflow/internal/journeys"
)

// RecalculateJourney recomputes and stores the attribution results for one
// journey under one model. The previous result set for the pair is replaced
// inside a single write transaction, so readers never observe a partial
// state and repeated runs converge on the same rows. A missing journey,
// missing model or journey without touchpoints resolves to an empty result
// set rather than an error.
func RecalculateJourney(dbConn *gorm.DB, logger *slog.Logger, journeyID, modelID uint) error {
	journey, err := journeys.GetJourneyByID(dbConn, journeyID)
	if err != nil {
		var notFound *journeys.JourneyNotFoundError
		if errors.As(err, &notFound) {
			return replaceResults(dbConn, logger, journeyID, modelID, nil)
		}
		return err
	}

	model, err := GetModelByID(dbConn, modelID)
	if err != nil {
		var notFound *ModelNotFoundError
		if errors.As(err, &notFound) {
			return replaceResults(dbConn, logger, journeyID, modelID, nil)
		}
		return err
	}

	touchpoints, err := journeys.GetJourneyTouchpoints(dbConn, journeyID)
	if err != nil {
		return err
	}
	if len(touchpoints) == 0 {
		return replaceResults(dbConn, logger, journeyID, modelID, nil)
	}

	refs := make([]TouchpointRef, len(touchpoints))
	for i, tp := range touchpoints {
		refs[i] = TouchpointRef{ID: tp.ID, Position: tp.Position, Timestamp: tp.Timestamp}
	}

	credits, err := CalculateCredits(model, refs, decayAnchor(journey, refs))
	if err != nil {
		return err
	}

	conversionValue := 0.0
	if journey.ConversionValue.Valid {
		conversionValue = journey.ConversionValue.Float64
	}

	now := time.Now().UTC()
	results := make([]AttributionResult, len(touchpoints))
	for i, tp := range touchpoints {
		results[i] = AttributionResult{
			JourneyID:       journeyID,
			ModelID:         modelID,
			TouchpointID:    tp.ID,
			CampaignID:      tp.CampaignID,
			Channel:         tp.Channel,
			Credit:          credits[i],
			AttributedValue: conversionValue * credits[i],
			CalculatedAt:    now,
		}
	}

	return replaceResults(dbConn, logger, journeyID, modelID, results)
}

// decayAnchor picks the reference time decay ages are measured from: the
// recorded end for closed journeys, the calculation time for active ones.
// A closed journey missing its end time anchors on the last touchpoint so
// stored results stay stable across reruns.
func decayAnchor(journey *journeys.CustomerJourney, refs []TouchpointRef) time.Time {
	if journey.JourneyEnd.Valid {
		return journey.JourneyEnd.Time
	}
	if journey.Status != journeys.JourneyStatusActive && len(refs) > 0 {
		return refs[len(refs)-1].Timestamp
	}
	return time.Now().UTC()
}

// replaceResults swaps the stored result set for a (journey, model) pair.
// Delete and insert share one transaction.
func replaceResults(dbConn *gorm.DB, logger *slog.Logger, journeyID, modelID uint, results []AttributionResult) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		err := tx.Exec("DELETE FROM attribution_results WHERE journey_id = ? AND model_id = ?", journeyID, modelID).Error
		if err != nil {
			return fmt.Errorf("failed to clear previous results: %w", err)
		}
		if len(results) == 0 {
			return nil
		}
		if err := tx.Create(&results).Error; err != nil {
			return fmt.Errorf("failed to store attribution results: %w", err)
		}
		return nil
	})
}

// RecalculateJourneyForActiveModels refreshes one journey's results under
// every active model.
func RecalculateJourneyForActiveModels(dbConn *gorm.DB, logger *slog.Logger, journeyID uint) error {
	models, err := GetActiveModels(dbConn)
	if err != nil {
		return err
	}
	for _, model := range models {
		if err := RecalculateJourney(dbConn, logger, journeyID, model.ID); err != nil {
			return fmt.Errorf("failed to recalculate journey %d under model %d: %w", journeyID, model.ID, err)
		}
	}
	return nil
}

// RecalculateJourneys refreshes a batch of journeys across all active
// models. Failures are logged and skipped so one bad journey does not stall
// the rest of the batch. Returns how many journeys were refreshed.
func RecalculateJourneys(dbConn *gorm.DB, logger *slog.Logger, journeyIDs []uint) int {
	recalculated := 0
	for _, id := range journeyIDs {
		if err := RecalculateJourneyForActiveModels(dbConn, logger, id); err != nil {
			logger.Error("Failed to recalculate journey attribution", "journey_id", id, "error", err)
			continue
		}
		recalculated++
	}
	return recalculated
}

// RecalculateModel refreshes every journey's results under one model, used
// after the model's configuration changes. Returns how many journeys were
// refreshed.
func RecalculateModel(dbConn *gorm.DB, logger *slog.Logger, modelID uint) (int, error) {
	if _, err := GetModelByID(dbConn, modelID); err != nil {
		return 0, err
	}

	var journeyIDs []uint
	err := dbConn.Raw("SELECT id FROM customer_journeys ORDER BY id ASC").Scan(&journeyIDs).Error
	if err != nil {
		return 0, fmt.Errorf("failed to list journeys for recalculation: %w", err)
	}

	recalculated := 0
	for _, journeyID := range journeyIDs {
		if err := RecalculateJourney(dbConn, logger, journeyID, modelID); err != nil {
			logger.Error("Failed to recalculate journey attribution",
				"journey_id", journeyID, "model_id", modelID, "error", err)
			continue
		}
		recalculated++
	}
	return recalculated, nil
}
