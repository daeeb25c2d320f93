package attribution

import (
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AttributionResult stores the credit one touchpoint earned under one
// model. Rows for a (journey, model) pair are always written as a full
// replacement set, so their credits sum to 1.0 whenever the journey has
// touchpoints.
type AttributionResult struct {
	ID              uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	JourneyID       uint          `gorm:"index:idx_results_journey_model,priority:1;not null" json:"journey_id"`
	ModelID         uint          `gorm:"index:idx_results_journey_model,priority:2;index:idx_results_model_calculated,priority:1;not null" json:"model_id"`
	TouchpointID    uint          `gorm:"index;not null" json:"touchpoint_id"`
	CampaignID      sql.NullInt64 `gorm:"index" json:"campaign_id"`
	Channel         string        `gorm:"index;size:50;not null" json:"channel"`
	Credit          float64       `gorm:"not null" json:"credit"`
	AttributedValue float64       `gorm:"not null" json:"attributed_value"`
	CalculatedAt    time.Time     `gorm:"index:idx_results_model_calculated,priority:2;not null" json:"calculated_at"`
}

// TableName specifies the table name for GORM
func (AttributionResult) TableName() string {
	return "attribution_results"
}

// GetJourneyResults returns the stored results for one journey under one
// model, in touchpoint order.
func GetJourneyResults(db *gorm.DB, journeyID, modelID uint) ([]AttributionResult, error) {
	var results []AttributionResult
	err := db.
		Where("journey_id = ? AND model_id = ?", journeyID, modelID).
		Order("touchpoint_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get journey results: %w", err)
	}
	return results, nil
}

// GetResultsForJourney returns every stored result for a journey across all
// models, for side by side display.
func GetResultsForJourney(db *gorm.DB, journeyID uint) ([]AttributionResult, error) {
	var results []AttributionResult
	err := db.
		Where("journey_id = ?", journeyID).
		Order("model_id ASC, touchpoint_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get journey results: %w", err)
	}
	return results, nil
}

// CountResultsForModel reports how many result rows a model currently holds
func CountResultsForModel(db *gorm.DB, modelID uint) (int64, error) {
	var count int64
	err := db.Model(&AttributionResult{}).Where("model_id = ?", modelID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count model results: %w", err)
	}
	return count, nil
}

// GetAttributedValuesByDate returns the attributed value per day for a
// model, bucketed on calculation time.
func GetAttributedValuesByDate(db *gorm.DB, modelID uint, from, to time.Time) (map[string]float64, error) {
	rows := []struct {
		Date  string
		Value float64
	}{}
	err := db.Raw(`
        SELECT strftime('%Y-%m-%d', calculated_at) AS date, SUM(attributed_value) AS value
        FROM attribution_results
        WHERE model_id = ? AND calculated_at BETWEEN ? AND ?
        GROUP BY date
        ORDER BY date ASC`,
		modelID, from, to).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get attributed values by date: %w", err)
	}

	values := make(map[string]float64, len(rows))
	for _, row := range rows {
		values[row.Date] = row.Value
	}
	return values, nil
}
