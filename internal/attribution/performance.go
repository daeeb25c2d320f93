package attribution

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"attriflow/internal/journeys"
)

// assistCreditThreshold separates sole-credit journeys from assisted ones,
// with room for floating point drift in credit sums.
const assistCreditThreshold = 1.0 - 1e-6

// ChannelPerformance aggregates stored attribution results for one channel
// over a calculation window.
type ChannelPerformance struct {
	Channel               string  `json:"channel"`
	TotalAttributedValue  float64 `json:"total_attributed_value"`
	AverageCredit         float64 `json:"average_credit"`
	TouchpointCount       int     `json:"touchpoint_count"`
	JourneyCount          int     `json:"journey_count"`
	Conversions           int     `json:"conversions"`
	AssistedConversions   int     `json:"assisted_conversions"`
	FirstClickConversions int     `json:"first_click_conversions"`
	LastClickConversions  int     `json:"last_click_conversions"`
}

type journeyChannelRollup struct {
	ModelID     uint
	JourneyID   uint
	Channel     string
	CreditSum   float64
	ValueSum    float64
	ResultCount int
}

type journeyMetaRow struct {
	JourneyID    uint
	Status       string
	FirstChannel string
	LastChannel  string
}

// GetChannelPerformance aggregates attribution results by channel for a
// calculation window. modelID zero aggregates across every model.
//
// Conversion counters only consider completed journeys: a channel assisted
// when it appears in a converted journey without holding all of its credit
// (zero-credit participation counts), and first/last click positions come
// from the journey's touchpoint sequence rather than from credit values.
func GetChannelPerformance(db *gorm.DB, modelID uint, from, to time.Time) ([]ChannelPerformance, error) {
	rollups, err := loadJourneyChannelRollups(db, modelID, from, to)
	if err != nil {
		return nil, err
	}
	if len(rollups) == 0 {
		return []ChannelPerformance{}, nil
	}

	meta, err := loadJourneyMeta(db, modelID, from, to)
	if err != nil {
		return nil, err
	}

	perfByChannel := make(map[string]*ChannelPerformance)
	creditTotals := make(map[string]float64)
	journeySets := make(map[string]map[uint]struct{})
	conversionSets := make(map[string]map[uint]struct{})
	assistedSets := make(map[string]map[uint]struct{})

	ensure := func(channel string) *ChannelPerformance {
		perf, ok := perfByChannel[channel]
		if !ok {
			perf = &ChannelPerformance{Channel: channel}
			perfByChannel[channel] = perf
			journeySets[channel] = make(map[uint]struct{})
			conversionSets[channel] = make(map[uint]struct{})
			assistedSets[channel] = make(map[uint]struct{})
		}
		return perf
	}

	for _, rollup := range rollups {
		perf := ensure(rollup.Channel)
		perf.TotalAttributedValue += rollup.ValueSum
		perf.TouchpointCount += rollup.ResultCount
		creditTotals[rollup.Channel] += rollup.CreditSum
		journeySets[rollup.Channel][rollup.JourneyID] = struct{}{}

		journey, ok := meta[rollup.JourneyID]
		if !ok || journey.Status != string(journeys.JourneyStatusCompleted) {
			continue
		}
		conversionSets[rollup.Channel][rollup.JourneyID] = struct{}{}
		if rollup.CreditSum < assistCreditThreshold {
			assistedSets[rollup.Channel][rollup.JourneyID] = struct{}{}
		}
	}

	for _, journey := range meta {
		if journey.Status != string(journeys.JourneyStatusCompleted) {
			continue
		}
		if journey.FirstChannel != "" {
			ensure(journey.FirstChannel).FirstClickConversions++
		}
		if journey.LastChannel != "" {
			ensure(journey.LastChannel).LastClickConversions++
		}
	}

	performance := make([]ChannelPerformance, 0, len(perfByChannel))
	for channel, perf := range perfByChannel {
		perf.JourneyCount = len(journeySets[channel])
		perf.Conversions = len(conversionSets[channel])
		perf.AssistedConversions = len(assistedSets[channel])
		if perf.TouchpointCount > 0 {
			perf.AverageCredit = creditTotals[channel] / float64(perf.TouchpointCount)
		}
		performance = append(performance, *perf)
	}

	sort.Slice(performance, func(i, j int) bool {
		if performance[i].TotalAttributedValue != performance[j].TotalAttributedValue {
			return performance[i].TotalAttributedValue > performance[j].TotalAttributedValue
		}
		return performance[i].Channel < performance[j].Channel
	})

	return performance, nil
}

// ModelComparisonRow summarizes one active model's attributed totals over a
// window, for side by side comparison.
type ModelComparisonRow struct {
	ModelID         uint    `json:"model_id"`
	ModelName       string  `json:"model_name"`
	ModelType       string  `json:"model_type"`
	IsDefault       bool    `json:"is_default"`
	AttributedValue float64 `json:"attributed_value"`
	TopChannel      string  `json:"top_channel"`
	TopChannelValue float64 `json:"top_channel_value"`
}

// CompareActiveModels builds the comparison table across every active model.
// Inactive models keep their stored results but stay out of this view.
func CompareActiveModels(db *gorm.DB, from, to time.Time) ([]ModelComparisonRow, error) {
	models, err := GetActiveModels(db)
	if err != nil {
		return nil, err
	}

	rows := make([]ModelComparisonRow, 0, len(models))
	for _, model := range models {
		row := ModelComparisonRow{
			ModelID:   model.ID,
			ModelName: model.Name,
			ModelType: model.Type,
			IsDefault: model.IsDefault,
		}

		performance, err := GetChannelPerformance(db, model.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("failed to compare model %q: %w", model.Name, err)
		}
		for _, perf := range performance {
			row.AttributedValue += perf.TotalAttributedValue
		}
		if len(performance) > 0 {
			row.TopChannel = performance[0].Channel
			row.TopChannelValue = performance[0].TotalAttributedValue
		}

		rows = append(rows, row)
	}
	return rows, nil
}

// loadJourneyChannelRollups sums stored results per (model, journey,
// channel) so sole-credit checks stay meaningful when several models are
// in scope.
func loadJourneyChannelRollups(db *gorm.DB, modelID uint, from, to time.Time) ([]journeyChannelRollup, error) {
	query := db.Table("attribution_results").
		Select("model_id, journey_id, channel, SUM(credit) AS credit_sum, SUM(attributed_value) AS value_sum, COUNT(*) AS result_count").
		Where("calculated_at BETWEEN ? AND ?", from, to)
	if modelID != 0 {
		query = query.Where("model_id = ?", modelID)
	}

	var rollups []journeyChannelRollup
	err := query.Group("model_id, journey_id, channel").Scan(&rollups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate attribution results: %w", err)
	}
	return rollups, nil
}

// loadJourneyMeta fetches status and the boundary channels of every journey
// with results in scope. Boundary channels come from the touchpoint
// sequence ordered by position.
func loadJourneyMeta(db *gorm.DB, modelID uint, from, to time.Time) (map[uint]journeyMetaRow, error) {
	query := `
        SELECT j.id AS journey_id, j.status AS status,
            (SELECT t.channel FROM touchpoints t WHERE t.journey_id = j.id ORDER BY t.position ASC LIMIT 1) AS first_channel,
            (SELECT t.channel FROM touchpoints t WHERE t.journey_id = j.id ORDER BY t.position DESC LIMIT 1) AS last_channel
        FROM customer_journeys j
        WHERE j.id IN (
            SELECT DISTINCT journey_id FROM attribution_results
            WHERE calculated_at BETWEEN ? AND ?`
	args := []interface{}{from, to}
	if modelID != 0 {
		query += " AND model_id = ?"
		args = append(args, modelID)
	}
	query += ")"

	var rows []journeyMetaRow
	if err := db.Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load journey metadata: %w", err)
	}

	meta := make(map[uint]journeyMetaRow, len(rows))
	for _, row := range rows {
		meta[row.JourneyID] = row
	}
	return meta, nil
}
