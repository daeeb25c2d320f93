package journeys

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"attriflow/internal/timeframe"
)

// JourneyFilters represents filtering options for journeys
type JourneyFilters struct {
	CustomerID string
	UserID     string
	Status     string
	Channel    string // journeys that contain a touchpoint in this channel
	FromDate   time.Time
	ToDate     time.Time
	Limit      int
	Offset     int
}

// JourneysResult represents paginated journeys result
type JourneysResult struct {
	Journeys []CustomerJourney
	Total    int64
}

// GetFilteredJourneys retrieves filtered and paginated journeys, newest first
func GetFilteredJourneys(db *gorm.DB, filters JourneyFilters) (JourneysResult, error) {
	query := db.Model(&CustomerJourney{}).
		Where("journey_start BETWEEN ? AND ?", filters.FromDate, filters.ToDate)

	if filters.CustomerID != "" {
		query = query.Where("customer_id LIKE ?", "%"+filters.CustomerID+"%")
	}

	if filters.UserID != "" {
		query = query.Where("user_id LIKE ?", "%"+filters.UserID+"%")
	}

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	if filters.Channel != "" {
		query = query.Where(
			"EXISTS (SELECT 1 FROM touchpoints WHERE touchpoints.journey_id = customer_journeys.id AND touchpoints.channel = ?)",
			filters.Channel)
	}

	// Get total count for pagination
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return JourneysResult{}, err
	}

	// Get paginated journeys
	var journeyRows []CustomerJourney
	if err := query.Order("journey_start DESC").
		Limit(filters.Limit).
		Offset(filters.Offset).
		Find(&journeyRows).Error; err != nil {
		return JourneysResult{}, err
	}

	return JourneysResult{
		Journeys: journeyRows,
		Total:    total,
	}, nil
}

// JourneyStats summarizes journey volume and conversion outcomes for a window
type JourneyStats struct {
	TotalJourneys        int64   `json:"total_journeys"`
	ActiveJourneys       int64   `json:"active_journeys"`
	CompletedJourneys    int64   `json:"completed_journeys"`
	AbandonedJourneys    int64   `json:"abandoned_journeys"`
	TotalConversionValue float64 `json:"total_conversion_value"`
	AvgTouchpoints       float64 `json:"avg_touchpoints"`
	ConversionRate       float64 `json:"conversion_rate"`
}

// GetJourneyStats aggregates journey counts and conversion outcomes for
// journeys started within the window.
func GetJourneyStats(db *gorm.DB, from, to time.Time) (JourneyStats, error) {
	var stats JourneyStats

	row := struct {
		Total           int64
		Active          int64
		Completed       int64
		Abandoned       int64
		ConversionValue float64
		AvgTouchpoints  float64
	}{}

	err := db.Raw(`
        SELECT
            COUNT(*) AS total,
            COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) AS active,
            COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed,
            COALESCE(SUM(CASE WHEN status = 'abandoned' THEN 1 ELSE 0 END), 0) AS abandoned,
            COALESCE(SUM(CASE WHEN status = 'completed' THEN conversion_value ELSE 0 END), 0) AS conversion_value,
            COALESCE(AVG(total_touchpoints), 0) AS avg_touchpoints
        FROM customer_journeys
        WHERE journey_start BETWEEN ? AND ?`, from, to).Scan(&row).Error
	if err != nil {
		return stats, fmt.Errorf("failed to aggregate journey stats: %w", err)
	}

	stats.TotalJourneys = row.Total
	stats.ActiveJourneys = row.Active
	stats.CompletedJourneys = row.Completed
	stats.AbandonedJourneys = row.Abandoned
	stats.TotalConversionValue = row.ConversionValue
	stats.AvgTouchpoints = row.AvgTouchpoints

	terminal := row.Completed + row.Abandoned
	if terminal > 0 {
		stats.ConversionRate = float64(row.Completed) / float64(terminal)
	}
	return stats, nil
}

// GetTouchpointCountsByDate returns the touchpoint volume series for a
// timeframe, bucketed by the timeframe's granularity.
func GetTouchpointCountsByDate(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateStat, error) {
	groupExpr, err := tf.GetSQLiteGroupByExpression("timestamp")
	if err != nil {
		return nil, err
	}

	var results []timeframe.DateStat
	err = db.Raw(fmt.Sprintf(`
        SELECT %s AS date, COUNT(*) AS count
        FROM touchpoints
        WHERE timestamp BETWEEN ? AND ?
        GROUP BY date
        ORDER BY date ASC`, groupExpr), tf.From, tf.To).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query touchpoint counts: %w", err)
	}

	return tf.BuildTimeSeriesPoints(results), nil
}

// GetConversionCountsByDate returns the completed conversion series for a
// timeframe, bucketed by journey end.
func GetConversionCountsByDate(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateStat, error) {
	groupExpr, err := tf.GetSQLiteGroupByExpression("journey_end")
	if err != nil {
		return nil, err
	}

	var results []timeframe.DateStat
	err = db.Raw(fmt.Sprintf(`
        SELECT %s AS date, COUNT(*) AS count
        FROM customer_journeys
        WHERE status = 'completed' AND journey_end BETWEEN ? AND ?
        GROUP BY date
        ORDER BY date ASC`, groupExpr), tf.From, tf.To).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion counts: %w", err)
	}

	return tf.BuildTimeSeriesPoints(results), nil
}

// GetConversionValuesByDate returns the conversion value series for a
// timeframe, bucketed by journey end.
func GetConversionValuesByDate(db *gorm.DB, tf *timeframe.TimeFrame) ([]timeframe.DateValue, error) {
	groupExpr, err := tf.GetSQLiteGroupByExpression("journey_end")
	if err != nil {
		return nil, err
	}

	var results []timeframe.DateValue
	err = db.Raw(fmt.Sprintf(`
        SELECT %s AS date, COALESCE(SUM(conversion_value), 0) AS value
        FROM customer_journeys
        WHERE status = 'completed' AND journey_end BETWEEN ? AND ?
        GROUP BY date
        ORDER BY date ASC`, groupExpr), tf.From, tf.To).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query conversion values: %w", err)
	}

	return tf.BuildValueSeriesPoints(results), nil
}

// GetTopChannelsByTouchpoints ranks channels by touchpoint volume inside a
// window. This is the raw traffic view, attribution-weighted rankings come
// from the insights package.
func GetTopChannelsByTouchpoints(db *gorm.DB, from, to time.Time, limit int) ([]ChannelTouchpointCount, error) {
	var results []ChannelTouchpointCount
	err := db.Raw(`
        SELECT channel, COUNT(*) AS touchpoints, COUNT(DISTINCT journey_id) AS journeys
        FROM touchpoints
        WHERE timestamp BETWEEN ? AND ?
        GROUP BY channel
        ORDER BY touchpoints DESC
        LIMIT ?`, from, to, limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top channels: %w", err)
	}
	return results, nil
}

// ChannelTouchpointCount is one row of the raw channel traffic ranking
type ChannelTouchpointCount struct {
	Channel     string `json:"channel"`
	Touchpoints int64  `json:"touchpoints"`
	Journeys    int64  `json:"journeys"`
}

// CountJourneysWithStatus counts journeys currently in the given status
func CountJourneysWithStatus(db *gorm.DB, status JourneyStatus) (int64, error) {
	var count int64
	err := db.Model(&CustomerJourney{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// CountryJourneyCount is one row of the country traffic ranking. Codes are
// lowercase ISO 3166-1 alpha-2, empty when geo lookup had no answer.
type CountryJourneyCount struct {
	Country  string `json:"country"`
	Journeys int64  `json:"journeys"`
}

// GetTopCountriesByJourneys ranks countries by the distinct journeys they
// touched inside a window.
func GetTopCountriesByJourneys(db *gorm.DB, from, to time.Time, limit int) ([]CountryJourneyCount, error) {
	var results []CountryJourneyCount
	err := db.Raw(`
        SELECT country, COUNT(DISTINCT journey_id) AS journeys
        FROM touchpoints
        WHERE timestamp BETWEEN ? AND ? AND country != ''
        GROUP BY country
        ORDER BY journeys DESC
        LIMIT ?`, from, to, limit).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query top countries: %w", err)
	}
	return results, nil
}
