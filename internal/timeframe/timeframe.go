package timeframe

import (
	"fmt"
	"strings"
	"time"
)

// DateStat is one point of a count series (touchpoints, conversions).
type DateStat struct {
	Date  string
	Count int
}

// DateValue is one point of a monetary series (attributed value).
type DateValue struct {
	Date  string
	Value float64
}

type TimeFrameBucketSize string

const (
	TimeFrameBucketSizeYear  TimeFrameBucketSize = "year"
	TimeFrameBucketSizeMonth TimeFrameBucketSize = "month"
	TimeFrameBucketSizeWeek  TimeFrameBucketSize = "week"
	TimeFrameBucketSizeDay   TimeFrameBucketSize = "day"
	TimeFrameBucketSizeHour  TimeFrameBucketSize = "hour"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock.
type DefaultTimeProvider struct{}

func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

type TimeFrameSize struct {
	DBFormat   string
	BucketSize TimeFrameBucketSize
}

type TimeFrameParams struct {
	FromTime      time.Time
	ToTime        time.Time
	TimeFrameSize TimeFrameSize
}

// TimeFrame represents a reporting window between two points in time.
// From and To are stored in UTC; Tz is the requesting user's timezone and
// controls bucket boundaries.
type TimeFrame struct {
	From       time.Time
	To         time.Time
	BucketSize TimeFrameBucketSize
	dbFormat   string
	Tz         *time.Location
}

type DatePointsOfReference struct {
	SQLiteBucketTimeFormat string
	UserFacingTimeFormat   string
}

// Predefined TimeFrameSizes
var (
	HourlyTimeFrame  = TimeFrameSize{DBFormat: "%Y-%m-%d %H:00:00", BucketSize: TimeFrameBucketSizeHour}
	DailyTimeFrame   = TimeFrameSize{DBFormat: "%Y-%m-%d", BucketSize: TimeFrameBucketSizeDay}
	WeeklyTimeFrame  = TimeFrameSize{DBFormat: "%Y-%m-%d", BucketSize: TimeFrameBucketSizeWeek}
	MonthlyTimeFrame = TimeFrameSize{DBFormat: "%Y-%m-01", BucketSize: TimeFrameBucketSizeMonth}
	YearlyTimeFrame  = TimeFrameSize{DBFormat: "%Y", BucketSize: TimeFrameBucketSizeYear}
)

func NewTimeFrame(params TimeFrameParams, tz *time.Location) (*TimeFrame, error) {
	if params.FromTime.After(params.ToTime) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	return &TimeFrame{
		From:       params.FromTime,
		To:         params.ToTime,
		BucketSize: params.TimeFrameSize.BucketSize,
		dbFormat:   params.TimeFrameSize.DBFormat,
		Tz:         tz,
	}, nil
}

// NewAutoTimeFrameFromClientTimezone picks a bucket size from the range span
// and extends the end time to the bucket boundary in the user's timezone, so
// UTC truncation never crosses a local day boundary.
func NewAutoTimeFrameFromClientTimezone(fromTime, toTime time.Time, tz *time.Location) (*TimeFrame, error) {
	fromUTC := fromTime.UTC()
	toUTC := toTime.UTC()

	timeFrameSize := GetAppropriateTimeFrameSize(fromUTC, toUTC)

	toTruncated := TruncateToBucketInTimezone(toTime, timeFrameSize.BucketSize, tz)

	switch timeFrameSize.BucketSize {
	case TimeFrameBucketSizeYear:
		toTruncated = toTruncated.AddDate(1, 0, 0).Add(-1 * time.Second)
	case TimeFrameBucketSizeMonth:
		toTruncated = toTruncated.AddDate(0, 1, 0).Add(-1 * time.Second)
	case TimeFrameBucketSizeWeek:
		toTruncated = toTruncated.AddDate(0, 0, 7).Add(-1 * time.Second)
	case TimeFrameBucketSizeDay:
		toTruncated = toTruncated.AddDate(0, 0, 1).Add(-1 * time.Second)
	case TimeFrameBucketSizeHour:
		toTruncated = toTruncated.Add(time.Hour).Add(-1 * time.Second)
	}

	return NewTimeFrame(TimeFrameParams{
		FromTime:      fromUTC,
		ToTime:        toTruncated.UTC(),
		TimeFrameSize: timeFrameSize,
	}, tz)
}

func GetAppropriateTimeFrameSize(fromTime, toTime time.Time) TimeFrameSize {
	days := toTime.Sub(fromTime).Hours() / 24

	switch {
	case days >= 5*365:
		return YearlyTimeFrame
	case days >= 3*30:
		return MonthlyTimeFrame
	case days >= 2:
		return DailyTimeFrame
	default:
		return HourlyTimeFrame
	}
}

func (tf *TimeFrame) FormatDate(t time.Time) string {
	return t.Format(tf.sqliteToGoFormat())
}

func (tf *TimeFrame) sqliteToGoFormat() string {
	format := tf.dbFormat
	format = strings.ReplaceAll(format, "%Y", "2006")
	format = strings.ReplaceAll(format, "%m", "01")
	format = strings.ReplaceAll(format, "%d", "02")
	format = strings.ReplaceAll(format, "%H", "15")
	return format
}

func (tf *TimeFrame) Duration() time.Duration {
	return tf.To.Sub(tf.From)
}

func (tf *TimeFrame) Validate() error {
	if tf.From.After(tf.To) {
		return fmt.Errorf("fromTime must be before toTime")
	}
	return nil
}

func GetTimeFrameSize(bucketSize TimeFrameBucketSize) (TimeFrameSize, error) {
	switch bucketSize {
	case TimeFrameBucketSizeHour:
		return HourlyTimeFrame, nil
	case TimeFrameBucketSizeDay:
		return DailyTimeFrame, nil
	case TimeFrameBucketSizeWeek:
		return WeeklyTimeFrame, nil
	case TimeFrameBucketSizeMonth:
		return MonthlyTimeFrame, nil
	case TimeFrameBucketSizeYear:
		return YearlyTimeFrame, nil
	default:
		return TimeFrameSize{}, fmt.Errorf("unknown bucket size: %s", bucketSize)
	}
}

// GetSQLiteGroupByExpression returns the SQLite expression that buckets the
// given timestamp column for this frame's bucket size. The column is caller
// supplied because touchpoints group on timestamp while attribution results
// group on calculated_at.
func (tf *TimeFrame) GetSQLiteGroupByExpression(column string) (string, error) {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H', %s)", column), nil
	case TimeFrameBucketSizeDay:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column), nil
	case TimeFrameBucketSizeWeek:
		return fmt.Sprintf("date(%s, 'start of day', '-' || ((strftime('%%w', %s) + 6) %% 7) || ' days')", column, column), nil
	case TimeFrameBucketSizeMonth:
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column), nil
	case TimeFrameBucketSizeYear:
		return fmt.Sprintf("strftime('%%Y', %s)", column), nil
	default:
		return "", fmt.Errorf("unsupported time frame bucket size: %v", tf.BucketSize)
	}
}

// GenerateDateTimePointsReference enumerates every bucket in the frame. Date
// points carry UTC-midnight display times for their local date, so a CET user
// requesting Dec 1 sees 2025-12-01T00:00:00Z rather than Nov 30 23:00.
func (tf *TimeFrame) GenerateDateTimePointsReference() []DatePointsOfReference {
	datePoints := []DatePointsOfReference{}

	currentTime := tf.From
	endTime := tf.To

	tz := tf.Tz
	if tz == nil {
		tz = time.UTC
	}

	if tf.BucketSize != TimeFrameBucketSizeHour {
		localTime := currentTime.In(tz)
		currentTime = time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		currentTime = truncateToBucket(currentTime, tf.BucketSize)
	}

	// Hard cap prevents runaway loops on malformed ranges
	maxPoints := 1000
	pointCount := 0

	for {
		if pointCount >= maxPoints {
			break
		}

		// Daily and larger buckets compare bucket boundaries, not exact
		// times, so the bucket containing endTime is always included.
		shouldStop := false
		switch tf.BucketSize {
		case TimeFrameBucketSizeDay:
			currentDay := time.Date(currentTime.Year(), currentTime.Month(), currentTime.Day(), 0, 0, 0, 0, time.UTC)
			endDay := time.Date(endTime.Year(), endTime.Month(), endTime.Day(), 0, 0, 0, 0, time.UTC)
			shouldStop = currentDay.After(endDay)
		case TimeFrameBucketSizeMonth:
			currentMonth := time.Date(currentTime.Year(), currentTime.Month(), 1, 0, 0, 0, 0, time.UTC)
			endMonth := time.Date(endTime.Year(), endTime.Month(), 1, 0, 0, 0, 0, time.UTC)
			shouldStop = currentMonth.After(endMonth)
		case TimeFrameBucketSizeYear:
			shouldStop = currentTime.Year() > endTime.Year()
		default:
			shouldStop = currentTime.After(endTime)
		}

		if shouldStop {
			break
		}

		var sqliteBucketFormat string
		switch tf.BucketSize {
		case TimeFrameBucketSizeYear:
			sqliteBucketFormat = currentTime.Format("2006")
		case TimeFrameBucketSizeMonth:
			sqliteBucketFormat = currentTime.Format("2006-01")
		case TimeFrameBucketSizeWeek:
			sqliteBucketFormat = currentTime.Format("2006-01-02")
		case TimeFrameBucketSizeDay:
			sqliteBucketFormat = currentTime.Format("2006-01-02")
		case TimeFrameBucketSizeHour:
			sqliteBucketFormat = currentTime.Format("2006-01-02 15")
		}

		datePoints = append(datePoints, DatePointsOfReference{
			SQLiteBucketTimeFormat: sqliteBucketFormat,
			UserFacingTimeFormat:   currentTime.Format(time.RFC3339),
		})

		switch tf.BucketSize {
		case TimeFrameBucketSizeYear:
			currentTime = currentTime.AddDate(1, 0, 0)
		case TimeFrameBucketSizeMonth:
			currentTime = currentTime.AddDate(0, 1, 0)
		case TimeFrameBucketSizeWeek:
			currentTime = currentTime.AddDate(0, 0, 7)
		case TimeFrameBucketSizeDay:
			currentTime = currentTime.AddDate(0, 0, 1)
		case TimeFrameBucketSizeHour:
			currentTime = currentTime.Add(time.Hour)
		}

		pointCount++
	}

	return datePoints
}

// TruncateToBucketInTimezone truncates a time to the bucket boundary in the
// given timezone. Weeks start on Monday.
func TruncateToBucketInTimezone(t time.Time, bucketSize TimeFrameBucketSize, loc *time.Location) time.Time {
	localTime := t.In(loc)
	year, month, day := localTime.Year(), localTime.Month(), localTime.Day()

	switch bucketSize {
	case TimeFrameBucketSizeYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeWeek:
		weekday := int(localTime.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, loc)
	case TimeFrameBucketSizeHour:
		return time.Date(year, month, day, localTime.Hour(), 0, 0, 0, loc)
	default:
		return localTime
	}
}

// BuildTimeSeriesPoints aligns grouped count rows to the frame's full bucket
// sequence, filling gaps with zero.
func (tf *TimeFrame) BuildTimeSeriesPoints(groupedResults []DateStat) []DateStat {
	dateLabels := tf.GenerateDateTimePointsReference()
	results := make([]DateStat, len(dateLabels))

	resultsMap := make(map[string]int, len(groupedResults))
	for _, result := range groupedResults {
		resultsMap[tf.normalizeDBDateFormat(result.Date)] = result.Count
	}

	for i, datePoint := range dateLabels {
		count := 0
		if val, exists := resultsMap[tf.normalizeDBDateFormat(datePoint.SQLiteBucketTimeFormat)]; exists {
			count = val
		}
		results[i] = DateStat{
			Date:  datePoint.UserFacingTimeFormat,
			Count: count,
		}
	}

	return results
}

// BuildValueSeriesPoints aligns grouped monetary rows to the frame's full
// bucket sequence, filling gaps with zero.
func (tf *TimeFrame) BuildValueSeriesPoints(groupedResults []DateValue) []DateValue {
	dateLabels := tf.GenerateDateTimePointsReference()
	results := make([]DateValue, len(dateLabels))

	resultsMap := make(map[string]float64, len(groupedResults))
	for _, result := range groupedResults {
		resultsMap[tf.normalizeDBDateFormat(result.Date)] = result.Value
	}

	for i, datePoint := range dateLabels {
		value := 0.0
		if val, exists := resultsMap[tf.normalizeDBDateFormat(datePoint.SQLiteBucketTimeFormat)]; exists {
			value = val
		}
		results[i] = DateValue{
			Date:  datePoint.UserFacingTimeFormat,
			Value: value,
		}
	}

	return results
}

// normalizeDBDateFormat standardizes date strings for consistent lookups
func (tf *TimeFrame) normalizeDBDateFormat(dateStr string) string {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		if len(dateStr) >= 13 {
			return dateStr[:13]
		}
	case TimeFrameBucketSizeDay, TimeFrameBucketSizeWeek:
		if len(dateStr) >= 10 {
			return dateStr[:10]
		}
	case TimeFrameBucketSizeMonth:
		if len(dateStr) >= 7 {
			return dateStr[:7]
		}
	case TimeFrameBucketSizeYear:
		if len(dateStr) >= 4 {
			return dateStr[:4]
		}
	}
	return dateStr
}

func (tf *TimeFrame) GetUserFormat() string {
	switch tf.BucketSize {
	case TimeFrameBucketSizeHour:
		return "2006-01-02T15:00:00Z"
	case TimeFrameBucketSizeDay:
		return "2006-01-02"
	case TimeFrameBucketSizeWeek:
		return "2006-01-02"
	case TimeFrameBucketSizeMonth:
		return "Jan 2006"
	case TimeFrameBucketSizeYear:
		return "2006"
	default:
		return "2006-01-02"
	}
}

func (tf *TimeFrame) GenerateHumanReadableDateTimeLabels() []string {
	datePoints := tf.GenerateDateTimePointsReference()
	labels := make([]string, len(datePoints))

	for i, point := range datePoints {
		t, err := time.Parse(time.RFC3339, point.UserFacingTimeFormat)
		if err != nil {
			labels[i] = point.UserFacingTimeFormat
			continue
		}
		labels[i] = t.Format(tf.GetUserFormat())
	}

	return labels
}

// CalculateTrend fits a least-squares line through the series and returns
// its slope.
func (tf *TimeFrame) CalculateTrend(points []DateStat) float64 {
	if len(points) < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	n := float64(len(points))

	for i, point := range points {
		x := float64(i)
		y := float64(point.Count)

		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	slope := (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
	return slope
}

func truncateToBucket(t time.Time, bucketSize TimeFrameBucketSize) time.Time {
	utc := t.UTC()
	year, month, day := utc.Year(), utc.Month(), utc.Day()

	switch bucketSize {
	case TimeFrameBucketSizeYear:
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeMonth:
		return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeWeek:
		weekday := int(utc.Weekday())
		if weekday == 0 { // Sunday
			weekday = 7
		}
		return time.Date(year, month, day-(weekday-1), 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeDay:
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	case TimeFrameBucketSizeHour:
		return time.Date(year, month, day, utc.Hour(), 0, 0, 0, time.UTC)
	default:
		return utc
	}
}
