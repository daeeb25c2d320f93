package timeframe_test

import (
	"attriflow/internal/timeframe"

	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTimeFrame(t *testing.T) {
	// Fixed time for stable testing: March 15, 2025, 12:00 UTC
	fixedTime := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	parser := timeframe.NewTimeFrameParser(&MockTimeProvider{FixedTime: fixedTime})

	testCases := []struct {
		name           string
		params         timeframe.TimeFrameParserParams
		expectedFrom   time.Time
		expectedBucket timeframe.TimeFrameBucketSize
		expectedError  bool
	}{
		{
			name: "single past day is hourly",
			params: timeframe.TimeFrameParserParams{
				FromDate: "2025-03-10",
				ToDate:   "2025-03-10",
				Tz:       "UTC",
			},
			expectedFrom:   time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			expectedBucket: timeframe.TimeFrameBucketSizeHour,
		},
		{
			name: "week range is daily",
			params: timeframe.TimeFrameParserParams{
				FromDate: "2025-03-08",
				ToDate:   "2025-03-15",
				Tz:       "UTC",
			},
			expectedFrom:   time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC),
			expectedBucket: timeframe.TimeFrameBucketSizeDay,
		},
		{
			name: "half year is monthly",
			params: timeframe.TimeFrameParserParams{
				FromDate: "2024-09-01",
				ToDate:   "2025-03-01",
				Tz:       "UTC",
			},
			expectedFrom:   time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
			expectedBucket: timeframe.TimeFrameBucketSizeMonth,
		},
		{
			name: "invalid from date",
			params: timeframe.TimeFrameParserParams{
				FromDate: "not-a-date",
				ToDate:   "2025-03-15",
				Tz:       "UTC",
			},
			expectedError: true,
		},
		{
			name: "invalid timezone",
			params: timeframe.TimeFrameParserParams{
				FromDate: "2025-03-01",
				ToDate:   "2025-03-15",
				Tz:       "Mars/Olympus",
			},
			expectedError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tf, err := parser.ParseTimeFrame(tc.params)
			if tc.expectedError {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expectedFrom, tf.From)
			assert.Equal(t, tc.expectedBucket, tf.BucketSize)
		})
	}
}

func TestParseTimeFrameDefaultsToLookbackWindow(t *testing.T) {
	fixedTime := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	parser := timeframe.NewTimeFrameParser(&MockTimeProvider{FixedTime: fixedTime})

	tf, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{Tz: "UTC"})
	assert.NoError(t, err)

	expectedFrom := fixedTime.Truncate(24 * time.Hour).AddDate(0, 0, -timeframe.DefaultLookbackDays)
	assert.Equal(t, expectedFrom, tf.From)
	assert.True(t, tf.To.After(tf.From))
}

func TestParseTimeFrameTodayEndClampsToBufferedNow(t *testing.T) {
	fixedTime := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	parser := timeframe.NewTimeFrameParser(&MockTimeProvider{FixedTime: fixedTime})

	tf, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{
		FromDate: "2025-03-15",
		ToDate:   "2025-03-15",
		Tz:       "UTC",
	})
	assert.NoError(t, err)

	// Buffered now is 12:05; hourly truncation lands the end inside hour 12.
	assert.Equal(t, time.Date(2025, 3, 15, 12, 59, 59, 0, time.UTC), tf.To)
}

func TestParseTimeFrameFutureEndClampsToNow(t *testing.T) {
	fixedTime := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	parser := timeframe.NewTimeFrameParser(&MockTimeProvider{FixedTime: fixedTime})

	tf, err := parser.ParseTimeFrame(timeframe.TimeFrameParserParams{
		FromDate: "2025-03-01",
		ToDate:   "2025-03-20",
		Tz:       "UTC",
	})
	assert.NoError(t, err)

	// End date in the future is clamped near now, then extended to the end
	// of the day bucket.
	assert.Equal(t, time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC), tf.To)
}
