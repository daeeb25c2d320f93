package timeframe

import (
	"fmt"
	"time"
)

// TimeWindowBuffer extends "today" end times slightly past now so touch
// events that are still in flight (clock skew, network latency, pipeline
// delay) land inside the frame instead of on its boundary.
const TimeWindowBuffer = 5 * time.Minute

// DefaultLookbackDays is the window used when a request carries no dates.
const DefaultLookbackDays = 30

type TimeFrameParserParams struct {
	FromDate string
	ToDate   string
	Tz       string
}

type TimeFrameParser struct {
	timeProvider TimeProvider
}

func NewTimeFrameParser(timeProvider ...TimeProvider) *TimeFrameParser {
	var provider TimeProvider = &DefaultTimeProvider{}
	if len(timeProvider) > 0 && timeProvider[0] != nil {
		provider = timeProvider[0]
	}

	return &TimeFrameParser{
		timeProvider: provider,
	}
}

// ParsePeriod resolves a period shorthand into a TimeFrame. Supported
// periods are "24h", "7d", "30d" and "90d", plus "custom" which requires
// explicit from and to dates. An empty period falls back to the date
// parameters with the default lookback.
func (p *TimeFrameParser) ParsePeriod(period string, params TimeFrameParserParams) (*TimeFrame, error) {
	var lookback time.Duration
	switch period {
	case "":
		return p.ParseTimeFrame(params)
	case "custom":
		if params.FromDate == "" || params.ToDate == "" {
			return nil, fmt.Errorf("custom period requires from and to dates")
		}
		return p.ParseTimeFrame(params)
	case "24h":
		lookback = 24 * time.Hour
	case "7d":
		lookback = 7 * 24 * time.Hour
	case "30d":
		lookback = 30 * 24 * time.Hour
	case "90d":
		lookback = 90 * 24 * time.Hour
	default:
		return nil, fmt.Errorf("unknown period %q", period)
	}

	loc, err := time.LoadLocation(params.Tz)
	if err != nil {
		return nil, fmt.Errorf("error loading timezone: %w", err)
	}
	now := p.timeProvider.Now(loc)
	return NewAutoTimeFrameFromClientTimezone(now.Add(-lookback), now.Add(TimeWindowBuffer), loc)
}

// ParseTimeFrame builds a TimeFrame from request parameters. Dates are
// interpreted in the user's timezone and stored in UTC.
func (p *TimeFrameParser) ParseTimeFrame(params TimeFrameParserParams) (*TimeFrame, error) {
	loc, err := time.LoadLocation(params.Tz)
	if err != nil {
		return nil, fmt.Errorf("error loading timezone: %w", err)
	}

	from, to, err := p.parseCustomDateRange(params)
	if err != nil {
		return nil, err
	}

	return NewAutoTimeFrameFromClientTimezone(from, to, loc)
}

func (p *TimeFrameParser) parseCustomDateRange(params TimeFrameParserParams) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(params.Tz)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("error loading timezone: %w", err)
	}
	now := p.timeProvider.Now(loc)

	defaultFrom := now.Truncate(24*time.Hour).AddDate(0, 0, -DefaultLookbackDays)
	defaultTo := now

	from, err := p.parseDateWithDefault(params.FromDate, defaultFrom, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid 'from' date: %w", err)
	}

	to, err := p.parseDateWithDefault(params.ToDate, defaultTo, loc, true)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid 'to' date: %w", err)
	}

	return from, to, nil
}

func (p *TimeFrameParser) parseDateWithDefault(dateStr string, defaultDate time.Time, loc *time.Location, isEndDate bool) (time.Time, error) {
	if dateStr == "" {
		return defaultDate, nil
	}

	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, err
	}

	now := p.timeProvider.Now(loc)
	isToday := date.Year() == now.Year() && date.Month() == now.Month() && date.Day() == now.Day()

	if isToday && isEndDate {
		// Include in-flight data but never spill into tomorrow in the
		// user's timezone.
		endOfRequestedDate := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, loc)

		bufferedTime := now.Add(TimeWindowBuffer)
		if bufferedTime.After(endOfRequestedDate) {
			return endOfRequestedDate, nil
		}
		return bufferedTime, nil
	}

	if isEndDate {
		endOfDay := time.Date(date.Year(), date.Month(), date.Day(), 23, 59, 59, 999999999, loc)
		if endOfDay.After(now) {
			bufferedTime := now.Add(TimeWindowBuffer)
			if bufferedTime.After(endOfDay) {
				return endOfDay, nil
			}
			return bufferedTime, nil
		}
		return endOfDay, nil
	}

	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc), nil
}
