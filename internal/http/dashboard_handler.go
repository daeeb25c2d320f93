package http

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"log/slog"

	"attriflow/internal/annotations"
	"attriflow/internal/attribution"
	"attriflow/internal/insights"
	"attriflow/internal/journeys"
	"attriflow/internal/pkg/async"
	"attriflow/internal/timeframe"
)

// topListLimit caps the ranked lists on the dashboard
const topListLimit = 10

type DashboardResponse struct {
	Totals           journeys.JourneyStats             `json:"totals"`
	Touchpoints      []TimeSeriesPoint                 `json:"touchpoints"`
	Conversions      []TimeSeriesPoint                 `json:"conversions"`
	ConversionValues []ValueSeriesPoint                `json:"conversion_values"`
	ConversionTrend  float64                           `json:"conversion_trend"`
	TopChannels      []attribution.ChannelPerformance  `json:"top_channels"`
	ChannelTraffic   []journeys.ChannelTouchpointCount `json:"channel_traffic"`
	ModelComparison  []attribution.ModelComparisonRow  `json:"model_comparison"`
	TopCountries     []CountryStat                     `json:"top_countries"`
	AttributedValues map[string]float64                `json:"attributed_values"`
	Insights         []insights.AttributionInsight     `json:"insights"`
	Annotations      []annotations.Annotation          `json:"annotations"`
	BucketSize       string                            `json:"bucket_size"`
	ModelID          uint                              `json:"model_id"`
	From             time.Time                         `json:"from"`
	To               time.Time                         `json:"to"`
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type ValueSeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// CountryStat is a ranked country row with its display name resolved
type CountryStat struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Journeys int64  `json:"journeys"`
}

func fetchDashboard(db *gorm.DB, timeFrame *timeframe.TimeFrame, modelID uint, logger *slog.Logger) (*DashboardResponse, error) {
	tasks := []async.Task{
		{
			Name: "totals",
			Execute: func(ctx context.Context) (interface{}, error) {
				return journeys.GetJourneyStats(db.WithContext(ctx), timeFrame.From, timeFrame.To)
			},
		},
		{
			Name: "touchpointSeries",
			Execute: func(ctx context.Context) (interface{}, error) {
				stats, err := journeys.GetTouchpointCountsByDate(db.WithContext(ctx), timeFrame)
				if err != nil {
					logger.Error("Error fetching touchpoint series", slog.Any("error", err))
					return []timeframe.DateStat{}, err
				}
				return stats, nil
			},
		},
		{
			Name: "conversionSeries",
			Execute: func(ctx context.Context) (interface{}, error) {
				stats, err := journeys.GetConversionCountsByDate(db.WithContext(ctx), timeFrame)
				if err != nil {
					logger.Error("Error fetching conversion series", slog.Any("error", err))
					return []timeframe.DateStat{}, err
				}
				return stats, nil
			},
		},
		{
			Name: "conversionValueSeries",
			Execute: func(ctx context.Context) (interface{}, error) {
				stats, err := journeys.GetConversionValuesByDate(db.WithContext(ctx), timeFrame)
				if err != nil {
					logger.Error("Error fetching conversion value series", slog.Any("error", err))
					return []timeframe.DateValue{}, err
				}
				return stats, nil
			},
		},
		{
			Name: "topChannels",
			Execute: func(ctx context.Context) (interface{}, error) {
				return attribution.GetChannelPerformance(db.WithContext(ctx), modelID, timeFrame.From, timeFrame.To)
			},
		},
		{
			Name: "channelTraffic",
			Execute: func(ctx context.Context) (interface{}, error) {
				return journeys.GetTopChannelsByTouchpoints(db.WithContext(ctx), timeFrame.From, timeFrame.To, topListLimit)
			},
		},
		{
			Name: "modelComparison",
			Execute: func(ctx context.Context) (interface{}, error) {
				return attribution.CompareActiveModels(db.WithContext(ctx), timeFrame.From, timeFrame.To)
			},
		},
		{
			Name: "topCountries",
			Execute: func(ctx context.Context) (interface{}, error) {
				stats, err := journeys.GetTopCountriesByJourneys(db.WithContext(ctx), timeFrame.From, timeFrame.To, topListLimit)
				if err != nil {
					return nil, err
				}
				return convertCountryStats(stats), nil
			},
		},
		{
			Name: "attributedValues",
			Execute: func(ctx context.Context) (interface{}, error) {
				if modelID == 0 {
					return map[string]float64{}, nil
				}
				return attribution.GetAttributedValuesByDate(db.WithContext(ctx), modelID, timeFrame.From, timeFrame.To)
			},
		},
		{
			Name: "insights",
			Execute: func(ctx context.Context) (interface{}, error) {
				if modelID == 0 {
					return []insights.AttributionInsight{}, nil
				}
				rows, err := insights.GetLatestInsights(db.WithContext(ctx), modelID)
				if err != nil {
					logger.Error("Error fetching insights", slog.Any("error", err))
					return []insights.AttributionInsight{}, err
				}
				return rows, nil
			},
		},
		{
			Name: "annotations",
			Execute: func(ctx context.Context) (interface{}, error) {
				rows, err := annotations.GetAnnotationsForTimeframe(db.WithContext(ctx), timeFrame.From, timeFrame.To)
				if err != nil {
					logger.Error("Error fetching annotations", slog.Any("error", err))
					return []annotations.Annotation{}, err
				}
				return rows, nil
			},
		},
	}

	pool := async.NewPool(8)
	results := pool.Execute(context.Background(), tasks)

	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("error fetching %s: %w", name, result.Err)
		}
	}

	conversionStats := results["conversionSeries"].Data.([]timeframe.DateStat)

	resp := &DashboardResponse{
		Totals:           results["totals"].Data.(journeys.JourneyStats),
		Touchpoints:      convertToTimeSeries(results["touchpointSeries"].Data.([]timeframe.DateStat)),
		Conversions:      convertToTimeSeries(conversionStats),
		ConversionValues: convertToValueSeries(results["conversionValueSeries"].Data.([]timeframe.DateValue)),
		ConversionTrend:  timeFrame.CalculateTrend(conversionStats),
		TopChannels:      results["topChannels"].Data.([]attribution.ChannelPerformance),
		ChannelTraffic:   results["channelTraffic"].Data.([]journeys.ChannelTouchpointCount),
		ModelComparison:  results["modelComparison"].Data.([]attribution.ModelComparisonRow),
		TopCountries:     results["topCountries"].Data.([]CountryStat),
		AttributedValues: results["attributedValues"].Data.(map[string]float64),
		Insights:         results["insights"].Data.([]insights.AttributionInsight),
		Annotations:      results["annotations"].Data.([]annotations.Annotation),
		BucketSize:       string(timeFrame.BucketSize),
		ModelID:          modelID,
		From:             timeFrame.From,
		To:               timeFrame.To,
	}

	if len(resp.TopChannels) > topListLimit {
		resp.TopChannels = resp.TopChannels[:topListLimit]
	}
	if resp.ChannelTraffic == nil {
		resp.ChannelTraffic = []journeys.ChannelTouchpointCount{}
	}
	if resp.Annotations == nil {
		resp.Annotations = []annotations.Annotation{}
	}
	if resp.Insights == nil {
		resp.Insights = []insights.AttributionInsight{}
	}

	return resp, nil
}

func convertToTimeSeries(stats []timeframe.DateStat) []TimeSeriesPoint {
	result := make([]TimeSeriesPoint, len(stats))
	for i, stat := range stats {
		result[i] = TimeSeriesPoint{
			Date:  stat.Date,
			Count: stat.Count,
		}
	}
	return result
}

func convertToValueSeries(stats []timeframe.DateValue) []ValueSeriesPoint {
	result := make([]ValueSeriesPoint, len(stats))
	for i, stat := range stats {
		result[i] = ValueSeriesPoint{
			Date:  stat.Date,
			Value: stat.Value,
		}
	}
	return result
}

// convertCountryStats resolves ISO country codes into display names
func convertCountryStats(items []journeys.CountryJourneyCount) []CountryStat {
	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	if len(items) == 0 {
		return []CountryStat{}
	}

	result := make([]CountryStat, len(items))
	for i, item := range items {
		name := caser.String(item.Country)
		if country, err := countries.FindCountryByAlpha(item.Country); err == nil {
			name = country.Name.Common
		}
		result[i] = CountryStat{
			Code:     item.Country,
			Name:     name,
			Journeys: item.Journeys,
		}
	}
	return result
}

// DashboardIndexAction serves the admin dashboard metrics in one response.
// The attribution model in scope comes from the model filter middleware.
func DashboardIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	modelID, _ := ctx.Locals("model_id").(uint)

	timeZone := ctx.Cookies("_tz")
	if timeZone != "" {
		if decodedTZ, err := url.QueryUnescape(timeZone); err == nil {
			timeZone = decodedTZ
		}
	}
	if timeZone == "" {
		timeZone = ctx.Query("tz", "UTC")
	}

	parser := timeframe.NewTimeFrameParser()
	timeFrame, err := parser.ParsePeriod(ctx.Query("period"), timeframe.TimeFrameParserParams{
		FromDate: ctx.Query("from"),
		ToDate:   ctx.Query("to"),
		Tz:       timeZone,
	})
	if err != nil {
		ctx.Logger.Error("Error parsing time frame", slog.Any("error", err))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid date range"})
	}

	ctx.Logger.Info("Dashboard accessed",
		slog.Uint64("modelId", uint64(modelID)),
		slog.String("timeZone", timeZone),
		slog.String("period", ctx.Query("period")),
		slog.String("fromDate", ctx.Query("from")),
		slog.String("toDate", ctx.Query("to")))

	metrics, err := fetchDashboard(db, timeFrame, modelID, ctx.Logger)
	if err != nil {
		ctx.Logger.Error("Error fetching dashboard metrics", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Error fetching metrics"})
	}

	return ctx.JSON(metrics)
}
