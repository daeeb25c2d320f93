package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/attribution"
	"attriflow/internal/timeframe"
)

// PerformanceIndexAction returns channel performance under the model in
// scope. modelID zero aggregates across every model.
func PerformanceIndexAction(ctx *cartridge.Context) error {
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

	performance, err := attribution.GetChannelPerformance(db, modelID, timeFrame.From, timeFrame.To)
	if err != nil {
		ctx.Logger.Error("Failed to aggregate channel performance", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to aggregate performance",
		})
	}

	return ctx.JSON(fiber.Map{
		"model_id":    modelID,
		"from":        timeFrame.From,
		"to":          timeFrame.To,
		"performance": performance,
	})
}
