package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/config"
	"attriflow/internal/insights"
)

// InsightsIndexAction returns insight rows for the model in scope. With
// explicit window bounds it reads that window, otherwise the most recently
// generated set.
func InsightsIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	modelID, ok := ctx.Locals("model_id").(uint)
	if !ok || modelID == 0 {
		return ctx.JSON(fiber.Map{"insights": []insights.AttributionInsight{}})
	}

	var rows []insights.AttributionInsight
	var err error

	fromStr, toStr := ctx.Query("window_start"), ctx.Query("window_end")
	if fromStr != "" && toStr != "" {
		windowStart, parseErr := time.Parse(time.RFC3339, fromStr)
		if parseErr != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid window_start"})
		}
		windowEnd, parseErr := time.Parse(time.RFC3339, toStr)
		if parseErr != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid window_end"})
		}
		rows, err = insights.GetInsights(db, modelID, windowStart, windowEnd)
	} else {
		rows, err = insights.GetLatestInsights(db, modelID)
	}
	if err != nil {
		ctx.Logger.Error("Failed to fetch insights", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch insights",
		})
	}

	return ctx.JSON(fiber.Map{
		"model_id": modelID,
		"insights": rows,
	})
}

// InsightsGenerateAction triggers insight generation on demand. Without a
// model_id every active model gets a fresh set.
func InsightsGenerateAction(ctx *cartridge.Context) error {
	var req struct {
		ModelID     uint      `json:"model_id"`
		WindowStart time.Time `json:"window_start"`
		WindowEnd   time.Time `json:"window_end"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	cfg := ctx.Config.(*config.Config)

	windowEnd := req.WindowEnd
	if windowEnd.IsZero() {
		windowEnd = time.Now().UTC()
	}
	windowStart := req.WindowStart
	if windowStart.IsZero() {
		windowStart = windowEnd.AddDate(0, 0, -cfg.InsightsLookbackDays)
	}
	if !windowEnd.After(windowStart) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "window_end must be after window_start",
		})
	}

	timeout := time.Duration(cfg.InsightsTimeoutSeconds) * time.Second
	genCtx, cancel := context.WithTimeout(ctx.Ctx.Context(), timeout)
	defer cancel()

	db := ctx.DB()
	var count int
	var err error
	if req.ModelID != 0 {
		count, err = insights.GenerateInsights(genCtx, db, ctx.Logger, req.ModelID, windowStart, windowEnd)
	} else {
		count, err = insights.GenerateForAllActiveModels(genCtx, db, ctx.Logger, windowStart, windowEnd)
	}
	if err != nil {
		ctx.Logger.Error("Insight generation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Insight generation failed",
		})
	}

	ctx.Logger.Info("Insights generated",
		slog.Int("count", count),
		slog.Uint64("modelId", uint64(req.ModelID)))
	return ctx.JSON(fiber.Map{
		"message":      "Insights generated",
		"insights":     count,
		"window_start": windowStart,
		"window_end":   windowEnd,
	})
}
