package http

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/attribution"
	"attriflow/internal/journeys"
)

// journeysPerPage is the admin list page size
const journeysPerPage = 50

type PaginationData struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	PerPage     int   `json:"per_page"`
}

// calculateDateRange resolves a range filter into absolute bounds
func calculateDateRange(rangeFilter string) (time.Time, time.Time) {
	now := time.Now()
	var fromDate, toDate time.Time

	switch rangeFilter {
	case "today":
		fromDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		toDate = now
	case "yesterday":
		yesterday := now.AddDate(0, 0, -1)
		fromDate = time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, yesterday.Location())
		toDate = time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 23, 59, 59, 999999999, yesterday.Location())
	case "last_7_days":
		fromDate = now.AddDate(0, 0, -7)
		toDate = now
	case "last_30_days":
		fromDate = now.AddDate(0, 0, -30)
		toDate = now
	case "last_90_days":
		fromDate = now.AddDate(0, 0, -90)
		toDate = now
	case "this_month":
		fromDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		toDate = now
	default:
		fromDate = now.AddDate(0, 0, -30)
		toDate = now
	}

	return fromDate, toDate
}

// JourneysIndexAction lists journeys with filters and pagination
func JourneysIndexAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * journeysPerPage

	fromDate, toDate := calculateDateRange(ctx.Query("range", "last_30_days"))

	result, err := journeys.GetFilteredJourneys(db, journeys.JourneyFilters{
		CustomerID: ctx.Query("customer", ""),
		UserID:     ctx.Query("user", ""),
		Status:     ctx.Query("status", ""),
		Channel:    ctx.Query("channel", ""),
		FromDate:   fromDate,
		ToDate:     toDate,
		Limit:      journeysPerPage,
		Offset:     offset,
	})
	if err != nil {
		ctx.Logger.Error("Failed to fetch journeys", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch journeys",
		})
	}

	totalPages := (int(result.Total) + journeysPerPage - 1) / journeysPerPage

	return ctx.JSON(fiber.Map{
		"journeys": result.Journeys,
		"pagination": PaginationData{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalItems:  result.Total,
			PerPage:     journeysPerPage,
		},
	})
}

// JourneysShowAction returns one journey with its ordered touchpoints
func JourneysShowAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid journey ID",
		})
	}

	db := ctx.DB()
	journey, err := journeys.GetJourneyByID(db, uint(id))
	if err != nil {
		return journeyErrorResponse(ctx, err)
	}

	touchpoints, err := journeys.GetJourneyTouchpoints(db, journey.ID)
	if err != nil {
		ctx.Logger.Error("Failed to fetch touchpoints", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch touchpoints",
		})
	}

	return ctx.JSON(fiber.Map{
		"journey":     journey,
		"touchpoints": touchpoints,
	})
}

// JourneysCreateAction starts a journey by hand, for imports and testing
func JourneysCreateAction(ctx *cartridge.Context) error {
	var req struct {
		CustomerID   string    `json:"customer_id"`
		UserID       string    `json:"user_id"`
		JourneyStart time.Time `json:"journey_start"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.CustomerID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "customer_id is required",
		})
	}

	journey := journeys.CustomerJourney{
		CustomerID:   req.CustomerID,
		JourneyStart: req.JourneyStart,
	}
	if req.UserID != "" {
		journey.UserID = sql.NullString{String: req.UserID, Valid: true}
	}

	if err := journeys.CreateJourney(ctx.DB(), ctx.Logger, &journey); err != nil {
		ctx.Logger.Error("Failed to create journey", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create journey",
		})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"journey": journey})
}

// JourneysAppendTouchpointAction appends a touchpoint to an active journey
func JourneysAppendTouchpointAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid journey ID",
		})
	}

	var req struct {
		Channel        string    `json:"channel"`
		Source         string    `json:"source"`
		Medium         string    `json:"medium"`
		Campaign       string    `json:"campaign"`
		TouchpointType string    `json:"touchpoint_type"`
		Timestamp      time.Time `json:"timestamp"`
		EventValue     *float64  `json:"event_value"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Channel == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "channel is required",
		})
	}

	touchpoint := journeys.Touchpoint{
		Channel:        req.Channel,
		Source:         req.Source,
		Medium:         req.Medium,
		Campaign:       req.Campaign,
		TouchpointType: journeys.TouchpointType(req.TouchpointType),
		Timestamp:      req.Timestamp,
	}
	if touchpoint.TouchpointType == "" {
		touchpoint.TouchpointType = journeys.TouchpointTypePageView
	}
	if touchpoint.Timestamp.IsZero() {
		touchpoint.Timestamp = time.Now().UTC()
	}
	if req.EventValue != nil {
		touchpoint.EventValue = sql.NullFloat64{Float64: *req.EventValue, Valid: true}
	}

	if err := journeys.AppendTouchpoint(ctx.DB(), ctx.Logger, uint(id), &touchpoint); err != nil {
		return journeyErrorResponse(ctx, err)
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"touchpoint": touchpoint})
}

// JourneysCloseAction completes or abandons an active journey and
// recalculates its attribution under every active model.
func JourneysCloseAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid journey ID",
		})
	}

	var req struct {
		Outcome         string    `json:"outcome"`
		ConversionValue *float64  `json:"conversion_value"`
		ConversionType  string    `json:"conversion_type"`
		EndedAt         time.Time `json:"ended_at"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	endedAt := req.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	db := ctx.DB()
	switch req.Outcome {
	case "completed", "":
		var value sql.NullFloat64
		if req.ConversionValue != nil {
			value = sql.NullFloat64{Float64: *req.ConversionValue, Valid: true}
		}
		conversionType := req.ConversionType
		if conversionType == "" {
			conversionType = "conversion"
		}
		if err := journeys.CompleteJourney(db, ctx.Logger, uint(id), value, conversionType, endedAt); err != nil {
			return journeyErrorResponse(ctx, err)
		}
	case "abandoned":
		if err := journeys.AbandonJourney(db, ctx.Logger, uint(id), endedAt); err != nil {
			return journeyErrorResponse(ctx, err)
		}
	default:
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "outcome must be completed or abandoned",
		})
	}

	if err := attribution.RecalculateJourneyForActiveModels(db, ctx.Logger, uint(id)); err != nil {
		ctx.Logger.Error("Failed to recalculate closed journey",
			slog.Int("journeyId", id), slog.Any("error", err))
	}

	return ctx.JSON(fiber.Map{"message": "Journey closed"})
}

// JourneysRecalculateAction rebuilds stored attribution for one journey,
// for every active model or for an explicit model_id.
func JourneysRecalculateAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid journey ID",
		})
	}

	db := ctx.DB()
	if modelIDStr := ctx.Query("model_id"); modelIDStr != "" {
		modelID, err := strconv.ParseUint(modelIDStr, 10, 64)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid model_id",
			})
		}
		if err := attribution.RecalculateJourney(db, ctx.Logger, uint(id), uint(modelID)); err != nil {
			return journeyErrorResponse(ctx, err)
		}
	} else {
		if err := attribution.RecalculateJourneyForActiveModels(db, ctx.Logger, uint(id)); err != nil {
			return journeyErrorResponse(ctx, err)
		}
	}

	return ctx.JSON(fiber.Map{"message": "Recalculation complete"})
}

// JourneysResultsAction returns stored attribution results for a journey.
// With model_id it narrows to one model, otherwise every model's results
// come back.
func JourneysResultsAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid journey ID",
		})
	}

	db := ctx.DB()

	var results []attribution.AttributionResult
	if modelIDStr := ctx.Query("model_id"); modelIDStr != "" {
		modelID, parseErr := strconv.ParseUint(modelIDStr, 10, 64)
		if parseErr != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid model_id",
			})
		}
		results, err = attribution.GetJourneyResults(db, uint(id), uint(modelID))
	} else {
		results, err = attribution.GetResultsForJourney(db, uint(id))
	}
	if err != nil {
		ctx.Logger.Error("Failed to fetch attribution results", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch results",
		})
	}

	return ctx.JSON(fiber.Map{"results": results})
}

// journeyErrorResponse maps journey domain errors onto API status codes
func journeyErrorResponse(ctx *cartridge.Context, err error) error {
	var notFoundErr *journeys.JourneyNotFoundError
	var modelNotFoundErr *attribution.ModelNotFoundError
	switch {
	case errors.As(err, &notFoundErr):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFoundErr.Error(),
		})
	case errors.As(err, &modelNotFoundErr):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": modelNotFoundErr.Error(),
		})
	case errors.Is(err, journeys.ErrJourneyClosed):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Journey is closed",
		})
	default:
		ctx.Logger.Error("Journey operation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Operation failed",
		})
	}
}
