package http

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"attriflow/internal/annotations"
)

// annotationPayload is the admin payload for timeline annotations
type annotationPayload struct {
	CampaignID     *uint  `json:"campaign_id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	AnnotationType string `json:"annotation_type"`
	AnnotationDate string `json:"annotation_date"`
	Color          string `json:"color"`
}

// annotationDateFormats defines accepted date formats for annotation dates
var annotationDateFormats = []string{
	"2006-01-02T15:04", // HTML datetime-local format
	"2006-01-02",       // Simple date format
	time.RFC3339,       // ISO format
}

// parseAnnotationDate parses a date string using multiple formats
func parseAnnotationDate(dateStr string) (time.Time, bool) {
	for _, format := range annotationDateFormats {
		if parsed, err := time.Parse(format, dateStr); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// AnnotationsListAction returns annotations, optionally narrowed to a
// timeframe or a campaign
func AnnotationsListAction(ctx *cartridge.Context) error {
	db := ctx.DB()

	fromStr := ctx.Query("from")
	toStr := ctx.Query("to")

	var annotationsList []annotations.Annotation
	var err error

	switch {
	case fromStr != "" && toStr != "":
		from, parseErr := time.Parse(time.RFC3339, fromStr)
		if parseErr != nil {
			ctx.Logger.Warn("Invalid from date format", slog.String("from", fromStr), slog.Any("error", parseErr))
			from = time.Now().AddDate(0, -1, 0)
		}
		to, parseErr := time.Parse(time.RFC3339, toStr)
		if parseErr != nil {
			ctx.Logger.Warn("Invalid to date format", slog.String("to", toStr), slog.Any("error", parseErr))
			to = time.Now()
		}
		annotationsList, err = annotations.GetAnnotationsForTimeframe(db, from, to)
	case ctx.Query("campaign_id") != "":
		campaignID, parseErr := strconv.Atoi(ctx.Query("campaign_id"))
		if parseErr != nil || campaignID <= 0 {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid campaign_id",
			})
		}
		annotationsList, err = annotations.GetAnnotationsForCampaign(db, uint(campaignID))
	default:
		annotationsList, err = annotations.GetAllAnnotations(db)
	}
	if err != nil {
		ctx.Logger.Error("Failed to get annotations", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch annotations",
		})
	}

	return ctx.JSON(fiber.Map{
		"annotations": annotationsList,
	})
}

// AnnotationCreateAction creates a new timeline annotation
func AnnotationCreateAction(ctx *cartridge.Context) error {
	var payload annotationPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if payload.Title == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}
	if payload.AnnotationDate == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Date is required",
		})
	}

	annotationDate, ok := parseAnnotationDate(payload.AnnotationDate)
	if !ok {
		ctx.Logger.Error("Failed to parse annotation date", slog.String("date", payload.AnnotationDate))
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date format",
		})
	}

	if payload.AnnotationType != "" && !annotations.IsValidAnnotationType(annotations.AnnotationType(payload.AnnotationType)) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid annotation type",
		})
	}

	annotation := &annotations.Annotation{
		Title:          payload.Title,
		Description:    payload.Description,
		AnnotationType: annotations.AnnotationType(payload.AnnotationType),
		AnnotationDate: annotationDate,
		Color:          payload.Color,
	}
	if payload.CampaignID != nil {
		annotation.CampaignID = sql.NullInt64{Int64: int64(*payload.CampaignID), Valid: true}
	}

	if err := annotations.CreateAnnotation(ctx.DB(), annotation); err != nil {
		ctx.Logger.Error("Failed to create annotation", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create annotation",
		})
	}

	ctx.Logger.Info("Annotation created",
		slog.Uint64("id", uint64(annotation.ID)),
		slog.String("type", string(annotation.AnnotationType)))
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"annotation": annotation,
	})
}

// AnnotationUpdateAction updates an existing annotation
func AnnotationUpdateAction(ctx *cartridge.Context) error {
	annotationID, err := ctx.ParamsInt("id")
	if err != nil || annotationID <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid annotation ID",
		})
	}

	db := ctx.DB()
	existing, err := annotations.GetAnnotationByID(db, uint(annotationID))
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Annotation not found",
			})
		}
		ctx.Logger.Error("Failed to get annotation", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update annotation",
		})
	}

	var payload annotationPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if payload.Title == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}

	existing.Title = payload.Title
	existing.Description = payload.Description
	if payload.AnnotationType != "" {
		if !annotations.IsValidAnnotationType(annotations.AnnotationType(payload.AnnotationType)) {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid annotation type",
			})
		}
		existing.AnnotationType = annotations.AnnotationType(payload.AnnotationType)
	}
	if payload.Color != "" {
		existing.Color = payload.Color
	}
	if payload.AnnotationDate != "" {
		if parsed, ok := parseAnnotationDate(payload.AnnotationDate); ok {
			existing.AnnotationDate = parsed
		}
	}

	if err := annotations.UpdateAnnotation(db, existing); err != nil {
		ctx.Logger.Error("Failed to update annotation", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update annotation",
		})
	}

	return ctx.JSON(fiber.Map{
		"annotation": existing,
	})
}

// AnnotationDeleteAction deletes an annotation
func AnnotationDeleteAction(ctx *cartridge.Context) error {
	annotationID, err := ctx.ParamsInt("id")
	if err != nil || annotationID <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid annotation ID",
		})
	}

	if err := annotations.DeleteAnnotation(ctx.DB(), uint(annotationID)); err != nil {
		if err == gorm.ErrRecordNotFound {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Annotation not found",
			})
		}
		ctx.Logger.Error("Failed to delete annotation", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete annotation",
		})
	}

	ctx.Logger.Info("Annotation deleted", slog.Int("annotationID", annotationID))
	return ctx.JSON(fiber.Map{
		"message": "Annotation deleted",
	})
}
