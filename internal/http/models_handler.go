package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/attribution"
)

// ModelRequest is the admin payload for creating or updating an attribution
// model. Pointer fields let an update tell an omitted field apart from an
// explicit zero. On create, a zero parameter is treated the same as an
// omitted one and takes the model type's default.
type ModelRequest struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	IsDefault    bool     `json:"is_default"`
	IsActive     *bool    `json:"is_active"`
	DecayRate    *float64 `json:"decay_rate"`
	HalfLifeDays *float64 `json:"half_life_days"`
	FirstWeight  *float64 `json:"first_weight"`
	MiddleWeight *float64 `json:"middle_weight"`
	LastWeight   *float64 `json:"last_weight"`
}

func floatOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// modelErrorResponse maps attribution errors onto API status codes
func modelErrorResponse(ctx *cartridge.Context, err error) error {
	var validationErr *attribution.ValidationError
	var notFoundErr *attribution.ModelNotFoundError
	switch {
	case errors.As(err, &validationErr):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": validationErr.Error(),
		})
	case errors.As(err, &notFoundErr):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFoundErr.Error(),
		})
	default:
		ctx.Logger.Error("Attribution model operation failed", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Operation failed",
		})
	}
}

// ModelsIndexAction lists every registered model, default first
func ModelsIndexAction(ctx *cartridge.Context) error {
	models, err := attribution.GetAllModels(ctx.DB())
	if err != nil {
		ctx.Logger.Error("Failed to list attribution models", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list models",
		})
	}
	return ctx.JSON(fiber.Map{"models": models})
}

// ModelsCreateAction registers a new attribution model
func ModelsCreateAction(ctx *cartridge.Context) error {
	var req ModelRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	model := attribution.AttributionModel{
		Name:         req.Name,
		Type:         req.Type,
		IsDefault:    req.IsDefault,
		IsActive:     true,
		DecayRate:    floatOrZero(req.DecayRate),
		HalfLifeDays: floatOrZero(req.HalfLifeDays),
		FirstWeight:  floatOrZero(req.FirstWeight),
		MiddleWeight: floatOrZero(req.MiddleWeight),
		LastWeight:   floatOrZero(req.LastWeight),
	}
	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}

	if err := attribution.RegisterModel(ctx.DB(), ctx.Logger, &model); err != nil {
		return modelErrorResponse(ctx, err)
	}

	ctx.Logger.Info("Attribution model registered",
		slog.String("name", model.Name),
		slog.String("type", model.Type))
	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"model": model})
}

// ModelsUpdateAction reconfigures an existing model. Fields absent from the
// payload keep their stored values.
func ModelsUpdateAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid model ID",
		})
	}

	db := ctx.DB()
	model, err := attribution.GetModelByID(db, uint(id))
	if err != nil {
		return modelErrorResponse(ctx, err)
	}

	var req ModelRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != "" {
		model.Name = req.Name
	}
	if req.Type != "" {
		model.Type = req.Type
	}
	if req.IsActive != nil {
		model.IsActive = *req.IsActive
	}
	if req.DecayRate != nil {
		model.DecayRate = *req.DecayRate
	}
	if req.HalfLifeDays != nil {
		model.HalfLifeDays = *req.HalfLifeDays
	}
	if req.FirstWeight != nil {
		model.FirstWeight = *req.FirstWeight
	}
	if req.MiddleWeight != nil {
		model.MiddleWeight = *req.MiddleWeight
	}
	if req.LastWeight != nil {
		model.LastWeight = *req.LastWeight
	}

	if err := attribution.UpdateModel(db, ctx.Logger, model); err != nil {
		return modelErrorResponse(ctx, err)
	}

	return ctx.JSON(fiber.Map{"model": model})
}

// ModelsSetDefaultAction promotes one model to be the default
func ModelsSetDefaultAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid model ID",
		})
	}

	if err := attribution.SetDefaultModel(ctx.DB(), ctx.Logger, uint(id)); err != nil {
		return modelErrorResponse(ctx, err)
	}

	ctx.Logger.Info("Default attribution model changed", slog.Int("modelId", id))
	return ctx.JSON(fiber.Map{"message": "Default model updated"})
}

// ModelsActivateAction returns a model to comparison and insight generation
func ModelsActivateAction(ctx *cartridge.Context) error {
	return toggleModelActive(ctx, true)
}

// ModelsDeactivateAction retires a model from comparison and insight
// generation while keeping its stored results.
func ModelsDeactivateAction(ctx *cartridge.Context) error {
	return toggleModelActive(ctx, false)
}

func toggleModelActive(ctx *cartridge.Context, active bool) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid model ID",
		})
	}

	if err := attribution.SetModelActive(ctx.DB(), ctx.Logger, uint(id), active); err != nil {
		return modelErrorResponse(ctx, err)
	}

	status := "deactivated"
	if active {
		status = "activated"
	}
	return ctx.JSON(fiber.Map{"message": "Model " + status})
}

// ModelsDeleteAction removes a model and its insights. Stored attribution
// results are kept as an audit trail.
func ModelsDeleteAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid model ID",
		})
	}

	if err := attribution.DeleteModel(ctx.DB(), ctx.Logger, uint(id)); err != nil {
		return modelErrorResponse(ctx, err)
	}

	ctx.Logger.Info("Attribution model deleted", slog.Int("modelId", id))
	return ctx.JSON(fiber.Map{"message": "Model deleted"})
}
