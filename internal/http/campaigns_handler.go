package http

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"attriflow/internal/campaigns"
	"attriflow/internal/connectors"
)

// defaultCampaignStatsDays is the lookback for the campaign list view
const defaultCampaignStatsDays = 90

// CampaignRequest is the admin payload for creating or updating a campaign
type CampaignRequest struct {
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	Status    string     `json:"status"`
	Budget    *float64   `json:"budget"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// CampaignsIndexAction lists campaigns with attribution stats
func CampaignsIndexAction(ctx *cartridge.Context) error {
	daysBack, err := strconv.Atoi(ctx.Query("days", strconv.Itoa(defaultCampaignStatsDays)))
	if err != nil || daysBack <= 0 {
		daysBack = defaultCampaignStatsDays
	}

	rows, err := campaigns.GetCampaignsWithStats(ctx.DB(), daysBack)
	if err != nil {
		ctx.Logger.Error("Failed to fetch campaigns", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return ctx.JSON(fiber.Map{"campaigns": rows})
}

// CampaignsCreateAction registers a campaign by hand. Connector syncs use
// their own upsert path keyed on external IDs.
func CampaignsCreateAction(ctx *cartridge.Context) error {
	var req CampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Name == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "name is required",
		})
	}

	campaign := campaigns.Campaign{
		Name:   req.Name,
		Source: req.Source,
		Status: req.Status,
	}
	applyCampaignRequest(&campaign, req)

	if err := campaigns.CreateCampaign(ctx.DB(), &campaign); err != nil {
		ctx.Logger.Error("Failed to create campaign", slog.Any("error", err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{"campaign": campaign})
}

// CampaignsUpdateAction edits a campaign's mutable fields
func CampaignsUpdateAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign ID",
		})
	}

	db := ctx.DB()
	campaign, err := campaigns.GetCampaignByID(db, uint(id))
	if err != nil {
		return campaignErrorResponse(ctx, err)
	}

	var req CampaignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != "" {
		campaign.Name = req.Name
	}
	if req.Source != "" {
		campaign.Source = req.Source
	}
	if req.Status != "" {
		campaign.Status = req.Status
	}
	applyCampaignRequest(campaign, req)

	if err := campaigns.UpdateCampaign(db, campaign); err != nil {
		return campaignErrorResponse(ctx, err)
	}

	return ctx.JSON(fiber.Map{"campaign": campaign})
}

// CampaignsDeleteAction removes a campaign. Touchpoints keep their campaign
// name text, only the link row goes away.
func CampaignsDeleteAction(ctx *cartridge.Context) error {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid campaign ID",
		})
	}

	if err := campaigns.DeleteCampaign(ctx.DB(), uint(id)); err != nil {
		return campaignErrorResponse(ctx, err)
	}

	return ctx.JSON(fiber.Map{"message": "Campaign deleted"})
}

// CampaignsSyncAction runs every configured platform connector now instead
// of waiting for the scheduled sweep.
func CampaignsSyncAction(ctx *cartridge.Context) error {
	synced := connectors.SyncConfigured(ctx.Ctx.Context(), ctx.DBManager, ctx.Logger, connectors.All())
	return ctx.JSON(fiber.Map{
		"message": "Sync complete",
		"rows":    synced,
	})
}

func applyCampaignRequest(campaign *campaigns.Campaign, req CampaignRequest) {
	if req.Budget != nil {
		campaign.Budget = sql.NullFloat64{Float64: *req.Budget, Valid: true}
	}
	if req.StartDate != nil {
		campaign.StartDate = sql.NullTime{Time: *req.StartDate, Valid: true}
	}
	if req.EndDate != nil {
		campaign.EndDate = sql.NullTime{Time: *req.EndDate, Valid: true}
	}
}

// campaignErrorResponse maps campaign domain errors onto API status codes
func campaignErrorResponse(ctx *cartridge.Context, err error) error {
	var notFoundErr *campaigns.CampaignNotFoundError
	if errors.As(err, &notFoundErr) {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": notFoundErr.Error(),
		})
	}
	ctx.Logger.Error("Campaign operation failed", slog.Any("error", err))
	return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Operation failed",
	})
}
