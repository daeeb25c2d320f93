package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attriflow/pkg/extension"
)

// paywallResponse turns a paywall descriptor into the JSON body the admin UI
// renders as an upgrade prompt.
func paywallResponse(ctx *cartridge.Context, info extension.PaywallInfo) error {
	return ctx.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":       "pro_feature",
		"feature":     info.Feature,
		"title":       info.Title,
		"description": info.Description,
		"upgrade_url": info.UpgradeURL,
		"price":       info.Price,
	})
}

// NarrativesIndexAction is the OSS stand-in for the AI Narratives endpoint.
// Pro registers its own handler for this route; without it the client gets
// the paywall descriptor.
func NarrativesIndexAction(ctx *cartridge.Context) error {
	if !extension.IsNarrativesEnabled() {
		return paywallResponse(ctx, extension.NarrativesPaywall())
	}

	// Narratives are generated by the Pro route registrar; if the flag is on
	// but no Pro handler replaced this route, fall through to an empty list.
	return ctx.JSON(fiber.Map{"narratives": []string{}})
}

// ScheduledReportsIndexAction is the OSS stand-in for the Scheduled Reports
// endpoint.
func ScheduledReportsIndexAction(ctx *cartridge.Context) error {
	if !extension.IsScheduledReportsEnabled() {
		return paywallResponse(ctx, extension.ScheduledReportsPaywall())
	}

	return ctx.JSON(fiber.Map{"reports": []string{}})
}
