package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"attriflow/internal/campaigns"
	"attriflow/internal/settings"
)

const (
	hubspotDefaultBaseURL = "https://api.hubapi.com"
	hubspotPageLimit      = 100
	// Safety cap on pagination so a misbehaving API cannot loop forever
	hubspotMaxPages = 10
)

// HubSpotConnector pulls marketing campaigns with their budget and spend
// rollup properties, following cursor pagination.
type HubSpotConnector struct {
	BaseURL string
	Client  *http.Client
}

func NewHubSpotConnector() *HubSpotConnector {
	return &HubSpotConnector{BaseURL: hubspotDefaultBaseURL, Client: defaultHTTPClient}
}

func (c *HubSpotConnector) Name() string {
	return campaigns.SourceHubSpot
}

func (c *HubSpotConnector) Configured(db *gorm.DB) bool {
	return settings.GetConnectorCredential(db, settings.KeyHubSpotAccessToken) != ""
}

type hubspotCampaignsResponse struct {
	Results []struct {
		ID         string `json:"id"`
		Properties struct {
			Name   string `json:"hs_name"`
			Budget string `json:"hs_budget_items_sum_amount"`
			Spend  string `json:"hs_spend_items_sum_amount"`
		} `json:"properties"`
	} `json:"results"`
	Paging struct {
		Next struct {
			After string `json:"after"`
		} `json:"next"`
	} `json:"paging"`
}

func (c *HubSpotConnector) Sync(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger) (int, error) {
	db := dbManager.GetConnection()
	token := settings.GetConnectorCredential(db, settings.KeyHubSpotAccessToken)
	headers := map[string]string{"Authorization": "Bearer " + token}

	var synced []campaigns.SyncedCampaign
	after := ""
	for page := 0; page < hubspotMaxPages; page++ {
		pageURL := fmt.Sprintf("%s/marketing/v3/campaigns?limit=%d&properties=hs_name,hs_budget_items_sum_amount,hs_spend_items_sum_amount",
			c.BaseURL, hubspotPageLimit)
		if after != "" {
			pageURL += "&after=" + url.QueryEscape(after)
		}

		var response hubspotCampaignsResponse
		if err := getJSON(ctx, c.Client, pageURL, headers, &response); err != nil {
			return 0, fmt.Errorf("hubspot campaigns failed: %w", err)
		}

		for _, result := range response.Results {
			if result.ID == "" {
				continue
			}
			row := campaigns.SyncedCampaign{
				ExternalID: result.ID,
				Name:       result.Properties.Name,
				Spend:      parseFloat(result.Properties.Spend),
			}
			if result.Properties.Budget != "" {
				row.Budget = sql.NullFloat64{Float64: parseFloat(result.Properties.Budget), Valid: true}
			}
			synced = append(synced, row)
		}

		after = response.Paging.Next.After
		if after == "" {
			break
		}
	}

	if err := campaigns.UpsertFromConnector(db, logger, campaigns.SourceHubSpot, synced); err != nil {
		return 0, err
	}
	return len(synced), nil
}
