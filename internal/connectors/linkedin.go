package connectors

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"attriflow/internal/campaigns"
	"attriflow/internal/settings"
)

const linkedinDefaultBaseURL = "https://api.linkedin.com"

// LinkedInConnector pulls campaign metadata from the Campaign Management
// API and spend figures from adAnalytics, merged per campaign URN.
type LinkedInConnector struct {
	BaseURL string
	Client  *http.Client
}

func NewLinkedInConnector() *LinkedInConnector {
	return &LinkedInConnector{BaseURL: linkedinDefaultBaseURL, Client: defaultHTTPClient}
}

func (c *LinkedInConnector) Name() string {
	return campaigns.SourceLinkedIn
}

func (c *LinkedInConnector) Configured(db *gorm.DB) bool {
	return settings.GetConnectorCredential(db, settings.KeyLinkedInAccountID) != "" &&
		settings.GetConnectorCredential(db, settings.KeyLinkedInAccessToken) != ""
}

type linkedinCampaignsResponse struct {
	Elements []struct {
		ID          int64  `json:"id"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		DailyBudget struct {
			Amount string `json:"amount"`
		} `json:"dailyBudget"`
	} `json:"elements"`
}

type linkedinAnalyticsElement struct {
	PivotValues         []string `json:"pivotValues"`
	CostInLocalCurrency string   `json:"costInLocalCurrency"`
	Clicks              int64    `json:"clicks"`
	Impressions         int64    `json:"impressions"`
}

type linkedinAnalyticsResponse struct {
	Elements []linkedinAnalyticsElement `json:"elements"`
}

func (c *LinkedInConnector) Sync(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger) (int, error) {
	db := dbManager.GetConnection()
	accountID := settings.GetConnectorCredential(db, settings.KeyLinkedInAccountID)
	token := settings.GetConnectorCredential(db, settings.KeyLinkedInAccessToken)

	headers := map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Restli-Protocol-Version": "2.0.0",
	}

	searchURL := fmt.Sprintf("%s/v2/adCampaignsV2?q=search&search.account.values[0]=urn:li:sponsoredAccount:%s",
		c.BaseURL, accountID)
	var campaignList linkedinCampaignsResponse
	if err := getJSON(ctx, c.Client, searchURL, headers, &campaignList); err != nil {
		return 0, fmt.Errorf("linkedin campaign search failed: %w", err)
	}
	if len(campaignList.Elements) == 0 {
		return 0, nil
	}

	analyticsURL := fmt.Sprintf("%s/v2/adAnalyticsV2?q=analytics&pivot=CAMPAIGN&timeGranularity=ALL&fields=pivotValues,costInLocalCurrency,clicks,impressions",
		c.BaseURL)
	var analytics linkedinAnalyticsResponse
	if err := getJSON(ctx, c.Client, analyticsURL, headers, &analytics); err != nil {
		return 0, fmt.Errorf("linkedin analytics failed: %w", err)
	}

	metricsByURN := make(map[string]linkedinAnalyticsElement, len(analytics.Elements))
	for _, element := range analytics.Elements {
		if len(element.PivotValues) == 0 {
			continue
		}
		metricsByURN[element.PivotValues[0]] = element
	}

	synced := make([]campaigns.SyncedCampaign, 0, len(campaignList.Elements))
	for _, campaign := range campaignList.Elements {
		row := campaigns.SyncedCampaign{
			ExternalID: fmt.Sprintf("%d", campaign.ID),
			Name:       campaign.Name,
			Status:     strings.ToLower(campaign.Status),
		}
		if campaign.DailyBudget.Amount != "" {
			row.Budget = sql.NullFloat64{Float64: parseFloat(campaign.DailyBudget.Amount), Valid: true}
		}
		if metrics, ok := metricsByURN[fmt.Sprintf("urn:li:sponsoredCampaign:%d", campaign.ID)]; ok {
			row.Spend = parseFloat(metrics.CostInLocalCurrency)
			row.Clicks = metrics.Clicks
			row.Impressions = metrics.Impressions
		}
		synced = append(synced, row)
	}

	if err := campaigns.UpsertFromConnector(db, logger, campaigns.SourceLinkedIn, synced); err != nil {
		return 0, err
	}
	return len(synced), nil
}
