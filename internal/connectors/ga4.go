package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"attriflow/internal/campaigns"
	"attriflow/internal/settings"
)

const ga4DefaultBaseURL = "https://analyticsdata.googleapis.com"

// GA4Connector pulls campaign spend from the Google Analytics Data API
// runReport endpoint. BaseURL is overridable for tests.
type GA4Connector struct {
	BaseURL string
	Client  *http.Client
}

func NewGA4Connector() *GA4Connector {
	return &GA4Connector{BaseURL: ga4DefaultBaseURL, Client: defaultHTTPClient}
}

func (c *GA4Connector) Name() string {
	return campaigns.SourceGA4
}

func (c *GA4Connector) Configured(db *gorm.DB) bool {
	return settings.GetConnectorCredential(db, settings.KeyGA4PropertyID) != "" &&
		settings.GetConnectorCredential(db, settings.KeyGA4AccessToken) != ""
}

type ga4DateRange struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type ga4Field struct {
	Name string `json:"name"`
}

type ga4RunReportRequest struct {
	DateRanges []ga4DateRange `json:"dateRanges"`
	Dimensions []ga4Field     `json:"dimensions"`
	Metrics    []ga4Field     `json:"metrics"`
}

type ga4RunReportResponse struct {
	Rows []struct {
		DimensionValues []struct {
			Value string `json:"value"`
		} `json:"dimensionValues"`
		MetricValues []struct {
			Value string `json:"value"`
		} `json:"metricValues"`
	} `json:"rows"`
}

func (c *GA4Connector) Sync(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger) (int, error) {
	db := dbManager.GetConnection()
	propertyID := settings.GetConnectorCredential(db, settings.KeyGA4PropertyID)
	token := settings.GetConnectorCredential(db, settings.KeyGA4AccessToken)

	url := fmt.Sprintf("%s/v1beta/properties/%s:runReport", c.BaseURL, propertyID)
	request := ga4RunReportRequest{
		DateRanges: []ga4DateRange{{StartDate: "30daysAgo", EndDate: "today"}},
		Dimensions: []ga4Field{{Name: "sessionCampaignId"}, {Name: "sessionCampaignName"}},
		Metrics:    []ga4Field{{Name: "advertiserAdCost"}, {Name: "advertiserAdClicks"}, {Name: "advertiserAdImpressions"}},
	}
	headers := map[string]string{"Authorization": "Bearer " + token}

	var response ga4RunReportResponse
	if err := postJSON(ctx, c.Client, url, headers, request, &response); err != nil {
		return 0, fmt.Errorf("ga4 runReport failed: %w", err)
	}

	synced := make([]campaigns.SyncedCampaign, 0, len(response.Rows))
	for _, row := range response.Rows {
		if len(row.DimensionValues) < 2 || len(row.MetricValues) < 3 {
			continue
		}
		externalID := row.DimensionValues[0].Value
		if externalID == "" || externalID == "(not set)" {
			continue
		}
		synced = append(synced, campaigns.SyncedCampaign{
			ExternalID:  externalID,
			Name:        row.DimensionValues[1].Value,
			Spend:       parseFloat(row.MetricValues[0].Value),
			Clicks:      parseInt(row.MetricValues[1].Value),
			Impressions: parseInt(row.MetricValues[2].Value),
		})
	}

	if err := campaigns.UpsertFromConnector(db, logger, campaigns.SourceGA4, synced); err != nil {
		return 0, err
	}
	return len(synced), nil
}
