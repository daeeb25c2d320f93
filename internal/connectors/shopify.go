package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"attriflow/internal/campaigns"
	"attriflow/internal/journeys"
	"attriflow/internal/settings"
)

const (
	shopifyAPIVersion = "2024-01"
	// Cursor so re-syncs never ingest the same order twice
	shopifyLastOrderIDKey = "shopify_last_order_id"
	// First sync looks this far back
	shopifyInitialLookback = 7 * 24 * time.Hour
)

// ShopifyConnector backfills store orders as conversion touch events. Each
// order becomes one conversion on the customer's journey, keyed by a
// "shopify:<id>" customer signature the storefront SDK can mirror.
type ShopifyConnector struct {
	// BaseURL overrides the https://<shop-domain> API origin in tests
	BaseURL string
	Client  *http.Client
}

func NewShopifyConnector() *ShopifyConnector {
	return &ShopifyConnector{Client: defaultHTTPClient}
}

func (c *ShopifyConnector) Name() string {
	return campaigns.SourceShopify
}

func (c *ShopifyConnector) Configured(db *gorm.DB) bool {
	return settings.GetConnectorCredential(db, settings.KeyShopifyShopDomain) != "" &&
		settings.GetConnectorCredential(db, settings.KeyShopifyAccessToken) != ""
}

type shopifyOrdersResponse struct {
	Orders []struct {
		ID            int64     `json:"id"`
		Email         string    `json:"email"`
		TotalPrice    string    `json:"total_price"`
		CreatedAt     time.Time `json:"created_at"`
		LandingSite   string    `json:"landing_site"`
		ReferringSite string    `json:"referring_site"`
		Customer      struct {
			ID int64 `json:"id"`
		} `json:"customer"`
		ClientDetails struct {
			UserAgent string `json:"user_agent"`
		} `json:"client_details"`
	} `json:"orders"`
}

func (c *ShopifyConnector) Sync(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger) (int, error) {
	db := dbManager.GetConnection()
	domain := settings.GetConnectorCredential(db, settings.KeyShopifyShopDomain)
	token := settings.GetConnectorCredential(db, settings.KeyShopifyAccessToken)

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://" + domain
	}

	ordersURL := fmt.Sprintf("%s/admin/api/%s/orders.json?status=any&limit=250", baseURL, shopifyAPIVersion)
	if sinceID, _ := settings.GetSetting(db, shopifyLastOrderIDKey); sinceID != "" {
		ordersURL += "&since_id=" + sinceID
	} else {
		since := time.Now().UTC().Add(-shopifyInitialLookback)
		ordersURL += "&created_at_min=" + since.Format(time.RFC3339)
	}
	headers := map[string]string{"X-Shopify-Access-Token": token}

	var response shopifyOrdersResponse
	if err := getJSON(ctx, c.Client, ordersURL, headers, &response); err != nil {
		return 0, fmt.Errorf("shopify orders failed: %w", err)
	}

	ingested := 0
	var lastOrderID int64
	for _, order := range response.Orders {
		if order.ID > lastOrderID {
			lastOrderID = order.ID
		}

		customerID := shopifyCustomerSignature(order.Customer.ID, order.Email)
		if customerID == "" {
			logger.Debug("Skipping Shopify order without a customer", "order_id", order.ID)
			continue
		}

		value := parseFloat(order.TotalPrice)
		input := &journeys.CollectTouchInput{
			CustomerID:     customerID,
			UserAgent:      order.ClientDetails.UserAgent,
			EventType:      journeys.TouchEventTypeConversion,
			ConversionName: "purchase",
			EventValue:     &value,
			Timestamp:      order.CreatedAt,
			RawURL:         shopifyLandingURL(domain, order.LandingSite),
			ReferrerURL:    order.ReferringSite,
		}
		if err := journeys.CollectTouchEvent(dbManager, logger, input); err != nil {
			logger.Warn("Failed to ingest Shopify order", "order_id", order.ID, "error", err)
			continue
		}
		ingested++
	}

	if lastOrderID > 0 {
		err := settings.CreateOrUpdateSetting(db, shopifyLastOrderIDKey, strconv.FormatInt(lastOrderID, 10))
		if err != nil {
			return ingested, fmt.Errorf("failed to store shopify cursor: %w", err)
		}
	}
	return ingested, nil
}

// shopifyCustomerSignature builds the stitch key joining store orders to
// web journeys. Storefronts identify logged-in visitors with the same
// "shopify:<customer-id>" value through the SDK.
func shopifyCustomerSignature(customerID int64, email string) string {
	if customerID > 0 {
		return fmt.Sprintf("shopify:%d", customerID)
	}
	if email != "" {
		return "shopify:" + strings.ToLower(strings.TrimSpace(email))
	}
	return ""
}

// shopifyLandingURL absolutizes the order's landing path against the shop
// domain so ingestion can parse a hostname from it.
func shopifyLandingURL(domain, landingSite string) string {
	if strings.HasPrefix(landingSite, "http://") || strings.HasPrefix(landingSite, "https://") {
		return landingSite
	}
	if landingSite == "" {
		landingSite = "/"
	}
	if !strings.HasPrefix(landingSite, "/") {
		landingSite = "/" + landingSite
	}
	return "https://" + domain + landingSite
}
