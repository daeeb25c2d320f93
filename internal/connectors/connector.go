package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"
)

// Connector syncs one marketing platform into local storage. Campaign
// connectors upsert into the campaigns table, the Shopify connector feeds
// orders into the touch event queue as conversions.
type Connector interface {
	// Name identifies the platform, matching the campaign source constant
	Name() string
	// Configured reports whether the platform's credentials are present
	Configured(db *gorm.DB) bool
	// Sync pulls the platform's data and stores it, returning how many
	// rows were ingested
	Sync(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger) (int, error)
}

// All returns the production connector set in sync order
func All() []Connector {
	return []Connector{
		NewGA4Connector(),
		NewLinkedInConnector(),
		NewHubSpotConnector(),
		NewShopifyConnector(),
	}
}

// SyncConfigured runs every configured connector and skips the rest. A
// failing connector is logged and does not abort the sweep. Returns the
// total rows ingested across connectors.
func SyncConfigured(ctx context.Context, dbManager cartridge.DBManager, logger *slog.Logger, conns []Connector) int {
	db := dbManager.GetConnection()

	total := 0
	for _, conn := range conns {
		if ctx.Err() != nil {
			return total
		}
		if !conn.Configured(db) {
			logger.Debug("Connector not configured, skipping", "connector", conn.Name())
			continue
		}

		count, err := conn.Sync(ctx, dbManager, logger)
		if err != nil {
			logger.Error("Connector sync failed", "connector", conn.Name(), "error", err)
			continue
		}
		logger.Info("Connector sync completed", "connector", conn.Name(), "rows", count)
		total += count
	}
	return total
}

// defaultHTTPClient bounds connector calls so a stuck platform API cannot
// wedge the sync job.
var defaultHTTPClient = &http.Client{Timeout: 30 * time.Second}

func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return doJSON(client, req, headers, out)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, headers, out)
}

func doJSON(client *http.Client, req *http.Request, headers map[string]string, out interface{}) error {
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Platform APIs return most metrics as strings, bad values count as zero
func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
