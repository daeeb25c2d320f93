// Package v1_test contains tests for the public collect API handlers
package v1_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attriflow/internal/config"
	"attriflow/internal/identity"
	"attriflow/internal/journeys"
	"attriflow/internal/settings"
	"attriflow/internal/testsupport"
)

// collectPayload builds a collect request body with sane defaults.
func collectPayload(t *testing.T, overrides map[string]interface{}) []byte {
	t.Helper()

	payload := map[string]interface{}{
		"customer_id": "cus_test_1",
		"url":         "https://example.com/pricing",
		"referrer":    "https://google.com/search",
		"user_agent":  "Mozilla/5.0 (Test Agent)",
	}
	for key, value := range overrides {
		payload[key] = value
	}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return data
}

// newCollectRequest builds a browser-shaped POST; tests tweak headers from
// there.
func newCollectRequest(path string, body []byte) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("X-Forwarded-For", "198.51.100.7")
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	return req
}

func TestCollectTouchPublicAPIHandler(t *testing.T) {
	t.Run("accepts touch and stores an ingested event", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		if resp.StatusCode != http.StatusAccepted {
			respBody, _ := io.ReadAll(resp.Body)
			t.Logf("Response body: %s", string(respBody))
			t.Logf("Response status: %d", resp.StatusCode)
		}
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var respBody map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &respBody))
		assert.Equal(t, "Touch event accepted", respBody["message"])
		assert.Equal(t, float64(http.StatusAccepted), respBody["status"])

		var event journeys.IngestedTouchEvent
		require.NoError(t, db.First(&event).Error)
		assert.Equal(t, "cus_test_1", event.CustomerSignature)
		assert.Equal(t, "example.com", event.Hostname)
		assert.Equal(t, "/pricing", event.Pathname)
		assert.Equal(t, "google.com", event.ReferrerHostname)
		assert.Equal(t, journeys.TouchEventTypeTouch, event.EventType)
		assert.Equal(t, 0, event.Processed)
	})

	t.Run("merges explicit traffic tags into the url query", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		body := collectPayload(t, map[string]interface{}{
			"url":      "https://example.com/welcome",
			"source":   "newsletter",
			"medium":   "email",
			"campaign": "spring_promo",
		})
		resp, err := app.Test(newCollectRequest("/api/v1/events", body), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var event journeys.IngestedTouchEvent
		require.NoError(t, db.First(&event).Error)
		assert.Contains(t, event.RawURL, "utm_source=newsletter")
		assert.Contains(t, event.RawURL, "utm_medium=email")
		assert.Contains(t, event.RawURL, "utm_campaign=spring_promo")
	})

	t.Run("keeps traffic tags already on the url", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		body := collectPayload(t, map[string]interface{}{
			"url":    "https://example.com/welcome?utm_source=google",
			"source": "newsletter",
		})
		resp, err := app.Test(newCollectRequest("/api/v1/events", body), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var event journeys.IngestedTouchEvent
		require.NoError(t, db.First(&event).Error)
		assert.Contains(t, event.RawURL, "utm_source=google")
		assert.NotContains(t, event.RawURL, "newsletter")
	})

	t.Run("records a conversion when the payload names a goal", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		body := collectPayload(t, map[string]interface{}{
			"event_name":  "signup",
			"event_value": 49.0,
		})
		resp, err := app.Test(newCollectRequest("/api/v1/events", body), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var event journeys.IngestedTouchEvent
		require.NoError(t, db.First(&event).Error)
		assert.Equal(t, journeys.TouchEventTypeConversion, event.EventType)
		assert.Equal(t, "signup", event.ConversionName)
		require.True(t, event.EventValue.Valid)
		assert.InDelta(t, 49.0, event.EventValue.Float64, 0.001)
	})

	t.Run("pins an explicit channel for the processor", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		body := collectPayload(t, map[string]interface{}{
			"channel":    "paid_social",
			"touch_type": "ad_click",
		})
		resp, err := app.Test(newCollectRequest("/api/v1/events", body), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		require.NoError(t, testsupport.ProcessAllTestTouchEvents(dbManager, logger))

		var touchpoint journeys.Touchpoint
		require.NoError(t, db.First(&touchpoint).Error)
		assert.Equal(t, "paid_social", touchpoint.Channel)
		assert.Equal(t, journeys.TouchpointType("ad_click"), touchpoint.TouchpointType)
	})

	t.Run("drops touches from excluded ips", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		require.NoError(t, settings.SetupDefaultSettings(db))
		require.NoError(t, settings.UpdateSetting(db, "excluded_ips", "203.0.113.50"))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Set("X-Forwarded-For", "203.0.113.50")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&journeys.IngestedTouchEvent{}).Count(&count).Error)
		assert.Equal(t, int64(0), count, "Expected the excluded IP's touch to be dropped")
	})

	t.Run("accepts subdomain of an allowed origin", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		require.NoError(t, settings.CreateOrUpdateSetting(db, "allowed_origins", "example.com, https://partner.io"))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Set("Origin", "https://app.example.com")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("falls back to referer when origin header is absent", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		require.NoError(t, settings.CreateOrUpdateSetting(db, "allowed_origins", "example.com, https://partner.io"))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Del("Origin")
		req.Header.Set("Referer", "https://partner.io/checkout")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	})

	t.Run("rejects unlisted origin when allow list configured", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		require.NoError(t, settings.CreateOrUpdateSetting(db, "allowed_origins", "example.com"))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Set("Origin", "https://evil.com")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&journeys.IngestedTouchEvent{}).Count(&count).Error)
		assert.Equal(t, int64(0), count, "Expected no events in the ingest database")
	})

	t.Run("rejects request without origin when allow list configured", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		require.NoError(t, settings.CreateOrUpdateSetting(db, "allowed_origins", "example.com"))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Del("Origin")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("rejects request without Sec-Fetch-Site header (server-to-server)", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events", collectPayload(t, nil))
		req.Header.Del("Sec-Fetch-Site")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var respBody map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &respBody))
		assert.Equal(t, "forbidden", respBody["error"])
		assert.Equal(t, "browser requests only", respBody["message"])
	})
}

func TestCollectConversionPublicAPIHandler(t *testing.T) {
	t.Run("records an unnamed conversion and completes the journey", func(t *testing.T) {
		dbManager, logger := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		// A touch first so the conversion has a journey to close
		touchBody := collectPayload(t, map[string]interface{}{
			"customer_id": "cus_conv_1",
			"occurred_at": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		})
		resp, err := app.Test(newCollectRequest("/api/v1/events", touchBody), 30000)
		require.NoError(t, err)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		convBody := collectPayload(t, map[string]interface{}{
			"customer_id": "cus_conv_1",
			"event_value": 129.99,
		})
		resp, err = app.Test(newCollectRequest("/api/v1/conversions", convBody), 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var event journeys.IngestedTouchEvent
		require.NoError(t, db.Order("id desc").First(&event).Error)
		assert.Equal(t, journeys.TouchEventTypeConversion, event.EventType)
		assert.Empty(t, event.ConversionName)

		require.NoError(t, testsupport.ProcessAllTestTouchEvents(dbManager, logger))

		var journey journeys.CustomerJourney
		require.NoError(t, db.Where("customer_id = ?", "cus_conv_1").First(&journey).Error)
		assert.Equal(t, journeys.JourneyStatusCompleted, journey.Status)
		require.True(t, journey.ConversionValue.Valid)
		assert.InDelta(t, 129.99, journey.ConversionValue.Float64, 0.001)
		require.True(t, journey.ConversionType.Valid)
		assert.Equal(t, "conversion", journey.ConversionType.String)
	})
}

func TestCollectTouchBeaconHandler(t *testing.T) {
	t.Run("stores touch from beacon payload", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		// sendBeacon posts as text/plain
		req := newCollectRequest("/api/v1/events/beacon", collectPayload(t, nil))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Sec-Fetch-Site", "same-site")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&journeys.IngestedTouchEvent{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("returns 202 for malformed beacon payloads", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := newCollectRequest("/api/v1/events/beacon", []byte("{not json"))
		req.Header.Set("Content-Type", "text/plain")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var count int64
		require.NoError(t, db.Model(&journeys.IngestedTouchEvent{}).Count(&count).Error)
		assert.Equal(t, int64(0), count)
	})
}

func TestGetSDKAction(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	app := testsupport.CreateMinimalTestApp(t, db)

	req := httptest.NewRequest("GET", "/api/v1/sdk.js", nil)
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/javascript", resp.Header.Get("Content-Type"))

	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	script := string(body)
	assert.Contains(t, script, "attriflow")
	assert.Contains(t, script, "/api/v1/events")
	assert.False(t, strings.Contains(script, "{{"), "template variables should be rendered")

	// Conditional request with the fresh ETag short-circuits to 304
	req = httptest.NewRequest("GET", "/api/v1/sdk.js", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = app.Test(req, 30000)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestGetCustomerInfoHandler(t *testing.T) {
	t.Run("returns 425 for early data replay", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/me?w=example.com", nil)
		req.Header.Set("Early-Data", "1")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusTooEarly, resp.StatusCode)
	})

	t.Run("returns classified touches for a known customer id", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		journey := testsupport.CreateTestJourney(t, db, "cus_known")
		now := time.Now().UTC()
		testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", now.Add(-2*time.Hour))
		testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "email", now.Add(-1*time.Hour))

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/me?cid=cus_known", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
		req.Header.Set("X-Forwarded-For", "1.2.3.4")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))

		assert.Equal(t, "cus_known", payload["customerId"])
		assert.Equal(t, identity.CustomerAlias("cus_known"), payload["customerAlias"])
		_, hasGeneratedAt := payload["generatedAt"].(string)
		assert.True(t, hasGeneratedAt, "generatedAt should be present")

		// The signature inputs stay server-side
		_, exists := payload["ipAddress"]
		assert.False(t, exists)
		_, exists = payload["userAgent"]
		assert.False(t, exists)

		touches, ok := payload["touches"].([]interface{})
		require.True(t, ok)
		require.Len(t, touches, 2)

		latest := touches[0].(map[string]interface{})
		assert.Equal(t, "email", latest["channel"])
		assert.Equal(t, "page_view", latest["touchType"])

		earlier := touches[1].(map[string]interface{})
		assert.Equal(t, "paid_search", earlier["channel"])
	})

	t.Run("falls back to pending touches when nothing is classified", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		now := time.Now().UTC()
		pending := journeys.IngestedTouchEvent{
			CustomerSignature: "cus_pending",
			Hostname:          "example.com",
			Pathname:          "/landing",
			RawURL:            "https://example.com/landing",
			EventType:         journeys.TouchEventTypeTouch,
			Timestamp:         now,
			UserAgent:         "Mozilla/5.0 (Test Agent)",
			CreatedAt:         now,
			Processed:         0,
		}
		require.NoError(t, db.Create(&pending).Error)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/me?cid=cus_pending", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))

		touches, ok := payload["touches"].([]interface{})
		require.True(t, ok)
		require.Len(t, touches, 1)

		touch := touches[0].(map[string]interface{})
		assert.Equal(t, "example.com/landing", touch["url"])
		assert.Equal(t, "page_view", touch["touchType"])
	})

	t.Run("builds anonymous signature from request context", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/me?url=https://example.com/path", nil)
		req.Header.Set("Origin", "https://example.com")
		req.Header.Set("User-Agent", "Mozilla/5.0 (Test Agent)")
		req.Header.Set("X-Forwarded-For", "1.2.3.4")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))

		cfg := config.GetConfig()
		expected := identity.BuildCustomerSignature("example.com", "1.2.3.4", "Mozilla/5.0 (Test Agent)", cfg.PrivateKey)
		assert.Equal(t, expected, payload["customerId"])
		assert.Equal(t, identity.CustomerAlias(expected), payload["customerAlias"])

		touches, ok := payload["touches"].([]interface{})
		require.True(t, ok)
		assert.Len(t, touches, 0)
	})

	t.Run("falls back to host header when no context headers provided", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		testsupport.CleanAllTables(db)

		app := testsupport.CreateMinimalTestApp(t, db)

		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		req.Host = "example.com"
		req.Header.Set("User-Agent", "Host-Fallback-Agent")
		req.Header.Set("X-Forwarded-For", "5.6.7.8")

		resp, err := app.Test(req, 30000)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))

		cfg := config.GetConfig()
		expected := identity.BuildCustomerSignature("example.com", "5.6.7.8", "Host-Fallback-Agent", cfg.PrivateKey)
		assert.Equal(t, expected, payload["customerId"])
	})
}
