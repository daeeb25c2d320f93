package testsupport

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"attriflow/internal"
	"attriflow/internal/annotations"
	"attriflow/internal/attribution"
	"attriflow/internal/campaigns"
	"attriflow/internal/config"
	"attriflow/internal/insights"
	"attriflow/internal/journeys"
	"attriflow/internal/settings"
	"attriflow/internal/timeframe"
	"attriflow/internal/users"
	"github.com/karloscodes/cartridge/cache"
)

// SessionCookieName is the expected cookie name for session cookies in tests.
// This should match the pattern used in routes.go: cfg.AppName + "_session"
const SessionCookieName = "attriflow_session"

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with attriflow's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// TestDateStat is a helper struct for testing date-based statistics
type TestDateStat struct {
	Date  time.Time
	Count int
}

// ConvertToTestDateStat converts a DateStat to TestDateStat
func ConvertToTestDateStat(ds timeframe.DateStat) (TestDateStat, error) {
	t, err := time.Parse(time.RFC3339, ds.Date)
	if err != nil {
		return TestDateStat{}, err
	}
	return TestDateStat{Date: t, Count: ds.Count}, nil
}

// allModels returns all attriflow models for migration
func allModels() []any {
	return []any{
		&cache.CacheRecord{},
		&users.User{},
		&settings.Setting{},
		&campaigns.Campaign{},
		&journeys.CustomerJourney{},
		&journeys.Touchpoint{},
		&journeys.IngestedTouchEvent{},
		&attribution.AttributionModel{},
		&attribution.AttributionResult{},
		&insights.AttributionInsight{},
		&annotations.Annotation{},
	}
}

// SetupTestDB creates a test database with all attriflow models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by test name
// so multiple calls within the same test return the same database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	// Use root test name for caching to handle closure issues where
	// setup functions capture the outer t while t.Run has subtest t
	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	// Check cache first
	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	// Create a unique named in-memory database for each test
	// cache=shared allows multiple connections to the same database
	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// Apply SQLite pragmas
	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA busy_timeout = 5000")

	// Auto-migrate models
	if err := db.AutoMigrate(allModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	// Cache the database
	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	// Register cleanup
	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set ATTRIFLOW_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	logger := GetLogger()
	dbManager := NewTestDBManager(db)

	return dbManager, logger
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	var tables []string
	for _, name := range tableNames {
		if name != "migrations" && name != "schema_migrations" {
			tables = append(tables, name)
		}
	}

	if len(tables) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CleanTables cleans specific tables or all tables if none specified
func CleanTables(db *gorm.DB, tables []string) {
	if len(tables) == 0 {
		CleanAllTables(db)
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tables {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// CreateTestUser creates a test user in the database
func CreateTestUser(db *gorm.DB, email, password string) users.User {
	var user users.User
	if db.Where("email = ?", email).First(&user).Error == nil {
		return user
	}

	user = users.User{
		Email:             email,
		EncryptedPassword: password,
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	db.Create(&user)
	return user
}

// CreateTestUserForAuth creates a user with properly hashed password for auth testing
func CreateTestUserForAuth(t *testing.T, db *gorm.DB, email, password string) *users.User {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	user := &users.User{
		Email:             email,
		EncryptedPassword: string(hashedPassword),
		CreatedAt:         time.Now().UTC(),
		UpdatedAt:         time.Now().UTC(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateTestModel creates an attribution model with sensible config values
// for its type
func CreateTestModel(t *testing.T, db *gorm.DB, name string, modelType string) attribution.AttributionModel {
	t.Helper()

	model := attribution.AttributionModel{
		Name:     name,
		Type:     modelType,
		IsActive: true,
	}
	switch modelType {
	case attribution.ModelTypeTimeDecay:
		model.DecayRate = 0.5
		model.HalfLifeDays = 7
	case attribution.ModelTypePositionBased:
		model.FirstWeight = 0.4
		model.MiddleWeight = 0.2
		model.LastWeight = 0.4
	}
	require.NoError(t, db.Create(&model).Error)
	return model
}

// CreateTestJourney creates an active journey for a customer
func CreateTestJourney(t *testing.T, db *gorm.DB, customerID string) journeys.CustomerJourney {
	t.Helper()

	journey := journeys.CustomerJourney{
		CustomerID:   customerID,
		JourneyStart: time.Now().UTC().Add(-24 * time.Hour),
		Status:       journeys.JourneyStatusActive,
	}
	require.NoError(t, db.Create(&journey).Error)
	return journey
}

// CreateTestTouchpoint appends a touchpoint row directly, keeping the
// journey's touchpoint counter in sync like the recorder would
func CreateTestTouchpoint(t *testing.T, db *gorm.DB, journeyID uint, position int, channel string, timestamp time.Time) journeys.Touchpoint {
	t.Helper()

	tp := journeys.Touchpoint{
		JourneyID:      journeyID,
		Channel:        channel,
		Source:         channel,
		Medium:         "test",
		TouchpointType: journeys.TouchpointTypePageView,
		Position:       position,
		Timestamp:      timestamp,
	}
	require.NoError(t, db.Create(&tp).Error)
	require.NoError(t, db.Exec(
		"UPDATE customer_journeys SET total_touchpoints = total_touchpoints + 1 WHERE id = ?",
		journeyID).Error)
	return tp
}

// CompleteTestJourney marks a journey converted with the given value
func CompleteTestJourney(t *testing.T, db *gorm.DB, journeyID uint, conversionValue float64, conversionType string, endedAt time.Time) {
	t.Helper()

	require.NoError(t, db.Exec(`
        UPDATE customer_journeys
        SET status = ?, journey_end = ?, conversion_value = ?, conversion_type = ?
        WHERE id = ?`,
		journeys.JourneyStatusCompleted, endedAt, conversionValue, conversionType, journeyID).Error)
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// CreateTestTouchInput creates a CollectTouchInput for testing
func CreateTestTouchInput(
	ipAddress, userAgent string,
	eventType journeys.TouchEventType,
	timestamp time.Time,
	rawURL, referrerURL string,
) *journeys.CollectTouchInput {
	return &journeys.CollectTouchInput{
		IPAddress: ipAddress, UserAgent: userAgent,
		EventType: eventType, Timestamp: timestamp,
		RawURL: rawURL, ReferrerURL: referrerURL,
	}
}

// CreateRandomTouchEvents ingests count touch events from one synthetic
// visitor
func CreateRandomTouchEvents(dbManager cartridge.DBManager, logger *slog.Logger, count int) error {
	ip := fmt.Sprintf("%d.%d.%d.%d", rand.Intn(256), rand.Intn(256), rand.Intn(256), rand.Intn(256))
	userAgent := "Mozilla/5.0 Test Browser"

	for i := 0; i < count; i++ {
		input := &journeys.CollectTouchInput{
			IPAddress: ip, UserAgent: userAgent,
			ReferrerURL: "https://google.com", EventType: journeys.TouchEventTypeTouch,
			Timestamp: time.Now().Add(-time.Duration(count-i) * time.Minute),
			RawURL:    fmt.Sprintf("https://shop.example.com/page-%d?utm_source=google&utm_medium=cpc", i),
		}
		if err := journeys.CollectTouchEvent(dbManager, logger, input); err != nil {
			return err
		}
	}
	return nil
}

// ProcessAllTestTouchEvents drains the ingestion queue
func ProcessAllTestTouchEvents(dbManager cartridge.DBManager, logger *slog.Logger) error {
	for {
		result, err := journeys.ProcessUnprocessedTouchEvents(dbManager, logger, 10)
		if err != nil {
			return err
		}
		if result.ProcessedCount == 0 {
			break
		}
	}
	return nil
}

// CreateMinimalTestApp creates a test Fiber app with all routes
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.PublicDirectory = t.TempDir()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	// Enable SecFetchSite validation in tests to match production behavior
	// This blocks requests without Sec-Fetch-Site header (server-to-server requests)
	cfg.EnableSecFetchSite = true
	cfg.SecFetchSiteAllowedValues = []string{"cross-site", "same-site", "same-origin"}

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}

// LoginTestUser simulates login and returns session cookie, CSRF token, and CSRF cookie
func LoginTestUser(t *testing.T, app *fiber.App, email, password string) (string, string, string) {
	t.Helper()

	// GET /login primes the CSRF cookie
	req := httptest.NewRequest("GET", "/login", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var csrfToken, csrfCookie string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "csrf_" {
			csrfToken = cookie.Value
			csrfCookie = fmt.Sprintf("%s=%s", cookie.Name, cookie.Value)
			break
		}
	}
	require.NotEmpty(t, csrfToken)
	require.NotEmpty(t, csrfCookie)

	// POST /login
	loginData := url.Values{}
	loginData.Add("email", email)
	loginData.Add("password", password)
	loginData.Add("_csrf", csrfToken)
	loginData.Add("_tz", "UTC")

	req = httptest.NewRequest("POST", "/login", strings.NewReader(loginData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", "Mozilla/5.0 Test Browser")
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	req.Header.Set("Cookie", csrfCookie)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var sessionValue string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == SessionCookieName {
			sessionValue = cookie.Value
			break
		}
	}
	require.NotEmpty(t, sessionValue)

	return sessionValue, csrfToken, csrfCookie
}
