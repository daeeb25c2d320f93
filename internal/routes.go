package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "attriflow/api/v1"
	"attriflow/internal/config"
	"attriflow/internal/http"
	"attriflow/internal/http/middleware"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// SetupSession configures session management on the server.
// Exported for Pro to call before mounting its routes.
func SetupSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := cartridge.NewSessionManager(cartridge.SessionConfig{
		CookieName: cfg.AppName + "_session",
		Secret:     cfg.GetSessionSecret(),
		TTL:        time.Duration(cfg.GetLoginSessionTimeout()) * time.Second,
		Secure:     cfg.IsProduction(),
		LoginPath:  "/login",
	})
	srv.SetSession(sessionMgr)
}

// MountAppRoutes mounts all application routes using cartridge's route API
func MountAppRoutes(srv *cartridge.Server) {
	// Create and set session manager
	SetupSession(srv)
	MountAppRoutesWithoutSession(srv)
}

// MountAppRoutesWithoutSession mounts routes without setting up session.
// Used by Pro which sets up session separately.
func MountAppRoutesWithoutSession(srv *cartridge.Server) {
	cfg := config.GetConfig()
	sessionMgr := srv.Session()

	// ============================================
	// PUBLIC ENDPOINT PROTECTION
	// All public endpoints get the following protection:
	// - Rate limiting (70 req/min for touch events, production only)
	// - CORS (permissive for cross-origin tracking)
	// - Sec-Fetch-Site validation where applicable
	// ============================================

	// Helper to conditionally apply rate limiting (only in production)
	// In development/test, rate limiting would interfere with testing
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Rate limiter for public touch ingestion API (70 requests per minute per IP)
	// 70/min = ~1.2 req/sec - handles legitimate tracking traffic while preventing abuse
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Stricter rate limiter for auth endpoints (10 requests per minute)
	// Prevents brute force login attempts
	authRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(10),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Agent endpoints are machine-to-machine; keep a moderate ceiling
	agentRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Public API config (touch event ingestion)
	// Rate limiting + CORS + Sec-Fetch-Site (global middleware handles validation)
	// CORS runs first ensuring 403 responses have CORS headers
	// Global SecFetchSite middleware allows: cross-site, same-site, same-origin
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		WriteConcurrency: false,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// SDK delivery config
	// Rate limiting + CORS (no Sec-Fetch-Site needed for GET-only)
	sdkConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// First-run setup config
	// No rate limiting - one-time setup flow, not sensitive auth
	// No Sec-Fetch-Site - the setup client may be a provisioning script
	setupConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
	}

	// Get dependencies for middleware
	db := srv.GetDBManager().GetConnection()
	logger := srv.GetLogger()

	// Admin JSON API: setup precondition, session auth, then attribution
	// model resolution for the reporting endpoints
	adminAPIConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{
			middleware.OnboardingCheck(db, logger),
			sessionMgr.Middleware(),
			middleware.ModelFilter(db, logger),
		},
	}

	// Agent API: Bearer key auth instead of session cookies. Sec-Fetch-Site
	// is disabled because agents are not browsers.
	agentAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			agentRateLimiter,
			middleware.AgentAPIKeyAuth(db, logger),
		},
	}

	// === ROOT ROUTES ===
	srv.Get("/", http.HomeIndexAction)

	// Health check endpoint
	srv.Get("/_health", http.HealthIndexAction)
	srv.Head("/_health", http.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	srv.Post("/api/v1/events", v1.CollectTouchPublicAPIHandler, publicAPIConfig)
	srv.Options("/api/v1/events", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/api/v1/events/beacon", v1.CollectTouchBeaconHandler, publicAPIConfig)
	srv.Options("/api/v1/events/beacon", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Post("/api/v1/conversions", v1.CollectConversionPublicAPIHandler, publicAPIConfig)
	srv.Options("/api/v1/conversions", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)
	srv.Get("/api/v1/me", v1.GetCustomerInfoHandler, publicAPIConfig)
	srv.Options("/api/v1/me", func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}, publicAPIConfig)

	// === SDK ROUTES ===
	srv.Get("/api/v1/sdk.js", v1.GetSDKAction, sdkConfig)

	// === FIRST-RUN SETUP ROUTES ===
	srv.Get("/setup", http.SetupStatusAction, setupConfig)
	srv.Post("/setup", http.SetupAction, setupConfig)

	// === AUTHENTICATION ROUTES ===
	// Login needs rate limiting to prevent brute force attacks
	loginConfig := &cartridge.RouteConfig{
		CustomMiddleware: []fiber.Handler{authRateLimiter},
	}
	srv.Get("/login", http.RenderLoginAction)
	srv.Post("/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/logout", http.LogoutAction)

	// JSON API aliases for clients that never touch the page routes
	srv.Post("/admin/api/login", http.ProcessLoginAction, loginConfig)
	srv.Post("/admin/api/logout", http.LogoutAction)

	// === ACCOUNT ===
	srv.Post("/admin/api/account/password", http.AccountChangePasswordAction, adminAPIConfig)

	// === ATTRIBUTION MODELS ===
	srv.Get("/admin/api/models", http.ModelsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/models", http.ModelsCreateAction, adminAPIConfig)
	srv.Put("/admin/api/models/:id", http.ModelsUpdateAction, adminAPIConfig)
	srv.Post("/admin/api/models/:id/default", http.ModelsSetDefaultAction, adminAPIConfig)
	srv.Post("/admin/api/models/:id/activate", http.ModelsActivateAction, adminAPIConfig)
	srv.Post("/admin/api/models/:id/deactivate", http.ModelsDeactivateAction, adminAPIConfig)
	srv.Delete("/admin/api/models/:id", http.ModelsDeleteAction, adminAPIConfig)

	// === CUSTOMER JOURNEYS ===
	srv.Get("/admin/api/journeys", http.JourneysIndexAction, adminAPIConfig)
	srv.Post("/admin/api/journeys", http.JourneysCreateAction, adminAPIConfig)
	srv.Get("/admin/api/journeys/:id", http.JourneysShowAction, adminAPIConfig)
	srv.Post("/admin/api/journeys/:id/touchpoints", http.JourneysAppendTouchpointAction, adminAPIConfig)
	srv.Post("/admin/api/journeys/:id/close", http.JourneysCloseAction, adminAPIConfig)
	srv.Post("/admin/api/journeys/:id/recalculate", http.JourneysRecalculateAction, adminAPIConfig)
	srv.Get("/admin/api/journeys/:id/results", http.JourneysResultsAction, adminAPIConfig)

	// === REPORTING ===
	srv.Get("/admin/api/dashboard", http.DashboardIndexAction, adminAPIConfig)
	srv.Get("/admin/api/performance", http.PerformanceIndexAction, adminAPIConfig)
	srv.Get("/admin/api/insights", http.InsightsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/insights/generate", http.InsightsGenerateAction, adminAPIConfig)

	// === CAMPAIGNS ===
	srv.Get("/admin/api/campaigns", http.CampaignsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/campaigns", http.CampaignsCreateAction, adminAPIConfig)
	srv.Put("/admin/api/campaigns/:id", http.CampaignsUpdateAction, adminAPIConfig)
	srv.Delete("/admin/api/campaigns/:id", http.CampaignsDeleteAction, adminAPIConfig)
	srv.Post("/admin/api/campaigns/sync", http.CampaignsSyncAction, adminAPIConfig)

	// === ANNOTATIONS ===
	srv.Get("/admin/api/annotations", http.AnnotationsListAction, adminAPIConfig)
	srv.Post("/admin/api/annotations", http.AnnotationCreateAction, adminAPIConfig)
	srv.Put("/admin/api/annotations/:id", http.AnnotationUpdateAction, adminAPIConfig)
	srv.Delete("/admin/api/annotations/:id", http.AnnotationDeleteAction, adminAPIConfig)

	// === SETTINGS ===
	srv.Get("/admin/api/settings", http.SettingsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/settings/ingestion", http.SettingsIngestionAction, adminAPIConfig)
	srv.Get("/admin/api/settings/goals", http.ConversionGoalsIndexAction, adminAPIConfig)
	srv.Post("/admin/api/settings/goals", http.ConversionGoalsUpdateAction, adminAPIConfig)
	srv.Post("/admin/api/settings/connectors", http.ConnectorCredentialsAction, adminAPIConfig)
	srv.Post("/admin/api/settings/geolite", http.GeoLiteCredentialsAction, adminAPIConfig)
	srv.Post("/admin/api/settings/agent-key", http.AgentAPIKeyAction, adminAPIConfig)

	// === PRO FEATURE STAND-INS ===
	// Pro replaces these routes via its registrar; OSS serves the paywall
	srv.Get("/admin/api/narratives", http.NarrativesIndexAction, adminAPIConfig)
	srv.Get("/admin/api/reports", http.ScheduledReportsIndexAction, adminAPIConfig)

	// === SYSTEM ===
	srv.Get("/admin/api/system/export-database", http.SystemExportDatabaseAction, adminAPIConfig)
	srv.Get("/admin/api/system/health", http.SystemHealthAction, adminAPIConfig)
	srv.Get("/admin/api/system/stats", http.SystemStatsAction, adminAPIConfig)
	srv.Post("/admin/api/system/purge-cache", http.SystemPurgeCacheAction, adminAPIConfig)
	srv.Post("/admin/api/system/geolite/download", http.SystemGeoLiteDownloadAction, adminAPIConfig)

	// === AGENT API ===
	srv.Get("/agent/api/v1/schema", http.AgentSchemaAction, agentAPIConfig)
	srv.Post("/agent/api/v1/sql", http.AgentSQLAction, agentAPIConfig)
}
