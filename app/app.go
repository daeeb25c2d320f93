// Package app provides the public API for Attriflow OSS.
// This package exports types and functions for Pro to extend.
// DO NOT add Pro-specific code here - this is OSS only.
package app

import (
	"attriflow/internal"
	"attriflow/internal/attribution"
	"attriflow/internal/config"
	"attriflow/internal/database"
	"attriflow/internal/insights"
	"attriflow/internal/onboarding"
	"attriflow/internal/settings"

	"github.com/karloscodes/cartridge"
)

// Re-export core types
type (
	Application = internal.Application
	Config      = config.Config
	DBManager   = database.DBManager
)

// Re-export first-run setup types
type (
	CompletionData   = onboarding.CompletionData
	CompletionResult = onboarding.CompletionResult
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates a new application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithRoutes creates a new application with custom route mounting
func NewAppWithRoutes(cfg *Config, routeMount func(*cartridge.Server)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, routeMount)
}

// SetupSession configures session management on the server
func SetupSession(srv *cartridge.Server) {
	internal.SetupSession(srv)
}

// MountAppRoutes mounts OSS routes (for Pro to call after its routes)
func MountAppRoutes(srv *cartridge.Server) {
	internal.MountAppRoutesWithoutSession(srv)
}

// First-run setup functions
var (
	IsOnboardingRequired = onboarding.IsOnboardingRequired
	CompleteOnboarding   = onboarding.CompleteOnboarding
)

// Settings functions
var (
	SaveGeoLiteCredentials = settings.SaveGeoLiteCredentials
	GetOrCreateAgentAPIKey = settings.GetOrCreateAgentAPIKey
)

// Attribution queries exposed for Pro's narrative and report generators
var (
	GetActiveModels       = attribution.GetActiveModels
	GetDefaultModel       = attribution.GetDefaultModel
	GetChannelPerformance = attribution.GetChannelPerformance
	CompareActiveModels   = attribution.CompareActiveModels
)

// Insight functions exposed for Pro's narrative generator
var (
	GetLatestInsights = insights.GetLatestInsights
	GenerateInsights  = insights.GenerateInsights
)
