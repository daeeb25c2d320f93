// Package extension provides extension points for Attriflow Pro features.
// The free (OSS) version uses this to check feature availability and show paywalls.
// The Pro version registers features at startup to enable them.
package extension

import (
	"sync"
)

// Feature flags for pro features
var (
	mu                      sync.RWMutex
	narrativesEnabled       bool
	scheduledReportsEnabled bool
	proVersion              bool
)

// EnableNarratives enables the AI Narratives feature
func EnableNarratives() {
	mu.Lock()
	defer mu.Unlock()
	narrativesEnabled = true
}

// IsNarrativesEnabled returns true if AI Narratives feature is enabled
func IsNarrativesEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return narrativesEnabled
}

// EnableScheduledReports enables the Scheduled Reports feature
func EnableScheduledReports() {
	mu.Lock()
	defer mu.Unlock()
	scheduledReportsEnabled = true
}

// IsScheduledReportsEnabled returns true if Scheduled Reports is enabled
func IsScheduledReportsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return scheduledReportsEnabled
}

// SetProVersion marks this as the Pro version
func SetProVersion() {
	mu.Lock()
	defer mu.Unlock()
	proVersion = true
}

// IsProVersion returns true if this is the Pro version
func IsProVersion() bool {
	mu.RLock()
	defer mu.RUnlock()
	return proVersion
}

// EnableAllProFeatures enables all pro features at once
func EnableAllProFeatures() {
	mu.Lock()
	defer mu.Unlock()
	narrativesEnabled = true
	scheduledReportsEnabled = true
	proVersion = true
}
