package extension

import (
	"sync"

	"github.com/gofiber/fiber/v2"
)

// Registrar installs Pro routes or middleware on the Fiber app during startup.
type Registrar func(app *fiber.App)

// Stage controls when a registrar runs relative to the OSS routes.
type Stage int

const (
	// StageMiddleware runs before any routes are mounted.
	StageMiddleware Stage = iota
	// StageRoutes runs after the OSS routes are mounted.
	StageRoutes
)

var (
	regMu      sync.Mutex
	registrars = map[Stage][]Registrar{}
)

// Register queues a registrar for the given stage.
func Register(stage Stage, r Registrar) {
	regMu.Lock()
	defer regMu.Unlock()
	registrars[stage] = append(registrars[stage], r)
}

// Apply runs all registrars queued for the stage.
func Apply(stage Stage, app *fiber.App) {
	regMu.Lock()
	defer regMu.Unlock()
	for _, r := range registrars[stage] {
		r(app)
	}
}
