package http

import (
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge"

	"attriflow/internal/journeys"
)

// HealthStatus is the health check response. PendingEvents exposes the
// ingestion backlog so deploy probes can tell a stuck processor from a
// healthy one.
type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	DBStatus      string    `json:"db_status"`
	PendingEvents int64     `json:"pending_events"`
}

// HealthIndexAction handles the health check endpoint
func HealthIndexAction(ctx *cartridge.Context) error {
	health := HealthStatus{
		Status:    "ok",
		DBStatus:  "ok",
		Timestamp: time.Now(),
	}

	db := ctx.DBManager.GetConnection()
	if db == nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection unavailable")
	} else if sqlDB, err := db.DB(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database connection error", slog.Any("error", err))
	} else if err := sqlDB.Ping(); err != nil {
		health.DBStatus = "error"
		ctx.Logger.Error("Database ping failed", slog.Any("error", err))
	}

	if health.DBStatus == "ok" {
		if pending, err := journeys.CountUnprocessedTouchEvents(db); err == nil {
			health.PendingEvents = pending
		}
	} else {
		health.Status = "degraded"
	}

	return ctx.JSON(health)
}
