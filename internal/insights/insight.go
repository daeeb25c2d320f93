package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attriflow/internal/attribution"
)

// AttributionInsight is a per-channel rollup of attribution results for one
// model over one calculation window, regenerated in place by the insight
// job. The (model, window) pair is the overwrite key.
type AttributionInsight struct {
	ID                       uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelID                  uint      `gorm:"index:idx_insights_model_window,priority:1;not null" json:"model_id"`
	Channel                  string    `gorm:"size:50;not null" json:"channel"`
	WindowStart              time.Time `gorm:"index:idx_insights_model_window,priority:2;not null" json:"window_start"`
	WindowEnd                time.Time `gorm:"index:idx_insights_model_window,priority:3;not null" json:"window_end"`
	TotalAttributedValue     float64   `gorm:"not null" json:"total_attributed_value"`
	TotalTouchpoints         int       `gorm:"not null" json:"total_touchpoints"`
	TotalConversions         int       `gorm:"not null" json:"total_conversions"`
	AssistedConversions      int       `gorm:"not null" json:"assisted_conversions"`
	AverageAttributionCredit float64   `gorm:"not null" json:"average_attribution_credit"`
	GeneratedAt              time.Time `gorm:"index;not null" json:"generated_at"`
}

// TableName specifies the table name for GORM
func (AttributionInsight) TableName() string {
	return "attribution_insights"
}

// GenerateInsights aggregates channel performance for one model over a
// window and persists one insight row per channel, replacing whatever the
// same (model, window) pair held before. A missing model is logged and
// skipped. Returns how many insight rows were written.
func GenerateInsights(ctx context.Context, dbConn *gorm.DB, logger *slog.Logger, modelID uint, windowStart, windowEnd time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	_, err := attribution.GetModelByID(dbConn.WithContext(ctx), modelID)
	if err != nil {
		var notFound *attribution.ModelNotFoundError
		if errors.As(err, &notFound) {
			logger.Warn("Skipping insights for missing attribution model", "model_id", modelID)
			return 0, nil
		}
		return 0, err
	}

	performance, err := attribution.GetChannelPerformance(dbConn.WithContext(ctx), modelID, windowStart, windowEnd)
	if err != nil {
		return 0, err
	}

	generatedAt := time.Now().UTC()
	rows := make([]AttributionInsight, len(performance))
	for i, channel := range performance {
		rows[i] = AttributionInsight{
			ModelID:                  modelID,
			Channel:                  channel.Channel,
			WindowStart:              windowStart,
			WindowEnd:                windowEnd,
			TotalAttributedValue:     channel.TotalAttributedValue,
			TotalTouchpoints:         channel.TouchpointCount,
			TotalConversions:         channel.Conversions,
			AssistedConversions:      channel.AssistedConversions,
			AverageAttributionCredit: channel.AverageCredit,
			GeneratedAt:              generatedAt,
		}
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	err = sqlite.PerformWrite(logger, dbConn.WithContext(ctx), func(tx *gorm.DB) error {
		err := tx.Exec(
			"DELETE FROM attribution_insights WHERE model_id = ? AND window_start = ? AND window_end = ?",
			modelID, windowStart, windowEnd).Error
		if err != nil {
			return fmt.Errorf("failed to clear previous insights: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to store insights: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(rows), nil
}

// GenerateForAllActiveModels regenerates the window's insights for every
// active model. Per-model failures are logged and do not abort the batch,
// cancellation does. Returns the total insight rows written.
func GenerateForAllActiveModels(ctx context.Context, dbConn *gorm.DB, logger *slog.Logger, windowStart, windowEnd time.Time) (int, error) {
	models, err := attribution.GetActiveModels(dbConn.WithContext(ctx))
	if err != nil {
		return 0, err
	}

	written := 0
	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		count, err := GenerateInsights(ctx, dbConn, logger, model.ID, windowStart, windowEnd)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return written, err
			}
			logger.Error("Failed to generate insights for model", "model_id", model.ID, "error", err)
			continue
		}
		written += count
	}
	return written, nil
}

// GetInsights returns the stored insights for a (model, window) pair,
// highest attributed value first.
func GetInsights(db *gorm.DB, modelID uint, windowStart, windowEnd time.Time) ([]AttributionInsight, error) {
	var rows []AttributionInsight
	err := db.
		Where("model_id = ? AND window_start = ? AND window_end = ?", modelID, windowStart, windowEnd).
		Order("total_attributed_value DESC, channel ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get insights: %w", err)
	}
	return rows, nil
}

// GetLatestInsights returns the most recently generated insight set for a
// model, whatever window it covers.
func GetLatestInsights(db *gorm.DB, modelID uint) ([]AttributionInsight, error) {
	var rows []AttributionInsight
	err := db.
		Where("model_id = ? AND generated_at = (SELECT MAX(generated_at) FROM attribution_insights WHERE model_id = ?)", modelID, modelID).
		Order("total_attributed_value DESC, channel ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get latest insights: %w", err)
	}
	return rows, nil
}
