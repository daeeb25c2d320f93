package attribution

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Model types. Each type reads a different slice of the model's typed
// configuration columns, validated at registration time.
const (
	ModelTypeFirstTouch    = "first_touch"
	ModelTypeLastTouch     = "last_touch"
	ModelTypeLinear        = "linear"
	ModelTypeTimeDecay     = "time_decay"
	ModelTypePositionBased = "position_based"
)

// weightSumTolerance bounds floating point drift when validating that
// position based weights sum to 1.0
const weightSumTolerance = 1e-6

// AttributionModel defines how conversion credit spreads across the
// touchpoints of a journey. Parameters live in typed columns, only the
// columns matching the model type are meaningful.
type AttributionModel struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Type         string    `gorm:"index;size:50;not null" json:"type"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	IsDefault    bool      `gorm:"not null;default:false" json:"is_default"`
	DecayRate    float64   `json:"decay_rate"`
	HalfLifeDays float64   `json:"half_life_days"`
	FirstWeight  float64   `json:"first_weight"`
	MiddleWeight float64   `json:"middle_weight"`
	LastWeight   float64   `json:"last_weight"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (AttributionModel) TableName() string {
	return "attribution_models"
}

// ValidationError describes a rejected model configuration
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid attribution model: %s %s", e.Field, e.Reason)
}

// ModelNotFoundError is returned when a model cannot be found by ID or name
type ModelNotFoundError struct {
	ID   uint
	Name string
}

func (e *ModelNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("attribution model %q not found", e.Name)
	}
	return fmt.Sprintf("attribution model with ID %d not found", e.ID)
}

// applyDefaults fills parameter columns the caller omitted, so stored rows
// always carry their effective configuration.
func (m *AttributionModel) applyDefaults() {
	switch m.Type {
	case ModelTypeTimeDecay:
		if m.DecayRate == 0 {
			m.DecayRate = 0.5
		}
		if m.HalfLifeDays == 0 {
			m.HalfLifeDays = 7
		}
	case ModelTypePositionBased:
		if m.FirstWeight == 0 && m.MiddleWeight == 0 && m.LastWeight == 0 {
			m.FirstWeight = 0.4
			m.MiddleWeight = 0.2
			m.LastWeight = 0.4
		}
	}
}

// Validate checks the model configuration against its type. Only the
// parameters the type actually reads are validated.
func (m *AttributionModel) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}

	switch m.Type {
	case ModelTypeFirstTouch, ModelTypeLastTouch, ModelTypeLinear:
		// No parameters

	case ModelTypeTimeDecay:
		if m.DecayRate <= 0 || m.DecayRate > 1 {
			return &ValidationError{Field: "decay_rate", Reason: fmt.Sprintf("must be in (0, 1], got %g", m.DecayRate)}
		}
		if m.HalfLifeDays <= 0 {
			return &ValidationError{Field: "half_life_days", Reason: fmt.Sprintf("must be positive, got %g", m.HalfLifeDays)}
		}

	case ModelTypePositionBased:
		if m.FirstWeight < 0 || m.MiddleWeight < 0 || m.LastWeight < 0 {
			return &ValidationError{Field: "weights", Reason: "must not be negative"}
		}
		sum := m.FirstWeight + m.MiddleWeight + m.LastWeight
		if math.Abs(sum-1.0) > weightSumTolerance {
			return &ValidationError{Field: "weights", Reason: fmt.Sprintf("must sum to 1.0, got %g", sum)}
		}

	default:
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown model type %q", m.Type)}
	}

	return nil
}

// RegisterModel validates and stores a new attribution model. This is the
// only place configuration validation happens, downstream calculation
// trusts registered models.
func RegisterModel(dbConn *gorm.DB, logger *slog.Logger, model *AttributionModel) error {
	model.applyDefaults()
	if err := model.Validate(); err != nil {
		return err
	}

	// A model registered as default displaces the previous one
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		if model.IsDefault {
			if err := tx.Exec("UPDATE attribution_models SET is_default = 0 WHERE is_default = 1").Error; err != nil {
				return fmt.Errorf("failed to clear previous default model: %w", err)
			}
		}
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("failed to register attribution model: %w", err)
		}
		return nil
	})
}

// UpdateModel validates and persists configuration changes to an existing
// model. Default flag changes go through SetDefaultModel instead.
func UpdateModel(dbConn *gorm.DB, logger *slog.Logger, model *AttributionModel) error {
	if model.ID == 0 {
		return fmt.Errorf("model ID is required")
	}
	if err := model.Validate(); err != nil {
		return err
	}

	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&AttributionModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]interface{}{
				"name":           model.Name,
				"type":           model.Type,
				"is_active":      model.IsActive,
				"decay_rate":     model.DecayRate,
				"half_life_days": model.HalfLifeDays,
				"first_weight":   model.FirstWeight,
				"middle_weight":  model.MiddleWeight,
				"last_weight":    model.LastWeight,
				"updated_at":     time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update attribution model: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &ModelNotFoundError{ID: model.ID}
		}
		return nil
	})
}

// SetDefaultModel marks one model as the default and clears the flag from
// every other model in the same write transaction, so there is never more
// than one default no matter how calls interleave.
func SetDefaultModel(dbConn *gorm.DB, logger *slog.Logger, id uint) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&AttributionModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check model existence: %w", err)
		}
		if count == 0 {
			return &ModelNotFoundError{ID: id}
		}

		err := tx.Exec(
			"UPDATE attribution_models SET is_default = CASE WHEN id = ? THEN 1 ELSE 0 END, updated_at = ?",
			id, time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("failed to set default model: %w", err)
		}
		return nil
	})
}

// SetModelActive toggles whether a model participates in comparison views
// and insight generation. Inactive models keep their stored results.
func SetModelActive(dbConn *gorm.DB, logger *slog.Logger, id uint, active bool) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&AttributionModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_active": active, "updated_at": time.Now().UTC()})
		if result.Error != nil {
			return fmt.Errorf("failed to toggle model: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &ModelNotFoundError{ID: id}
		}
		return nil
	})
}

// GetModelByID retrieves a model by its ID
func GetModelByID(db *gorm.DB, id uint) (*AttributionModel, error) {
	var model AttributionModel
	err := db.Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ModelNotFoundError{ID: id}
		}
		return nil, fmt.Errorf("failed to get attribution model: %w", err)
	}
	return &model, nil
}

// GetModelByName retrieves a model by its unique name
func GetModelByName(db *gorm.DB, name string) (*AttributionModel, error) {
	var model AttributionModel
	err := db.Where("name = ?", name).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &ModelNotFoundError{Name: name}
		}
		return nil, fmt.Errorf("failed to get attribution model: %w", err)
	}
	return &model, nil
}

// GetAllModels returns every registered model, default first
func GetAllModels(db *gorm.DB) ([]AttributionModel, error) {
	var models []AttributionModel
	err := db.Order("is_default DESC, name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attribution models: %w", err)
	}
	return models, nil
}

// GetActiveModels returns the models that participate in comparison and
// insight generation.
func GetActiveModels(db *gorm.DB) ([]AttributionModel, error) {
	var models []AttributionModel
	err := db.Where("is_active = ?", true).Order("is_default DESC, name ASC").Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active attribution models: %w", err)
	}
	return models, nil
}

// GetDefaultModel returns the current default model, or nil when none is set
func GetDefaultModel(db *gorm.DB) (*AttributionModel, error) {
	var model AttributionModel
	err := db.Where("is_default = ?", true).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get default attribution model: %w", err)
	}
	return &model, nil
}

// DeleteModel removes a model and its insight rollups. Stored attribution
// results stay behind as an audit trail referencing the deleted model.
func DeleteModel(dbConn *gorm.DB, logger *slog.Logger, id uint) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM attribution_insights WHERE model_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete model insights: %w", err)
		}
		result := tx.Delete(&AttributionModel{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete attribution model: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return &ModelNotFoundError{ID: id}
		}
		return nil
	})
}

// EnsureStandardModels seeds the five standard attribution models on first
// boot. Existing models are never modified, and the default flag is only
// assigned when no default exists yet.
func EnsureStandardModels(dbConn *gorm.DB, logger *slog.Logger) error {
	standard := []AttributionModel{
		{Name: "First Touch", Type: ModelTypeFirstTouch},
		{Name: "Last Touch", Type: ModelTypeLastTouch},
		{Name: "Linear", Type: ModelTypeLinear},
		{Name: "Time Decay", Type: ModelTypeTimeDecay, DecayRate: 0.5, HalfLifeDays: 7},
		{Name: "Position Based", Type: ModelTypePositionBased, FirstWeight: 0.4, MiddleWeight: 0.2, LastWeight: 0.4},
	}

	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, model := range standard {
			err := tx.Exec(`
                INSERT INTO attribution_models
                    (name, type, is_active, is_default, decay_rate, half_life_days, first_weight, middle_weight, last_weight, created_at, updated_at)
                VALUES (?, ?, 1, 0, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(name) DO NOTHING`,
				model.Name, model.Type, model.DecayRate, model.HalfLifeDays,
				model.FirstWeight, model.MiddleWeight, model.LastWeight, now, now).Error
			if err != nil {
				return fmt.Errorf("failed to seed model %s: %w", model.Name, err)
			}
		}

		var defaults int64
		if err := tx.Model(&AttributionModel{}).Where("is_default = ?", true).Count(&defaults).Error; err != nil {
			return fmt.Errorf("failed to count default models: %w", err)
		}
		if defaults == 0 {
			err := tx.Exec("UPDATE attribution_models SET is_default = 1 WHERE name = ?", "Linear").Error
			if err != nil {
				return fmt.Errorf("failed to assign default model: %w", err)
			}
		}
		return nil
	})
}
