package journeys

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// JourneyStatus represents the lifecycle state of a customer journey.
type JourneyStatus string

const (
	JourneyStatusActive    JourneyStatus = "active"
	JourneyStatusCompleted JourneyStatus = "completed"
	JourneyStatusAbandoned JourneyStatus = "abandoned"
)

// ErrJourneyClosed is returned when an operation requires an active journey
// but the journey has already been completed or abandoned.
var ErrJourneyClosed = errors.New("journey is closed")

// JourneyNotFoundError is returned when a journey cannot be found by ID
type JourneyNotFoundError struct {
	ID uint
}

func (e *JourneyNotFoundError) Error() string {
	return fmt.Sprintf("journey with ID %d not found", e.ID)
}

// NewJourneyNotFoundError creates a new JourneyNotFoundError
func NewJourneyNotFoundError(id uint) *JourneyNotFoundError {
	return &JourneyNotFoundError{ID: id}
}

// CustomerJourney represents the full sequence of marketing interactions for
// one customer, from first touch until conversion or abandonment. The
// TotalTouchpoints counter is maintained exclusively by AppendTouchpoint and
// always equals the number of touchpoint rows for the journey.
type CustomerJourney struct {
	ID               uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerID       string          `gorm:"index:idx_journeys_customer_status;size:128;not null" json:"customer_id"`
	SessionID        sql.NullString  `gorm:"size:128" json:"session_id"`
	DeviceID         sql.NullString  `gorm:"size:128" json:"device_id"`
	UserID           sql.NullString  `gorm:"index;size:128" json:"user_id"`
	JourneyStart     time.Time       `gorm:"index;not null" json:"journey_start"`
	JourneyEnd       sql.NullTime    `json:"journey_end"`
	TotalTouchpoints int             `gorm:"not null;default:0" json:"total_touchpoints"`
	ConversionValue  sql.NullFloat64 `json:"conversion_value"`
	ConversionType   sql.NullString  `gorm:"size:100" json:"conversion_type"`
	Status           JourneyStatus   `gorm:"index:idx_journeys_customer_status;size:20;not null;default:'active'" json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CustomerJourney) TableName() string {
	return "customer_journeys"
}

// IsTerminal reports whether the journey has reached a final state.
func (j *CustomerJourney) IsTerminal() bool {
	return j.Status == JourneyStatusCompleted || j.Status == JourneyStatusAbandoned
}

// CreateJourney starts a new journey for a customer
func CreateJourney(dbConn *gorm.DB, logger *slog.Logger, journey *CustomerJourney) error {
	if journey.CustomerID == "" {
		return fmt.Errorf("customer ID is required")
	}
	if journey.JourneyStart.IsZero() {
		journey.JourneyStart = time.Now().UTC()
	}
	if journey.Status == "" {
		journey.Status = JourneyStatusActive
	}
	if journey.Status != JourneyStatusActive {
		return fmt.Errorf("new journeys must start in active status, got %q", journey.Status)
	}
	journey.TotalTouchpoints = 0
	journey.JourneyEnd = sql.NullTime{}

	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return tx.Create(journey).Error
	})
}

// GetJourneyByID retrieves a journey by its ID
func GetJourneyByID(db *gorm.DB, id uint) (*CustomerJourney, error) {
	var journey CustomerJourney
	err := db.Where("id = ?", id).First(&journey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewJourneyNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}
	return &journey, nil
}

// FindActiveJourneyForCustomer returns the most recent active journey for a
// customer, or nil when the customer has no open journey.
func FindActiveJourneyForCustomer(db *gorm.DB, customerID string) (*CustomerJourney, error) {
	var journey CustomerJourney
	err := db.Where("customer_id = ? AND status = ?", customerID, JourneyStatusActive).
		Order("journey_start DESC").
		First(&journey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find active journey: %w", err)
	}
	return &journey, nil
}

// CompleteJourney transitions an active journey to completed, stamping the
// conversion. Terminal journeys cannot be completed again.
func CompleteJourney(dbConn *gorm.DB, logger *slog.Logger, journeyID uint, conversionValue sql.NullFloat64, conversionType string, endedAt time.Time) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return completeJourneyInTx(tx, journeyID, conversionValue, conversionType, endedAt)
	})
}

func completeJourneyInTx(tx *gorm.DB, journeyID uint, conversionValue sql.NullFloat64, conversionType string, endedAt time.Time) error {
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}
	convType := sql.NullString{}
	if conversionType != "" {
		convType = sql.NullString{String: conversionType, Valid: true}
	}

	result := tx.Model(&CustomerJourney{}).
		Where("id = ? AND status = ?", journeyID, JourneyStatusActive).
		Updates(map[string]interface{}{
			"status":           JourneyStatusCompleted,
			"journey_end":      endedAt.UTC(),
			"conversion_value": conversionValue,
			"conversion_type":  convType,
			"updated_at":       time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete journey: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return classifyMissedTransition(tx, journeyID)
	}
	return nil
}

// AbandonJourney transitions an active journey to abandoned. The journey end
// is stamped so time-decay calculations have a fixed anchor.
func AbandonJourney(dbConn *gorm.DB, logger *slog.Logger, journeyID uint, endedAt time.Time) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return abandonJourneyInTx(tx, journeyID, endedAt)
	})
}

func abandonJourneyInTx(tx *gorm.DB, journeyID uint, endedAt time.Time) error {
	if endedAt.IsZero() {
		endedAt = time.Now().UTC()
	}

	result := tx.Model(&CustomerJourney{}).
		Where("id = ? AND status = ?", journeyID, JourneyStatusActive).
		Updates(map[string]interface{}{
			"status":      JourneyStatusAbandoned,
			"journey_end": endedAt.UTC(),
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to abandon journey: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return classifyMissedTransition(tx, journeyID)
	}
	return nil
}

// classifyMissedTransition distinguishes a missing journey from one that has
// already left the active state.
func classifyMissedTransition(tx *gorm.DB, journeyID uint) error {
	var count int64
	if err := tx.Model(&CustomerJourney{}).Where("id = ?", journeyID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check journey existence: %w", err)
	}
	if count == 0 {
		return NewJourneyNotFoundError(journeyID)
	}
	return ErrJourneyClosed
}

// DeleteJourney removes a journey along with its touchpoints and any
// attribution results computed for it.
func DeleteJourney(dbConn *gorm.DB, logger *slog.Logger, journeyID uint) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM attribution_results WHERE journey_id = ?", journeyID).Error; err != nil {
			return fmt.Errorf("failed to delete attribution results: %w", err)
		}
		if err := tx.Exec("DELETE FROM touchpoints WHERE journey_id = ?", journeyID).Error; err != nil {
			return fmt.Errorf("failed to delete touchpoints: %w", err)
		}
		result := tx.Delete(&CustomerJourney{}, journeyID)
		if result.Error != nil {
			return fmt.Errorf("failed to delete journey: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return NewJourneyNotFoundError(journeyID)
		}
		return nil
	})
}

// AbandonStaleJourneys abandons active journeys that have seen no touchpoint
// for the inactivity window. The journey end is anchored to the last
// touchpoint timestamp (journey start for empty journeys) so time-decay
// weights keep a meaningful reference even for abandoned journeys. Returns
// the IDs of journeys abandoned in this run.
func AbandonStaleJourneys(dbConn *gorm.DB, logger *slog.Logger, inactivityDays int) ([]uint, error) {
	if inactivityDays <= 0 {
		return nil, fmt.Errorf("inactivity days must be positive, got %d", inactivityDays)
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -inactivityDays)

	var staleIDs []uint
	err := dbConn.Raw(`
        SELECT j.id
        FROM customer_journeys j
        LEFT JOIN touchpoints t ON t.journey_id = j.id
        WHERE j.status = ?
        GROUP BY j.id, j.journey_start
        HAVING COALESCE(MAX(t.timestamp), j.journey_start) < ?`, JourneyStatusActive, cutoff).Scan(&staleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find stale journeys: %w", err)
	}

	if len(staleIDs) == 0 {
		return nil, nil
	}

	abandonedIDs := make([]uint, 0, len(staleIDs))
	err = sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		for _, id := range staleIDs {
			endedAt, err := lastActivityAt(tx, id)
			if err != nil {
				return err
			}
			if err := abandonJourneyInTx(tx, id, endedAt); err != nil {
				// Already closed by a concurrent conversion, nothing to do
				if errors.Is(err, ErrJourneyClosed) {
					continue
				}
				return err
			}
			abandonedIDs = append(abandonedIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to abandon stale journeys: %w", err)
	}

	logger.Info("Abandoned stale journeys",
		slog.Int("count", len(abandonedIDs)),
		slog.Int("inactivity_days", inactivityDays))
	return abandonedIDs, nil
}

// lastActivityAt returns the timestamp of the journey's most recent
// touchpoint, falling back to the journey start when no touchpoints exist.
func lastActivityAt(tx *gorm.DB, journeyID uint) (time.Time, error) {
	var touchpoint Touchpoint
	err := tx.Where("journey_id = ?", journeyID).Order("position DESC").First(&touchpoint).Error
	if err == nil {
		return touchpoint.Timestamp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, fmt.Errorf("failed to load last touchpoint: %w", err)
	}
	var journey CustomerJourney
	if err := tx.First(&journey, journeyID).Error; err != nil {
		return time.Time{}, fmt.Errorf("failed to load journey %d: %w", journeyID, err)
	}
	return journey.JourneyStart, nil
}

// IdentifyJourneyUser attaches a known user id to an anonymous journey,
// typically after a login or signup touch.
func IdentifyJourneyUser(dbConn *gorm.DB, logger *slog.Logger, journeyID uint, userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		result := tx.Model(&CustomerJourney{}).
			Where("id = ?", journeyID).
			Updates(map[string]interface{}{
				"user_id":    sql.NullString{String: userID, Valid: true},
				"updated_at": time.Now().UTC(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to identify journey user: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return NewJourneyNotFoundError(journeyID)
		}
		return nil
	})
}
