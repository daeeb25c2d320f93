package journeys

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"attriflow/internal/pkg/channels"
)

// TouchpointType classifies the kind of marketing interaction.
type TouchpointType string

const (
	TouchpointTypePageView  TouchpointType = "page_view"
	TouchpointTypeAdClick   TouchpointType = "ad_click"
	TouchpointTypeEmailOpen TouchpointType = "email_open"
	TouchpointTypeFormFill  TouchpointType = "form_fill"
)

// Touchpoint represents a single marketing interaction inside a journey.
// Positions are 1-based, assigned in append order and never reassigned, so a
// backfilled touchpoint can carry an older timestamp than its predecessor.
type Touchpoint struct {
	ID             uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	JourneyID      uint            `gorm:"uniqueIndex:idx_touchpoints_journey_position,priority:1;not null" json:"journey_id"`
	CampaignID     sql.NullInt64   `gorm:"index" json:"campaign_id"`
	Channel        string          `gorm:"index;size:50;not null" json:"channel"`
	Platform       string          `gorm:"size:100" json:"platform"`
	Medium         string          `gorm:"size:100" json:"medium"`
	Source         string          `gorm:"index;size:100" json:"source"`
	Campaign       string          `gorm:"size:255" json:"campaign"`
	TouchpointType TouchpointType  `gorm:"size:50;not null;default:'page_view'" json:"touchpoint_type"`
	Country        string          `gorm:"size:2" json:"country"`
	Position       int             `gorm:"uniqueIndex:idx_touchpoints_journey_position,priority:2;not null" json:"position"`
	Timestamp      time.Time       `gorm:"index;not null" json:"timestamp"`
	EventValue     sql.NullFloat64 `json:"event_value"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Touchpoint) TableName() string {
	return "touchpoints"
}

// AppendTouchpoint atomically appends a touchpoint to an active journey. The
// journey counter increment and the position assignment happen in one write
// transaction, so two concurrent appends can never claim the same position.
// Appending to a completed or abandoned journey returns ErrJourneyClosed.
func AppendTouchpoint(dbConn *gorm.DB, logger *slog.Logger, journeyID uint, touchpoint *Touchpoint) error {
	return sqlite.PerformWrite(logger, dbConn, func(tx *gorm.DB) error {
		return appendTouchpointInTx(tx, journeyID, touchpoint)
	})
}

// appendTouchpointInTx performs the append inside an existing transaction.
// The conditional UPDATE both increments the counter and guards the journey
// status; zero affected rows means the journey is missing or closed.
func appendTouchpointInTx(tx *gorm.DB, journeyID uint, touchpoint *Touchpoint) error {
	result := tx.Exec(
		"UPDATE customer_journeys SET total_touchpoints = total_touchpoints + 1, updated_at = ? WHERE id = ? AND status = ?",
		time.Now().UTC(), journeyID, JourneyStatusActive,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to increment touchpoint counter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return classifyMissedTransition(tx, journeyID)
	}

	var position int
	if err := tx.Raw("SELECT total_touchpoints FROM customer_journeys WHERE id = ?", journeyID).Scan(&position).Error; err != nil {
		return fmt.Errorf("failed to read touchpoint counter: %w", err)
	}

	touchpoint.JourneyID = journeyID
	touchpoint.Position = position
	if touchpoint.Timestamp.IsZero() {
		touchpoint.Timestamp = time.Now().UTC()
	}
	if touchpoint.Channel == "" {
		touchpoint.Channel = channels.Direct
	}
	if touchpoint.TouchpointType == "" {
		touchpoint.TouchpointType = TouchpointTypePageView
	}
	touchpoint.CreatedAt = time.Now().UTC()

	if err := tx.Create(touchpoint).Error; err != nil {
		return fmt.Errorf("failed to create touchpoint: %w", err)
	}
	return nil
}

// GetJourneyTouchpoints returns the full touchpoint sequence of a journey in
// position order.
func GetJourneyTouchpoints(db *gorm.DB, journeyID uint) ([]Touchpoint, error) {
	var touchpoints []Touchpoint
	err := db.Where("journey_id = ?", journeyID).
		Order("position ASC").
		Find(&touchpoints).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get journey touchpoints: %w", err)
	}
	return touchpoints, nil
}
