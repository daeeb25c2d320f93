package campaigns

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Campaign sources. UTM campaigns are created lazily by the touch event
// pipeline; the rest are synced from ad platform connectors.
const (
	SourceUTM      = "utm"
	SourceGA4      = "ga4"
	SourceLinkedIn = "linkedin"
	SourceHubSpot  = "hubspot"
	SourceShopify  = "shopify"
)

// CampaignNotFoundError represents an error when a campaign is not found
type CampaignNotFoundError struct {
	ID   uint
	Name string
}

func (e *CampaignNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("campaign not found: %s", e.Name)
	}
	return fmt.Sprintf("campaign not found: id=%d", e.ID)
}

// NewCampaignNotFoundError creates a new CampaignNotFoundError
func NewCampaignNotFoundError(id uint, name string) *CampaignNotFoundError {
	return &CampaignNotFoundError{ID: id, Name: name}
}

// Campaign is a marketing campaign touchpoints can be linked to. ExternalID
// identifies the campaign in the originating platform and pairs with Source
// so connector syncs are idempotent.
type Campaign struct {
	ID          uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string          `gorm:"index;not null" json:"name"`
	Source      string          `gorm:"not null;default:'utm';uniqueIndex:idx_campaigns_source_external,priority:1" json:"source"`
	ExternalID  sql.NullString  `gorm:"uniqueIndex:idx_campaigns_source_external,priority:2" json:"external_id"`
	Status      string          `gorm:"default:'active'" json:"status"` // "active", "paused" or "completed"
	Budget      sql.NullFloat64 `json:"budget"`
	Spend       float64         `gorm:"default:0" json:"spend"`
	Clicks      int64           `gorm:"default:0" json:"clicks"`
	Impressions int64           `gorm:"default:0" json:"impressions"`
	StartDate   sql.NullTime    `json:"start_date"`
	EndDate     sql.NullTime    `json:"end_date"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetAllCampaigns retrieves all campaigns ordered by name
func GetAllCampaigns(db *gorm.DB) ([]Campaign, error) {
	var campaigns []Campaign
	if err := db.Order("name ASC").Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to get campaigns: %w", err)
	}
	return campaigns, nil
}

// GetCampaignByID retrieves a campaign by its ID
func GetCampaignByID(db *gorm.DB, id uint) (*Campaign, error) {
	var campaign Campaign
	if err := db.First(&campaign, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewCampaignNotFoundError(id, "")
		}
		return nil, fmt.Errorf("unexpected error querying campaign: %w", err)
	}
	return &campaign, nil
}

// GetCampaignByName retrieves a campaign by exact name match
func GetCampaignByName(db *gorm.DB, name string) (*Campaign, error) {
	var campaign Campaign
	if err := db.Where("name = ?", name).First(&campaign).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewCampaignNotFoundError(0, name)
		}
		return nil, fmt.Errorf("unexpected error querying campaign: %w", err)
	}
	return &campaign, nil
}

// CreateCampaign creates a new campaign
func CreateCampaign(db *gorm.DB, campaign *Campaign) error {
	campaign.Name = strings.TrimSpace(campaign.Name)
	if campaign.Name == "" {
		return fmt.Errorf("campaign name cannot be empty")
	}
	if campaign.Source == "" {
		campaign.Source = SourceUTM
	}
	if campaign.Status == "" {
		campaign.Status = "active"
	}

	logger := slog.Default()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(campaign).Error
	})
}

// UpdateCampaign updates an existing campaign
func UpdateCampaign(db *gorm.DB, campaign *Campaign) error {
	logger := slog.Default()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Save(campaign).Error
	})
}

// DeleteCampaign deletes a campaign by its ID. Touchpoints keep their
// campaign name text; only the link is removed.
func DeleteCampaign(db *gorm.DB, id uint) error {
	logger := slog.Default()
	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		if err := tx.Exec("UPDATE touchpoints SET campaign_id = NULL WHERE campaign_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to unlink touchpoints: %w", err)
		}
		if err := tx.Exec("DELETE FROM annotations WHERE campaign_id = ?", id).Error; err != nil {
			return fmt.Errorf("failed to delete campaign annotations: %w", err)
		}
		result := tx.Delete(&Campaign{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return NewCampaignNotFoundError(id, "")
		}
		return nil
	})
}

// FindOrCreateByName resolves a utm_campaign value to a campaign ID,
// creating a utm-sourced campaign on first sight. Runs inside the caller's
// transaction so touch event processing stays atomic.
func FindOrCreateByName(tx *gorm.DB, name string) (uint, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("campaign name cannot be empty")
	}

	var campaign Campaign
	err := tx.Where("name = ?", name).First(&campaign).Error
	if err == nil {
		return campaign.ID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return 0, fmt.Errorf("unexpected error querying campaign: %w", err)
	}

	campaign = Campaign{Name: name, Source: SourceUTM, Status: "active"}
	if err := tx.Create(&campaign).Error; err != nil {
		return 0, fmt.Errorf("failed to create campaign %s: %w", name, err)
	}
	return campaign.ID, nil
}

// SyncedCampaign is one campaign row pulled from an ad platform connector
type SyncedCampaign struct {
	ExternalID  string
	Name        string
	Status      string
	Budget      sql.NullFloat64
	Spend       float64
	Clicks      int64
	Impressions int64
	StartDate   sql.NullTime
	EndDate     sql.NullTime
}

// UpsertFromConnector writes connector campaigns keyed on (source,
// external_id), so repeated syncs update metrics in place.
func UpsertFromConnector(db *gorm.DB, logger *slog.Logger, source string, synced []SyncedCampaign) error {
	if len(synced) == 0 {
		return nil
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		for _, sc := range synced {
			if sc.ExternalID == "" || strings.TrimSpace(sc.Name) == "" {
				continue
			}
			status := sc.Status
			if status == "" {
				status = "active"
			}
			err := tx.Exec(`
                INSERT INTO campaigns (name, source, external_id, status, budget, spend, clicks, impressions, start_date, end_date, created_at, updated_at)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
                ON CONFLICT(source, external_id) DO UPDATE SET
                    name = excluded.name,
                    status = excluded.status,
                    budget = excluded.budget,
                    spend = excluded.spend,
                    clicks = excluded.clicks,
                    impressions = excluded.impressions,
                    start_date = excluded.start_date,
                    end_date = excluded.end_date,
                    updated_at = excluded.updated_at
            `, strings.TrimSpace(sc.Name), source, sc.ExternalID, status, sc.Budget, sc.Spend,
				sc.Clicks, sc.Impressions, sc.StartDate, sc.EndDate,
				time.Now().UTC(), time.Now().UTC()).Error
			if err != nil {
				return fmt.Errorf("failed to upsert campaign %s from %s: %w", sc.ExternalID, source, err)
			}
		}
		return nil
	})
}

// CampaignWithStats enriches a campaign with attribution figures for the
// admin list view
type CampaignWithStats struct {
	ID              uint      `json:"id"`
	Name            string    `json:"name"`
	Source          string    `json:"source"`
	Status          string    `json:"status"`
	Spend           float64   `json:"spend"`
	TouchpointCount int64     `json:"touchpoint_count"`
	AttributedValue float64   `json:"attributed_value"`
	CreatedAt       time.Time `json:"created_at"`
}

// GetCampaignsWithStats retrieves all campaigns enriched with touchpoint
// counts and attributed value over the lookback window
func GetCampaignsWithStats(db *gorm.DB, daysBack int) ([]CampaignWithStats, error) {
	allCampaigns, err := GetAllCampaigns(db)
	if err != nil {
		return nil, err
	}

	result := make([]CampaignWithStats, len(allCampaigns))
	timeLimit := time.Now().UTC().AddDate(0, 0, -daysBack)

	for i, campaign := range allCampaigns {
		var touchpointCount int64
		err := db.Table("touchpoints").
			Where("campaign_id = ? AND timestamp >= ?", campaign.ID, timeLimit).
			Count(&touchpointCount).Error
		if err != nil {
			touchpointCount = 0
		}

		var attributedValue sql.NullFloat64
		err = db.Table("attribution_results").
			Select("SUM(attributed_value)").
			Where("campaign_id = ? AND calculated_at >= ?", campaign.ID, timeLimit).
			Scan(&attributedValue).Error
		if err != nil || !attributedValue.Valid {
			attributedValue = sql.NullFloat64{}
		}

		result[i] = CampaignWithStats{
			ID:              campaign.ID,
			Name:            campaign.Name,
			Source:          campaign.Source,
			Status:          campaign.Status,
			Spend:           campaign.Spend,
			TouchpointCount: touchpointCount,
			AttributedValue: attributedValue.Float64,
			CreatedAt:       campaign.CreatedAt,
		}
	}

	return result, nil
}
