package campaigns_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attriflow/internal/campaigns"
	"attriflow/internal/testsupport"
)

func TestCreateAndGetCampaign(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	t.Run("creates campaign with defaults", func(t *testing.T) {
		campaign := &campaigns.Campaign{Name: "summer_sale"}
		require.NoError(t, campaigns.CreateCampaign(db, campaign))

		found, err := campaigns.GetCampaignByID(db, campaign.ID)
		require.NoError(t, err)
		assert.Equal(t, "summer_sale", found.Name)
		assert.Equal(t, campaigns.SourceUTM, found.Source)
		assert.Equal(t, "active", found.Status)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		err := campaigns.CreateCampaign(db, &campaigns.Campaign{Name: "   "})
		assert.Error(t, err)
	})

	t.Run("returns typed error for missing id", func(t *testing.T) {
		_, err := campaigns.GetCampaignByID(db, 999999)
		assert.Error(t, err)

		var notFoundErr *campaigns.CampaignNotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, uint(999999), notFoundErr.ID)
	})

	t.Run("returns typed error for missing name", func(t *testing.T) {
		_, err := campaigns.GetCampaignByName(db, "does-not-exist")
		assert.Error(t, err)

		var notFoundErr *campaigns.CampaignNotFoundError
		assert.ErrorAs(t, err, &notFoundErr)
		assert.Equal(t, "does-not-exist", notFoundErr.Name)
	})
}

func TestFindOrCreateByName(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	id1, err := campaigns.FindOrCreateByName(db, "black_friday")
	require.NoError(t, err)
	assert.NotZero(t, id1)

	id2, err := campaigns.FindOrCreateByName(db, "black_friday")
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "repeated lookups should reuse the campaign")

	var count int64
	require.NoError(t, db.Table("campaigns").Where("name = ?", "black_friday").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = campaigns.FindOrCreateByName(db, "  ")
	assert.Error(t, err)
}

func TestUpsertFromConnector(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	synced := []campaigns.SyncedCampaign{
		{
			ExternalID:  "cmp-100",
			Name:        "Brand Awareness Q3",
			Status:      "active",
			Spend:       1250.75,
			Clicks:      4200,
			Impressions: 98000,
		},
		{
			ExternalID: "cmp-101",
			Name:       "Retargeting Q3",
			Status:     "paused",
			Spend:      300,
		},
	}
	require.NoError(t, campaigns.UpsertFromConnector(db, logger, campaigns.SourceLinkedIn, synced))

	all, err := campaigns.GetAllCampaigns(db)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// Second sync with updated metrics must update in place
	synced[0].Spend = 1800.50
	synced[0].Status = "completed"
	require.NoError(t, campaigns.UpsertFromConnector(db, logger, campaigns.SourceLinkedIn, synced))

	var count int64
	require.NoError(t, db.Table("campaigns").Count(&count).Error)
	assert.Equal(t, int64(2), count, "re-sync must not duplicate campaigns")

	updated, err := campaigns.GetCampaignByName(db, "Brand Awareness Q3")
	require.NoError(t, err)
	assert.Equal(t, "completed", updated.Status)
	assert.InDelta(t, 1800.50, updated.Spend, 1e-9)
	assert.Equal(t, campaigns.SourceLinkedIn, updated.Source)

	// Rows without external id or name are skipped
	require.NoError(t, campaigns.UpsertFromConnector(db, logger, campaigns.SourceGA4, []campaigns.SyncedCampaign{
		{ExternalID: "", Name: "nameless"},
		{ExternalID: "cmp-1", Name: "  "},
	}))
	require.NoError(t, db.Table("campaigns").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDeleteCampaignUnlinksTouchpoints(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	campaign := &campaigns.Campaign{Name: "to_delete"}
	require.NoError(t, campaigns.CreateCampaign(db, campaign))

	journey := testsupport.CreateTestJourney(t, db, "cust-1")
	tp := testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", time.Now().UTC())
	require.NoError(t, db.Exec("UPDATE touchpoints SET campaign_id = ? WHERE id = ?", campaign.ID, tp.ID).Error)

	require.NoError(t, campaigns.DeleteCampaign(db, campaign.ID))

	_, err := campaigns.GetCampaignByID(db, campaign.ID)
	var notFoundErr *campaigns.CampaignNotFoundError
	assert.ErrorAs(t, err, &notFoundErr)

	var campaignID sql.NullInt64
	require.NoError(t, db.Raw("SELECT campaign_id FROM touchpoints WHERE id = ?", tp.ID).Scan(&campaignID).Error)
	assert.False(t, campaignID.Valid, "touchpoint should keep existing but lose the campaign link")

	err = campaigns.DeleteCampaign(db, 424242)
	assert.ErrorAs(t, err, &notFoundErr)
}

func TestGetCampaignsWithStats(t *testing.T) {
	dbManager, _ := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()

	campaign := &campaigns.Campaign{Name: "stats_campaign", Spend: 500}
	require.NoError(t, campaigns.CreateCampaign(db, campaign))

	journey := testsupport.CreateTestJourney(t, db, "cust-stats")
	tp := testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_social", time.Now().UTC())
	require.NoError(t, db.Exec("UPDATE touchpoints SET campaign_id = ? WHERE id = ?", campaign.ID, tp.ID).Error)

	model := testsupport.CreateTestModel(t, db, "stats model", "last_touch")
	require.NoError(t, db.Exec(`
        INSERT INTO attribution_results (journey_id, model_id, touchpoint_id, campaign_id, channel, credit, attributed_value, calculated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		journey.ID, model.ID, tp.ID, campaign.ID, "paid_social", 1.0, 250.0, time.Now().UTC()).Error)

	stats, err := campaigns.GetCampaignsWithStats(db, 30)
	require.NoError(t, err)
	require.Len(t, stats, 1)

	assert.Equal(t, "stats_campaign", stats[0].Name)
	assert.Equal(t, int64(1), stats[0].TouchpointCount)
	assert.InDelta(t, 250.0, stats[0].AttributedValue, 1e-9)
	assert.InDelta(t, 500.0, stats[0].Spend, 1e-9)
}
