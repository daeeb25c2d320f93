package attribution_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"attriflow/internal/attribution"
	"attriflow/internal/testsupport"
)

func assertSingleDefault(t *testing.T, db *gorm.DB, wantID uint) {
	t.Helper()
	var ids []uint
	require.NoError(t, db.Raw("SELECT id FROM attribution_models WHERE is_default = 1").Scan(&ids).Error)
	require.Len(t, ids, 1, "exactly one model must be default")
	assert.Equal(t, wantID, ids[0])
}

func assertResultCount(t *testing.T, db *gorm.DB, journeyID, modelID uint, want int64) {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&attribution.AttributionResult{}).
		Where("journey_id = ? AND model_id = ?", journeyID, modelID).
		Count(&count).Error)
	assert.Equal(t, want, count)
}

func TestRegisterModel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := &attribution.AttributionModel{
		Name:         "Quarterly Decay",
		Type:         attribution.ModelTypeTimeDecay,
		IsActive:     true,
		DecayRate:    0.5,
		HalfLifeDays: 14,
	}
	require.NoError(t, attribution.RegisterModel(db, logger, model))
	require.NotZero(t, model.ID)

	fetched, err := attribution.GetModelByID(db, model.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Decay", fetched.Name)
	assert.Equal(t, attribution.ModelTypeTimeDecay, fetched.Type)
	assert.Equal(t, 14.0, fetched.HalfLifeDays)
	assert.False(t, fetched.IsDefault)
}

func TestRegisterModelValidation(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	var validationErr *attribution.ValidationError
	err := attribution.RegisterModel(db, logger, &attribution.AttributionModel{
		Name:         "Broken Decay",
		Type:         attribution.ModelTypeTimeDecay,
		DecayRate:    1.5,
		HalfLifeDays: 7,
	})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "decay_rate", validationErr.Field)

	err = attribution.RegisterModel(db, logger, &attribution.AttributionModel{
		Name:         "Lopsided",
		Type:         attribution.ModelTypePositionBased,
		FirstWeight:  0.6,
		MiddleWeight: 0.6,
		LastWeight:   0.6,
	})
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "weights", validationErr.Field)

	var count int64
	require.NoError(t, db.Model(&attribution.AttributionModel{}).Count(&count).Error)
	assert.Zero(t, count, "rejected models must not be stored")
}

func TestRegisterModelAppliesDefaults(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	decay := &attribution.AttributionModel{Name: "Bare Decay", Type: attribution.ModelTypeTimeDecay}
	require.NoError(t, attribution.RegisterModel(db, logger, decay))
	assert.Equal(t, 0.5, decay.DecayRate)
	assert.Equal(t, 7.0, decay.HalfLifeDays)

	position := &attribution.AttributionModel{Name: "Bare Position", Type: attribution.ModelTypePositionBased}
	require.NoError(t, attribution.RegisterModel(db, logger, position))

	stored, err := attribution.GetModelByID(db, position.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.4, stored.FirstWeight)
	assert.Equal(t, 0.2, stored.MiddleWeight)
	assert.Equal(t, 0.4, stored.LastWeight)
}

func TestRegisterModelDuplicateName(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	err := attribution.RegisterModel(db, logger, &attribution.AttributionModel{
		Name: "Linear",
		Type: attribution.ModelTypeLinear,
	})
	assert.Error(t, err)
}

func TestRegisterDefaultModelDisplacesPrevious(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	first := &attribution.AttributionModel{
		Name:      "House Model",
		Type:      attribution.ModelTypeLinear,
		IsActive:  true,
		IsDefault: true,
	}
	require.NoError(t, attribution.RegisterModel(db, logger, first))
	assertSingleDefault(t, db, first.ID)

	second := &attribution.AttributionModel{
		Name:      "New Default",
		Type:      attribution.ModelTypeLastTouch,
		IsActive:  true,
		IsDefault: true,
	}
	require.NoError(t, attribution.RegisterModel(db, logger, second))
	assertSingleDefault(t, db, second.ID)
}

func TestSetDefaultModel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	modelX := testsupport.CreateTestModel(t, db, "Model X", attribution.ModelTypeLinear)
	modelY := testsupport.CreateTestModel(t, db, "Model Y", attribution.ModelTypeLastTouch)

	require.NoError(t, attribution.SetDefaultModel(db, logger, modelX.ID))
	assertSingleDefault(t, db, modelX.ID)

	require.NoError(t, attribution.SetDefaultModel(db, logger, modelY.ID))
	assertSingleDefault(t, db, modelY.ID)

	defaultModel, err := attribution.GetDefaultModel(db)
	require.NoError(t, err)
	require.NotNil(t, defaultModel)
	assert.Equal(t, modelY.ID, defaultModel.ID)

	var notFound *attribution.ModelNotFoundError
	require.ErrorAs(t, attribution.SetDefaultModel(db, logger, 99999), &notFound)
	assertSingleDefault(t, db, modelY.ID)
}

func TestUpdateModel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Adjustable", attribution.ModelTypeTimeDecay)
	model.DecayRate = 0.8
	model.HalfLifeDays = 30
	require.NoError(t, attribution.UpdateModel(db, logger, &model))

	fetched, err := attribution.GetModelByID(db, model.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.8, fetched.DecayRate)
	assert.Equal(t, 30.0, fetched.HalfLifeDays)

	fetched.DecayRate = 5
	var validationErr *attribution.ValidationError
	require.ErrorAs(t, attribution.UpdateModel(db, logger, fetched), &validationErr)

	again, err := attribution.GetModelByID(db, model.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.8, again.DecayRate, "rejected update must not change the stored model")

	var notFound *attribution.ModelNotFoundError
	missing := attribution.AttributionModel{ID: 4242, Name: "Ghost", Type: attribution.ModelTypeLinear}
	require.ErrorAs(t, attribution.UpdateModel(db, logger, &missing), &notFound)
}

func TestSetModelActive(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Toggle", attribution.ModelTypeLinear)
	keeper := testsupport.CreateTestModel(t, db, "Keeper", attribution.ModelTypeFirstTouch)

	journey := testsupport.CreateTestJourney(t, db, "cust-toggle")
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	require.NoError(t, attribution.SetModelActive(db, logger, model.ID, false))

	active, err := attribution.GetActiveModels(db)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keeper.ID, active[0].ID)

	all, err := attribution.GetAllModels(db)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	count, err := attribution.CountResultsForModel(db, model.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "deactivation keeps stored results")
}

func TestEnsureStandardModels(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	require.NoError(t, attribution.EnsureStandardModels(db, logger))

	models, err := attribution.GetAllModels(db)
	require.NoError(t, err)
	require.Len(t, models, 5)

	seen := make(map[string]bool)
	for _, model := range models {
		seen[model.Type] = true
		assert.True(t, model.IsActive)
	}
	for _, want := range []string{
		attribution.ModelTypeFirstTouch,
		attribution.ModelTypeLastTouch,
		attribution.ModelTypeLinear,
		attribution.ModelTypeTimeDecay,
		attribution.ModelTypePositionBased,
	} {
		assert.True(t, seen[want], "missing standard model type %s", want)
	}

	defaultModel, err := attribution.GetDefaultModel(db)
	require.NoError(t, err)
	require.NotNil(t, defaultModel)
	assert.Equal(t, "Linear", defaultModel.Name)

	// Reseeding is a no-op and never steals a custom default
	firstTouch, err := attribution.GetModelByName(db, "First Touch")
	require.NoError(t, err)
	require.NoError(t, attribution.SetDefaultModel(db, logger, firstTouch.ID))
	require.NoError(t, attribution.EnsureStandardModels(db, logger))

	models, err = attribution.GetAllModels(db)
	require.NoError(t, err)
	assert.Len(t, models, 5)
	assertSingleDefault(t, db, firstTouch.ID)
}

func TestRecalculateJourneyLinear(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-linear")

	base := time.Now().UTC().Add(-6 * time.Hour)
	touchChannels := []string{"paid_search", "paid_social", "email", "direct"}
	for i, channel := range touchChannels {
		testsupport.CreateTestTouchpoint(t, db, journey.ID, i+1, channel, base.Add(time.Duration(i)*time.Hour))
	}
	testsupport.CompleteTestJourney(t, db, journey.ID, 1000, "purchase", base.Add(5*time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	results, err := attribution.GetJourneyResults(db, journey.ID, model.ID)
	require.NoError(t, err)
	require.Len(t, results, 4)

	sum := 0.0
	for i, result := range results {
		assert.InDelta(t, 0.25, result.Credit, 1e-9)
		assert.InDelta(t, 250.0, result.AttributedValue, 1e-9)
		assert.Equal(t, touchChannels[i], result.Channel)
		assert.Equal(t, journey.ID, result.JourneyID)
		assert.Equal(t, model.ID, result.ModelID)
		sum += result.Credit
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestRecalculateJourneyFirstAndLastTouch(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	firstTouch := testsupport.CreateTestModel(t, db, "First Touch", attribution.ModelTypeFirstTouch)
	lastTouch := testsupport.CreateTestModel(t, db, "Last Touch", attribution.ModelTypeLastTouch)

	journey := testsupport.CreateTestJourney(t, db, "cust-onehot")
	base := time.Now().UTC().Add(-3 * time.Hour)
	for i, channel := range []string{"paid_search", "email", "direct"} {
		testsupport.CreateTestTouchpoint(t, db, journey.ID, i+1, channel, base.Add(time.Duration(i)*time.Hour))
	}
	testsupport.CompleteTestJourney(t, db, journey.ID, 90, "signup", base.Add(2*time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, firstTouch.ID))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, lastTouch.ID))

	firstResults, err := attribution.GetJourneyResults(db, journey.ID, firstTouch.ID)
	require.NoError(t, err)
	require.Len(t, firstResults, 3)
	assert.InDelta(t, 1.0, firstResults[0].Credit, 1e-9)
	assert.InDelta(t, 90.0, firstResults[0].AttributedValue, 1e-9)
	assert.Zero(t, firstResults[1].Credit)
	assert.Zero(t, firstResults[2].Credit)

	lastResults, err := attribution.GetJourneyResults(db, journey.ID, lastTouch.ID)
	require.NoError(t, err)
	require.Len(t, lastResults, 3)
	assert.Zero(t, lastResults[0].Credit)
	assert.Zero(t, lastResults[1].Credit)
	assert.InDelta(t, 1.0, lastResults[2].Credit, 1e-9)
	assert.Equal(t, "direct", lastResults[2].Channel)
}

func TestRecalculateJourneyTimeDecayAnchorsAtJourneyEnd(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Time Decay", attribution.ModelTypeTimeDecay)
	journey := testsupport.CreateTestJourney(t, db, "cust-decay")

	// Journey closed two days ago, touchpoints at 14, 7 and 0 days before
	// the close. Ages must be measured against the recorded end, not now.
	end := time.Now().UTC().Add(-48 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", end.Add(-14*24*time.Hour))
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "paid_search", end.Add(-7*24*time.Hour))
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 3, "direct", end)
	testsupport.CompleteTestJourney(t, db, journey.ID, 700, "purchase", end)

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	results, err := attribution.GetJourneyResults(db, journey.ID, model.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.InDelta(t, 1.0/7, results[0].Credit, 1e-9)
	assert.InDelta(t, 2.0/7, results[1].Credit, 1e-9)
	assert.InDelta(t, 4.0/7, results[2].Credit, 1e-9)
	assert.InDelta(t, 400.0, results[2].AttributedValue, 1e-6)
}

func TestRecalculateJourneyActiveDecaysAgainstNow(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Time Decay", attribution.ModelTypeTimeDecay)
	journey := testsupport.CreateTestJourney(t, db, "cust-active-decay")

	now := time.Now().UTC()
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", now.Add(-7*24*time.Hour))
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "direct", now)

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	results, err := attribution.GetJourneyResults(db, journey.ID, model.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 1.0/3, results[0].Credit, 1e-3)
	assert.InDelta(t, 2.0/3, results[1].Credit, 1e-3)
	assert.Zero(t, results[0].AttributedValue, "journeys without a conversion value attribute zero")
	assert.Zero(t, results[1].AttributedValue)
}

func TestRecalculateJourneyReplacesPriorResults(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-replace")

	base := time.Now().UTC().Add(-2 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", base)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "email", base.Add(time.Hour))
	testsupport.CompleteTestJourney(t, db, journey.ID, 100, "purchase", base.Add(time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))
	assertResultCount(t, db, journey.ID, model.ID, 2)

	// A backfilled touchpoint invalidates the stored set until recalculated
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 3, "referral", base.Add(90*time.Minute))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	results, err := attribution.GetJourneyResults(db, journey.ID, model.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	sum := 0.0
	for _, result := range results {
		assert.InDelta(t, 1.0/3, result.Credit, 1e-9)
		sum += result.Credit
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestRecalculateJourneyEmptyCases(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-empty")

	// Stale row proves a journey without touchpoints clears its result set
	stale := attribution.AttributionResult{
		JourneyID:       journey.ID,
		ModelID:         model.ID,
		TouchpointID:    12345,
		Channel:         "email",
		Credit:          1,
		AttributedValue: 10,
		CalculatedAt:    time.Now().UTC(),
	}
	require.NoError(t, db.Create(&stale).Error)

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))
	assertResultCount(t, db, journey.ID, model.ID, 0)

	require.NoError(t, attribution.RecalculateJourney(db, logger, 99999, model.ID))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, 99999))
	assertResultCount(t, db, 99999, model.ID, 0)
	assertResultCount(t, db, journey.ID, 99999, 0)
}

func TestRecalculateJourneyForActiveModels(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	linear := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	firstTouch := testsupport.CreateTestModel(t, db, "First Touch", attribution.ModelTypeFirstTouch)
	decay := testsupport.CreateTestModel(t, db, "Time Decay", attribution.ModelTypeTimeDecay)
	require.NoError(t, attribution.SetModelActive(db, logger, decay.ID, false))

	journey := testsupport.CreateTestJourney(t, db, "cust-fanout")
	base := time.Now().UTC().Add(-2 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", base)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "email", base.Add(time.Hour))
	testsupport.CompleteTestJourney(t, db, journey.ID, 50, "purchase", base.Add(time.Hour))

	require.NoError(t, attribution.RecalculateJourneyForActiveModels(db, logger, journey.ID))

	assertResultCount(t, db, journey.ID, linear.ID, 2)
	assertResultCount(t, db, journey.ID, firstTouch.ID, 2)
	assertResultCount(t, db, journey.ID, decay.ID, 0)

	second := testsupport.CreateTestJourney(t, db, "cust-fanout-2")
	testsupport.CreateTestTouchpoint(t, db, second.ID, 1, "email", time.Now().UTC())

	refreshed := attribution.RecalculateJourneys(db, logger, []uint{journey.ID, second.ID})
	assert.Equal(t, 2, refreshed)
	assertResultCount(t, db, second.ID, linear.ID, 1)
}

func TestRecalculateModel(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Time Decay", attribution.ModelTypeTimeDecay)

	first := testsupport.CreateTestJourney(t, db, "cust-model-1")
	base := time.Now().UTC().Add(-2 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, first.ID, 1, "paid_search", base)
	testsupport.CreateTestTouchpoint(t, db, first.ID, 2, "email", base.Add(time.Hour))
	testsupport.CompleteTestJourney(t, db, first.ID, 80, "purchase", base.Add(time.Hour))

	second := testsupport.CreateTestJourney(t, db, "cust-model-2")
	testsupport.CreateTestTouchpoint(t, db, second.ID, 1, "direct", base)

	refreshed, err := attribution.RecalculateModel(db, logger, model.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed)
	assertResultCount(t, db, first.ID, model.ID, 2)
	assertResultCount(t, db, second.ID, model.ID, 1)

	var notFound *attribution.ModelNotFoundError
	_, err = attribution.RecalculateModel(db, logger, 99999)
	require.ErrorAs(t, err, &notFound)
}

func TestDeleteModelKeepsResultsAsAuditTrail(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Disposable", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-delete")
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", time.Now().UTC().Add(-time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))
	assertResultCount(t, db, journey.ID, model.ID, 1)

	require.NoError(t, attribution.DeleteModel(db, logger, model.ID))
	// Results stay behind referencing the deleted model
	assertResultCount(t, db, journey.ID, model.ID, 1)

	var notFound *attribution.ModelNotFoundError
	_, err := attribution.GetModelByID(db, model.ID)
	require.ErrorAs(t, err, &notFound)
	require.ErrorAs(t, attribution.DeleteModel(db, logger, model.ID), &notFound)
}

func TestGetChannelPerformanceRepeatedChannelBoundaries(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Last Touch", attribution.ModelTypeLastTouch)
	journey := testsupport.CreateTestJourney(t, db, "cust-aba")

	// paid_search -> paid_social -> paid_search, converted
	base := time.Now().UTC().Add(-3 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", base)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "paid_social", base.Add(time.Hour))
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 3, "paid_search", base.Add(2*time.Hour))
	testsupport.CompleteTestJourney(t, db, journey.ID, 100, "signup", base.Add(2*time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	now := time.Now().UTC()
	performance, err := attribution.GetChannelPerformance(db, model.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, performance, 2)

	search := performance[0]
	assert.Equal(t, "paid_search", search.Channel)
	assert.InDelta(t, 100.0, search.TotalAttributedValue, 1e-9)
	assert.Equal(t, 2, search.TouchpointCount)
	assert.Equal(t, 1, search.JourneyCount)
	assert.Equal(t, 1, search.Conversions)
	assert.Equal(t, 1, search.FirstClickConversions)
	assert.Equal(t, 1, search.LastClickConversions)
	assert.Equal(t, 0, search.AssistedConversions, "sole credit holder never assists")
	assert.InDelta(t, 0.5, search.AverageCredit, 1e-9)

	social := performance[1]
	assert.Equal(t, "paid_social", social.Channel)
	assert.Zero(t, social.TotalAttributedValue)
	assert.Equal(t, 1, social.AssistedConversions, "zero-credit participation still assists")
	assert.Equal(t, 1, social.Conversions)
	assert.Equal(t, 0, social.FirstClickConversions)
	assert.Equal(t, 0, social.LastClickConversions)
	assert.Equal(t, 1, social.JourneyCount)
}

func TestGetChannelPerformanceLinearAssists(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-linear-assist")

	base := time.Now().UTC().Add(-2 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", base)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "direct", base.Add(time.Hour))
	testsupport.CompleteTestJourney(t, db, journey.ID, 200, "purchase", base.Add(time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	now := time.Now().UTC()
	performance, err := attribution.GetChannelPerformance(db, model.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, performance, 2)

	// Equal value, ties break on channel name
	assert.Equal(t, "direct", performance[0].Channel)
	assert.Equal(t, "email", performance[1].Channel)

	for _, perf := range performance {
		assert.InDelta(t, 100.0, perf.TotalAttributedValue, 1e-9)
		assert.InDelta(t, 0.5, perf.AverageCredit, 1e-9)
		assert.Equal(t, 1, perf.Conversions)
		assert.Equal(t, 1, perf.AssistedConversions, "partial credit counts as an assist")
	}
	assert.Equal(t, 1, performance[0].LastClickConversions)
	assert.Equal(t, 0, performance[0].FirstClickConversions)
	assert.Equal(t, 1, performance[1].FirstClickConversions)
	assert.Equal(t, 0, performance[1].LastClickConversions)
}

func TestGetChannelPerformanceWindowAndModelFilter(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	lastTouch := testsupport.CreateTestModel(t, db, "Last Touch", attribution.ModelTypeLastTouch)
	linear := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)

	journey := testsupport.CreateTestJourney(t, db, "cust-filter")
	base := time.Now().UTC().Add(-2 * time.Hour)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "paid_search", base)
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 2, "email", base.Add(time.Hour))
	testsupport.CompleteTestJourney(t, db, journey.ID, 100, "purchase", base.Add(time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, lastTouch.ID))
	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, linear.ID))

	now := time.Now().UTC()
	from, to := now.Add(-time.Hour), now.Add(time.Hour)

	filtered, err := attribution.GetChannelPerformance(db, lastTouch.ID, from, to)
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, "email", filtered[0].Channel)
	assert.InDelta(t, 100.0, filtered[0].TotalAttributedValue, 1e-9)
	assert.Equal(t, 1, filtered[0].TouchpointCount)

	// Without a model filter both result sets aggregate
	combined, err := attribution.GetChannelPerformance(db, 0, from, to)
	require.NoError(t, err)
	require.Len(t, combined, 2)
	assert.Equal(t, "email", combined[0].Channel)
	assert.InDelta(t, 150.0, combined[0].TotalAttributedValue, 1e-9)
	assert.Equal(t, 2, combined[0].TouchpointCount)

	// A window before the calculation sees nothing
	past, err := attribution.GetChannelPerformance(db, lastTouch.ID, now.Add(-72*time.Hour), now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, past)

	values, err := attribution.GetAttributedValuesByDate(db, lastTouch.ID, from, to)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, values[now.Format("2006-01-02")], 1e-9)
}

func TestGetChannelPerformanceActiveJourneyNotCounted(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	logger := testsupport.GetLogger()

	model := testsupport.CreateTestModel(t, db, "Linear", attribution.ModelTypeLinear)
	journey := testsupport.CreateTestJourney(t, db, "cust-open")
	testsupport.CreateTestTouchpoint(t, db, journey.ID, 1, "email", time.Now().UTC().Add(-time.Hour))

	require.NoError(t, attribution.RecalculateJourney(db, logger, journey.ID, model.ID))

	now := time.Now().UTC()
	performance, err := attribution.GetChannelPerformance(db, model.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, performance, 1)

	email := performance[0]
	assert.Equal(t, 1, email.JourneyCount)
	assert.Equal(t, 1, email.TouchpointCount)
	assert.Equal(t, 0, email.Conversions, "open journeys are not conversions")
	assert.Equal(t, 0, email.AssistedConversions)
	assert.Equal(t, 0, email.FirstClickConversions)
	assert.Equal(t, 0, email.LastClickConversions)
}
