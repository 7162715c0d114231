package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

func newTestPlanner(t *testing.T, gen Generator) *Planner {
	t.Helper()
	return NewPlanner(NewDietExtractor(gen), NewFoodMatcher(testFoodTable(t), DefaultMatchThreshold))
}

func TestPlanner_Import(t *testing.T) {
	gen := &scriptedGenerator{structured: `[
		{"day":"Lunedì","meal":"Pranzo","food":"pasta semola","grams":80},
		{"day":"lunedi","meal":"cena","food":"merluzzo","grams":150},
		{"day":"Lunedì","meal":"Cena","food":"xyz-nonfood","grams":50},
		{"day":"Ottavodì","meal":"Pranzo","food":"mela","grams":100},
		{"day":"Martedì","meal":"Brunch","food":"mela","grams":100}
	]`}
	plan := ledger.New()

	report, err := newTestPlanner(t, gen).Import(context.Background(), plan, "piano settimanale")
	require.NoError(t, err)
	assert.Equal(t, 5, report.Extracted)
	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, []string{"xyz-nonfood"}, report.Unmatched)
	assert.Len(t, report.Rejected, 2)
	assert.False(t, report.ParseFailed)

	lunch := plan.Items(models.Monday, models.Lunch)
	require.Len(t, lunch, 1)
	assert.Equal(t, "Pasta di semola", lunch[0].Name)
	assert.InDelta(t, 280, lunch[0].Contribution.Kcal(), 1e-9)

	dinner := plan.Items(models.Monday, models.Dinner)
	require.Len(t, dinner, 1)
	assert.Equal(t, "Merluzzo", dinner[0].Name)
	assert.InDelta(t, 106.5, dinner[0].Contribution.Kcal(), 1e-9)

	assert.InDelta(t, 386.5, plan.DailyTotals(models.Monday).Kcal(), 1e-9)
}

func TestPlanner_ImportUnparseableLeavesPlanUnchanged(t *testing.T) {
	gen := &scriptedGenerator{structured: "Mi dispiace, non riesco a produrre il JSON richiesto."}
	plan := ledger.New()
	require.NoError(t, plan.Add(models.Friday, models.Breakfast,
		models.NewPlannedFoodItem(models.NutrientRecord{CanonicalName: "Mela", Per100g: models.Nutrients{models.EnergyKcal: 53}}, 150)))
	before := plan.Snapshot()

	report, err := newTestPlanner(t, gen).Import(context.Background(), plan, "Lunedì pasta a pranzo")
	assert.ErrorIs(t, err, ErrNoStructuredPlan)
	assert.True(t, report.ParseFailed)
	assert.Zero(t, report.Imported)
	assert.NotEmpty(t, report.Detail)
	assert.Equal(t, before, plan.Snapshot())
}

func TestPlanner_ImportReportsServiceFailure(t *testing.T) {
	gen := &scriptedGenerator{err: errors.New("quota exceeded")}
	plan := ledger.New()

	report, err := newTestPlanner(t, gen).Import(context.Background(), plan, "Lunedì pasta a pranzo")
	assert.ErrorIs(t, err, ErrExtractionUnavailable)
	assert.False(t, report.ParseFailed)
	assert.True(t, report.GenerationFailed)
	assert.Zero(t, plan.Len())
}

func TestPlanner_ImportEmptyRecommendation(t *testing.T) {
	gen := &scriptedGenerator{}
	report, err := newTestPlanner(t, gen).Import(context.Background(), ledger.New(), "")
	require.NoError(t, err)
	assert.Zero(t, report.Extracted)
	assert.Empty(t, gen.extractions)
}

func TestPlanner_AddFood(t *testing.T) {
	p := newTestPlanner(t, nil)
	plan := ledger.New()

	item, err := p.AddFood(plan, models.Sunday, models.AfternoonSnack, "Yogurt intero", models.Quantity{})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultGrams, item.Grams)
	assert.InDelta(t, 66, item.Contribution.Kcal(), 1e-9)

	item, err = p.AddFood(plan, models.Sunday, models.AfternoonSnack, "mela", models.GramsOf(200))
	require.NoError(t, err)
	assert.Equal(t, "Mela", item.Name)
	assert.InDelta(t, 106, item.Contribution.Kcal(), 1e-9)
	assert.Len(t, plan.Items(models.Sunday, models.AfternoonSnack), 2)

	_, err = p.AddFood(plan, models.Sunday, models.Dinner, "xyz-nonfood", models.GramsOf(10))
	assert.ErrorIs(t, err, ErrFoodNotFound)

	_, err = p.AddFood(plan, models.Day("Someday"), models.Dinner, "Mela", models.GramsOf(10))
	assert.ErrorIs(t, err, ledger.ErrUnknownDay)
}
