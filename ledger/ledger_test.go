package ledger

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

func record(name string, kcal, protein float64) models.NutrientRecord {
	return models.NutrientRecord{
		CanonicalName: name,
		Per100g: models.Nutrients{
			models.EnergyKcal:   kcal,
			models.Protein:      protein,
			models.Carbohydrate: 10,
			models.Fat:          2,
			models.Fiber:        1,
			"iron":              0.8,
		},
	}
}

func TestNew_AllDaysAndSlotsEmpty(t *testing.T) {
	p := New()
	for _, d := range models.Days {
		for _, s := range models.Slots {
			items := p.Items(d, s)
			assert.NotNil(t, items)
			assert.Empty(t, items)
		}
		assert.Equal(t, 0.0, p.DailyTotals(d).Kcal())
	}
	assert.Equal(t, 0, p.Len())
}

func TestAdd_RejectsUnknownLabels(t *testing.T) {
	p := New()
	item := models.NewPlannedFoodItem(record("Mela", 52, 0.3), 150)

	err := p.Add("Funday", models.Lunch, item)
	assert.ErrorIs(t, err, ErrUnknownDay)

	err = p.Add(models.Monday, "Brunch", item)
	assert.ErrorIs(t, err, ErrUnknownSlot)

	assert.Equal(t, 0, p.Len())
}

func TestQuantityEdit_RecomputesContributionAndDailyTotal(t *testing.T) {
	p := New()
	rec := models.NutrientRecord{CanonicalName: "Pane integrale", Per100g: models.Nutrients{models.EnergyKcal: 200}}
	require.NoError(t, p.Add(models.Monday, models.Breakfast, models.NewPlannedFoodItem(rec, 100)))

	items := p.Items(models.Monday, models.Breakfast)
	require.Len(t, items, 1)
	assert.Equal(t, 200.0, items[0].Contribution.Kcal())
	before := p.DailyTotals(models.Monday).Kcal()

	dropped, err := p.Update(models.Monday, models.Breakfast, []Edit{{Item: items[0], Grams: models.GramsOf(50)}})
	require.NoError(t, err)
	assert.Equal(t, 0, dropped)

	items = p.Items(models.Monday, models.Breakfast)
	require.Len(t, items, 1)
	assert.Equal(t, 50.0, items[0].Grams)
	assert.Equal(t, 100.0, items[0].Contribution.Kcal())
	assert.Equal(t, 100.0, before-p.DailyTotals(models.Monday).Kcal())
}

func TestUpdate_DropsNonPositiveAndNonNumericRows(t *testing.T) {
	p := New()
	a := models.NewPlannedFoodItem(record("Riso", 330, 7), 80)
	b := models.NewPlannedFoodItem(record("Pollo", 110, 23), 120)
	c := models.NewPlannedFoodItem(record("Olio", 900, 0), 10)
	for _, it := range []models.PlannedFoodItem{a, b, c} {
		require.NoError(t, p.Add(models.Tuesday, models.Lunch, it))
	}

	bad := models.Quantity{Raw: "tanto"}
	bad.Grams, bad.OK = models.ParseGrams(bad.Raw)

	dropped, err := p.Update(models.Tuesday, models.Lunch, []Edit{
		{Item: a, Grams: models.GramsOf(100)},
		{Item: b, Grams: models.GramsOf(0)},
		{Item: c, Grams: bad},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	items := p.Items(models.Tuesday, models.Lunch)
	require.Len(t, items, 1)
	assert.Equal(t, "Riso", items[0].Name)
	assert.InDelta(t, 330.0, items[0].Contribution.Kcal(), 1e-9)
}

func TestRemove(t *testing.T) {
	p := New()
	a := models.NewPlannedFoodItem(record("Yogurt", 60, 4), 125)
	b := models.NewPlannedFoodItem(record("Miele", 300, 0.5), 10)
	require.NoError(t, p.Add(models.Friday, models.Breakfast, a))
	require.NoError(t, p.Add(models.Friday, models.Breakfast, b))

	require.NoError(t, p.Remove(models.Friday, models.Breakfast, 0))
	items := p.Items(models.Friday, models.Breakfast)
	require.Len(t, items, 1)
	assert.Equal(t, "Miele", items[0].Name)
	assert.InDelta(t, 30.0, p.DailyTotals(models.Friday).Kcal(), 1e-9)

	assert.ErrorIs(t, p.Remove(models.Friday, models.Breakfast, 5), ErrItemNotFound)
}

func TestClearDay_OnlyTouchesThatDay(t *testing.T) {
	p := New()
	it := models.NewPlannedFoodItem(record("Pasta di semola", 350, 12), 80)
	require.NoError(t, p.Add(models.Monday, models.Lunch, it))
	require.NoError(t, p.Add(models.Monday, models.Dinner, it))
	require.NoError(t, p.Add(models.Sunday, models.Lunch, it))

	require.NoError(t, p.ClearDay(models.Monday))
	for _, s := range models.Slots {
		assert.Empty(t, p.Items(models.Monday, s))
	}
	assert.Len(t, p.Items(models.Sunday, models.Lunch), 1)
	assert.ErrorIs(t, p.ClearDay("Lunday"), ErrUnknownDay)
}

func TestWeeklyAverage_IsMeanOfDailyTotals(t *testing.T) {
	p := New()
	rec := models.NutrientRecord{CanonicalName: "Latte", Per100g: models.Nutrients{models.EnergyKcal: 70, models.Protein: 3.5}}
	require.NoError(t, p.Add(models.Monday, models.Breakfast, models.NewPlannedFoodItem(rec, 200)))
	require.NoError(t, p.Add(models.Wednesday, models.Breakfast, models.NewPlannedFoodItem(rec, 500)))

	avg := p.WeeklyAverage()
	assert.InDelta(t, (140.0+350.0)/7, avg.Kcal(), 1e-9)
	assert.InDelta(t, (7.0+17.5)/7, avg.Get(models.Protein), 1e-9)
	assert.Contains(t, avg, models.Fiber)
}

func TestDailyTotals_MatchRecomputationAfterRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	foods := []models.NutrientRecord{
		record("Mela", 52, 0.3),
		record("Riso", 330, 7),
		record("Tonno", 130, 25),
		record("Olio", 900, 0),
	}
	p := New()

	for step := 0; step < 300; step++ {
		day := models.Days[rng.Intn(len(models.Days))]
		slot := models.Slots[rng.Intn(len(models.Slots))]
		switch rng.Intn(3) {
		case 0:
			f := foods[rng.Intn(len(foods))]
			require.NoError(t, p.Add(day, slot, models.NewPlannedFoodItem(f, float64(10+rng.Intn(200)))))
		case 1:
			current := p.Items(day, slot)
			edits := make([]Edit, 0, len(current))
			for _, it := range current {
				edits = append(edits, Edit{Item: it, Grams: models.GramsOf(float64(rng.Intn(150) - 20))})
			}
			_, err := p.Update(day, slot, edits)
			require.NoError(t, err)
		case 2:
			if n := len(p.Items(day, slot)); n > 0 {
				require.NoError(t, p.Remove(day, slot, rng.Intn(n)))
			}
		}

		for _, d := range models.Days {
			want := models.Nutrients{}
			for _, s := range models.Slots {
				for _, it := range p.Items(d, s) {
					for k, v := range it.Per100g {
						want[k] += v * it.Grams / 100
					}
				}
			}
			got := p.DailyTotals(d)
			for k, v := range want {
				assert.InDelta(t, v, got[k], 1e-6, "day %s nutrient %s", d, k)
			}
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	p := New()
	it := models.NewPlannedFoodItem(record("Ceci", 120, 7), 150)
	require.NoError(t, p.Add(models.Thursday, models.Dinner, it))

	snap := p.Snapshot()
	snap["Blursday"] = map[models.Slot][]models.PlannedFoodItem{models.Lunch: {it}}

	q := New()
	q.Restore(snap)
	assert.Equal(t, p.Items(models.Thursday, models.Dinner), q.Items(models.Thursday, models.Dinner))
	assert.Equal(t, 1, q.Len())

	// Snapshot is a copy: editing the source afterwards leaves it alone.
	require.NoError(t, p.ClearDay(models.Thursday))
	assert.Len(t, snap[models.Thursday][models.Dinner], 1)
}
