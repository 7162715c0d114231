package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	plan := ledger.New()
	require.NoError(t, plan.Add(models.Monday, models.Lunch, models.NewPlannedFoodItem(
		models.NutrientRecord{CanonicalName: "Pasta di semola", Per100g: models.Nutrients{models.EnergyKcal: 350, "sodium": 3}}, 80)))

	rec := SessionRecord{
		ID:             "s-1",
		Profile:        models.PatientProfile{Sex: "Donna", Age: 54, Conditions: []string{"Diabete T2"}, Goal: "Gestione Patologia"},
		History:        []models.Message{{Role: models.RoleUser, Content: "ciao"}, {Role: models.RoleAssistant, Content: "salve"}},
		Recommendation: "salve",
		Plan:           plan.Snapshot(),
		UpdatedAt:      time.Unix(1_700_000_000, 0),
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Profile, got.Profile)
	assert.Equal(t, rec.History, got.History)
	assert.Equal(t, "salve", got.Recommendation)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))

	restored := ledger.New()
	restored.Restore(got.Plan)
	items := restored.Items(models.Monday, models.Lunch)
	require.Len(t, items, 1)
	assert.InDelta(t, 280, items[0].Contribution.Kcal(), 1e-9)
	assert.InDelta(t, 2.4, items[0].Contribution.Get("sodium"), 1e-9)
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Save(ctx, SessionRecord{ID: "s-1", Recommendation: "prima"}))
	require.NoError(t, s.Save(ctx, SessionRecord{ID: "s-1", Recommendation: "seconda"}))

	got, err := s.Load(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "seconda", got.Recommendation)
	assert.Empty(t, got.History)

	ids, err := s.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s-1"}, ids)
}

func TestSQLiteStore_LoadMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Load(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, SessionRecord{ID: "s-2"}))
	require.NoError(t, s.Delete(ctx, "s-2"))
	_, err = s.Load(ctx, "s-2")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "s-2"))
}
