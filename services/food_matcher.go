package services

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// DefaultMatchThreshold is the similarity a fuzzy candidate must exceed.
const DefaultMatchThreshold = 0.5

// FoodMatcher resolves free-text food descriptions to reference rows. A
// match depends only on the query, the table and the threshold.
type FoodMatcher struct {
	table     *FoodTable
	threshold float64
	metric    *metrics.Levenshtein
}

func NewFoodMatcher(table *FoodTable, threshold float64) *FoodMatcher {
	if table == nil {
		table = NewFoodTable(nil)
	}
	return &FoodMatcher{table: table, threshold: threshold, metric: metrics.NewLevenshtein()}
}

// Table returns the reference table the matcher reads.
func (m *FoodMatcher) Table() *FoodTable { return m.table }

// Match returns the best reference row for query. The fuzzy pass accepts
// the most similar name when its similarity is strictly above the
// threshold, keeping the earliest row on ties. Otherwise the first row
// whose name contains the query wins.
func (m *FoodMatcher) Match(query string) (models.NutrientRecord, bool) {
	q := models.Fold(query)
	if q == "" || m.table.Len() == 0 {
		return models.NutrientRecord{}, false
	}

	best, bestScore := -1, 0.0
	for i, name := range m.table.folded {
		score := strutil.Similarity(q, name, m.metric)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 && bestScore > m.threshold {
		return m.table.records[best], true
	}

	for i, name := range m.table.folded {
		if strings.Contains(name, q) {
			return m.table.records[i], true
		}
	}
	return models.NutrientRecord{}, false
}

// Resolve looks a food up by exact canonical name first and falls back to
// Match. The manual picker sends canonical names, so the exact path wins
// there.
func (m *FoodMatcher) Resolve(name string) (models.NutrientRecord, bool) {
	if rec, ok := m.table.Lookup(name); ok {
		return rec, true
	}
	return m.Match(name)
}

// Scale returns the contribution of grams of rec: every tracked field of
// the per-100g vector times grams/100.
func Scale(rec models.NutrientRecord, grams float64) models.Nutrients {
	return rec.Per100g.Scale(grams / 100)
}
