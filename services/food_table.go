package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

const nameColumn = "name"

// metadataColumns describe a row rather than its nutrient content and are
// never tracked, even when their cells are numeric.
var metadataColumns = map[string]bool{
	"id":          true,
	"code":        true,
	"food_code":   true,
	"edible_part": true,
	"category":    true,
	"group":       true,
	"food_group":  true,
	"source":      true,
	"reference":   true,
	"notes":       true,
	"year":        true,
}

func isMetadataColumn(h string) bool {
	h = strings.ToLower(h)
	return metadataColumns[h] || strings.HasSuffix(h, "_id") || strings.HasSuffix(h, "_code")
}

// FoodTable is the nutrient reference table, kept in file order. Row order
// matters: it breaks ties when matching.
type FoodTable struct {
	records []models.NutrientRecord
	folded  []string
	exact   map[string]int
}

// NewFoodTable indexes records for lookup and matching.
func NewFoodTable(records []models.NutrientRecord) *FoodTable {
	t := &FoodTable{
		records: records,
		folded:  make([]string, len(records)),
		exact:   make(map[string]int, len(records)),
	}
	for i, r := range records {
		f := models.Fold(r.CanonicalName)
		t.folded[i] = f
		if _, dup := t.exact[f]; !dup {
			t.exact[f] = i
		}
	}
	return t
}

// LoadFoodTable reads the reference CSV at path.
func LoadFoodTable(path string) (*FoodTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open nutrient table: %w", err)
	}
	defer f.Close()

	t, err := ParseFoodTable(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nutrient table %s: %w", path, err)
	}
	log.Info().Str("path", path).Int("foods", t.Len()).Msg("nutrient table loaded")
	return t, nil
}

// ParseFoodTable reads a CSV with a header row. The name column holds the
// canonical food name. The macro columns are always tracked, zero when the
// file lacks them. Any other column with at least one numeric cell becomes
// a micro nutrient, except identifier and metadata columns such as id, code
// or edible_part. Blank or non-numeric cells read as zero.
func ParseFoodTable(r io.Reader) (*FoodTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	nameCol := -1
	for i, h := range header {
		if h == nameColumn {
			nameCol = i
			break
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("missing %q column", nameColumn)
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	numeric := make([]bool, len(header))
	for _, row := range rows {
		for i := range header {
			if i == nameCol || i >= len(row) || numeric[i] || isMetadataColumn(header[i]) {
				continue
			}
			if _, ok := parseCell(row[i]); ok {
				numeric[i] = true
			}
		}
	}
	for _, k := range models.MacroKeys {
		for i, h := range header {
			if h == k {
				numeric[i] = true
			}
		}
	}

	records := make([]models.NutrientRecord, 0, len(rows))
	for _, row := range rows {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		per100 := make(models.Nutrients, len(models.MacroKeys))
		for _, k := range models.MacroKeys {
			per100[k] = 0
		}
		for i, h := range header {
			if !numeric[i] {
				continue
			}
			var v float64
			if i < len(row) {
				v, _ = parseCell(row[i])
			}
			per100[h] = v
		}
		records = append(records, models.NutrientRecord{CanonicalName: name, Per100g: per100})
	}
	return NewFoodTable(records), nil
}

func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Len returns the number of foods.
func (t *FoodTable) Len() int { return len(t.records) }

// Records returns the rows in file order.
func (t *FoodTable) Records() []models.NutrientRecord { return t.records }

// Lookup finds a food by canonical name, ignoring case and accents.
func (t *FoodTable) Lookup(name string) (models.NutrientRecord, bool) {
	i, ok := t.exact[models.Fold(name)]
	if !ok {
		return models.NutrientRecord{}, false
	}
	return t.records[i], true
}

// Search returns up to limit foods for the picker: names starting with the
// query first, then names containing it, each group in file order. An empty
// query lists the table from the top.
func (t *FoodTable) Search(query string, limit int) []models.NutrientRecord {
	if limit <= 0 {
		return nil
	}
	q := models.Fold(query)
	var prefix, contains []models.NutrientRecord
	for i, f := range t.folded {
		switch {
		case strings.HasPrefix(f, q):
			prefix = append(prefix, t.records[i])
		case strings.Contains(f, q):
			contains = append(contains, t.records[i])
		}
		if len(prefix) >= limit {
			break
		}
	}
	out := append(prefix, contains...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// FoodLabel renders the picker label, for example "Pasta di semola (350 kcal/100g)".
func FoodLabel(rec models.NutrientRecord) string {
	return fmt.Sprintf("%s (%d kcal/100g)", rec.CanonicalName, int(rec.Per100g.Kcal()))
}
