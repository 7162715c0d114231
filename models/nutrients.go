package models

import (
	"math"
	"sort"
)

// Macro nutrient keys. They follow the column names of the CREA food
// composition table and are tracked for every reference row.
const (
	EnergyKcal   = "energy_kcal"
	Protein      = "proteins"
	Carbohydrate = "available_carbohydrates"
	Fat          = "lipids"
	Fiber        = "total_fiber"
)

// MacroKeys are always present in a Nutrients vector built from the
// reference table, even when the source row leaves them blank.
var MacroKeys = []string{EnergyKcal, Protein, Carbohydrate, Fat, Fiber}

// Nutrients maps a nutrient key to an amount. A key that is absent reads
// as zero.
type Nutrients map[string]float64

// Get returns the amount for key, zero when it is not tracked.
func (n Nutrients) Get(key string) float64 {
	return n[key]
}

// Kcal is shorthand for the energy amount.
func (n Nutrients) Kcal() float64 { return n[EnergyKcal] }

// Scale returns a new vector with every field multiplied by factor.
func (n Nutrients) Scale(factor float64) Nutrients {
	out := make(Nutrients, len(n))
	for k, v := range n {
		out[k] = v * factor
	}
	return out
}

// Add accumulates other into n. Keys only present in other are created.
func (n Nutrients) Add(other Nutrients) {
	for k, v := range other {
		n[k] += v
	}
}

// Clone returns an independent copy of n.
func (n Nutrients) Clone() Nutrients {
	out := make(Nutrients, len(n))
	for k, v := range n {
		out[k] = v
	}
	return out
}

// Rounded returns a copy with every field rounded to one decimal, the
// precision used when amounts are shown to people.
func (n Nutrients) Rounded() Nutrients {
	out := make(Nutrients, len(n))
	for k, v := range n {
		out[k] = Round1(v)
	}
	return out
}

// Keys returns the tracked keys in a stable order: macros first, then
// micro nutrients alphabetically.
func (n Nutrients) Keys() []string {
	keys := make([]string, 0, len(n))
	seen := make(map[string]bool, len(MacroKeys))
	for _, k := range MacroKeys {
		if _, ok := n[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var micro []string
	for k := range n {
		if !seen[k] {
			micro = append(micro, k)
		}
	}
	sort.Strings(micro)
	return append(keys, micro...)
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// NutrientRecord is one row of the reference table: the canonical food name
// and its composition per 100 grams.
type NutrientRecord struct {
	CanonicalName string    `json:"name"`
	Per100g       Nutrients `json:"per_100g"`
}

// PlannedFoodItem is a resolved food placed in the weekly plan. Per100g is a
// snapshot of the reference row so the quantity can change without matching
// the description again.
type PlannedFoodItem struct {
	Name         string    `json:"name"`
	Grams        float64   `json:"grams"`
	Per100g      Nutrients `json:"per_100g"`
	Contribution Nutrients `json:"contribution"`
}

// NewPlannedFoodItem scales the record to the requested quantity.
func NewPlannedFoodItem(rec NutrientRecord, grams float64) PlannedFoodItem {
	return PlannedFoodItem{
		Name:         rec.CanonicalName,
		Grams:        grams,
		Per100g:      rec.Per100g.Clone(),
		Contribution: rec.Per100g.Scale(grams / 100),
	}
}

// WithGrams recomputes the item for a new quantity from its snapshot.
func (p PlannedFoodItem) WithGrams(grams float64) PlannedFoodItem {
	return NewPlannedFoodItem(NutrientRecord{CanonicalName: p.Name, Per100g: p.Per100g}, grams)
}
