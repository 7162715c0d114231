package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/ledger"
	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// ErrFoodNotFound is returned when a food name resolves to no reference row.
var ErrFoodNotFound = errors.New("food not found in nutrient table")

// ImportReport is the outcome of reconciling one recommendation into a plan.
// Unmatched lists food descriptions with no reference row; Rejected lists
// entries whose day or meal label is not part of the week. ParseFailed and
// GenerationFailed tell an unreadable answer apart from a failed call.
type ImportReport struct {
	Extracted        int      `json:"extracted"`
	Imported         int      `json:"imported"`
	Unmatched        []string `json:"unmatched"`
	Rejected         []string `json:"rejected"`
	ParseFailed      bool     `json:"parse_failed"`
	GenerationFailed bool     `json:"generation_failed"`
	Detail           string   `json:"detail,omitempty"`
}

// Planner runs the extraction, matching and ledger steps that turn a
// recommendation into planned food items.
type Planner struct {
	extractor *DietExtractor
	matcher   *FoodMatcher
}

func NewPlanner(extractor *DietExtractor, matcher *FoodMatcher) *Planner {
	return &Planner{extractor: extractor, matcher: matcher}
}

// Matcher exposes the food matcher used by the planner.
func (p *Planner) Matcher() *FoodMatcher { return p.matcher }

// Import extracts entries from recommendation and appends every resolvable
// one to plan. A failed extraction leaves plan untouched and returns the
// report together with an error wrapping ErrNoStructuredPlan or
// ErrExtractionUnavailable. Entries that
// cannot be matched or placed are skipped and listed in the report.
func (p *Planner) Import(ctx context.Context, plan *ledger.WeeklyPlan, recommendation string) (ImportReport, error) {
	report := ImportReport{Unmatched: []string{}, Rejected: []string{}}

	entries, err := p.extractor.Extract(ctx, recommendation)
	if err != nil {
		report.ParseFailed = errors.Is(err, ErrNoStructuredPlan)
		report.GenerationFailed = errors.Is(err, ErrExtractionUnavailable)
		report.Detail = err.Error()
		return report, err
	}
	report.Extracted = len(entries)

	for _, e := range entries {
		day, okDay := models.ParseDay(e.Day)
		slot, okSlot := models.ParseSlot(e.Slot)
		if !okDay || !okSlot {
			report.Rejected = append(report.Rejected, fmt.Sprintf("%s (%s, %s)", e.Food, e.Day, e.Slot))
			continue
		}
		rec, ok := p.matcher.Match(e.Food)
		if !ok {
			report.Unmatched = append(report.Unmatched, e.Food)
			continue
		}
		if err := plan.Add(day, slot, models.NewPlannedFoodItem(rec, e.QuantityGrams)); err != nil {
			report.Rejected = append(report.Rejected, fmt.Sprintf("%s (%s, %s)", e.Food, e.Day, e.Slot))
			continue
		}
		report.Imported++
	}

	log.Info().
		Int("extracted", report.Extracted).
		Int("imported", report.Imported).
		Int("unmatched", len(report.Unmatched)).
		Int("rejected", len(report.Rejected)).
		Msg("recommendation imported into weekly plan")
	return report, nil
}

// AddFood places a reference food chosen by name. Exact canonical names are
// preferred over fuzzy matches, and a missing or non-positive quantity
// becomes DefaultGrams.
func (p *Planner) AddFood(plan *ledger.WeeklyPlan, day models.Day, slot models.Slot, food string, grams models.Quantity) (models.PlannedFoodItem, error) {
	rec, ok := p.matcher.Resolve(food)
	if !ok {
		return models.PlannedFoodItem{}, fmt.Errorf("%w: %q", ErrFoodNotFound, food)
	}
	g := models.DefaultGrams
	if grams.Positive() {
		g = grams.Grams
	}
	item := models.NewPlannedFoodItem(rec, g)
	if err := plan.Add(day, slot, item); err != nil {
		return models.PlannedFoodItem{}, err
	}
	return item, nil
}
