// Package ledger holds the weekly meal plan: seven days of five meal slots,
// each an ordered list of resolved foods, with nutrient totals derived on
// demand from the items currently present.
package ledger

import (
	"errors"
	"fmt"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

var (
	ErrUnknownDay   = errors.New("unknown day label")
	ErrUnknownSlot  = errors.New("unknown meal slot label")
	ErrItemNotFound = errors.New("item index out of range")
)

// WeeklyPlan is not safe for concurrent use. Sessions serialize access.
type WeeklyPlan struct {
	days map[models.Day]map[models.Slot][]models.PlannedFoodItem
}

// Edit is one row of a replacement list passed to Update: an existing item
// and the quantity it should now have.
type Edit struct {
	Item  models.PlannedFoodItem
	Grams models.Quantity
}

// Snapshot is a deep copy of the plan contents, suitable for persistence.
type Snapshot map[models.Day]map[models.Slot][]models.PlannedFoodItem

// New returns a plan with every day and slot present and empty.
func New() *WeeklyPlan {
	p := &WeeklyPlan{}
	p.Reset()
	return p
}

// Reset empties the whole week.
func (p *WeeklyPlan) Reset() {
	p.days = make(map[models.Day]map[models.Slot][]models.PlannedFoodItem, len(models.Days))
	for _, d := range models.Days {
		p.resetDay(d)
	}
}

func (p *WeeklyPlan) resetDay(day models.Day) {
	slots := make(map[models.Slot][]models.PlannedFoodItem, len(models.Slots))
	for _, s := range models.Slots {
		slots[s] = []models.PlannedFoodItem{}
	}
	p.days[day] = slots
}

func check(day models.Day, slot models.Slot) error {
	if !day.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDay, day)
	}
	if !slot.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
	}
	return nil
}

// Add appends item to the given day and slot.
func (p *WeeklyPlan) Add(day models.Day, slot models.Slot, item models.PlannedFoodItem) error {
	if err := check(day, slot); err != nil {
		return err
	}
	p.days[day][slot] = append(p.days[day][slot], item)
	return nil
}

// Update replaces the contents of a slot. Every edit is recomputed from the
// item's per-100g snapshot at its new quantity; edits whose quantity is not a
// positive number are left out. It returns how many edits were dropped.
func (p *WeeklyPlan) Update(day models.Day, slot models.Slot, edits []Edit) (int, error) {
	if err := check(day, slot); err != nil {
		return 0, err
	}
	items := make([]models.PlannedFoodItem, 0, len(edits))
	dropped := 0
	for _, e := range edits {
		if !e.Grams.Positive() {
			dropped++
			continue
		}
		items = append(items, e.Item.WithGrams(e.Grams.Grams))
	}
	p.days[day][slot] = items
	return dropped, nil
}

// Remove drops the item at index from a slot, keeping the others as they are.
func (p *WeeklyPlan) Remove(day models.Day, slot models.Slot, index int) error {
	if err := check(day, slot); err != nil {
		return err
	}
	current := p.days[day][slot]
	if index < 0 || index >= len(current) {
		return fmt.Errorf("%w: %d", ErrItemNotFound, index)
	}
	edits := make([]Edit, 0, len(current)-1)
	for i, it := range current {
		if i == index {
			continue
		}
		edits = append(edits, Edit{Item: it, Grams: models.GramsOf(it.Grams)})
	}
	_, err := p.Update(day, slot, edits)
	return err
}

// ClearDay empties every slot of day.
func (p *WeeklyPlan) ClearDay(day models.Day) error {
	if !day.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDay, day)
	}
	p.resetDay(day)
	return nil
}

// Items returns a copy of the items in a slot; nil for unknown labels.
func (p *WeeklyPlan) Items(day models.Day, slot models.Slot) []models.PlannedFoodItem {
	if check(day, slot) != nil {
		return nil
	}
	src := p.days[day][slot]
	out := make([]models.PlannedFoodItem, len(src))
	copy(out, src)
	return out
}

// Len counts the items planned across the whole week.
func (p *WeeklyPlan) Len() int {
	n := 0
	for _, slots := range p.days {
		for _, items := range slots {
			n += len(items)
		}
	}
	return n
}

func zeroTotals() models.Nutrients {
	t := make(models.Nutrients, len(models.MacroKeys))
	for _, k := range models.MacroKeys {
		t[k] = 0
	}
	return t
}

// DailyTotals sums every nutrient over all slots and items of day.
func (p *WeeklyPlan) DailyTotals(day models.Day) models.Nutrients {
	totals := zeroTotals()
	for _, slot := range models.Slots {
		for _, it := range p.days[day][slot] {
			totals.Add(it.Contribution)
		}
	}
	return totals
}

// WeeklyAverage is the mean of the seven daily totals.
func (p *WeeklyPlan) WeeklyAverage() models.Nutrients {
	sum := zeroTotals()
	for _, d := range models.Days {
		sum.Add(p.DailyTotals(d))
	}
	return sum.Scale(1 / float64(len(models.Days)))
}

// Snapshot returns a deep copy of the plan.
func (p *WeeklyPlan) Snapshot() Snapshot {
	out := make(Snapshot, len(p.days))
	for _, d := range models.Days {
		out[d] = make(map[models.Slot][]models.PlannedFoodItem, len(models.Slots))
		for _, s := range models.Slots {
			out[d][s] = p.Items(d, s)
		}
	}
	return out
}

// Restore replaces the plan with snap. Unknown labels in snap are ignored
// and missing days or slots come back empty.
func (p *WeeklyPlan) Restore(snap Snapshot) {
	p.Reset()
	for d, slots := range snap {
		if !d.Valid() {
			continue
		}
		for s, items := range slots {
			if !s.Valid() {
				continue
			}
			cp := make([]models.PlannedFoodItem, len(items))
			copy(cp, items)
			p.days[d][s] = cp
		}
	}
}
