package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Day is one of the seven fixed day labels of a weekly plan.
type Day string

// Slot is one of the five fixed meal-slot labels of a day.
type Slot string

const (
	Monday    Day = "Lunedì"
	Tuesday   Day = "Martedì"
	Wednesday Day = "Mercoledì"
	Thursday  Day = "Giovedì"
	Friday    Day = "Venerdì"
	Saturday  Day = "Sabato"
	Sunday    Day = "Domenica"
)

const (
	Breakfast      Slot = "Colazione"
	MorningSnack   Slot = "Spuntino Mattina"
	Lunch          Slot = "Pranzo"
	AfternoonSnack Slot = "Spuntino Pomeriggio"
	Dinner         Slot = "Cena"
)

// Days lists the day labels in week order.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Slots lists the meal slots in the order they are eaten.
var Slots = []Slot{Breakfast, MorningSnack, Lunch, AfternoonSnack, Dinner}

var (
	dayIndex  = make(map[string]Day, len(Days))
	slotIndex = make(map[string]Slot, len(Slots))
)

func init() {
	for _, d := range Days {
		dayIndex[Fold(string(d))] = d
	}
	for _, s := range Slots {
		slotIndex[Fold(string(s))] = s
	}
}

// ParseDay resolves a user or model supplied label to its canonical Day.
// Matching ignores case, accents and surrounding whitespace, so "lunedi"
// and "LUNEDÌ" both resolve to Monday.
func ParseDay(label string) (Day, bool) {
	d, ok := dayIndex[Fold(label)]
	return d, ok
}

// ParseSlot resolves a meal label to its canonical Slot.
func ParseSlot(label string) (Slot, bool) {
	s, ok := slotIndex[Fold(label)]
	return s, ok
}

// Valid reports whether d is one of the fixed day labels.
func (d Day) Valid() bool {
	for _, x := range Days {
		if x == d {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the fixed slot labels.
func (s Slot) Valid() bool {
	for _, x := range Slots {
		if x == s {
			return true
		}
	}
	return false
}

// Fold lower-cases s, strips accents and collapses runs of whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}
