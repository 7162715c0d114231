package models

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultGrams is the portion assumed when a recommendation names a food
// without a usable quantity.
const DefaultGrams = 100.0

// DietEntry is one food extracted from a free-text recommendation, before
// it is matched against the reference table.
type DietEntry struct {
	Day           string  `json:"day"`
	Slot          string  `json:"meal"`
	Food          string  `json:"food"`
	QuantityGrams float64 `json:"grams"`
}

// Quantity is a gram amount as received from a person or a model: a JSON
// number, a numeric string ("150", "150 g", "1,5"), or null.
type Quantity struct {
	Raw   any
	Grams float64
	OK    bool
}

// UnmarshalJSON accepts numbers, numeric strings and null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	q.Raw = raw
	q.Grams, q.OK = ParseGrams(raw)
	return nil
}

// MarshalJSON writes the parsed amount, or null when it did not parse.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if !q.OK {
		return []byte("null"), nil
	}
	return json.Marshal(q.Grams)
}

// Positive reports whether the quantity parsed to a usable portion.
func (q Quantity) Positive() bool {
	return q.OK && q.Grams > 0
}

// GramsOf builds an already parsed Quantity.
func GramsOf(g float64) Quantity {
	return Quantity{Raw: g, Grams: g, OK: !math.IsNaN(g) && !math.IsInf(g, 0)}
}

var leadingNumber = regexp.MustCompile(`^[-+]?\d+(?:[.,]\d+)?`)

// ParseGrams converts a loosely typed amount to grams. Strings may carry a
// unit suffix and use a decimal comma. NaN and infinities never parse.
func ParseGrams(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		m := leadingNumber.FindString(strings.TrimSpace(t))
		if m == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
