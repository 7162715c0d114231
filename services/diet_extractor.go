package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// ErrNoStructuredPlan means the generation service did not return a usable
// JSON list of entries. It is distinct from an empty list, which means the
// text named no food.
var ErrNoStructuredPlan = errors.New("no structured diet plan in response")

// ErrExtractionUnavailable means the generation service could not be reached
// or refused the call, so no answer was there to parse.
var ErrExtractionUnavailable = errors.New("diet extraction service unavailable")

// extractedEntry is one element of the JSON list as the model writes it.
type extractedEntry struct {
	Day   string          `json:"day" validate:"required"`
	Meal  string          `json:"meal" validate:"required"`
	Food  string          `json:"food" validate:"required"`
	Grams models.Quantity `json:"grams"`
}

type extractedPlan struct {
	Entries []extractedEntry `validate:"dive"`
}

// DietExtractor turns a free-text recommendation into diet entries with a
// deterministic structured generation call.
type DietExtractor struct {
	generator Generator
	validate  *validator.Validate
}

func NewDietExtractor(generator Generator) *DietExtractor {
	return &DietExtractor{generator: generator, validate: validator.New()}
}

// Extract returns the entries named in recommendation. Quantities that are
// missing or not positive become DefaultGrams. An answer that is not a
// well-formed list is reported as ErrNoStructuredPlan and a failed call as
// ErrExtractionUnavailable; no partial result is returned.
func (d *DietExtractor) Extract(ctx context.Context, recommendation string) ([]models.DietEntry, error) {
	if strings.TrimSpace(recommendation) == "" {
		return []models.DietEntry{}, nil
	}
	raw, err := d.generator.GenerateStructured(ctx, DietExtractionInstruction(), recommendation)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
	}
	entries, err := d.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Int("response_len", len(raw)).Msg("diet extraction unparseable")
		return nil, err
	}
	log.Info().Int("entries", len(entries)).Msg("diet entries extracted")
	return entries, nil
}

// Parse decodes a model response: code fences are dropped, the first
// well-formed JSON list is decoded, and every element is validated.
func (d *DietExtractor) Parse(raw string) ([]models.DietEntry, error) {
	body := stripCodeFences(raw)

	var plan extractedPlan
	found := false
	for i := 0; i < len(body); i++ {
		if body[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(body[i:]))
		var entries []extractedEntry
		if err := dec.Decode(&entries); err != nil {
			continue
		}
		plan.Entries = entries
		found = true
		break
	}
	if !found {
		return nil, fmt.Errorf("%w: no JSON list found", ErrNoStructuredPlan)
	}
	if err := d.validate.Struct(plan); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredPlan, err)
	}

	out := make([]models.DietEntry, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		grams := models.DefaultGrams
		if e.Grams.Positive() {
			grams = e.Grams.Grams
		}
		out = append(out, models.DietEntry{
			Day:           strings.TrimSpace(e.Day),
			Slot:          strings.TrimSpace(e.Meal),
			Food:          strings.TrimSpace(e.Food),
			QuantityGrams: grams,
		})
	}
	return out, nil
}

// stripCodeFences removes markdown fence lines such as ```json and ```.
func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
