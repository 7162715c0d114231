package services

import (
	"google.golang.org/genai"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// DietPlanSchema is the response schema for diet extraction: a list of
// entries whose day and meal are restricted to the week's labels.
func DietPlanSchema() *genai.Schema {
	days := make([]string, len(models.Days))
	for i, d := range models.Days {
		days[i] = string(d)
	}
	slots := make([]string, len(models.Slots))
	for i, s := range models.Slots {
		slots[i] = string(s)
	}

	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"day": {
					Type:        genai.TypeString,
					Description: "Day of the week the food is planned for.",
					Enum:        days,
				},
				"meal": {
					Type:        genai.TypeString,
					Description: "Meal slot of the day.",
					Enum:        slots,
				},
				"food": {
					Type:        genai.TypeString,
					Description: "Food as named in the recommendation, without the quantity.",
				},
				"grams": {
					Type:        genai.TypeNumber,
					Description: "Portion in grams. Use 100 when the text gives no quantity.",
					Nullable:    genai.Ptr(true),
				},
			},
			Required:         []string{"day", "meal", "food"},
			PropertyOrdering: []string{"day", "meal", "food", "grams"},
		},
	}
}
