package models

// FoodOption is one entry of the food picker.
type FoodOption struct {
	Name    string    `json:"name"`
	Label   string    `json:"label"`
	Per100g Nutrients `json:"per_100g"`
}

// SearchResponse lists the passages retrieved for a query.
type SearchResponse struct {
	Query    string             `json:"query"`
	Passages []RetrievedPassage `json:"passages"`
}

// SessionResponse describes a session without its plan.
type SessionResponse struct {
	ID             string         `json:"id"`
	Profile        PatientProfile `json:"profile"`
	History        []Message      `json:"history"`
	Recommendation string         `json:"recommendation"`
	PlannedItems   int            `json:"planned_items"`
}

// SlotView is the content of one meal slot.
type SlotView struct {
	Slot  Slot              `json:"slot"`
	Items []PlannedFoodItem `json:"items"`
}

// DayView is one day of the plan with its live totals.
type DayView struct {
	Day    Day        `json:"day"`
	Slots  []SlotView `json:"slots"`
	Totals Nutrients  `json:"totals"`
}

// PlanResponse is the whole week in label order.
type PlanResponse struct {
	Days          []DayView `json:"days"`
	WeeklyAverage Nutrients `json:"weekly_average"`
}

// TotalsResponse carries aggregates rounded for display.
type TotalsResponse struct {
	Day    Day       `json:"day,omitempty"`
	Totals Nutrients `json:"totals"`
}

// UpdateSlotResponse reports how many edits were dropped as invalid.
type UpdateSlotResponse struct {
	Items   []PlannedFoodItem `json:"items"`
	Dropped int               `json:"dropped"`
}
