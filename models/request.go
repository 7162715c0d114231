package models

// ChatRequest is the body of POST /sessions/:id/chat.
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}

// ImportPlanRequest is the body of POST /sessions/:id/plan/import. An empty
// text imports the session's current recommendation.
type ImportPlanRequest struct {
	Text string `json:"text"`
}

// AddFoodRequest places a reference food in a meal slot. Grams defaults to
// 100 when missing or not positive.
type AddFoodRequest struct {
	Food  string   `json:"food" binding:"required"`
	Grams Quantity `json:"grams"`
}

// ItemEdit is one row of a slot replacement: the item as currently planned
// and its new quantity.
type ItemEdit struct {
	Item  PlannedFoodItem `json:"item"`
	Grams Quantity        `json:"grams"`
}

// UpdateSlotRequest replaces the whole content of a meal slot.
type UpdateSlotRequest struct {
	Items []ItemEdit `json:"items"`
}
