package models

// Document is a source file of the reference library after text extraction.
type Document struct {
	ID   string `json:"id"`
	Path string `json:"path,omitempty"`
	Text string `json:"-"`
}

// Chunk is a bounded window of a document's text, the unit of embedding.
// Ordinal is the window's position inside its parent document.
type Chunk struct {
	ParentID string    `json:"parent_id"`
	Ordinal  int       `json:"ordinal"`
	Text     string    `json:"text"`
	Vector   []float32 `json:"vector,omitempty"`
}

// RetrievedPassage is a chunk returned for a query, ranked from 1.
type RetrievedPassage struct {
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Rank     int     `json:"rank"`
	Score    float64 `json:"score"`
}
