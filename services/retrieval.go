package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
)

// DefaultTopK is how many passages a chat turn retrieves.
const DefaultTopK = 5

// Retriever answers similarity queries against the current index. It has no
// index until SetIndex is called, and then returns no passages.
type Retriever struct {
	embedder Embedder

	mu    sync.RWMutex
	index vectorstore.Index
}

func NewRetriever(embedder Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// SetIndex swaps the index queries run against. nil disables retrieval.
func (r *Retriever) SetIndex(idx vectorstore.Index) {
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()
}

func (r *Retriever) current() vectorstore.Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index
}

// Retrieve returns up to k passages most similar to query, best first, with
// ranks starting at 1. Without an index the result is empty.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	idx := r.current()
	if idx == nil || k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := idx.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	passages := make([]models.RetrievedPassage, len(hits))
	for i, h := range hits {
		passages[i] = models.RetrievedPassage{
			SourceID: h.Chunk.ParentID,
			Text:     h.Chunk.Text,
			Rank:     i + 1,
			Score:    h.Score,
		}
	}
	return passages, nil
}

// AugmentQuery appends the profile keywords to the request so retrieval
// leans toward passages about the patient's conditions and goal.
func AugmentQuery(request string, profile models.PatientProfile) string {
	request = strings.TrimSpace(request)
	kw := profile.Keywords()
	if len(kw) == 0 {
		return request
	}
	return request + "\n" + strings.Join(kw, ", ")
}
