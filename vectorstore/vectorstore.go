// Package vectorstore defines the embedding index used for retrieval and the
// store that persists it between runs. Backends live in subpackages.
package vectorstore

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// FormatVersion is bumped whenever the persisted layout changes. An index
// written with another version is not loaded.
const FormatVersion = 1

var (
	// ErrIndexNotFound means nothing has been persisted at the store location.
	ErrIndexNotFound = errors.New("index not found")
	// ErrIncompatible means the persisted index was built with another format
	// version or embedding model and must be rebuilt.
	ErrIncompatible = errors.New("persisted index is incompatible")
	// ErrDimensionMismatch is returned when vectors of different sizes meet.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Meta describes how an index was built.
type Meta struct {
	FormatVersion  int    `json:"format_version"`
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	Documents      int    `json:"documents"`
}

// Hit is a chunk found by Search with its cosine similarity to the query.
type Hit struct {
	Chunk models.Chunk
	Score float64
}

// Index is an ordered set of embedded chunks.
type Index interface {
	// Add merges chunks into the index. Every chunk must carry a vector.
	Add(ctx context.Context, chunks []models.Chunk) error
	// Search returns up to k chunks by descending similarity. Equal scores
	// keep insertion order.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Count is the number of chunks held.
	Count(ctx context.Context) (int, error)
}

// Store owns the fixed location an index is persisted to.
type Store interface {
	// Open loads the persisted index. It returns ErrIndexNotFound when
	// nothing is there and ErrIncompatible when it was built with another
	// embedding model or format version.
	Open(ctx context.Context, embeddingModel string) (Index, Meta, error)
	// Create starts a new empty index that supersedes the persisted one.
	// Backends may drop the old contents right away or only on Persist.
	Create(ctx context.Context, meta Meta) (Index, error)
	// Persist makes idx the index Open returns from now on.
	Persist(ctx context.Context, idx Index, meta Meta) error
	// Location describes where the index lives, for logs and status.
	Location() string
}

// Cosine returns the cosine similarity of a and b, zero when either is a
// zero vector.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK ranks chunks against query and keeps the best k. The sort is stable
// so ties resolve to the chunk added first.
func TopK(chunks []models.Chunk, query []float32, k int) []Hit {
	hits := make([]Hit, len(chunks))
	for i, c := range chunks {
		hits[i] = Hit{Chunk: c, Score: Cosine(c.Vector, query)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if k >= 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits
}
