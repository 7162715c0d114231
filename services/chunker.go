package services

import (
	"iter"
	"strings"

	"github.com/phuslu/log"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 2000
	// DefaultChunkOverlap is how many characters consecutive chunks share.
	DefaultChunkOverlap = 200
)

// Chunking strategies.
const (
	StrategyWindow    = "window"
	StrategyRecursive = "recursive"
)

// Chunker splits document text into overlapping segments.
type Chunker struct {
	size     int
	overlap  int
	strategy string
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the target length. Non-positive sizes are ignored.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithChunkOverlap sets the overlap. Negative values are ignored.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// WithStrategy selects "window" (fixed windows, the default) or
// "recursive" (separator-aware splitting).
func WithStrategy(strategy string) ChunkerOption {
	return func(c *Chunker) {
		switch s := strings.ToLower(strategy); s {
		case StrategyWindow, StrategyRecursive:
			c.strategy = s
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		size:     DefaultChunkSize,
		overlap:  DefaultChunkOverlap,
		strategy: StrategyWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks yields the chunks of doc in reading order. The sequence is lazy and
// can be ranged over more than once with the same result. Empty text yields
// nothing.
//
// With the window strategy every chunk but the last is exactly Size runes,
// and each chunk after the first starts with the last Overlap runes of the
// previous one, so the first chunk followed by every later chunk minus its
// first Overlap runes spells the original text.
func (c *Chunker) Chunks(doc models.Document) iter.Seq[models.Chunk] {
	if c.strategy == StrategyRecursive {
		return c.recursive(doc)
	}
	return c.window(doc)
}

func (c *Chunker) window(doc models.Document) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		text := []rune(doc.Text)
		n := len(text)
		if n == 0 {
			return
		}
		for start, ordinal := 0, 0; ; ordinal++ {
			end := min(start+c.size, n)
			chunk := models.Chunk{ParentID: doc.ID, Ordinal: ordinal, Text: string(text[start:end])}
			if !yield(chunk) {
				return
			}
			if end == n {
				return
			}
			start = end - c.overlap
		}
	}
}

func (c *Chunker) recursive(doc models.Document) iter.Seq[models.Chunk] {
	return func(yield func(models.Chunk) bool) {
		if doc.Text == "" {
			return
		}
		splitter := textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(c.size),
			textsplitter.WithChunkOverlap(c.overlap),
		)
		parts, err := splitter.SplitText(doc.Text)
		if err != nil {
			log.Warn().Err(err).Str("document", doc.ID).Msg("recursive split failed, document skipped")
			return
		}
		ordinal := 0
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				continue
			}
			if !yield(models.Chunk{ParentID: doc.ID, Ordinal: ordinal, Text: p}) {
				return
			}
			ordinal++
		}
	}
}

// ChunkAll collects the chunks of every document in order.
func (c *Chunker) ChunkAll(docs []models.Document) []models.Chunk {
	var out []models.Chunk
	for _, d := range docs {
		for ch := range c.Chunks(d) {
			out = append(out, ch)
		}
	}
	return out
}
