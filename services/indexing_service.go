package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
)

// IndexStatus tells how the current index came to be.
type IndexStatus string

const (
	StatusLoadedFromCache IndexStatus = "loaded-from-cache"
	StatusRebuilt         IndexStatus = "rebuilt"
	StatusUnavailable     IndexStatus = "unavailable"
)

// DocumentSource supplies the reference library.
type DocumentSource interface {
	Documents(ctx context.Context) ([]models.Document, error)
}

// BuildResult reports what LoadOrBuild or Rebuild did. Index is nil when
// Status is StatusUnavailable.
type BuildResult struct {
	Index             vectorstore.Index
	Status            IndexStatus
	DocumentsEmbedded int
	ChunksEmbedded    int
	SkippedBatches    int
	SkippedChunks     int
	Elapsed           time.Duration
}

// IndexBuilderConfig tunes batching. Zero values take the defaults and
// negative durations turn the wait off.
type IndexBuilderConfig struct {
	BatchSize int           // chunks per embedding call, default 10
	Pause     time.Duration // minimum spacing between batches, default 4s
	Backoff   time.Duration // wait before the single retry, default 10s
}

const (
	defaultBatchSize = 10
	defaultPause     = 4 * time.Second
	defaultBackoff   = 10 * time.Second
)

// IndexBuilder turns the reference library into a persisted embedding index.
// Builds run one at a time; the store location is assumed to have no other
// writer.
type IndexBuilder struct {
	store    vectorstore.Store
	embedder Embedder
	chunker  *Chunker
	cfg      IndexBuilderConfig

	mu sync.Mutex
}

func NewIndexBuilder(store vectorstore.Store, embedder Embedder, chunker *Chunker, cfg IndexBuilderConfig) *IndexBuilder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	} else if cfg.Pause == 0 {
		cfg.Pause = defaultPause
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	} else if cfg.Backoff == 0 {
		cfg.Backoff = defaultBackoff
	}
	return &IndexBuilder{store: store, embedder: embedder, chunker: chunker, cfg: cfg}
}

// LoadOrBuild returns the persisted index when it is there and usable, without
// reading the documents. Otherwise it builds a new one from src.
func (b *IndexBuilder) LoadOrBuild(ctx context.Context, src DocumentSource) (BuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	idx, meta, err := b.store.Open(ctx, b.embedder.Model())
	switch {
	case err == nil:
		n, cerr := idx.Count(ctx)
		if cerr == nil {
			log.Info().Str("location", b.store.Location()).Int("chunks", n).Msg("index loaded from cache")
			return BuildResult{
				Index:             idx,
				Status:            StatusLoadedFromCache,
				DocumentsEmbedded: meta.Documents,
				ChunksEmbedded:    n,
				Elapsed:           time.Since(start),
			}, nil
		}
		log.Warn().Err(cerr).Str("location", b.store.Location()).Msg("persisted index unreadable, rebuilding")
	case errors.Is(err, vectorstore.ErrIndexNotFound):
		log.Info().Str("location", b.store.Location()).Msg("no persisted index, building")
	default:
		log.Warn().Err(err).Str("location", b.store.Location()).Msg("persisted index unusable, rebuilding")
	}
	return b.build(ctx, src)
}

// Rebuild re-embeds the whole library, replacing the persisted index.
func (b *IndexBuilder) Rebuild(ctx context.Context, src DocumentSource) (BuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.build(ctx, src)
}

func (b *IndexBuilder) build(ctx context.Context, src DocumentSource) (BuildResult, error) {
	start := time.Now()
	result := BuildResult{Status: StatusUnavailable}

	docs, err := src.Documents(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to read documents: %w", err)
	}
	if len(docs) == 0 {
		log.Warn().Msg("reference library is empty, retrieval disabled")
		return result, nil
	}
	chunks := b.chunker.ChunkAll(docs)
	if len(chunks) == 0 {
		log.Warn().Int("documents", len(docs)).Msg("documents produced no text, retrieval disabled")
		return result, nil
	}

	batches := (len(chunks) + b.cfg.BatchSize - 1) / b.cfg.BatchSize
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Int("batches", batches).Msg("embedding reference library")

	limit := rate.Inf
	if b.cfg.Pause > 0 {
		limit = rate.Every(b.cfg.Pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	var idx vectorstore.Index
	parents := make(map[string]struct{})
	for i := 0; i < batches; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return result, err
		}
		lo := i * b.cfg.BatchSize
		hi := min(lo+b.cfg.BatchSize, len(chunks))
		batch := chunks[lo:hi]

		vectors, err := b.embedWithRetry(ctx, batch, i+1, batches)
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err != nil {
			log.Error().Err(err).Int("batch", i+1).Int("chunks", len(batch)).Msg("batch skipped after retry")
			result.SkippedBatches++
			result.SkippedChunks += len(batch)
			continue
		}

		embedded := make([]models.Chunk, len(batch))
		for j, c := range batch {
			c.Vector = vectors[j]
			embedded[j] = c
		}
		if idx == nil {
			idx, err = b.store.Create(ctx, vectorstore.Meta{
				EmbeddingModel: b.embedder.Model(),
				Dimension:      len(vectors[0]),
			})
			if err != nil {
				return result, fmt.Errorf("failed to create index: %w", err)
			}
		}
		if err := idx.Add(ctx, embedded); err != nil {
			return result, fmt.Errorf("failed to add batch %d: %w", i+1, err)
		}
		result.ChunksEmbedded += len(embedded)
		for _, c := range embedded {
			parents[c.ParentID] = struct{}{}
		}
	}

	result.Elapsed = time.Since(start)
	if idx == nil {
		log.Error().Int("batches", batches).Msg("every batch failed, retrieval disabled")
		return result, nil
	}

	result.DocumentsEmbedded = len(parents)
	meta := vectorstore.Meta{EmbeddingModel: b.embedder.Model(), Documents: result.DocumentsEmbedded}
	if err := b.store.Persist(ctx, idx, meta); err != nil {
		return result, fmt.Errorf("failed to persist index: %w", err)
	}

	result.Index = idx
	result.Status = StatusRebuilt
	log.Info().
		Int("documents", result.DocumentsEmbedded).
		Int("chunks", result.ChunksEmbedded).
		Int("skipped_batches", result.SkippedBatches).
		Dur("elapsed", result.Elapsed).
		Str("location", b.store.Location()).
		Msg("index rebuilt")
	return result, nil
}

// embedWithRetry embeds one batch, retrying once after the backoff.
func (b *IndexBuilder) embedWithRetry(ctx context.Context, batch []models.Chunk, n, total int) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := b.embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	wait := retryBackoff(err, b.cfg.Backoff)
	log.Warn().Err(err).Int("batch", n).Int("of", total).Dur("backoff", wait).Msg("embedding batch failed, retrying")
	if err := sleep(ctx, wait); err != nil {
		return nil, err
	}
	return b.embed(ctx, texts)
}

func (b *IndexBuilder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("embedder returned an empty vector at position %d", i)
		}
	}
	return vectors, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
