package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
)

// IndexReport is the state of the reference index as shown to operators.
// LastBuildFailed is set when the latest attempt produced no index and the
// previous one stayed in service.
type IndexReport struct {
	Status            IndexStatus `json:"status"`
	Location          string      `json:"location"`
	EmbeddingModel    string      `json:"embedding_model"`
	DocumentsEmbedded int         `json:"documents_embedded"`
	ChunksEmbedded    int         `json:"chunks_embedded"`
	SkippedBatches    int         `json:"skipped_batches"`
	SkippedChunks     int         `json:"skipped_chunks"`
	BuiltAt           time.Time   `json:"built_at"`
	Stale             bool        `json:"stale"`
	StaleReason       string      `json:"stale_reason,omitempty"`
	Building          bool        `json:"building"`
	LastBuildFailed   bool        `json:"last_build_failed"`
	LastBuildError    string      `json:"last_build_error,omitempty"`
}

// ErrBuildInProgress is returned when a load or rebuild is requested while
// another one is running.
var ErrBuildInProgress = errors.New("index build already in progress")

// KnowledgeBase ties the index builder to the retriever and remembers the
// outcome of the last build. The index is never rebuilt on its own: a
// changed library only marks it stale until an operator asks for a rebuild.
type KnowledgeBase struct {
	builder   *IndexBuilder
	source    DocumentSource
	retriever *Retriever
	location  string
	model     string

	mu       sync.RWMutex
	report   IndexReport
	building bool
	serving  bool
}

func NewKnowledgeBase(builder *IndexBuilder, source DocumentSource, retriever *Retriever) *KnowledgeBase {
	return &KnowledgeBase{
		builder:   builder,
		source:    source,
		retriever: retriever,
		location:  builder.store.Location(),
		model:     builder.embedder.Model(),
		report:    IndexReport{Status: StatusUnavailable},
	}
}

// Load opens the persisted index or builds it.
func (k *KnowledgeBase) Load(ctx context.Context) (IndexReport, error) {
	return k.run(ctx, k.builder.LoadOrBuild)
}

// Rebuild re-embeds the library. Retrieval keeps using the previous index
// until the new one is ready, and keeps it when the rebuild yields nothing.
func (k *KnowledgeBase) Rebuild(ctx context.Context) (IndexReport, error) {
	return k.run(ctx, k.builder.Rebuild)
}

func (k *KnowledgeBase) run(ctx context.Context, build func(context.Context, DocumentSource) (BuildResult, error)) (IndexReport, error) {
	k.mu.Lock()
	if k.building {
		k.mu.Unlock()
		return k.Report(), ErrBuildInProgress
	}
	k.building = true
	k.mu.Unlock()

	res, err := build(ctx, k.source)

	k.mu.Lock()
	defer k.mu.Unlock()
	k.building = false
	if err != nil {
		k.report.LastBuildFailed = true
		k.report.LastBuildError = err.Error()
		return k.snapshotLocked(), err
	}
	if res.Status == StatusUnavailable && k.serving {
		log.Warn().
			Int("skipped_batches", res.SkippedBatches).
			Msg("index build produced nothing, previous index kept")
		k.report.LastBuildFailed = true
		k.report.LastBuildError = "no chunk could be embedded"
		return k.snapshotLocked(), nil
	}
	k.retriever.SetIndex(res.Index)
	k.serving = res.Index != nil
	k.report = IndexReport{
		Status:            res.Status,
		Location:          k.location,
		EmbeddingModel:    k.model,
		DocumentsEmbedded: res.DocumentsEmbedded,
		ChunksEmbedded:    res.ChunksEmbedded,
		SkippedBatches:    res.SkippedBatches,
		SkippedChunks:     res.SkippedChunks,
		BuiltAt:           time.Now(),
	}
	return k.snapshotLocked(), nil
}

// MarkStale records that the library changed after the index was built.
func (k *KnowledgeBase) MarkStale(reason string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.report.Stale {
		log.Warn().Str("reason", reason).Msg("reference library changed, index may be stale until rebuilt")
	}
	k.report.Stale = true
	k.report.StaleReason = reason
}

// Report returns the current index state.
func (k *KnowledgeBase) Report() IndexReport {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.snapshotLocked()
}

func (k *KnowledgeBase) snapshotLocked() IndexReport {
	r := k.report
	r.Location = k.location
	r.EmbeddingModel = k.model
	r.Building = k.building
	return r
}

// Retrieve delegates to the retriever.
func (k *KnowledgeBase) Retrieve(ctx context.Context, query string, topK int) ([]models.RetrievedPassage, error) {
	return k.retriever.Retrieve(ctx, query, topK)
}
