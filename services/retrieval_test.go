package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore/flat"
)

func TestRetriever_NoIndexYieldsNothing(t *testing.T) {
	r := NewRetriever(&letterEmbedder{})
	got, err := r.Retrieve(context.Background(), "sodio", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetriever_RanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	emb := &letterEmbedder{}
	idx := flat.New(0)
	require.NoError(t, idx.Add(ctx, []models.Chunk{
		{ParentID: "a.pdf", Ordinal: 0, Text: "proteine", Vector: letterVector("proteine")},
		{ParentID: "b.pdf", Ordinal: 0, Text: "sodio sale", Vector: letterVector("sodio sale")},
		{ParentID: "b.pdf", Ordinal: 1, Text: "potassio", Vector: letterVector("potassio")},
	}))

	r := NewRetriever(emb)
	r.SetIndex(idx)

	got, err := r.Retrieve(ctx, "sodio e sale", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.pdf", got[0].SourceID)
	assert.Equal(t, "sodio sale", got[0].Text)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, 2, got[1].Rank)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)

	none, err := r.Retrieve(ctx, "   ", 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	r.SetIndex(nil)
	none, err = r.Retrieve(ctx, "sodio", 2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAugmentQuery(t *testing.T) {
	p := models.PatientProfile{Conditions: []string{"Ipertensione"}, Goal: "Perdita Peso"}
	assert.Equal(t, "dieta settimanale\nIpertensione, Perdita Peso", AugmentQuery(" dieta settimanale ", p))
	assert.Equal(t, "dieta", AugmentQuery("dieta", models.PatientProfile{}))
}

func TestKnowledgeBase_LoadAndStaleness(t *testing.T) {
	ctx := context.Background()
	emb := &letterEmbedder{}
	store := flat.NewStore(filepath.Join(t.TempDir(), "index.db"))
	kb := NewKnowledgeBase(newTestBuilder(store, emb), library(), NewRetriever(emb))

	assert.Equal(t, StatusUnavailable, kb.Report().Status)

	rep, err := kb.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRebuilt, rep.Status)
	assert.Equal(t, "letters-v1", rep.EmbeddingModel)
	assert.Equal(t, store.Location(), rep.Location)
	assert.False(t, rep.Stale)

	passages, err := kb.Retrieve(ctx, "indice glicemico", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "diabete.pdf", passages[0].SourceID)

	kb.MarkStale("nuovo.pdf created")
	rep = kb.Report()
	assert.True(t, rep.Stale)
	assert.Equal(t, "nuovo.pdf created", rep.StaleReason)

	rep, err = kb.Rebuild(ctx)
	require.NoError(t, err)
	assert.False(t, rep.Stale, "a rebuild clears the stale flag")
	assert.Equal(t, StatusRebuilt, rep.Status)
}

func TestKnowledgeBase_FailedRebuildKeepsServingIndex(t *testing.T) {
	ctx := context.Background()
	emb := &letterEmbedder{}
	path := filepath.Join(t.TempDir(), "index.db")
	kb := NewKnowledgeBase(newTestBuilder(flat.NewStore(path), emb), library(), NewRetriever(emb))

	first, err := kb.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusRebuilt, first.Status)

	emb.mu.Lock()
	emb.fail = map[int]bool{}
	for i := emb.calls + 1; i <= emb.calls+100; i++ {
		emb.fail[i] = true
	}
	emb.mu.Unlock()

	rep, err := kb.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusRebuilt, rep.Status, "the report still describes the index in service")
	assert.Equal(t, first.ChunksEmbedded, rep.ChunksEmbedded)
	assert.True(t, rep.LastBuildFailed)
	assert.NotEmpty(t, rep.LastBuildError)

	passages, err := kb.Retrieve(ctx, "sodio potassio", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "ipertensione.pdf", passages[0].SourceID)

	// After a restart the same index comes back from disk.
	emb2 := &letterEmbedder{}
	reopened := NewKnowledgeBase(newTestBuilder(flat.NewStore(path), emb2), library(), NewRetriever(emb2))
	rep, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusLoadedFromCache, rep.Status)
	assert.Equal(t, first.ChunksEmbedded, rep.ChunksEmbedded)

	rep, err = kb.Rebuild(ctx)
	require.NoError(t, err)
	assert.False(t, rep.LastBuildFailed, "a successful rebuild clears the failure")
}

// gatedSource blocks Documents until released.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
	inner   *staticSource
}

func (s *gatedSource) Documents(ctx context.Context) ([]models.Document, error) {
	close(s.started)
	<-s.release
	return s.inner.Documents(ctx)
}

func TestKnowledgeBase_ConcurrentRebuildIsRefused(t *testing.T) {
	ctx := context.Background()
	emb := &letterEmbedder{}
	src := &gatedSource{started: make(chan struct{}), release: make(chan struct{}), inner: library()}
	kb := NewKnowledgeBase(newTestBuilder(flat.NewStore(filepath.Join(t.TempDir(), "index.db")), emb), src, NewRetriever(emb))

	done := make(chan error, 1)
	go func() {
		_, err := kb.Rebuild(ctx)
		done <- err
	}()
	<-src.started

	assert.True(t, kb.Report().Building)
	_, err := kb.Rebuild(ctx)
	assert.ErrorIs(t, err, ErrBuildInProgress)

	close(src.release)
	require.NoError(t, <-done)
	assert.False(t, kb.Report().Building)
	assert.Equal(t, StatusRebuilt, kb.Report().Status)
}
