package flat

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
)

func sampleChunks() []models.Chunk {
	return []models.Chunk{
		{ParentID: "larn.pdf", Ordinal: 0, Text: "proteine", Vector: []float32{1, 0, 0}},
		{ParentID: "larn.pdf", Ordinal: 1, Text: "carboidrati", Vector: []float32{0, 1, 0}},
		{ParentID: "diabete.pdf", Ordinal: 0, Text: "indice glicemico", Vector: []float32{0.7, 0.7, 0}},
		{ParentID: "diabete.pdf", Ordinal: 1, Text: "copia", Vector: []float32{0, 1, 0}},
	}
}

func TestIndex_SearchOrdersByCosineAndKeepsInsertionOrderOnTies(t *testing.T) {
	ctx := context.Background()
	idx := New(0)
	require.NoError(t, idx.Add(ctx, sampleChunks()))

	hits, err := idx.Search(ctx, []float32{0, 2, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "carboidrati", hits[0].Chunk.Text)
	assert.Equal(t, "copia", hits[1].Chunk.Text, "equal score resolves to the earlier chunk first")
	assert.Equal(t, "indice glicemico", hits[2].Chunk.Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestIndex_Errors(t *testing.T) {
	ctx := context.Background()
	idx := New(3)

	err := idx.Add(ctx, []models.Chunk{{ParentID: "a", Vector: []float32{1, 2}}})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	err = idx.Add(ctx, []models.Chunk{{ParentID: "a"}})
	assert.Error(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits, "empty index yields no hits")

	require.NoError(t, idx.Add(ctx, sampleChunks()[:1]))
	_, err = idx.Search(ctx, []float32{1, 0}, 5)
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestStore_PersistAndReloadReproducesIndex(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	store := NewStore(path)

	_, _, err := store.Open(ctx, "test-model")
	require.ErrorIs(t, err, vectorstore.ErrIndexNotFound)

	idx, err := store.Create(ctx, vectorstore.Meta{EmbeddingModel: "test-model"})
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, sampleChunks()))
	require.NoError(t, store.Persist(ctx, idx, vectorstore.Meta{EmbeddingModel: "test-model", Documents: 2}))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	loaded, meta, err := store.Open(ctx, "test-model")
	require.NoError(t, err)
	assert.Equal(t, vectorstore.FormatVersion, meta.FormatVersion)
	assert.Equal(t, 3, meta.Dimension)
	assert.Equal(t, 2, meta.Documents)

	n, err := loaded.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, sampleChunks(), loaded.(*Index).Chunks())

	query := []float32{0.6, 0.8, 0}
	want, err := idx.Search(ctx, query, 1)
	require.NoError(t, err)
	got, err := loaded.Search(ctx, query, 1)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStore_OpenRejectsOtherModel(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "index.db"))
	idx := New(0)
	require.NoError(t, idx.Add(ctx, sampleChunks()))
	require.NoError(t, store.Persist(ctx, idx, vectorstore.Meta{EmbeddingModel: "model-a"}))

	_, _, err := store.Open(ctx, "model-b")
	assert.ErrorIs(t, err, vectorstore.ErrIncompatible)
}

func TestStore_OpenCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	require.NoError(t, os.WriteFile(path, []byte("not a bolt file"), 0o600))

	_, _, err := NewStore(path).Open(context.Background(), "m")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, vectorstore.ErrIndexNotFound)
}
