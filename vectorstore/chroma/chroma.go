// Package chroma keeps the embedding index in a Chroma collection. Records
// are written through on Add, so Persist has nothing left to do.
package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"
	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
)

const (
	metaParent  = "parent_id"
	metaOrdinal = "ordinal"
	metaCorpus  = "corpus"
)

// Index is a view over one collection.
type Index struct {
	collection chromago.Collection
	corpus     string
}

func (x *Index) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ids := make([]chromago.DocumentID, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	embs := make([]embeddings.Embedding, 0, len(chunks))
	metas := make([]chromago.DocumentMetadata, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("chunk %s#%d has no vector", c.ParentID, c.Ordinal)
		}
		ids = append(ids, chromago.DocumentID(fmt.Sprintf("%s-chunk%d", uuid.New().String(), c.Ordinal)))
		texts = append(texts, c.Text)
		embs = append(embs, embeddings.NewEmbeddingFromFloat32(c.Vector))
		metas = append(metas, chromago.NewDocumentMetadata(
			chromago.NewStringAttribute(metaParent, c.ParentID),
			chromago.NewIntAttribute(metaOrdinal, int64(c.Ordinal)),
			chromago.NewStringAttribute(metaCorpus, x.corpus),
		))
	}
	err := x.collection.Add(ctx,
		chromago.WithIDs(ids...),
		chromago.WithTexts(texts...),
		chromago.WithEmbeddings(embs...),
		chromago.WithMetadatas(metas...),
	)
	if err != nil {
		return fmt.Errorf("failed to add %d chunks to chroma: %w", len(chunks), err)
	}
	return nil
}

func (x *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	n, err := x.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 || k == 0 {
		return nil, nil
	}
	if k < 0 || k > n {
		k = n
	}

	results, err := x.collection.Query(ctx,
		chromago.WithQueryEmbeddings(embeddings.NewEmbeddingFromFloat32(vector)),
		chromago.WithNResults(k),
	)
	if err != nil {
		return nil, fmt.Errorf("chroma query failed: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}

	hits := make([]vectorstore.Hit, 0, len(documentGroups[0]))
	for i, doc := range documentGroups[0] {
		chunk := models.Chunk{Text: doc.ContentString()}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) {
			chunk.ParentID, chunk.Ordinal = decodeMetadata(metadataGroups[0][i])
		}
		hit := vectorstore.Hit{Chunk: chunk}
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			// Cosine collections report 1 - similarity.
			hit.Score = 1 - float64(distanceGroups[0][i])
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (x *Index) Count(ctx context.Context) (int, error) {
	n, err := x.collection.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("chroma count failed: %w", err)
	}
	return int(n), nil
}

// decodeMetadata reads the chunk provenance back. The attribute types are
// not exposed directly, so it goes through JSON.
func decodeMetadata(meta chromago.DocumentMetadata) (string, int) {
	if meta == nil {
		return "", 0
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", 0
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", 0
	}
	parent, _ := m[metaParent].(string)
	ordinal, _ := m[metaOrdinal].(float64)
	return parent, int(ordinal)
}

// Store maps an embedding model to its own collection so vectors of
// different models never mix.
type Store struct {
	client chromago.Client
	base   string
}

// Dial connects to the Chroma server at baseURL, or the client default when
// baseURL is empty.
func Dial(baseURL string) (chromago.Client, error) {
	if baseURL == "" {
		return chromago.NewHTTPClient()
	}
	return chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
}

func NewStore(client chromago.Client, collection string) *Store {
	return &Store{client: client, base: collection}
}

func (s *Store) Location() string { return "chroma:" + s.base }

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CollectionName is the collection used for embeddingModel.
func (s *Store) CollectionName(embeddingModel string) string {
	model := strings.Trim(unsafeName.ReplaceAllString(embeddingModel, "-"), "-._")
	name := s.base
	if model != "" {
		name += "-" + model
	}
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "-._")
	}
	return name
}

func (s *Store) collection(ctx context.Context, embeddingModel string) (chromago.Collection, error) {
	name := s.CollectionName(embeddingModel)
	col, err := s.client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("description", "clinical nutrition reference library"),
				chromago.NewStringAttribute("embedding_model", embeddingModel),
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return col, nil
}

func (s *Store) Open(ctx context.Context, embeddingModel string) (vectorstore.Index, vectorstore.Meta, error) {
	meta := vectorstore.Meta{FormatVersion: vectorstore.FormatVersion, EmbeddingModel: embeddingModel}
	col, err := s.collection(ctx, embeddingModel)
	if err != nil {
		return nil, meta, err
	}
	idx := &Index{collection: col, corpus: s.base}
	n, err := idx.Count(ctx)
	if err != nil {
		return nil, meta, err
	}
	if n == 0 {
		return nil, meta, vectorstore.ErrIndexNotFound
	}
	return idx, meta, nil
}

// Create empties the model's collection before returning it.
func (s *Store) Create(ctx context.Context, meta vectorstore.Meta) (vectorstore.Index, error) {
	col, err := s.collection(ctx, meta.EmbeddingModel)
	if err != nil {
		return nil, err
	}
	idx := &Index{collection: col, corpus: s.base}
	n, err := idx.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		log.Info().Str("collection", s.CollectionName(meta.EmbeddingModel)).Int("records", n).Msg("clearing collection for rebuild")
		if err := col.Delete(ctx, chromago.WithWhereDelete(chromago.EqString(metaCorpus, s.base))); err != nil {
			return nil, fmt.Errorf("failed to clear collection: %w", err)
		}
	}
	return idx, nil
}

func (s *Store) Persist(context.Context, vectorstore.Index, vectorstore.Meta) error {
	return nil
}
