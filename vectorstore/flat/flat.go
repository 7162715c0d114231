// Package flat is an in-memory brute-force cosine index persisted to a
// single bbolt file.
package flat

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mattiatonolo-png/nutri-ai-assistant/models"
	"github.com/mattiatonolo-png/nutri-ai-assistant/vectorstore"
)

var (
	metaBucket   = []byte("meta")
	chunksBucket = []byte("chunks")
	metaKey      = []byte("meta")
)

// Index holds every chunk and its vector in memory.
type Index struct {
	mu        sync.RWMutex
	dimension int
	chunks    []models.Chunk
}

// New returns an empty index. A dimension of zero is fixed by the first Add.
func New(dimension int) *Index {
	return &Index{dimension: dimension}
}

func (x *Index) Add(_ context.Context, chunks []models.Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	dim := x.dimension
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("chunk %s#%d has no vector", c.ParentID, c.Ordinal)
		}
		if dim == 0 {
			dim = len(c.Vector)
		}
		if len(c.Vector) != dim {
			return fmt.Errorf("%w: chunk %s#%d has %d, index has %d",
				vectorstore.ErrDimensionMismatch, c.ParentID, c.Ordinal, len(c.Vector), dim)
		}
	}
	x.dimension = dim
	x.chunks = append(x.chunks, chunks...)
	return nil
}

func (x *Index) Search(_ context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			vectorstore.ErrDimensionMismatch, len(vector), x.dimension)
	}
	return vectorstore.TopK(x.chunks, vector, k), nil
}

func (x *Index) Count(context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.chunks), nil
}

// Dimension is the vector size of the chunks held.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dimension
}

// Chunks returns the chunks in insertion order.
func (x *Index) Chunks() []models.Chunk {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]models.Chunk, len(x.chunks))
	copy(out, x.chunks)
	return out
}

// Store persists an Index at a fixed file path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Location() string { return s.path }

func (s *Store) Open(_ context.Context, embeddingModel string) (vectorstore.Index, vectorstore.Meta, error) {
	var meta vectorstore.Meta
	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, meta, vectorstore.ErrIndexNotFound
		}
		return nil, meta, err
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, meta, fmt.Errorf("open index file %s: %w", s.path, err)
	}
	defer db.Close()

	idx := New(0)
	err = db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(metaBucket)
		if mb == nil {
			return fmt.Errorf("%w: missing meta bucket", vectorstore.ErrIncompatible)
		}
		raw := mb.Get(metaKey)
		if raw == nil {
			return fmt.Errorf("%w: missing meta record", vectorstore.ErrIncompatible)
		}
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("%w: %v", vectorstore.ErrIncompatible, err)
		}
		if meta.FormatVersion != vectorstore.FormatVersion {
			return fmt.Errorf("%w: format version %d, want %d",
				vectorstore.ErrIncompatible, meta.FormatVersion, vectorstore.FormatVersion)
		}
		if meta.EmbeddingModel != embeddingModel {
			return fmt.Errorf("%w: built with %q, configured %q",
				vectorstore.ErrIncompatible, meta.EmbeddingModel, embeddingModel)
		}

		cb := tx.Bucket(chunksBucket)
		if cb == nil {
			return fmt.Errorf("%w: missing chunks bucket", vectorstore.ErrIncompatible)
		}
		idx.dimension = meta.Dimension
		// Keys are big-endian sequence numbers, so ForEach replays insertion order.
		return cb.ForEach(func(_, v []byte) error {
			var c models.Chunk
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("%w: %v", vectorstore.ErrIncompatible, err)
			}
			if len(c.Vector) != idx.dimension {
				return fmt.Errorf("%w: chunk %s#%d", vectorstore.ErrDimensionMismatch, c.ParentID, c.Ordinal)
			}
			idx.chunks = append(idx.chunks, c)
			return nil
		})
	})
	if err != nil {
		return nil, meta, err
	}
	return idx, meta, nil
}

// Create returns an empty index. The file on disk is only replaced by Persist.
func (s *Store) Create(_ context.Context, meta vectorstore.Meta) (vectorstore.Index, error) {
	return New(meta.Dimension), nil
}

// Persist writes idx to a temporary file next to the target and renames it
// into place, so a crash never leaves a half-written index behind.
func (s *Store) Persist(_ context.Context, idx vectorstore.Index, meta vectorstore.Meta) error {
	flat, ok := idx.(*Index)
	if !ok {
		return fmt.Errorf("flat store cannot persist %T", idx)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	meta.FormatVersion = vectorstore.FormatVersion
	if meta.Dimension == 0 {
		meta.Dimension = flat.Dimension()
	}
	chunks := flat.Chunks()

	tmp := s.path + ".tmp"
	_ = os.Remove(tmp)
	db, err := bolt.Open(tmp, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := mb.Put(metaKey, raw); err != nil {
			return err
		}

		cb, err := tx.CreateBucketIfNotExists(chunksBucket)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			seq, err := cb.NextSequence()
			if err != nil {
				return err
			}
			v, err := json.Marshal(c)
			if err != nil {
				return err
			}
			if err := cb.Put(itob(seq), v); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write index file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("move index into place: %w", err)
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
