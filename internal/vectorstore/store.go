// Package vectorstore keeps chunk texts and metadata alongside their embeddings and answers
// exact cosine-similarity queries over them. Entries are append-only; the whole store can be
// cleared or rebuilt, but single entries are never updated or removed.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/ragkb/internal/embedding"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/vector"
	"github.com/hyperjump/ragkb/pkg/utils"
	"go.uber.org/zap"
)

// Options configure a Store.
type Options struct {
	// Path is the artifact base path. Empty keeps the store in memory only.
	Path               string
	IndexType          string
	AllowModelMismatch bool
	Workers            int
	BatchSize          int
	EncodeTimeout      time.Duration
	Logger             *zap.Logger
}

// Stats describes the store contents.
type Stats struct {
	TotalVectors  int    `json:"total_vectors"`
	TotalTexts    int    `json:"total_texts"`
	TotalMetadata int    `json:"total_metadata"`
	Dimension     int    `json:"dimension"`
	ModelName     string `json:"model_name"`
	IndexType     string `json:"index_type"`
	Generation    uint64 `json:"generation"`
}

// Store is the vector index. Add, Clear and Rebuild take the write lock; Search and Stats
// take the read lock. Encoding always runs outside the lock.
type Store struct {
	opts    Options
	encoder embedding.Encoder
	pool    *embedding.Pool
	logger  *zap.Logger

	// newIndex builds the similarity structure; tests replace it.
	newIndex func(indexType string, dimensions int) (vector.Index, error)

	mu         sync.RWMutex
	index      vector.Index
	texts      []string
	metas      []models.Metadata
	generation uint64
}

// New creates an empty store bound to enc. It does not read any artifacts.
func New(enc embedding.Encoder, opts Options) (*Store, error) {
	if enc == nil {
		return nil, errors.New("vectorstore: encoder is required")
	}
	s := &Store{
		opts:     opts,
		encoder:  enc,
		pool:     embedding.NewPool(enc, opts.Workers, opts.BatchSize, opts.EncodeTimeout),
		logger:   utils.LoggerOrNop(opts.Logger),
		newIndex: vector.NewIndex,
	}
	idx, err := s.newIndex(opts.IndexType, enc.Dimensions())
	if err != nil {
		return nil, err
	}
	s.index = idx
	return s, nil
}

// Open creates a store and loads persisted artifacts. Load failures never fail Open: the store
// starts empty and the reason is logged.
func Open(enc embedding.Encoder, opts Options) (*Store, error) {
	s, err := New(enc, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Load(); err != nil {
		if errors.Is(err, ErrModelMismatch) {
			s.logger.Error("vector index not loaded; run `ragkb reindex` to re-embed the corpus or set vector.allow_model_mismatch: true",
				zap.String("path", opts.Path),
				zap.Error(err))
		} else {
			s.logger.Warn("vector index could not be loaded, starting empty",
				zap.String("path", opts.Path),
				zap.Error(err))
		}
	}
	return s, nil
}

// Add embeds texts and appends them with metas, in order, then persists. Persist failures are
// logged, not returned.
func (s *Store) Add(ctx context.Context, texts []string, metas []models.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%w: %d texts but %d metadata entries", ErrValidation, len(texts), len(metas))
	}
	if len(texts) == 0 {
		return nil
	}
	vecs, err := s.encode(ctx, texts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Add(ctx, vecs); err != nil {
		return err
	}
	s.texts = append(s.texts, texts...)
	s.metas = append(s.metas, metas...)
	s.logger.Debug("added vectors", zap.Int("count", len(texts)), zap.Int("total", len(s.texts)))
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	return nil
}

// Search returns up to k results by descending cosine similarity. Equal scores are returned in
// insertion order. An empty store returns no results without encoding the query.
func (s *Store) Search(ctx context.Context, query string, k int) ([]models.QueryResult, error) {
	if s.Size() == 0 || k <= 0 {
		return []models.QueryResult{}, nil
	}
	vecs, err := s.encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if k > len(s.texts) {
		k = len(s.texts)
	}
	hits, err := s.index.Search(ctx, vecs[0], k)
	if err != nil {
		return nil, err
	}
	results := make([]models.QueryResult, 0, len(hits))
	for _, h := range hits {
		if h.Offset < 0 || h.Offset >= len(s.texts) {
			continue
		}
		results = append(results, models.QueryResult{
			Text:     s.texts[h.Offset],
			Metadata: s.metas[h.Offset],
			Score:    h.Score,
		})
	}
	return results, nil
}

// Rebuild replaces the whole store with texts and metas, e.g. after a document is deleted or
// the encoder changed. On encoder failure the store is left untouched.
func (s *Store) Rebuild(ctx context.Context, texts []string, metas []models.Metadata) error {
	if len(texts) != len(metas) {
		return fmt.Errorf("%w: %d texts but %d metadata entries", ErrValidation, len(texts), len(metas))
	}
	var vecs [][]float32
	if len(texts) > 0 {
		var err error
		if vecs, err = s.encode(ctx, texts); err != nil {
			return err
		}
	}
	idx, err := s.newIndex(s.opts.IndexType, s.encoder.Dimensions())
	if err != nil {
		return err
	}
	if err := idx.Add(ctx, vecs); err != nil {
		_ = idx.Close()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.index.Close()
	s.index = idx
	s.texts = append([]string(nil), texts...)
	s.metas = append([]models.Metadata(nil), metas...)
	s.generation++
	s.logger.Info("vector index rebuilt", zap.Int("total", len(texts)), zap.Uint64("generation", s.generation))
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("failed to persist vector index", zap.Error(err))
	}
	return nil
}

// Clear empties the store and removes the on-disk artifacts. Offsets restart at 0; the
// incremented generation tells entries added after the clear from those before it. Failing to
// remove an artifact is logged, not returned.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Reset(); err != nil {
		return err
	}
	s.texts = nil
	s.metas = nil
	s.generation++
	s.logger.Info("vector index cleared", zap.Uint64("generation", s.generation))
	if err := s.removeArtifacts(); err != nil {
		s.logger.Warn("failed to remove vector index artifacts", zap.Error(err))
	}
	return nil
}

// Persist writes both artifacts atomically.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Load replaces the in-memory contents with the persisted artifacts. When neither artifact
// exists the store is left empty and nil is returned.
func (s *Store) Load() error {
	if s.opts.Path == "" {
		return nil
	}
	metaExists, indexExists := artifactExists(s.metaPath()), artifactExists(s.indexPath())
	if !metaExists && !indexExists {
		s.logger.Info("no persisted vector index found", zap.String("path", s.opts.Path))
		return nil
	}
	if !metaExists {
		return &PersistenceError{Op: "load", Path: s.metaPath(), Err: errors.New("side table missing")}
	}

	table, err := readSideTable(s.metaPath())
	if err != nil {
		return &PersistenceError{Op: "load", Path: s.metaPath(), Err: err}
	}
	if table.Dimension != s.encoder.Dimensions() {
		return fmt.Errorf("%w: stored dimension %d, encoder dimension %d",
			ErrModelMismatch, table.Dimension, s.encoder.Dimensions())
	}
	if table.ModelName != s.encoder.ModelName() {
		if !s.opts.AllowModelMismatch {
			return fmt.Errorf("%w: stored %q, configured %q", ErrModelMismatch, table.ModelName, s.encoder.ModelName())
		}
		s.logger.Warn("loading vectors from a different embedding model; rankings may be unreliable",
			zap.String("stored_model", table.ModelName),
			zap.String("configured_model", s.encoder.ModelName()))
	}

	idx, err := s.newIndex(s.opts.IndexType, s.encoder.Dimensions())
	if err != nil {
		return err
	}
	if err := idx.Load(s.indexPath()); err != nil {
		_ = idx.Close()
		return &PersistenceError{Op: "load", Path: s.indexPath(), Err: err}
	}
	if idx.Size() != len(table.Texts) {
		_ = idx.Close()
		return &PersistenceError{Op: "load", Path: s.indexPath(),
			Err: fmt.Errorf("index holds %d vectors but side table has %d entries", idx.Size(), len(table.Texts))}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.index.Close()
	s.index = idx
	s.texts = table.Texts
	s.metas = table.Metadata
	s.generation = table.Generation
	s.logger.Info("vector index loaded", zap.Int("total", len(s.texts)), zap.String("model", table.ModelName))
	return nil
}

// Stats returns counts and identity of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalVectors:  s.index.Size(),
		TotalTexts:    len(s.texts),
		TotalMetadata: len(s.metas),
		Dimension:     s.encoder.Dimensions(),
		ModelName:     s.encoder.ModelName(),
		IndexType:     s.index.Type(),
		Generation:    s.generation,
	}
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.texts)
}

// Close releases the similarity structure. The encoder is owned by the caller.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// encode runs texts through the pool and normalizes the result.
func (s *Store) encode(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.pool.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, v := range vecs {
		vector.NormalizeL2(v)
	}
	return vecs, nil
}
