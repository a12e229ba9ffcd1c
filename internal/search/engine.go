// Package search answers questions against the knowledge base: it retrieves the closest chunks
// from the vector store and hands them to the answer synthesizer.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/ragkb/internal/answer"
	"github.com/hyperjump/ragkb/internal/config"
	"github.com/hyperjump/ragkb/internal/models"
	"github.com/hyperjump/ragkb/internal/storage"
	"github.com/hyperjump/ragkb/internal/vector"
	"github.com/hyperjump/ragkb/internal/vectorstore"
	"github.com/hyperjump/ragkb/pkg/utils"
	"go.uber.org/zap"
)

const (
	previewLength = 200
	scorePlaces   = 3
)

// Engine runs retrieval-augmented queries.
type Engine struct {
	store     *vectorstore.Store
	synth     answer.Synthesizer
	storage   storage.Storage
	cfg       config.QueryConfig
	diskPaths []string
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithStorage lets Stats report document and chunk counts.
func WithStorage(st storage.Storage) EngineOption {
	return func(e *Engine) { e.storage = st }
}

// WithDiskPaths lets Stats report the disk usage of the given files and directories.
func WithDiskPaths(paths ...string) EngineOption {
	return func(e *Engine) { e.diskPaths = paths }
}

// NewEngine creates a query engine over store, answering with synth.
func NewEngine(store *vectorstore.Store, synth answer.Synthesizer, cfg config.QueryConfig, opts ...EngineOption) *Engine {
	e := &Engine{store: store, synth: synth, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.LoggerOrNop(e.logger)
	return e
}

// Query retrieves up to topK chunks for text and synthesizes an answer. topK <= 0 uses the
// configured default; larger values are capped at the configured maximum. An empty index yields
// answer.NoInformationMessage with no sources.
func (e *Engine) Query(ctx context.Context, text string, topK int) (*models.QueryResponse, error) {
	start := time.Now()
	req := models.QueryRequest{Query: strings.TrimSpace(text), TopK: topK}
	if err := req.Validate(e.cfg.DefaultTopK, e.cfg.MaxTopK); err != nil {
		return nil, fmt.Errorf("%w: %v", vectorstore.ErrValidation, err)
	}

	results, err := e.store.Search(ctx, req.Query, req.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	resp := &models.QueryResponse{
		Answer:    answer.Respond(ctx, e.synth, req.Query, results),
		Sources:   Sources(results),
		Query:     req.Query,
		Mode:      e.synth.Mode(),
		Empty:     len(results) == 0,
		Timestamp: time.Now(),
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	e.logger.Debug("query answered",
		zap.String("query", req.Query),
		zap.Int("top_k", req.TopK),
		zap.Int("results", len(results)),
		zap.String("mode", resp.Mode),
		zap.Int64("query_time_ms", resp.QueryTime))
	return resp, nil
}

// Sources converts ranked results into response source references, preserving order.
func Sources(results []models.QueryResult) []models.SourceRef {
	refs := make([]models.SourceRef, len(results))
	for i, r := range results {
		refs[i] = models.SourceRef{
			Source:         r.Metadata.Source,
			ChunkID:        r.Metadata.ChunkID,
			RelevanceScore: utils.Round(r.Score, scorePlaces),
			ContentPreview: utils.Truncate(r.Text, previewLength),
		}
	}
	return refs
}

// Stats summarizes the knowledge base.
type Stats struct {
	Documents      int64             `json:"documents_count"`
	Chunks         int64             `json:"chunks_count"`
	Vector         vectorstore.Stats `json:"vector_index"`
	Mode           string            `json:"mode"`
	DiskUsageBytes int64             `json:"disk_usage_bytes"`
	FAISSAvailable bool              `json:"faiss_available"`
}

// Stats returns counts from storage (when configured), the vector store and disk usage.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	s := &Stats{Vector: e.store.Stats(), Mode: e.synth.Mode(), FAISSAvailable: vector.IsFAISSAvailable()}
	if e.storage != nil {
		var err error
		if s.Documents, err = e.storage.CountDocuments(ctx); err != nil {
			return nil, fmt.Errorf("count documents: %w", err)
		}
		if s.Chunks, err = e.storage.CountChunks(ctx); err != nil {
			return nil, fmt.Errorf("count chunks: %w", err)
		}
	}
	if len(e.diskPaths) > 0 {
		usage, err := storage.DiskUsageBytes(e.diskPaths...)
		if err != nil {
			e.logger.Warn("failed to compute disk usage", zap.Error(err))
		}
		s.DiskUsageBytes = usage
	}
	return s, nil
}
