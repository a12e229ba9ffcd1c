// Package storage keeps document and chunk bookkeeping. The chunk table is the source of truth
// the vector index is rebuilt from.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/ragkb/internal/models"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines document and chunk persistence operations.
type Storage interface {
	// SaveDocument inserts or replaces doc and replaces all of its chunks atomically.
	SaveDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	DeleteAll(ctx context.Context) error

	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.StoredChunk, error)
	// ListAllChunks returns every chunk in insertion order.
	ListAllChunks(ctx context.Context) ([]*models.StoredChunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
