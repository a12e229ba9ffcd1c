// Package vector provides exact inner-product similarity structures over normalized vectors.
package vector

import "context"

// Index stores vectors at insertion-ordered offsets and answers top-k inner product queries.
// Offsets start at 0 and are never reused until Reset. After Reset they start at 0 again, so
// callers that must tell entries apart across a reset track their own generation (see
// vectorstore.Stats.Generation).
type Index interface {
	Add(ctx context.Context, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]Hit, error)
	Reset() error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Type() string
	Close() error
}

// Hit is a single search result. Offset may be -1 for implementations that pad short results.
type Hit struct {
	Offset int
	Score  float64
}
