// Package embedding turns text into fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"
)

// Encoder produces one embedding per input text, in input order. Implementations must be
// deterministic for identical input and model.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// checkBatch verifies that an encoder returned one vector of the right dimension per input.
func checkBatch(vecs [][]float32, n, dims int) error {
	if len(vecs) != n {
		return fmt.Errorf("encoder returned %d embeddings for %d texts", len(vecs), n)
	}
	for i, v := range vecs {
		if len(v) != dims {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(v), dims)
		}
	}
	return nil
}
