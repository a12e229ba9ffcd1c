// Package answer turns ranked retrieval results into a user-facing answer.
package answer

import (
	"fmt"
	"strings"

	"github.com/hyperjump/ragkb/internal/models"
)

// MaxContextResults is the number of results rendered into the context block.
const MaxContextResults = 5

// AssembleContext renders up to MaxContextResults results, in order, as labeled blocks
// separated by a blank line. It never reorders or deduplicates.
func AssembleContext(results []models.QueryResult) string {
	if len(results) > MaxContextResults {
		results = results[:MaxContextResults]
	}
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = fmt.Sprintf("[Source %d: %s, Chunk %d]\n%s\n",
			i+1, r.Metadata.SourceOr("Unknown"), r.Metadata.ChunkID, r.Text)
	}
	return strings.Join(parts, "\n")
}
