// Package indexer turns documents into chunks, records them in bookkeeping storage and feeds
// them to the vector store.
package indexer

import (
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/ragkb/internal/models"
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into chunks numbered from 0. Blank text yields no chunks.
func (c *Chunker) Chunk(text string) []models.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []models.Chunk
	for i := 0; i < len(words); i += step {
		end := min(i+c.chunkSize, len(words))
		content := strings.Join(words[i:end], " ")
		chunks = append(chunks, models.Chunk{
			Content:    content,
			SequenceID: len(chunks),
			CharCount:  utf8.RuneCountInString(content),
			WordCount:  end - i,
		})
		if end >= len(words) {
			break
		}
	}
	return chunks
}
