// Package models defines core data structures for documents, chunks, and queries.
package models

import (
	"fmt"
	"time"
)

// Document status values.
const (
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
)

// Document is the bookkeeping record for an ingested file or text.
type Document struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	FilePath    string    `json:"file_path,omitempty"`
	UploadTime  time.Time `json:"upload_time"`
	ChunkCount  int       `json:"chunk_count"`
	Status      string    `json:"status"`
	SourceMtime int64     `json:"-"`
	SourceSize  int64     `json:"-"`
}

// StoredChunk is a chunk persisted alongside its owning document.
type StoredChunk struct {
	DocumentID string `json:"document_id"`
	Chunk
	Source   string `json:"source"`
	FilePath string `json:"file_path,omitempty"`
}

// Metadata returns the vector store metadata for the chunk.
func (c *StoredChunk) Metadata() Metadata {
	return Metadata{
		DocID:    c.DocumentID,
		ChunkID:  c.SequenceID,
		Source:   c.Source,
		FilePath: c.FilePath,
	}
}

// DocumentInput is the input for ingesting raw text.
type DocumentInput struct {
	ID       string `json:"id,omitempty"`
	Filename string `json:"filename"`
	FilePath string `json:"file_path,omitempty"`
	Content  string `json:"content"`
}

// DocumentStats summarizes the chunks produced for one document.
type DocumentStats struct {
	TotalChunks      int `json:"total_chunks"`
	TotalCharacters  int `json:"total_characters"`
	TotalWords       int `json:"total_words"`
	AvgChunkSize     int `json:"avg_chunk_size"`
	AvgWordsPerChunk int `json:"avg_words_per_chunk"`
}

// ComputeDocumentStats returns aggregate counts for chunks. Empty input yields zero stats.
func ComputeDocumentStats(chunks []Chunk) DocumentStats {
	var s DocumentStats
	if len(chunks) == 0 {
		return s
	}
	for _, c := range chunks {
		s.TotalCharacters += c.CharCount
		s.TotalWords += c.WordCount
	}
	s.TotalChunks = len(chunks)
	s.AvgChunkSize = s.TotalCharacters / len(chunks)
	s.AvgWordsPerChunk = s.TotalWords / len(chunks)
	return s
}

// IngestResponse reports the outcome of ingesting one document.
type IngestResponse struct {
	DocID         string `json:"doc_id"`
	Filename      string `json:"filename"`
	ChunksCreated int    `json:"chunks_created"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// NewIngestResponse builds the success response for doc.
func NewIngestResponse(doc *Document) IngestResponse {
	return IngestResponse{
		DocID:         doc.ID,
		Filename:      doc.Filename,
		ChunksCreated: doc.ChunkCount,
		Status:        "success",
		Message:       fmt.Sprintf("Document processed successfully with %d chunks", doc.ChunkCount),
	}
}
