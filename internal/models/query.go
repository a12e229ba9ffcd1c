package models

import (
	"fmt"
	"time"
)

// QueryRequest is a question against the knowledge base.
type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate rejects empty queries and clamps TopK into [1, maxTopK], using defaultTopK when unset.
func (q *QueryRequest) Validate(defaultTopK, maxTopK int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if maxTopK > 0 && q.TopK > maxTopK {
		q.TopK = maxTopK
	}
	return nil
}

// SourceRef describes one retrieved chunk in a query response.
type SourceRef struct {
	Source         string  `json:"source"`
	ChunkID        int     `json:"chunk_id"`
	RelevanceScore float64 `json:"relevance_score"`
	ContentPreview string  `json:"content_preview"`
}

// QueryResponse is the answer to a QueryRequest.
type QueryResponse struct {
	Answer    string      `json:"response"`
	Sources   []SourceRef `json:"sources"`
	Query     string      `json:"query"`
	Mode      string      `json:"mode"`
	Empty     bool        `json:"empty,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	QueryTime int64       `json:"query_time_ms"`
}
