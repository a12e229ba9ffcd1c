package models

// Chunk is a bounded slice of a document's text, the unit of indexing and retrieval.
type Chunk struct {
	Content    string `json:"content"`
	SequenceID int    `json:"sequence_id"`
	CharCount  int    `json:"char_count"`
	WordCount  int    `json:"word_count"`
}

// Metadata travels with each indexed chunk. The vector store never interprets it.
type Metadata struct {
	DocID    string `json:"doc_id"`
	ChunkID  int    `json:"chunk_id"`
	Source   string `json:"source"`
	FilePath string `json:"file_path,omitempty"`
}

// SourceOr returns the source label, or fallback when the source is empty.
func (m Metadata) SourceOr(fallback string) string {
	if m.Source == "" {
		return fallback
	}
	return m.Source
}

// QueryResult is a single retrieval hit. Score is cosine similarity in [-1, 1].
type QueryResult struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float64  `json:"score"`
}
