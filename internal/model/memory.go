package model

import "time"

// Memory is a single item stored in the vector index: an atomic note or a
// document chunk, with its metadata and (when returned from a search) the
// similarity score.
type Memory struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score,omitempty"`
}

// MemoryType values stored under the "type" metadata key.
const (
	TypeNote        = "note"
	TypeFact        = "fact"
	TypePDF         = "pdf"
	TypeText        = "txt"
	TypeDocx        = "docx"
	TypeSpreadsheet = "xlsx"
)

// IndexStats summarizes the hosted vector index.
type IndexStats struct {
	VectorCount int    `json:"vector_count"`
	Dimension   int    `json:"dimension"`
	IndexName   string `json:"index_name"`
}

// ChunkRecord mirrors an upserted chunk in the local store. The vector index
// is the retrieval authority; this mirror feeds keyword search and export.
type ChunkRecord struct {
	MemoryID  string         `json:"memory_id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
