package model

// Chunk is one slice of a document produced by the chunker.
type Chunk struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// IngestResult reports what happened to a single ingested file.
type IngestResult struct {
	File       string `json:"file"`
	DocType    string `json:"doc_type"`
	Chunks     int    `json:"chunks"`
	Characters int    `json:"characters"`
	UsedOCR    bool   `json:"used_ocr,omitempty"`
}
