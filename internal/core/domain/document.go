package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether no further status transitions are allowed.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID            string         `json:"id"`
	CaseID        string         `json:"case_id"`
	FileName      string         `json:"file_name"`
	MimeType      string         `json:"mime_type"`
	StoragePath   string         `json:"storage_path"`
	Status        DocumentStatus `json:"status"`
	StatusMessage string         `json:"status_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ProcessedAt   *time.Time     `json:"processed_at,omitempty"`
}

// Segment is one parsed unit of source text with its page locator.
// Segments are ephemeral: produced by an extractor, consumed by the packer.
type Segment struct {
	Text string
	Page string
}

// Chunk is the bounded-size retrieval unit produced by the packer.
type Chunk struct {
	Text     string
	Page     string
	FileName string
}

// ChunkRecord is a chunk prepared for the vector store, carrying its
// deterministic point ID and embedding.
type ChunkRecord struct {
	ID         string
	Vector     []float32
	Text       string
	DocumentID string
	CaseID     string
	FileName   string
	Page       string
}
