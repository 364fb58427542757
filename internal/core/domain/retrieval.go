package domain

// QueryPath names which branch of the retrieval gate answered the query.
type QueryPath string

const (
	PathFast     QueryPath = "fast"
	PathDeepDive QueryPath = "deep_dive"
	PathNone     QueryPath = "none"
)

// RetrievedChunk is a vector-store hit. Distance is on the store's
// distance scale: lower means more similar.
type RetrievedChunk struct {
	ID         string  `json:"id"`
	DocumentID string  `json:"document_id"`
	CaseID     string  `json:"case_id"`
	FileName   string  `json:"file_name"`
	Page       string  `json:"page"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}

// SourceDocument is the citation surface of one final chunk.
type SourceDocument struct {
	DocumentID string `json:"document_id"`
	FileName   string `json:"file_name"`
	Page       string `json:"page"`
	Text       string `json:"text"`
}

type Answer struct {
	Text    string           `json:"answer"`
	Path    QueryPath        `json:"path"`
	Sources []SourceDocument `json:"sources"`
}

func Citations(chunks []RetrievedChunk) []SourceDocument {
	out := make([]SourceDocument, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, SourceDocument{
			DocumentID: c.DocumentID,
			FileName:   c.FileName,
			Page:       c.Page,
			Text:       c.Text,
		})
	}
	return out
}
