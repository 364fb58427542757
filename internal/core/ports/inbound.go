package ports

import (
	"context"
	"io"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, caseID, fileName, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous indexing of an
// uploaded document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// CaseQueryService answers natural-language questions about a case.
type CaseQueryService interface {
	Answer(ctx context.Context, caseID, query string) *domain.Answer
}

// DocumentReader is the inbound read model for document status polling.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}
