package ports

import (
	"context"
	"io"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

// DocumentRepository persists document state. MarkCompleted is the only way
// to reach the completed status; it sets processed_at exactly once and
// refuses the transition unless the document is still processing.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, message string) error
	MarkCompleted(ctx context.Context, id string, message string) error
}

// ObjectStorage stores raw source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// SegmentExtractor parses a stored document into ordered segments with
// page locators.
type SegmentExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error)
}

// Embedder builds vectors for chunk and query text. Vectors are
// deterministic for identical input within a model version.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is a per-case collection of chunk points.
type VectorStore interface {
	Upsert(ctx context.Context, caseID string, records []domain.ChunkRecord) error
	Search(ctx context.Context, caseID string, vector []float32, limit int) ([]domain.RetrievedChunk, error)
	Fetch(ctx context.Context, caseID string, ids []string) ([]domain.RetrievedChunk, error)
	ListCase(ctx context.Context, caseID string) (ids []string, texts []string, err error)
	DeleteByDocument(ctx context.Context, caseID, documentID string) error
}

// Reranker scores (query, candidate) pairs with a cross-encoder and returns
// the best candidates, most relevant first.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.RetrievedChunk, topN int) ([]domain.RetrievedChunk, error)
}

// AnswerGenerator creates the final user-facing answer and supporting
// generations (query expansion).
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question, contextText string) (string, error)
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}
