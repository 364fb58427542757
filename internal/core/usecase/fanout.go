package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/core/ports"
)

// BatchCoordinator fans embedding work out over fixed-size chunk batches
// and gates a single completion callback on every batch succeeding.
//
// Batches share no mutable state: each one embeds its own texts and
// upserts its own points under deterministic IDs, so concurrent batches
// for the same document never collide. The errgroup join is the single
// serialization point; the callback runs exactly once, only when Wait
// observes that all batches succeeded.
type BatchCoordinator struct {
	embedder    ports.Embedder
	vectorDB    ports.VectorStore
	batchSize   int
	parallelism int
	observer    BatchObserver
}

// BatchObserver receives the outcome of every embed-and-store batch.
type BatchObserver interface {
	ObserveBatch(chunks int, err error)
}

type noopBatchObserver struct{}

func (noopBatchObserver) ObserveBatch(int, error) {}

func NewBatchCoordinator(embedder ports.Embedder, vectorDB ports.VectorStore, batchSize, parallelism int) *BatchCoordinator {
	if batchSize <= 0 {
		batchSize = 128
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &BatchCoordinator{
		embedder:    embedder,
		vectorDB:    vectorDB,
		batchSize:   batchSize,
		parallelism: parallelism,
		observer:    noopBatchObserver{},
	}
}

// WithObserver attaches a metrics sink. Must be called before Run.
func (c *BatchCoordinator) WithObserver(observer BatchObserver) *BatchCoordinator {
	if observer != nil {
		c.observer = observer
	}
	return c
}

type chunkBatch struct {
	chunks []domain.Chunk
	offset int // ordinal of the first chunk in the document order
}

// Run embeds and stores all chunks of the document, then invokes
// onComplete. If any batch fails, onComplete is never called and the
// first batch error is returned.
func (c *BatchCoordinator) Run(
	ctx context.Context,
	doc *domain.Document,
	chunks []domain.Chunk,
	onComplete func(context.Context) error,
) error {
	batches := partition(chunks, c.batchSize)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for _, batch := range batches {
		g.Go(func() error {
			err := c.embedAndStore(groupCtx, doc, batch)
			c.observer.ObserveBatch(len(batch.chunks), err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("embed and store batches: %w", err)
	}

	if err := onComplete(ctx); err != nil {
		return fmt.Errorf("complete document: %w", err)
	}
	return nil
}

func (c *BatchCoordinator) embedAndStore(ctx context.Context, doc *domain.Document, batch chunkBatch) error {
	texts := make([]string, 0, len(batch.chunks))
	for _, chunk := range batch.chunks {
		texts = append(texts, chunk.Text)
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch at offset %d: %w", batch.offset, err)
	}
	if len(vectors) != len(texts) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed batch",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
		)
	}

	records := make([]domain.ChunkRecord, 0, len(batch.chunks))
	for i, chunk := range batch.chunks {
		records = append(records, domain.ChunkRecord{
			ID:         ChunkPointID(doc.ID, chunk, batch.offset+i),
			Vector:     vectors[i],
			Text:       chunk.Text,
			DocumentID: doc.ID,
			CaseID:     doc.CaseID,
			FileName:   chunk.FileName,
			Page:       chunk.Page,
		})
	}

	if err := c.vectorDB.Upsert(ctx, doc.CaseID, records); err != nil {
		return fmt.Errorf("upsert batch at offset %d: %w", batch.offset, err)
	}
	return nil
}

func partition(chunks []domain.Chunk, size int) []chunkBatch {
	batches := make([]chunkBatch, 0, len(chunks)/size+1)
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunkBatch{chunks: chunks[start:end], offset: start})
	}
	return batches
}

// ChunkPointID derives the vector-store point ID from the chunk's content
// and position, namespaced by its document. Re-ingesting identical content
// yields identical IDs, so a repeat run upserts instead of duplicating.
func ChunkPointID(documentID string, chunk domain.Chunk, ordinal int) string {
	ns := uuid.NewSHA1(uuid.NameSpaceOID, []byte("document:"+documentID))
	return uuid.NewSHA1(ns, fmt.Appendf(nil, "%s|%d|%s", chunk.Page, ordinal, chunk.Text)).String()
}
