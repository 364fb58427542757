package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexigraph/case-assistant/internal/chunking"
	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/core/ports"
)

type ProcessDocumentUseCase struct {
	repo        ports.DocumentRepository
	extractor   ports.SegmentExtractor
	packer      *chunking.Packer
	vectorDB    ports.VectorStore
	coordinator *BatchCoordinator
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.SegmentExtractor,
	packer *chunking.Packer,
	vectorDB ports.VectorStore,
	coordinator *BatchCoordinator,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:        repo,
		extractor:   extractor,
		packer:      packer,
		vectorDB:    vectorDB,
		coordinator: coordinator,
	}
}

// ProcessByID runs the ingestion pipeline for one uploaded document:
// parse into segments, pack into chunks, prune any points left from a
// prior version of the document, then fan embedding out per batch. The
// document reaches completed only when every batch succeeded; any other
// outcome marks it failed with the causing error.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, "Parsing and chunking document."); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.runPipeline(ctx, documentID); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}
	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}

	segments, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return fmt.Errorf("extract segments: %w", err)
	}

	chunks := uc.packer.Pack(segments, doc.FileName)
	if len(chunks) == 0 {
		return domain.WrapError(domain.ErrNoContent, "chunk document", errors.New("no content found"))
	}
	slog.Info("document_chunked",
		"document_id", doc.ID,
		"case_id", doc.CaseID,
		"segments", len(segments),
		"chunks", len(chunks),
	)

	// Orphan points from an earlier content version of this document
	// would otherwise survive re-ingestion under different IDs.
	if err := uc.vectorDB.DeleteByDocument(ctx, doc.CaseID, doc.ID); err != nil {
		return fmt.Errorf("prune previous points: %w", err)
	}

	return uc.coordinator.Run(ctx, doc, chunks, func(ctx context.Context) error {
		return uc.repo.MarkCompleted(ctx, doc.ID, "Successfully indexed.")
	})
}
