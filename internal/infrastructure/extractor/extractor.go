package extractor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/core/ports"
	"github.com/lexigraph/case-assistant/internal/infrastructure/extractor/pdf"
	"github.com/lexigraph/case-assistant/internal/infrastructure/extractor/plaintext"
	"github.com/lexigraph/case-assistant/internal/infrastructure/extractor/xlsx"
)

// Dispatcher routes a document to the extractor for its format, picked by
// file extension with the MIME type as fallback.
type Dispatcher struct {
	pdf       ports.SegmentExtractor
	xlsx      ports.SegmentExtractor
	plaintext ports.SegmentExtractor
}

func NewDispatcher(storage ports.ObjectStorage) *Dispatcher {
	return &Dispatcher{
		pdf:       pdf.NewExtractor(storage),
		xlsx:      xlsx.NewExtractor(storage),
		plaintext: plaintext.NewExtractor(storage),
	}
}

func (d *Dispatcher) Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error) {
	target, err := d.pick(doc)
	if err != nil {
		return nil, err
	}
	return target.Extract(ctx, doc)
}

func (d *Dispatcher) pick(doc *domain.Document) (ports.SegmentExtractor, error) {
	switch strings.ToLower(filepath.Ext(doc.StoragePath)) {
	case ".pdf":
		return d.pdf, nil
	case ".xlsx", ".xlsm":
		return d.xlsx, nil
	case ".txt", ".md", ".csv":
		return d.plaintext, nil
	}

	switch doc.MimeType {
	case "application/pdf":
		return d.pdf, nil
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return d.xlsx, nil
	case "text/plain", "text/markdown", "text/csv":
		return d.plaintext, nil
	}

	return nil, domain.WrapError(domain.ErrInvalidInput, "pick extractor",
		fmt.Errorf("unsupported document format: %s (%s)", doc.FileName, doc.MimeType))
}
