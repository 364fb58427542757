package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/core/ports"
)

// Extractor handles plain text files. Paragraphs separated by blank lines
// become individual segments; plain text has no pages so every segment
// carries locator "1".
type Extractor struct {
	storage ports.ObjectStorage
}

func NewExtractor(storage ports.ObjectStorage) *Extractor {
	return &Extractor{storage: storage}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.Segment, error) {
	reader, err := e.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("file is not valid utf-8 text: %s", doc.FileName)
	}

	var segments []domain.Segment
	for _, paragraph := range strings.Split(string(raw), "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		segments = append(segments, domain.Segment{Text: paragraph, Page: "1"})
	}
	return segments, nil
}
