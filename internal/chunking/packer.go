// Package chunking turns parsed document segments into bounded-size chunks.
//
// Small segments (titles, short paragraphs) are packed together into one
// chunk up to the target size; a segment that alone exceeds the target is
// sliced independently with a sliding window so nothing is lost at a slice
// boundary. Chunks never silently exceed the target: an oversized-segment
// slice is at most the target size, a packed chunk exceeds it only by the
// blank-line separators between its segments.
package chunking

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

const segmentSeparator = "\n\n"

type Packer struct {
	TargetSize int
	Overlap    int
}

func NewPacker(targetSize, overlap int) *Packer {
	if targetSize <= 0 {
		targetSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= targetSize {
		overlap = targetSize / 4
	}
	return &Packer{
		TargetSize: targetSize,
		Overlap:    overlap,
	}
}

// Pack converts an ordered segment sequence into an ordered chunk sequence.
// Empty input (no segments, or only blank text) yields zero chunks; the
// caller decides whether that is an ingestion failure.
func (p *Packer) Pack(segments []domain.Segment, fileName string) []domain.Chunk {
	var (
		out      []domain.Chunk
		accText  strings.Builder
		accPages []string
	)

	flush := func() {
		if accText.Len() == 0 {
			return
		}
		out = append(out, domain.Chunk{
			Text:     accText.String(),
			Page:     smallestPage(accPages),
			FileName: fileName,
		})
		accText.Reset()
		accPages = accPages[:0]
	}

	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		segLen := utf8.RuneCountInString(seg.Text)

		switch {
		case segLen > p.TargetSize:
			flush()
			for _, slice := range p.slide(seg.Text) {
				out = append(out, domain.Chunk{
					Text:     slice,
					Page:     seg.Page,
					FileName: fileName,
				})
			}
		case utf8.RuneCountInString(accText.String())+segLen > p.TargetSize:
			flush()
			accText.WriteString(seg.Text)
			accPages = append(accPages, seg.Page)
		default:
			if accText.Len() > 0 {
				accText.WriteString(segmentSeparator)
			}
			accText.WriteString(seg.Text)
			accPages = append(accPages, seg.Page)
		}
	}
	flush()

	return out
}

// slide splits one oversized text into windows of the target size with the
// configured overlap carried between consecutive windows.
func (p *Packer) slide(text string) []string {
	runes := []rune(text)
	step := p.TargetSize - p.Overlap
	if step <= 0 {
		step = p.TargetSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + p.TargetSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// smallestPage picks the representative locator for a packed chunk.
// Locators are compared numerically when both sides parse as integers,
// lexicographically otherwise (sheet names, roman-numeral front matter).
func smallestPage(pages []string) string {
	if len(pages) == 0 {
		return ""
	}
	smallest := pages[0]
	for _, p := range pages[1:] {
		if pageLess(p, smallest) {
			smallest = p
		}
	}
	return smallest
}

func pageLess(a, b string) bool {
	an, aErr := strconv.Atoi(a)
	bn, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return an < bn
	}
	if aErr == nil {
		return true
	}
	if bErr == nil {
		return false
	}
	return a < b
}
