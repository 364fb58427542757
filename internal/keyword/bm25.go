// Package keyword provides the per-case lexical search side of hybrid
// retrieval: a BM25 index over whitespace-tokenized chunk texts, cached
// with a TTL so repeated queries within a window reuse one build.
package keyword

import (
	"math"
	"sort"
	"strings"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Index is a BM25 ranking index over a fixed corpus. All fields are
// exported so a built index round-trips through the cache serializer.
type Index struct {
	DocTermFreq []map[string]int `json:"doc_term_freq"`
	DocLens     []int            `json:"doc_lens"`
	DocFreq     map[string]int   `json:"doc_freq"`
	AvgDocLen   float64          `json:"avg_doc_len"`
}

// BuildIndex tokenizes each corpus text by whitespace and computes the
// term statistics BM25 needs. An empty corpus yields an index that scores
// everything zero; callers should treat it as absent instead of building.
func BuildIndex(corpus []string) *Index {
	idx := &Index{
		DocTermFreq: make([]map[string]int, len(corpus)),
		DocLens:     make([]int, len(corpus)),
		DocFreq:     make(map[string]int),
	}

	total := 0
	for i, text := range corpus {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		idx.DocTermFreq[i] = tf
		idx.DocLens[i] = len(tokens)
		total += len(tokens)
		for tok := range tf {
			idx.DocFreq[tok]++
		}
	}
	if len(corpus) > 0 {
		idx.AvgDocLen = float64(total) / float64(len(corpus))
	}
	return idx
}

// Scores returns the BM25 score of the query against every corpus document,
// in corpus order.
func (idx *Index) Scores(queryTokens []string) []float64 {
	n := len(idx.DocTermFreq)
	scores := make([]float64, n)
	if n == 0 || idx.AvgDocLen == 0 {
		return scores
	}

	for _, term := range queryTokens {
		df, ok := idx.DocFreq[term]
		if !ok {
			continue
		}
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for i := 0; i < n; i++ {
			tf := float64(idx.DocTermFreq[i][term])
			if tf == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.DocLens[i])/idx.AvgDocLen
			scores[i] += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return scores
}

// TopIDs ranks the corpus IDs for the query and returns up to limit IDs
// with a positive score, best first. ids must align with the corpus the
// index was built from.
func (idx *Index) TopIDs(query string, ids []string, limit int) []string {
	scores := idx.Scores(Tokenize(query))

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(ids))
	for i, id := range ids {
		if i >= len(scores) || scores[i] <= 0 {
			continue
		}
		ranked = append(ranked, scored{id: id, score: scores[i]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.id)
	}
	return out
}

// Tokenize splits on whitespace and lowercases, matching how the corpus
// is indexed.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}
