package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/keyword"
)

const longQuery = "what does the lease say about early termination"

type queryEmbedderFake struct {
	lastQuery string
	err       error
}

func (f *queryEmbedderFake) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (f *queryEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastQuery = text
	return []float32{0.1, 0.2}, nil
}

type queryVectorFake struct {
	hits      []domain.RetrievedChunk
	searchErr error
	fetchErr  error
	listIDs   []string
	listTexts []string
	listErr   error

	searchCalls int
	listCalls   int
	fetchedIDs  []string
}

func (f *queryVectorFake) Upsert(context.Context, string, []domain.ChunkRecord) error {
	return errors.New("not implemented")
}

func (f *queryVectorFake) Search(context.Context, string, []float32, int) ([]domain.RetrievedChunk, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *queryVectorFake) Fetch(_ context.Context, _ string, ids []string) ([]domain.RetrievedChunk, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.fetchedIDs = ids
	out := make([]domain.RetrievedChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.RetrievedChunk{ID: id, DocumentID: "doc-1", Text: "text of " + id})
	}
	return out, nil
}

func (f *queryVectorFake) ListCase(context.Context, string) ([]string, []string, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, nil, f.listErr
	}
	return f.listIDs, f.listTexts, nil
}

func (f *queryVectorFake) DeleteByDocument(context.Context, string, string) error {
	return errors.New("not implemented")
}

type generatorFake struct {
	answer    string
	answerErr error
	expanded  string
	expandErr error

	answerCalls int
	lastContext string
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _, contextText string) (string, error) {
	f.answerCalls++
	f.lastContext = contextText
	if f.answerErr != nil {
		return "", f.answerErr
	}
	return f.answer, nil
}

func (f *generatorFake) GenerateFromPrompt(context.Context, string) (string, error) {
	if f.expandErr != nil {
		return "", f.expandErr
	}
	return f.expanded, nil
}

type rerankerFake struct {
	out   []domain.RetrievedChunk
	err   error
	calls int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, candidates []domain.RetrievedChunk, topN int) ([]domain.RetrievedChunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.out != nil {
		return f.out, nil
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

type cacheStoreFake struct {
	values map[string][]byte
}

func (s *cacheStoreFake) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if s.values == nil {
		s.values = make(map[string][]byte)
	}
	s.values[key] = value
	return nil
}

func (s *cacheStoreFake) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.values[key]
	return v, ok, nil
}

func testQueryConfig() QueryConfig {
	cfg := DefaultQueryConfig()
	cfg.SlamDunkThreshold = 0.4
	cfg.MissThreshold = 1.0
	return cfg
}

func hitsWithBestDistance(best float64, n int) []domain.RetrievedChunk {
	hits := make([]domain.RetrievedChunk, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, domain.RetrievedChunk{
			ID:         fmt.Sprintf("vec-%d", i),
			DocumentID: "doc-1",
			FileName:   "lease.pdf",
			Page:       fmt.Sprintf("%d", i+1),
			Text:       fmt.Sprintf("vector hit %d", i),
			Distance:   best + float64(i)*0.01,
		})
	}
	return hits
}

func newQueryUC(
	embedder *queryEmbedderFake,
	vector *queryVectorFake,
	generator *generatorFake,
	reranker *rerankerFake,
) *QueryUseCase {
	cache := keyword.NewCache(&cacheStoreFake{}, time.Hour)
	return NewQueryUseCase(embedder, vector, generator, reranker, cache, testQueryConfig())
}

func TestAnswerFastPathOnSlamDunk(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.3, 10)}
	generator := &generatorFake{answer: "The lease allows early termination with 60 days notice."}
	reranker := &rerankerFake{}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, reranker)

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Path != domain.PathFast {
		t.Fatalf("expected fast path, got %s", answer.Path)
	}
	if len(answer.Sources) != 3 {
		t.Fatalf("expected top-3 vector hits as sources, got %d", len(answer.Sources))
	}
	if reranker.calls != 0 {
		t.Fatalf("fast path must not call the reranker")
	}
	if vector.listCalls != 0 {
		t.Fatalf("fast path must not build the keyword index")
	}
	if answer.Text != generator.answer {
		t.Fatalf("unexpected answer text: %q", answer.Text)
	}
}

func TestAnswerMissExitOnHighDistance(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(1.5, 3)}
	generator := &generatorFake{answer: "should not be used"}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Text != msgNotRelevant {
		t.Fatalf("expected miss message, got %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("miss exit must return empty sources")
	}
	if generator.answerCalls != 0 {
		t.Fatalf("miss exit must not synthesize")
	}
}

func TestAnswerGateBoundaries(t *testing.T) {
	generator := &generatorFake{answer: "ok"}

	// Exactly at the slam-dunk threshold: fast exit.
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.4, 5)}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})
	if got := uc.Answer(context.Background(), "case-1", longQuery); got.Path != domain.PathFast {
		t.Fatalf("distance at slam-dunk threshold must take the fast exit, got %s", got.Path)
	}

	// Exactly at the miss threshold: miss exit.
	vector = &queryVectorFake{hits: hitsWithBestDistance(1.0, 5)}
	uc = newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})
	if got := uc.Answer(context.Background(), "case-1", longQuery); got.Text != msgNotRelevant {
		t.Fatalf("distance at miss threshold must take the miss exit, got %q", got.Text)
	}

	// Strictly between the thresholds: deep dive.
	vector = &queryVectorFake{hits: hitsWithBestDistance(0.7, 5)}
	reranker := &rerankerFake{}
	uc = newQueryUC(&queryEmbedderFake{}, vector, generator, reranker)
	if got := uc.Answer(context.Background(), "case-1", longQuery); got.Path != domain.PathDeepDive {
		t.Fatalf("expected deep dive between thresholds, got %s", got.Path)
	}
	if reranker.calls != 1 {
		t.Fatalf("deep dive must call the reranker")
	}
}

func TestAnswerDeepDiveFusesKeywordResults(t *testing.T) {
	vector := &queryVectorFake{
		hits:      hitsWithBestDistance(0.6, 4),
		listIDs:   []string{"vec-0", "kw-1", "kw-2"},
		listTexts: []string{"nothing here", "lease termination clause text", "termination notice period"},
	}
	generator := &generatorFake{answer: "synthesized"}
	reranker := &rerankerFake{}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, reranker)

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Path != domain.PathDeepDive {
		t.Fatalf("expected deep dive, got %s", answer.Path)
	}
	if vector.listCalls != 1 {
		t.Fatalf("expected keyword corpus fetched once, got %d", vector.listCalls)
	}
	found := false
	for _, id := range vector.fetchedIDs {
		if id == "kw-1" || id == "kw-2" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected keyword-only candidates in the fused fetch, got %v", vector.fetchedIDs)
	}
	if len(answer.Sources) == 0 || len(answer.Sources) > 5 {
		t.Fatalf("expected up to 5 reranked sources, got %d", len(answer.Sources))
	}
}

func TestAnswerDeepDiveFallsBackWhenRerankFails(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.6, 8)}
	generator := &generatorFake{answer: "synthesized"}
	reranker := &rerankerFake{err: errors.New("cross encoder down")}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, reranker)

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Text != generator.answer {
		t.Fatalf("rerank failure must degrade, not fail the query: %q", answer.Text)
	}
	if len(answer.Sources) != 5 {
		t.Fatalf("expected first 5 fused candidates on rerank fallback, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Text != "text of vec-0" {
		t.Fatalf("fallback must keep the fused order, got %q", answer.Sources[0].Text)
	}
}

func TestAnswerDeepDiveWithoutKeywordIndex(t *testing.T) {
	// Empty corpus: keyword search impossible, fusion is vector-only.
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.6, 4)}
	generator := &generatorFake{answer: "synthesized"}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Path != domain.PathDeepDive {
		t.Fatalf("expected deep dive, got %s", answer.Path)
	}
	if answer.Text != generator.answer {
		t.Fatalf("vector-only deep dive must still answer, got %q", answer.Text)
	}
}

func TestAnswerExpandsShortQuery(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.3, 3)}
	embedder := &queryEmbedderFake{}
	generator := &generatorFake{answer: "ok", expanded: "termination clause lease agreement notice period"}
	uc := newQueryUC(embedder, vector, generator, &rerankerFake{})

	uc.Answer(context.Background(), "case-1", "termination clause")
	if embedder.lastQuery != generator.expanded {
		t.Fatalf("expected expanded query embedded, got %q", embedder.lastQuery)
	}
}

func TestAnswerExpansionFailureFallsBackToOriginal(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.3, 3)}
	embedder := &queryEmbedderFake{}
	generator := &generatorFake{answer: "ok", expandErr: errors.New("model cold")}
	uc := newQueryUC(embedder, vector, generator, &rerankerFake{})

	answer := uc.Answer(context.Background(), "case-1", "termination clause")
	if embedder.lastQuery != "termination clause" {
		t.Fatalf("expansion failure must fall back to the original query, got %q", embedder.lastQuery)
	}
	if answer.Text != "ok" {
		t.Fatalf("expansion failure must not fail the request, got %q", answer.Text)
	}
}

func TestAnswerNoVectorResults(t *testing.T) {
	uc := newQueryUC(&queryEmbedderFake{}, &queryVectorFake{}, &generatorFake{}, &rerankerFake{})
	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Text != msgNoResults {
		t.Fatalf("expected no-results message, got %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("expected empty sources")
	}
}

func TestAnswerSearchErrorIsStructured(t *testing.T) {
	vector := &queryVectorFake{searchErr: errors.New("qdrant unreachable")}
	uc := newQueryUC(&queryEmbedderFake{}, vector, &generatorFake{}, &rerankerFake{})

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Text != msgSearchFailed {
		t.Fatalf("expected search failure message, got %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Fatalf("expected empty sources on failure")
	}
}

func TestAnswerGenerationErrorIsStructured(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.3, 3)}
	generator := &generatorFake{answerErr: errors.New("model overloaded")}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})

	answer := uc.Answer(context.Background(), "case-1", longQuery)
	if answer.Text != msgAnswerFailed {
		t.Fatalf("expected synthesis failure message, got %q", answer.Text)
	}
}

func TestAnswerJoinsContextWithSeparator(t *testing.T) {
	vector := &queryVectorFake{hits: hitsWithBestDistance(0.3, 3)}
	generator := &generatorFake{answer: "ok"}
	uc := newQueryUC(&queryEmbedderFake{}, vector, generator, &rerankerFake{})

	uc.Answer(context.Background(), "case-1", longQuery)
	want := "vector hit 0\n\n---\n\nvector hit 1\n\n---\n\nvector hit 2"
	if generator.lastContext != want {
		t.Fatalf("unexpected context: %q", generator.lastContext)
	}
}
