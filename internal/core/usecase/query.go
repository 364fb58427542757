package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lexigraph/case-assistant/internal/core/domain"
	"github.com/lexigraph/case-assistant/internal/core/ports"
	"github.com/lexigraph/case-assistant/internal/keyword"
)

// User-facing terminal messages. Every failure of an external collaborator
// maps onto one of these; the caller never sees a raw error.
const (
	msgSearchFailed   = "An error occurred while searching the document database."
	msgNoResults      = "I couldn't find any information in the documents for your question."
	msgNotRelevant    = "I could not find any information that was sufficiently relevant to your query."
	msgNoFusedResults = "Could not find any relevant documents after a detailed search."
	msgNoneRelevant   = "Found potential documents, but none were relevant enough to form an answer."
	msgAnswerFailed   = "An error occurred while composing the answer."
)

type QueryConfig struct {
	ShortQueryWords   int
	VectorTopK        int
	FastPathChunks    int
	KeywordTopK       int
	FusedCandidates   int
	RerankTopN        int
	FusionRRFK        int
	SlamDunkThreshold float64
	MissThreshold     float64
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		ShortQueryWords:   5,
		VectorTopK:        10,
		FastPathChunks:    3,
		KeywordTopK:       10,
		FusedCandidates:   25,
		RerankTopN:        5,
		FusionRRFK:        60,
		SlamDunkThreshold: 0.4,
		MissThreshold:     0.9,
	}
}

func (c QueryConfig) normalize() QueryConfig {
	def := DefaultQueryConfig()
	out := c
	if out.ShortQueryWords <= 0 {
		out.ShortQueryWords = def.ShortQueryWords
	}
	if out.VectorTopK <= 0 {
		out.VectorTopK = def.VectorTopK
	}
	if out.FastPathChunks <= 0 {
		out.FastPathChunks = def.FastPathChunks
	}
	if out.KeywordTopK <= 0 {
		out.KeywordTopK = def.KeywordTopK
	}
	if out.FusedCandidates <= 0 {
		out.FusedCandidates = def.FusedCandidates
	}
	if out.RerankTopN <= 0 {
		out.RerankTopN = def.RerankTopN
	}
	if out.FusionRRFK <= 0 {
		out.FusionRRFK = def.FusionRRFK
	}
	if out.SlamDunkThreshold <= 0 || out.MissThreshold <= 0 || out.SlamDunkThreshold >= out.MissThreshold {
		out.SlamDunkThreshold = def.SlamDunkThreshold
		out.MissThreshold = def.MissThreshold
	}
	return out
}

// QueryObserver receives per-stage timings and the path decision.
type QueryObserver interface {
	ObserveStage(stage string, duration time.Duration)
	ObservePath(path domain.QueryPath)
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration) {}
func (noopObserver) ObservePath(domain.QueryPath)       {}

// querySession is the transient state of one query. Never persisted.
type querySession struct {
	caseID    string
	original  string
	effective string
	path      domain.QueryPath
}

// QueryUseCase is the latency-aware fast-path/deep-dive retrieval
// orchestrator. Stages run strictly in order: conditional expansion,
// vector search, confidence gate, then either a fast exit on a clear
// match, a terminal miss, or the deep dive (keyword search, rank fusion,
// cross-encoder rerank) before answer synthesis.
type QueryUseCase struct {
	embedder     ports.Embedder
	vectorDB     ports.VectorStore
	generator    ports.AnswerGenerator
	reranker     ports.Reranker
	keywordCache *keyword.Cache
	cfg          QueryConfig
	observer     QueryObserver
}

func NewQueryUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	generator ports.AnswerGenerator,
	reranker ports.Reranker,
	keywordCache *keyword.Cache,
	cfg QueryConfig,
) *QueryUseCase {
	return &QueryUseCase{
		embedder:     embedder,
		vectorDB:     vectorDB,
		generator:    generator,
		reranker:     reranker,
		keywordCache: keywordCache,
		cfg:          cfg.normalize(),
		observer:     noopObserver{},
	}
}

// WithObserver attaches a metrics sink. Must be called before serving.
func (uc *QueryUseCase) WithObserver(observer QueryObserver) *QueryUseCase {
	if observer != nil {
		uc.observer = observer
	}
	return uc
}

// Answer runs the full pipeline for one question about one case. It always
// returns a structured answer; external failures surface as fixed messages
// with an empty source list.
func (uc *QueryUseCase) Answer(ctx context.Context, caseID, query string) *domain.Answer {
	session := &querySession{
		caseID:    caseID,
		original:  query,
		effective: query,
		path:      domain.PathNone,
	}

	if len(strings.Fields(query)) < uc.cfg.ShortQueryWords {
		uc.expandQuery(ctx, session)
	}

	hits, failure := uc.vectorSearch(ctx, session)
	if failure != "" {
		return uc.terminate(session, failure)
	}
	if len(hits) == 0 {
		return uc.terminate(session, msgNoResults)
	}

	best := hits[0].Distance
	slog.Info("confidence_gate",
		"case_id", caseID,
		"best_distance", best,
		"slam_dunk", uc.cfg.SlamDunkThreshold,
		"miss", uc.cfg.MissThreshold,
	)

	var final []domain.RetrievedChunk
	switch {
	case best <= uc.cfg.SlamDunkThreshold:
		session.path = domain.PathFast
		final = hits
		if len(final) > uc.cfg.FastPathChunks {
			final = final[:uc.cfg.FastPathChunks]
		}
	case best >= uc.cfg.MissThreshold:
		return uc.terminate(session, msgNotRelevant)
	default:
		session.path = domain.PathDeepDive
		final, failure = uc.deepDive(ctx, session, hits)
		if failure != "" {
			return uc.terminate(session, failure)
		}
	}

	if len(final) == 0 {
		return uc.terminate(session, msgNoneRelevant)
	}
	return uc.synthesize(ctx, session, final)
}

// expandQuery rewrites a short query into a richer retrieval query.
// Best-effort: any failure falls back to the original query and is only
// logged, never surfaced.
func (uc *QueryUseCase) expandQuery(ctx context.Context, session *querySession) {
	defer uc.observe("expansion", time.Now())

	expanded, err := uc.generator.GenerateFromPrompt(ctx, buildExpansionPrompt(session.original))
	if err != nil {
		slog.Warn("query_expansion_failed", "case_id", session.caseID, "error", err)
		return
	}
	expanded = strings.TrimSpace(expanded)
	if expanded == "" {
		slog.Warn("query_expansion_empty", "case_id", session.caseID)
		return
	}
	session.effective = expanded
}

func (uc *QueryUseCase) vectorSearch(ctx context.Context, session *querySession) ([]domain.RetrievedChunk, string) {
	embedStart := time.Now()
	vector, err := uc.embedder.EmbedQuery(ctx, session.effective)
	uc.observe("embed", embedStart)
	if err != nil {
		slog.Error("query_embed_failed", "case_id", session.caseID, "error", err)
		return nil, msgSearchFailed
	}

	searchStart := time.Now()
	hits, err := uc.vectorDB.Search(ctx, session.caseID, vector, uc.cfg.VectorTopK)
	uc.observe("vector_search", searchStart)
	if err != nil {
		slog.Error("vector_search_failed", "case_id", session.caseID, "error", err)
		return nil, msgSearchFailed
	}
	return hits, ""
}

// deepDive merges the vector ranking with a BM25 keyword ranking, fuses
// them, and reranks the fused candidates with the cross-encoder. A missing
// keyword index degrades to vector-only fusion; a rerank failure degrades
// to the fused order.
func (uc *QueryUseCase) deepDive(
	ctx context.Context,
	session *querySession,
	hits []domain.RetrievedChunk,
) ([]domain.RetrievedChunk, string) {
	keywordStart := time.Now()
	keywordIDs := uc.keywordSearch(ctx, session)
	uc.observe("keyword_search", keywordStart)

	vectorIDs := make([]string, 0, len(hits))
	for _, hit := range hits {
		vectorIDs = append(vectorIDs, hit.ID)
	}

	fused := fuseRankedLists([][]string{vectorIDs, keywordIDs}, uc.cfg.FusionRRFK)
	topIDs := topFusedIDs(fused, uc.cfg.FusedCandidates)
	if len(topIDs) == 0 {
		return nil, msgNoFusedResults
	}

	fetchStart := time.Now()
	candidates, err := uc.vectorDB.Fetch(ctx, session.caseID, topIDs)
	uc.observe("fetch", fetchStart)
	if err != nil {
		slog.Error("candidate_fetch_failed", "case_id", session.caseID, "error", err)
		return nil, msgSearchFailed
	}

	rerankStart := time.Now()
	reranked, err := uc.reranker.Rerank(ctx, session.original, candidates, uc.cfg.RerankTopN)
	uc.observe("rerank", rerankStart)
	if err != nil {
		// Degrade to the fused order rather than failing the query.
		slog.Warn("rerank_failed", "case_id", session.caseID, "error", err)
		if len(candidates) > uc.cfg.RerankTopN {
			candidates = candidates[:uc.cfg.RerankTopN]
		}
		return candidates, ""
	}
	return reranked, ""
}

func (uc *QueryUseCase) keywordSearch(ctx context.Context, session *querySession) []string {
	snap, ok, err := uc.keywordCache.GetOrBuild(ctx, session.caseID, func(ctx context.Context) ([]string, []string, error) {
		return uc.vectorDB.ListCase(ctx, session.caseID)
	})
	if err != nil {
		slog.Warn("keyword_index_unavailable", "case_id", session.caseID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return snap.Index.TopIDs(session.effective, snap.IDs, uc.cfg.KeywordTopK)
}

func (uc *QueryUseCase) synthesize(ctx context.Context, session *querySession, final []domain.RetrievedChunk) *domain.Answer {
	texts := make([]string, 0, len(final))
	for _, chunk := range final {
		texts = append(texts, chunk.Text)
	}
	contextText := strings.Join(texts, "\n\n---\n\n")

	generateStart := time.Now()
	answerText, err := uc.generator.GenerateAnswer(ctx, session.original, contextText)
	uc.observe("generate", generateStart)
	if err != nil {
		slog.Error("answer_generation_failed", "case_id", session.caseID, "error", err)
		return uc.terminate(session, msgAnswerFailed)
	}

	uc.observer.ObservePath(session.path)
	return &domain.Answer{
		Text:    answerText,
		Path:    session.path,
		Sources: domain.Citations(final),
	}
}

func (uc *QueryUseCase) terminate(session *querySession, message string) *domain.Answer {
	uc.observer.ObservePath(session.path)
	return &domain.Answer{
		Text:    message,
		Path:    session.path,
		Sources: []domain.SourceDocument{},
	}
}

func (uc *QueryUseCase) observe(stage string, start time.Time) {
	uc.observer.ObserveStage(stage, time.Since(start))
}

func buildExpansionPrompt(query string) string {
	return fmt.Sprintf(`You are a legal research assistant.
Rewrite the short query below into a fuller search query for retrieving
passages from case documents. Add likely synonyms and related legal terms.
Return only the rewritten query, nothing else.

Query:
%s
`, query)
}
