package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lexigraph/case-assistant/internal/core/ports"
	"github.com/lexigraph/case-assistant/internal/core/usecase"
)

// ReadinessCheck probes one dependency for the /readyz endpoint.
type ReadinessCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Options struct {
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxConcurrent    int
	BackpressureWait time.Duration
	MaxUploadBytes   int64
}

type Router struct {
	ingestUC  *usecase.IngestDocumentUseCase
	queryUC   *usecase.QueryUseCase
	repo      ports.DocumentRepository
	readiness []ReadinessCheck
	opts      Options
}

func NewRouter(
	ingestUC *usecase.IngestDocumentUseCase,
	queryUC *usecase.QueryUseCase,
	repo ports.DocumentRepository,
	readiness []ReadinessCheck,
	opts Options,
) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 64 << 20
	}
	return &Router{
		ingestUC:  ingestUC,
		queryUC:   queryUC,
		repo:      repo,
		readiness: readiness,
		opts:      opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("POST /v1/cases/{case_id}/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{document_id}", rt.getDocumentByID)
	mux.HandleFunc("POST /v1/cases/{case_id}/query", rt.queryCase)

	var handler http.Handler = mux
	if rt.opts.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.BackpressureWait)
	}
	if rt.opts.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports 503 until every dependency probe passes, so rollouts wait
// for the cross-encoder model load instead of serving degraded answers.
func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failures := map[string]string{}
	for _, check := range rt.readiness {
		if err := check.Probe(ctx); err != nil {
			failures[check.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	if strings.TrimSpace(caseID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "case id is required"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingestUC.Upload(
		r.Context(),
		caseID,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("document_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.repo.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) queryCase(w http.ResponseWriter, r *http.Request) {
	caseID := r.PathValue("case_id")
	if strings.TrimSpace(caseID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "case id is required"})
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	// The pipeline reports its own failures inside the answer body.
	answer := rt.queryUC.Answer(r.Context(), caseID, req.Query)
	writeJSON(w, http.StatusOK, answer)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
