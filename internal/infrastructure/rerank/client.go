package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

// Client calls the cross-encoder sidecar. The sidecar scores every
// (query, document) pair in one request; it is slow but far more precise
// than embedding distance, so it only sees the fused candidate set.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func (c *Client) Rerank(
	ctx context.Context,
	query string,
	candidates []domain.RetrievedChunk,
	topN int,
) ([]domain.RetrievedChunk, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	documents := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		documents = append(documents, cand.Text)
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank_documents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("rerank status: %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var ranked rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&ranked); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}

	results := ranked.Results
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	out := make([]domain.RetrievedChunk, 0, topN)
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank index %d out of range for %d candidates", r.Index, len(candidates))
		}
		out = append(out, candidates[r.Index])
		if len(out) == topN {
			break
		}
	}
	return out, nil
}

// Healthy probes the sidecar. Model loading takes a while after startup, so
// a 503 is reported as temporary rather than fatal.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rerank health request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusServiceUnavailable:
		return domain.WrapError(domain.ErrTemporary, "rerank health", errors.New("model still loading"))
	default:
		return fmt.Errorf("rerank health status: %s", resp.Status)
	}
}
