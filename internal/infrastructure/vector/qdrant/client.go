package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lexigraph/case-assistant/internal/core/domain"
)

// Client talks to Qdrant over its REST API. Each case gets its own
// collection so deletes and keyword corpora stay scoped to one case.
type Client struct {
	baseURL    string
	httpClient *http.Client

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		ensured:    make(map[string]int),
	}
}

// collectionName maps a case id to its collection. Hyphens are stripped so
// UUID case ids stay within Qdrant's collection naming rules.
func collectionName(caseID string) string {
	return "case_" + strings.ReplaceAll(caseID, "-", "")
}

func (c *Client) Upsert(ctx context.Context, caseID string, records []domain.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	collection := collectionName(caseID)
	if err := c.ensureCollection(ctx, collection, len(records[0].Vector)); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(records))
	for _, rec := range records {
		points = append(points, point{
			ID:     rec.ID,
			Vector: rec.Vector,
			Payload: map[string]any{
				"document_id": rec.DocumentID,
				"case_id":     rec.CaseID,
				"file_name":   rec.FileName,
				"page":        rec.Page,
				"text":        rec.Text,
			},
		})
	}

	var resp struct{}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
	return c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, &resp, "upsert")
}

func (c *Client) Search(ctx context.Context, caseID string, vector []float32, limit int) ([]domain.RetrievedChunk, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collectionName(caseID))
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.RetrievedChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		chunk := chunkFromPayload(r.ID, r.Payload)
		// Qdrant reports cosine similarity; the pipeline ranks by distance.
		chunk.Distance = 1 - r.Score
		out = append(out, chunk)
	}
	return out, nil
}

// Fetch retrieves points by id, preserving the requested order. Missing ids
// are skipped.
func (c *Client) Fetch(ctx context.Context, caseID string, ids []string) ([]domain.RetrievedChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := map[string]any{
		"ids":          ids,
		"with_payload": true,
	}

	var fetchResp struct {
		Result []struct {
			ID      string         `json:"id"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, collectionName(caseID))
	if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &fetchResp, "fetch"); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.RetrievedChunk, len(fetchResp.Result))
	for _, r := range fetchResp.Result {
		byID[r.ID] = chunkFromPayload(r.ID, r.Payload)
	}

	out := make([]domain.RetrievedChunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

// ListCase scrolls the whole collection and returns all point ids and texts
// in matching order. Used to build the per-case keyword index.
func (c *Client) ListCase(ctx context.Context, caseID string) ([]string, []string, error) {
	var (
		ids    []string
		texts  []string
		offset any
	)

	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, collectionName(caseID))
	for {
		reqBody := map[string]any{
			"limit":        256,
			"with_payload": []string{"text"},
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var scrollResp struct {
			Result struct {
				Points []struct {
					ID      string         `json:"id"`
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.doJSON(ctx, http.MethodPost, url, reqBody, &scrollResp, "scroll"); err != nil {
			return nil, nil, err
		}

		for _, p := range scrollResp.Result.Points {
			ids = append(ids, p.ID)
			texts = append(texts, getStringPayload(p.Payload, "text"))
		}
		if scrollResp.Result.NextPageOffset == nil {
			return ids, texts, nil
		}
		offset = scrollResp.Result.NextPageOffset
	}
}

// DeleteByDocument removes every point belonging to one document. Called
// before re-indexing so stale vectors never survive a re-upload.
func (c *Client) DeleteByDocument(ctx context.Context, caseID, documentID string) error {
	reqBody := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{
					"key":   "document_id",
					"match": map[string]any{"value": documentID},
				},
			},
		},
	}

	var resp struct{}
	url := fmt.Sprintf("%s/collections/%s/points/delete?wait=true", c.baseURL, collectionName(caseID))
	err := c.doJSON(ctx, http.MethodPost, url, reqBody, &resp, "delete by document")
	if err != nil && strings.Contains(err.Error(), "404") {
		// First ingestion for the case: nothing to prune yet.
		return nil
	}
	return err
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal create collection body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create collection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant ensure collection request: %w", err)
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markEnsured(collection, vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return fmt.Errorf("qdrant ensure collection status: %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("qdrant ensure collection status: %s", resp.Status)
	}
	c.markEnsured(collection, vectorSize)
	return nil
}

func (c *Client) markEnsured(collection string, vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensured[collection] = vectorSize
}

func (c *Client) doJSON(ctx context.Context, method, url string, reqBody, respBody any, op string) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s status: %s", op, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func chunkFromPayload(id string, payload map[string]any) domain.RetrievedChunk {
	return domain.RetrievedChunk{
		ID:         id,
		DocumentID: getStringPayload(payload, "document_id"),
		CaseID:     getStringPayload(payload, "case_id"),
		FileName:   getStringPayload(payload, "file_name"),
		Page:       getStringPayload(payload, "page"),
		Text:       getStringPayload(payload, "text"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
