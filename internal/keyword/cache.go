package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

const snapshotVersion = 1

// Store is the generic TTL key-value cache the snapshots live in.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns (nil, false, nil) when the key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// CorpusProvider fetches every chunk text and ID for a case, aligned by
// position.
type CorpusProvider func(ctx context.Context) (ids []string, texts []string, err error)

// Snapshot is the atomic cache unit: the index, its corpus, and the ID
// alignment are built, serialized, and invalidated together.
type Snapshot struct {
	Version int       `json:"version"`
	BuiltAt time.Time `json:"built_at"`
	Index   *Index    `json:"index"`
	Corpus  []string  `json:"corpus"`
	IDs     []string  `json:"ids"`
}

type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewCache(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// GetOrBuild returns the cached snapshot for the case when it is fresh,
// otherwise rebuilds it from the corpus provider and caches the result.
// An empty corpus returns (nil, false, nil): no keyword search is possible
// for this case. Corrupt or version-mismatched cache values are treated as
// misses, never as errors.
func (c *Cache) GetOrBuild(ctx context.Context, caseID string, provider CorpusProvider) (*Snapshot, bool, error) {
	key := cacheKey(caseID)

	if raw, found, err := c.store.Get(ctx, key); err == nil && found {
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			slog.Warn("keyword_cache_decode_failed", "case_id", caseID, "error", err)
		} else if snap.Version == snapshotVersion && c.now().Sub(snap.BuiltAt) < c.ttl {
			return &snap, true, nil
		}
	} else if err != nil {
		slog.Warn("keyword_cache_get_failed", "case_id", caseID, "error", err)
	}

	ids, texts, err := provider(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("fetch keyword corpus: %w", err)
	}
	if len(texts) == 0 {
		return nil, false, nil
	}

	snap := &Snapshot{
		Version: snapshotVersion,
		BuiltAt: c.now(),
		Index:   BuildIndex(texts),
		Corpus:  texts,
		IDs:     ids,
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, false, fmt.Errorf("encode keyword snapshot: %w", err)
	}
	// Last writer wins on concurrent rebuilds; every write is a complete
	// snapshot so readers never observe a partial value.
	if err := c.store.Set(ctx, key, raw, c.ttl); err != nil {
		slog.Warn("keyword_cache_set_failed", "case_id", caseID, "error", err)
	}
	return snap, true, nil
}

func cacheKey(caseID string) string {
	return "bm25_data__" + caseID
}
