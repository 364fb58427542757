package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SLAM_DUNK_THRESHOLD", "")
	t.Setenv("MISS_THRESHOLD", "")
	t.Setenv("FUSION_RRF_K", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SlamDunkThreshold != 0.4 {
		t.Fatalf("expected default slam dunk threshold 0.4, got %v", cfg.SlamDunkThreshold)
	}
	if cfg.MissThreshold != 0.9 {
		t.Fatalf("expected default miss threshold 0.9, got %v", cfg.MissThreshold)
	}
	if cfg.FusionRRFK != 60 {
		t.Fatalf("expected default fusion rrf k 60, got %d", cfg.FusionRRFK)
	}
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 150 {
		t.Fatalf("expected default chunking 1000/150, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("vector_top_k: 20\nrerank_top_n: 8\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RERANK_TOP_N", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VectorTopK != 20 {
		t.Fatalf("expected file override for vector top k, got %d", cfg.VectorTopK)
	}
	if cfg.RerankTopN != 12 {
		t.Fatalf("expected env to win over file, got %d", cfg.RerankTopN)
	}
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SLAM_DUNK_THRESHOLD", "1.2")
	t.Setenv("MISS_THRESHOLD", "0.9")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error for slam dunk above miss")
	}
}

func TestValidateRejectsOverlapNotBelowSize(t *testing.T) {
	cfg := defaults()
	cfg.ChunkOverlap = cfg.ChunkSize

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for overlap >= chunk size")
	}
}
