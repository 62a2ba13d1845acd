package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.InDelta(t, 0.7, cfg.Search.SemanticWeight, 0.001)
	assert.InDelta(t, 0.3, cfg.Search.KeywordWeight, 0.001)
	assert.Equal(t, 5, cfg.Search.MaxResults)
	assert.Equal(t, 2, cfg.Search.OverFetch)
	assert.Equal(t, "beginner", cfg.Search.DefaultLevel)
	assert.InDelta(t, 1.5, cfg.Search.BM25K1, 0.001)
	assert.InDelta(t, 0.75, cfg.Search.BM25B, 0.001)
	assert.Equal(t, 8, cfg.Rerank.BatchSize)
	assert.True(t, cfg.History.Anonymize)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoConfigFilesUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Search.MaxResults)
}

func TestLoad_ProjectConfigOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	yaml := `
search:
  semantic_weight: 0.6
  keyword_weight: 0.4
  max_results: 10
rerank:
  enabled: true
  endpoint: http://localhost:9999
  timeout: 3s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kotoba.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, cfg.Search.SemanticWeight, 0.001)
	assert.InDelta(t, 0.4, cfg.Search.KeywordWeight, 0.001)
	assert.Equal(t, 10, cfg.Search.MaxResults)
	assert.Equal(t, "http://localhost:9999", cfg.Rerank.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.RerankTimeout())
	// Unspecified fields keep their defaults.
	assert.Equal(t, 8, cfg.Rerank.BatchSize)
}

func TestLoad_EnvOverridesWin(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	yaml := `
search:
  semantic_weight: 0.6
  keyword_weight: 0.4
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kotoba.yaml"), []byte(yaml), 0o644))

	t.Setenv("KOTOBA_SEMANTIC_WEIGHT", "0.8")
	t.Setenv("KOTOBA_KEYWORD_WEIGHT", "0.2")
	t.Setenv("KOTOBA_MAX_RESULTS", "7")
	t.Setenv("KOTOBA_DEFAULT_LEVEL", "intermediate")
	t.Setenv("KOTOBA_RERANK_ENABLED", "false")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, cfg.Search.SemanticWeight, 0.001)
	assert.InDelta(t, 0.2, cfg.Search.KeywordWeight, 0.001)
	assert.Equal(t, 7, cfg.Search.MaxResults)
	assert.Equal(t, "intermediate", cfg.Search.DefaultLevel)
	assert.False(t, cfg.Rerank.Enabled)
}

func TestLoad_UserConfigApplied(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	userDir := filepath.Join(xdg, "kotoba")
	require.NoError(t, os.MkdirAll(userDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"),
		[]byte("search:\n  max_results: 20\n"), 0o644))

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Search.MaxResults)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights not summing to one", func(c *Config) { c.Search.SemanticWeight = 0.5 }},
		{"negative weight", func(c *Config) { c.Search.KeywordWeight = -0.1; c.Search.SemanticWeight = 1.1 }},
		{"zero max results", func(c *Config) { c.Search.MaxResults = 0 }},
		{"zero over fetch", func(c *Config) { c.Search.OverFetch = 0 }},
		{"bad level", func(c *Config) { c.Search.DefaultLevel = "expert" }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "cohere" }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"rerank without endpoint", func(c *Config) { c.Rerank.Endpoint = "" }},
		{"rerank blend mismatch", func(c *Config) { c.Rerank.RerankWeight = 0.5 }},
		{"web search without endpoint", func(c *Config) { c.WebSearch.Enabled = true }},
		{"bad timeout", func(c *Config) { c.Rerank.Timeout = "banana" }},
		{"bm25 b out of range", func(c *Config) { c.Search.BM25B = 1.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".kotoba.yaml"),
		[]byte("search: [not a map"), 0o644))

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestSaveAndReload(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	cfg := NewConfig()
	cfg.Search.MaxResults = 9
	require.NoError(t, cfg.Save(filepath.Join(dir, ".kotoba.yaml")))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Search.MaxResults)
}

func TestPathHelpers(t *testing.T) {
	cfg := NewConfig()
	cfg.Paths.DataDir = "/data/kotoba"

	assert.Equal(t, "/data/kotoba/chunks.db", cfg.MetadataPath())
	assert.Equal(t, "/data/kotoba/vectors.hnsw", cfg.VectorIndexPath())
	assert.Equal(t, "/data/kotoba/history.db", cfg.HistoryPath())

	cfg.History.Path = "/elsewhere/h.db"
	assert.Equal(t, "/elsewhere/h.db", cfg.HistoryPath())
}
