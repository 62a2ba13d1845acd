// Package config loads Kotoba configuration from YAML files with
// environment variable overrides. Precedence, lowest to highest:
// defaults, user config (~/.config/kotoba/config.yaml), project config
// (.kotoba.yaml), KOTOBA_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Kotoba configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	WebSearch  WebSearchConfig  `yaml:"web_search" json:"web_search"`
	History    HistoryConfig    `yaml:"history" json:"history"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures data locations.
type PathsConfig struct {
	// DataDir holds the indexes and metadata database.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// CorpusDir holds the lesson corpus YAML files.
	CorpusDir string `yaml:"corpus_dir" json:"corpus_dir"`
}

// SearchConfig configures the hybrid retrieval pipeline.
type SearchConfig struct {
	// SemanticWeight is the fusion weight for vector similarity (0.0-1.0).
	// Must sum to 1.0 with KeywordWeight.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`

	// KeywordWeight is the fusion weight for BM25 scores (0.0-1.0).
	KeywordWeight float64 `yaml:"keyword_weight" json:"keyword_weight"`

	// MaxResults is the default number of results returned per query.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// OverFetch is the per-source over-fetch multiplier applied before
	// fusion and truncation.
	OverFetch int `yaml:"over_fetch" json:"over_fetch"`

	// MaxExpansions caps the number of query variants beyond the original.
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions"`

	// BM25K1 is the term frequency saturation parameter.
	BM25K1 float64 `yaml:"bm25_k1" json:"bm25_k1"`

	// BM25B is the document length normalization parameter.
	BM25B float64 `yaml:"bm25_b" json:"bm25_b"`

	// DefaultLevel is the learner level assumed when a query carries none.
	DefaultLevel string `yaml:"default_level" json:"default_level"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai" (any OpenAI-compatible
	// endpoint) or "static" (hash-based, offline).
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the OpenAI-compatible endpoint. Empty means api.openai.com.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the embedding model name.
	Model string `yaml:"model" json:"model"`

	// Dimensions is the embedding dimension.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// CacheSize is the query embedding LRU cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Timeout bounds each embedding request (e.g. "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// RerankConfig configures the cross-encoder reranking stage.
type RerankConfig struct {
	// Enabled turns reranking on. When off (or when the service fails),
	// the deterministic lexical fallback runs instead.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the reranker service URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Timeout is the per-batch request timeout (e.g. "10s").
	Timeout string `yaml:"timeout" json:"timeout"`

	// BatchSize is candidate pairs per scoring request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// RerankWeight blends the normalized rerank score into the final score.
	RerankWeight float64 `yaml:"rerank_weight" json:"rerank_weight"`

	// HybridWeight blends the fused hybrid score into the final score.
	HybridWeight float64 `yaml:"hybrid_weight" json:"hybrid_weight"`
}

// WebSearchConfig configures the web search retrieval source.
type WebSearchConfig struct {
	// Enabled turns web retrieval on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Endpoint is the search service URL.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// Timeout is the request timeout (e.g. "5s"). Web search is strictly
	// best-effort; a timeout degrades to zero web results.
	Timeout string `yaml:"timeout" json:"timeout"`

	// MaxResults caps results fetched from the web source.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// AllowedDomains restricts results to trusted learning sites.
	AllowedDomains []string `yaml:"allowed_domains" json:"allowed_domains"`
}

// HistoryConfig configures conversation history retrieval.
type HistoryConfig struct {
	// Enabled turns history retrieval on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the history database location. Empty uses DataDir/history.db.
	Path string `yaml:"path" json:"path"`

	// Anonymize strips user identifiers from retrieved snippets.
	Anonymize bool `yaml:"anonymize" json:"anonymize"`

	// MaxResults caps results fetched from history.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ServerConfig configures process-level settings.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir:   defaultDataDir(),
			CorpusDir: "corpus",
		},
		Search: SearchConfig{
			SemanticWeight: 0.7,
			KeywordWeight:  0.3,
			MaxResults:     5,
			OverFetch:      2,
			MaxExpansions:  4,
			BM25K1:         1.5,
			BM25B:          0.75,
			DefaultLevel:   "beginner",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			BaseURL:    "",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  32,
			CacheSize:  1000,
			Timeout:    "60s",
		},
		Rerank: RerankConfig{
			Enabled:      true,
			Endpoint:     "http://localhost:9770",
			Timeout:      "10s",
			BatchSize:    8,
			RerankWeight: 0.7,
			HybridWeight: 0.3,
		},
		WebSearch: WebSearchConfig{
			Enabled:    false,
			Endpoint:   "",
			Timeout:    "5s",
			MaxResults: 5,
			AllowedDomains: []string{
				"guidetojapanese.org",
				"imabi.org",
				"jlptsensei.com",
				"tofugu.com",
			},
		},
		History: HistoryConfig{
			Enabled:    false,
			Path:       "",
			Anonymize:  true,
			MaxResults: 3,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// defaultDataDir returns the default data directory (~/.kotoba).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".kotoba")
	}
	return filepath.Join(home, ".kotoba")
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kotoba", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "kotoba", "config.yaml")
	}
	return filepath.Join(home, ".config", "kotoba", "config.yaml")
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user configuration file if it exists.
// A missing file is not an error.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the given project directory, applying in
// order of increasing precedence: defaults, user config, project config
// (.kotoba.yaml), KOTOBA_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, err
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from .kotoba.yaml or .kotoba.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".kotoba.yaml")
	if fileExists(yamlPath) {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".kotoba.yml")
	if fileExists(ymlPath) {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine; defaults apply.
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Paths.CorpusDir != "" {
		c.Paths.CorpusDir = other.Paths.CorpusDir
	}

	// Zero is not a practical weight, so only non-zero values merge.
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.KeywordWeight != 0 {
		c.Search.KeywordWeight = other.Search.KeywordWeight
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.OverFetch != 0 {
		c.Search.OverFetch = other.Search.OverFetch
	}
	if other.Search.MaxExpansions != 0 {
		c.Search.MaxExpansions = other.Search.MaxExpansions
	}
	if other.Search.BM25K1 != 0 {
		c.Search.BM25K1 = other.Search.BM25K1
	}
	if other.Search.BM25B != 0 {
		c.Search.BM25B = other.Search.BM25B
	}
	if other.Search.DefaultLevel != "" {
		c.Search.DefaultLevel = other.Search.DefaultLevel
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.BaseURL != "" {
		c.Embeddings.BaseURL = other.Embeddings.BaseURL
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Embeddings.Timeout != "" {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}

	// Rerank.Enabled rides along with any other rerank setting because a
	// bare boolean is indistinguishable from an unset one after parsing.
	if other.Rerank.Endpoint != "" || other.Rerank.Timeout != "" ||
		other.Rerank.BatchSize != 0 || other.Rerank.Enabled {
		c.Rerank.Enabled = other.Rerank.Enabled
	}
	if other.Rerank.Endpoint != "" {
		c.Rerank.Endpoint = other.Rerank.Endpoint
	}
	if other.Rerank.Timeout != "" {
		c.Rerank.Timeout = other.Rerank.Timeout
	}
	if other.Rerank.BatchSize != 0 {
		c.Rerank.BatchSize = other.Rerank.BatchSize
	}
	if other.Rerank.RerankWeight != 0 {
		c.Rerank.RerankWeight = other.Rerank.RerankWeight
	}
	if other.Rerank.HybridWeight != 0 {
		c.Rerank.HybridWeight = other.Rerank.HybridWeight
	}

	if other.WebSearch.Enabled {
		c.WebSearch.Enabled = true
	}
	if other.WebSearch.Endpoint != "" {
		c.WebSearch.Endpoint = other.WebSearch.Endpoint
	}
	if other.WebSearch.Timeout != "" {
		c.WebSearch.Timeout = other.WebSearch.Timeout
	}
	if other.WebSearch.MaxResults != 0 {
		c.WebSearch.MaxResults = other.WebSearch.MaxResults
	}
	if len(other.WebSearch.AllowedDomains) > 0 {
		c.WebSearch.AllowedDomains = other.WebSearch.AllowedDomains
	}

	if other.History.Enabled {
		c.History.Enabled = true
	}
	if other.History.Path != "" {
		c.History.Path = other.History.Path
	}
	if other.History.Path != "" || other.History.Enabled {
		c.History.Anonymize = other.History.Anonymize
	}
	if other.History.MaxResults != 0 {
		c.History.MaxResults = other.History.MaxResults
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies KOTOBA_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("KOTOBA_SEMANTIC_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.SemanticWeight = w
		}
	}
	if v := os.Getenv("KOTOBA_KEYWORD_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			c.Search.KeywordWeight = w
		}
	}
	if v := os.Getenv("KOTOBA_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("KOTOBA_DEFAULT_LEVEL"); v != "" {
		c.Search.DefaultLevel = v
	}

	if v := os.Getenv("KOTOBA_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("KOTOBA_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("KOTOBA_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}

	if v := os.Getenv("KOTOBA_RERANK_ENABLED"); v != "" {
		c.Rerank.Enabled = parseBool(v)
	}
	if v := os.Getenv("KOTOBA_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}

	if v := os.Getenv("KOTOBA_WEB_SEARCH_ENABLED"); v != "" {
		c.WebSearch.Enabled = parseBool(v)
	}
	if v := os.Getenv("KOTOBA_WEB_SEARCH_ENDPOINT"); v != "" {
		c.WebSearch.Endpoint = v
	}

	if v := os.Getenv("KOTOBA_HISTORY_ENABLED"); v != "" {
		c.History.Enabled = parseBool(v)
	}

	if v := os.Getenv("KOTOBA_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("KOTOBA_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("search.semantic_weight must be in [0,1], got %v", c.Search.SemanticWeight)
	}
	if c.Search.KeywordWeight < 0 || c.Search.KeywordWeight > 1 {
		return fmt.Errorf("search.keyword_weight must be in [0,1], got %v", c.Search.KeywordWeight)
	}
	if sum := c.Search.SemanticWeight + c.Search.KeywordWeight; math.Abs(sum-1.0) > 0.001 {
		return fmt.Errorf("search weights must sum to 1.0, got %v", sum)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.OverFetch < 1 {
		return fmt.Errorf("search.over_fetch must be at least 1, got %d", c.Search.OverFetch)
	}
	if c.Search.BM25K1 <= 0 {
		return fmt.Errorf("search.bm25_k1 must be positive, got %v", c.Search.BM25K1)
	}
	if c.Search.BM25B < 0 || c.Search.BM25B > 1 {
		return fmt.Errorf("search.bm25_b must be in [0,1], got %v", c.Search.BM25B)
	}

	switch c.Search.DefaultLevel {
	case "beginner", "elementary", "intermediate", "advanced":
	default:
		return fmt.Errorf("search.default_level must be one of beginner, elementary, intermediate, advanced; got %q", c.Search.DefaultLevel)
	}

	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return fmt.Errorf("embeddings.provider must be \"openai\" or \"static\", got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	if c.Rerank.Enabled {
		if c.Rerank.Endpoint == "" {
			return fmt.Errorf("rerank.endpoint is required when reranking is enabled")
		}
		if c.Rerank.BatchSize <= 0 {
			return fmt.Errorf("rerank.batch_size must be positive, got %d", c.Rerank.BatchSize)
		}
		if sum := c.Rerank.RerankWeight + c.Rerank.HybridWeight; math.Abs(sum-1.0) > 0.001 {
			return fmt.Errorf("rerank blend weights must sum to 1.0, got %v", sum)
		}
	}

	if c.WebSearch.Enabled && c.WebSearch.Endpoint == "" {
		return fmt.Errorf("web_search.endpoint is required when web search is enabled")
	}

	if _, err := parseDuration(c.Embeddings.Timeout, 0); err != nil {
		return fmt.Errorf("embeddings.timeout: %w", err)
	}
	if _, err := parseDuration(c.Rerank.Timeout, 0); err != nil {
		return fmt.Errorf("rerank.timeout: %w", err)
	}
	if _, err := parseDuration(c.WebSearch.Timeout, 0); err != nil {
		return fmt.Errorf("web_search.timeout: %w", err)
	}

	return nil
}

// EmbedTimeout returns the parsed embedding request timeout.
func (c *Config) EmbedTimeout() time.Duration {
	d, _ := parseDuration(c.Embeddings.Timeout, 60*time.Second)
	return d
}

// RerankTimeout returns the parsed rerank request timeout.
func (c *Config) RerankTimeout() time.Duration {
	d, _ := parseDuration(c.Rerank.Timeout, 10*time.Second)
	return d
}

// WebSearchTimeout returns the parsed web search request timeout.
func (c *Config) WebSearchTimeout() time.Duration {
	d, _ := parseDuration(c.WebSearch.Timeout, 5*time.Second)
	return d
}

// parseDuration parses a duration string, treating empty as the fallback.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// HistoryPath resolves the conversation history database path.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// MetadataPath resolves the chunk metadata database path.
func (c *Config) MetadataPath() string {
	return filepath.Join(c.Paths.DataDir, "chunks.db")
}

// VectorIndexPath resolves the HNSW index path.
func (c *Config) VectorIndexPath() string {
	return filepath.Join(c.Paths.DataDir, "vectors.hnsw")
}

func parseBool(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
