package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIEmbedder generates embeddings via any OpenAI-compatible embeddings
// endpoint (OpenAI itself, or local servers such as Ollama and LM Studio).
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
	timeout    time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIConfig configures the OpenAI-compatible embedder.
type OpenAIConfig struct {
	BaseURL    string // endpoint base URL; empty means api.openai.com
	Token      string // API token; "none" works for local unauthenticated servers
	Model      string // embedding model name
	Dimensions int    // expected embedding dimension

	// Timeout bounds each embedding request. Zero means DefaultTimeout;
	// every remote call carries a deadline.
	Timeout time.Duration
}

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Token == "" {
		cfg.Token = "none"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []openai.Option{
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(DefaultBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OpenAIEmbedder{
		embedder:   embedder,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		timeout:    cfg.Timeout,
		logger:     slog.Default().With(slog.String("component", "openai-embedder")),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
// Vectors are normalized to unit length so cosine similarity is a dot product.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum %d", len(texts), MaxBatchSize)
	}

	// A stalled endpoint degrades this source; it must not hold the
	// whole request open.
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embedding request failed",
			slog.Int("count", len(texts)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to embed %d texts: %w", len(texts), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(vecs))
	}

	for i, v := range vecs {
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available probes the endpoint with a tiny embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	if err != nil && !strings.Contains(err.Error(), "closed") {
		e.logger.Debug("embedder availability probe failed", slog.String("error", err.Error()))
	}
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
