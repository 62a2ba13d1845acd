package embed

import (
	"context"
	"time"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
)

// DefaultRetryConfig returns the retry configuration used for embedding
// requests. Jitter is enabled because indexing runs many batches back to
// back against one endpoint.
func DefaultRetryConfig() kerrors.RetryConfig {
	return kerrors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryingEmbedder wraps an Embedder with retry on transient failures.
type RetryingEmbedder struct {
	inner Embedder
	cfg   kerrors.RetryConfig
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner with the given retry configuration.
func NewRetryingEmbedder(inner Embedder, cfg kerrors.RetryConfig) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: cfg}
}

// Embed generates an embedding, retrying on failure.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return kerrors.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch generates embeddings, retrying the whole batch on failure.
func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return kerrors.RetryWithResult(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

func (r *RetryingEmbedder) Dimensions() int                    { return r.inner.Dimensions() }
func (r *RetryingEmbedder) ModelName() string                  { return r.inner.ModelName() }
func (r *RetryingEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }
func (r *RetryingEmbedder) Close() error                       { return r.inner.Close() }
