package embed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
)

func fastRetryConfig() kerrors.RetryConfig {
	return kerrors.RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetryingEmbedder_RecoversTransientFailure(t *testing.T) {
	inner := newCountingEmbedder()
	r := NewRetryingEmbedder(inner, fastRetryConfig())
	defer r.Close()

	inner.failNext.Store(true)
	vec, err := r.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Len(t, vec, StaticDimensions)
}

func TestRetryingEmbedder_BatchRecovers(t *testing.T) {
	inner := newCountingEmbedder()
	r := NewRetryingEmbedder(inner, fastRetryConfig())
	defer r.Close()

	inner.failNext.Store(true)
	vecs, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
}

func TestRetryingEmbedder_Passthrough(t *testing.T) {
	inner := newCountingEmbedder()
	r := NewRetryingEmbedder(inner, fastRetryConfig())

	assert.Equal(t, StaticDimensions, r.Dimensions())
	assert.Equal(t, "static-hash-v1", r.ModelName())
	assert.True(t, r.Available(context.Background()))
}
