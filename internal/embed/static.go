package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// StaticEmbedder generates embeddings using a hash-based approach.
// Works without external dependencies (no network, no API key). Deterministic
// and fast, with reduced semantic quality; used for tests and offline mode.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// Weights for vector generation. Token hashing captures word identity;
// character n-grams capture sub-word overlap, which matters for Japanese
// where a "token" is a single rune.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 2
)

// NewStaticEmbedder creates a new static embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates an embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// generateVector creates a hash-based vector from text using the same
// script-aware tokenization as the keyword index.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range store.Tokenize(text) {
		vector[hashToIndex(token)] += tokenWeight
	}

	runes := []rune(strings.ToLower(text))
	for i := 0; i+ngramSize <= len(runes); i++ {
		vector[hashToIndex(string(runes[i:i+ngramSize]))] += ngramWeight
	}

	return vector
}

// hashToIndex maps a string to a vector index via FNV-1a.
func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % StaticDimensions)
}

// Dimensions returns the embedding dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash-v1"
}

// Available always returns true; the static embedder has no dependencies.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
