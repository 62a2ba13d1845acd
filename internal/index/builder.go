// Package index builds and refreshes the retrieval indexes: chunk
// metadata in SQLite, embeddings in the HNSW store, and the in-memory
// BM25 index. Builds are guarded by a file lock so concurrent processes
// cannot interleave writes.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kotoba-ai/kotoba/internal/embed"
	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/ingest"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// Builder orchestrates a corpus index build.
type Builder struct {
	loader   *ingest.Loader
	metadata store.MetadataStore
	vectors  store.VectorStore
	keyword  store.KeywordIndex
	embedder embed.Embedder
	lock     *store.RebuildLock

	vectorPath string
	batchSize  int
	logger     *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithVectorPath sets where the vector index is persisted after a build.
// Empty means the vector store stays in memory only.
func WithVectorPath(path string) BuilderOption {
	return func(b *Builder) { b.vectorPath = path }
}

// NewBuilder creates an index builder.
func NewBuilder(metadata store.MetadataStore, vectors store.VectorStore, keyword store.KeywordIndex, embedder embed.Embedder, lock *store.RebuildLock, opts ...BuilderOption) *Builder {
	b := &Builder{
		loader:    ingest.NewLoader(),
		metadata:  metadata,
		vectors:   vectors,
		keyword:   keyword,
		embedder:  embedder,
		lock:      lock,
		batchSize: embed.DefaultBatchSize,
		logger:    slog.Default().With(slog.String("component", "index")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Stats summarizes a completed build.
type Stats struct {
	Chunks          int
	EmbeddedBatches int
	CorpusVersion   string
	Elapsed         time.Duration
}

// Build loads the corpus from dir and rebuilds every index. When the
// stored corpus version already matches and force is false, the build is
// skipped and only the keyword index is refreshed from stored chunks.
func (b *Builder) Build(ctx context.Context, dir string, force bool) (*Stats, error) {
	if b.lock != nil {
		if err := b.lock.Lock(); err != nil {
			return nil, kerrors.New(kerrors.ErrCodeIndexFailed, "another index build is running", err)
		}
		defer func() { _ = b.lock.Unlock() }()
	}

	start := time.Now()

	version, err := ingest.CorpusVersion(dir)
	if err != nil {
		return nil, err
	}

	if !force {
		stored, err := b.metadata.GetState(ctx, store.StateKeyCorpusVersion)
		if err != nil {
			return nil, fmt.Errorf("read corpus version: %w", err)
		}
		if stored == version {
			if err := b.refreshKeyword(ctx); err != nil {
				return nil, err
			}
			b.logger.Info("corpus unchanged, skipped rebuild",
				slog.String("version", version[:12]))
			return &Stats{CorpusVersion: version, Elapsed: time.Since(start)}, nil
		}
	}

	if err := b.checkDimensions(ctx); err != nil {
		return nil, err
	}

	chunks, err := b.loader.Load(dir)
	if err != nil {
		return nil, err
	}

	if err := b.metadata.SaveChunks(ctx, chunks); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeIndexFailed, "failed to save chunks", err)
	}

	batches, err := b.embedAndStore(ctx, chunks)
	if err != nil {
		return nil, err
	}

	if err := b.keyword.Rebuild(ctx, chunks); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeIndexFailed, "failed to rebuild keyword index", err)
	}

	if b.vectorPath != "" {
		if err := b.vectors.Save(b.vectorPath); err != nil {
			return nil, kerrors.New(kerrors.ErrCodeIndexFailed, "failed to persist vector index", err)
		}
	}

	for key, value := range map[string]string{
		store.StateKeyCorpusVersion:  version,
		store.StateKeyIndexDimension: strconv.Itoa(b.embedder.Dimensions()),
		store.StateKeyIndexModel:     b.embedder.ModelName(),
	} {
		if err := b.metadata.SetState(ctx, key, value); err != nil {
			return nil, fmt.Errorf("save index state %s: %w", key, err)
		}
	}

	stats := &Stats{
		Chunks:          len(chunks),
		EmbeddedBatches: batches,
		CorpusVersion:   version,
		Elapsed:         time.Since(start),
	}
	b.logger.Info("index build completed",
		slog.Int("chunks", stats.Chunks),
		slog.Int("batches", stats.EmbeddedBatches),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, nil
}

// checkDimensions rejects a build over an index written with a different
// embedding dimension or model; that state needs a forced rebuild with a
// fresh vector store, not an in-place append.
func (b *Builder) checkDimensions(ctx context.Context) error {
	stored, err := b.metadata.GetState(ctx, store.StateKeyIndexDimension)
	if err != nil {
		return fmt.Errorf("read index dimension: %w", err)
	}
	if stored == "" || b.vectors.Count() == 0 {
		return nil
	}
	dims, err := strconv.Atoi(stored)
	if err != nil {
		return kerrors.New(kerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("stored index dimension %q is not a number", stored), err)
	}
	if dims != b.embedder.Dimensions() {
		return kerrors.New(kerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index was built with dimension %d, embedder produces %d", dims, b.embedder.Dimensions()), nil).
			WithSuggestion("re-run the index build with --force to rebuild from scratch")
	}
	return nil
}

// embedAndStore embeds chunks in batches and adds them to the vector
// store. Returns the number of batches embedded.
func (b *Builder) embedAndStore(ctx context.Context, chunks []*store.Chunk) (int, error) {
	batches := 0
	for start := 0; start < len(chunks); start += b.batchSize {
		end := start + b.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		ids := make([]string, len(batch))
		levels := make([]store.Level, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
			ids[i] = c.ID
			levels[i] = c.Metadata.Level
		}

		vectors, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return batches, kerrors.New(kerrors.ErrCodeEmbeddingFailed,
				fmt.Sprintf("failed to embed batch starting at %d", start), err)
		}
		if err := b.vectors.Add(ctx, ids, vectors, levels); err != nil {
			return batches, kerrors.New(kerrors.ErrCodeIndexFailed,
				fmt.Sprintf("failed to store vectors for batch starting at %d", start), err)
		}
		batches++
	}
	return batches, nil
}

// refreshKeyword rebuilds the in-memory keyword index from stored chunks.
// Needed on startup since the BM25 index does not persist.
func (b *Builder) refreshKeyword(ctx context.Context) error {
	chunks, err := b.metadata.ListChunks(ctx)
	if err != nil {
		return kerrors.New(kerrors.ErrCodeIndexFailed, "failed to list chunks", err)
	}
	if err := b.keyword.Rebuild(ctx, chunks); err != nil {
		return kerrors.New(kerrors.ErrCodeIndexFailed, "failed to rebuild keyword index", err)
	}
	return nil
}
