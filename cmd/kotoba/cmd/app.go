package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kotoba-ai/kotoba/internal/config"
	"github.com/kotoba-ai/kotoba/internal/embed"
	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/history"
	"github.com/kotoba-ai/kotoba/internal/index"
	"github.com/kotoba-ai/kotoba/internal/rerank"
	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
	"github.com/kotoba-ai/kotoba/internal/telemetry"
	"github.com/kotoba-ai/kotoba/internal/websearch"
)

// app holds the wired stores, embedder, and metrics collector shared by
// the index and search commands. Close releases the stores in reverse
// open order.
type app struct {
	cfg      *config.Config
	metadata *store.SQLiteMetadataStore
	vectors  *store.HNSWStore
	keyword  *store.MemoryKeywordIndex
	embedder embed.Embedder
	metrics  *telemetry.Metrics

	closers []func() error
}

// openApp loads configuration from the working directory and opens the
// data stores under the configured data directory.
func openApp() (*app, error) {
	dir, err := os.Getwd()
	if err != nil {
		dir = "."
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	a := &app{
		cfg:     cfg,
		metrics: telemetry.NewMetrics(telemetry.DefaultConfig()),
	}

	a.metadata, err = store.NewSQLiteMetadataStore(cfg.MetadataPath())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.metadata.Close)

	a.embedder, err = newEmbedder(cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.embedder.Close)

	a.vectors, err = store.NewHNSWStore(store.VectorStoreConfig{
		Dimensions: a.embedder.Dimensions(),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, a.vectors.Close)

	if _, statErr := os.Stat(cfg.VectorIndexPath()); statErr == nil {
		if loadErr := a.vectors.Load(cfg.VectorIndexPath()); loadErr != nil {
			slog.Warn("failed to load vector index, starting empty",
				slog.String("path", cfg.VectorIndexPath()),
				slog.String("error", loadErr.Error()))
		}
	}

	a.keyword = store.NewMemoryKeywordIndex(store.BM25Config{
		K1: cfg.Search.BM25K1,
		B:  cfg.Search.BM25B,
	})
	a.closers = append(a.closers, a.keyword.Close)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// newEmbedder builds the embedding stack from config: the configured
// provider wrapped with retries (for remote backends) and a query cache.
func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	var base embed.Embedder
	switch cfg.Embeddings.Provider {
	case "static":
		base = embed.NewStaticEmbedder()
	default:
		token := os.Getenv("KOTOBA_OPENAI_API_KEY")
		if token == "" {
			token = os.Getenv("OPENAI_API_KEY")
		}
		inner, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL:    cfg.Embeddings.BaseURL,
			Token:      token,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			Timeout:    cfg.EmbedTimeout(),
		})
		if err != nil {
			return nil, err
		}
		base = embed.NewRetryingEmbedder(inner, kerrors.DefaultRetryConfig())
	}

	return embed.NewCachedEmbedder(base, cfg.Embeddings.CacheSize), nil
}

// newBuilder wires the index builder over the app's stores.
func (a *app) newBuilder() *index.Builder {
	return index.NewBuilder(
		a.metadata, a.vectors, a.keyword, a.embedder,
		store.NewRebuildLock(a.cfg.Paths.DataDir),
		index.WithBatchSize(a.cfg.Embeddings.BatchSize),
		index.WithVectorPath(a.cfg.VectorIndexPath()),
	)
}

// newEngine wires the retrieval pipeline over the app's stores. The
// keyword index is rebuilt from stored chunks first; it lives in memory
// and starts empty each process.
func (a *app) newEngine(ctx context.Context) (*search.Engine, error) {
	chunks, err := a.metadata.ListChunks(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		if err := a.keyword.Rebuild(ctx, chunks); err != nil {
			return nil, err
		}
	}

	cfg := a.cfg
	semantic := search.NewSemanticSearcher(a.vectors, a.embedder, a.metadata)
	hybrid := search.NewHybridRetriever(semantic, a.keyword, a.metadata,
		search.Weights{
			Semantic: cfg.Search.SemanticWeight,
			Keyword:  cfg.Search.KeywordWeight,
		},
		cfg.Search.OverFetch)

	var copts []search.CoordinatorOption
	if cfg.WebSearch.Enabled {
		web, err := websearch.NewClient(websearch.Config{
			Endpoint:       cfg.WebSearch.Endpoint,
			Timeout:        cfg.WebSearchTimeout(),
			AllowedDomains: cfg.WebSearch.AllowedDomains,
			MaxResults:     cfg.WebSearch.MaxResults,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, web.Close)
		copts = append(copts,
			search.WithWebSearcher(web),
			search.WithWebTimeout(cfg.WebSearchTimeout()))
	}
	if cfg.History.Enabled {
		hist, err := history.NewStore(cfg.HistoryPath(), history.Config{
			Enabled:   true,
			Anonymize: cfg.History.Anonymize,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, hist.Close)
		copts = append(copts, search.WithHistorySearcher(hist))
	}
	coordinator := search.NewCoordinator(hybrid, copts...)

	ropts := []search.RerankerOption{
		search.WithBatchSize(cfg.Rerank.BatchSize),
		search.WithBlend(cfg.Rerank.RerankWeight, cfg.Rerank.HybridWeight),
	}
	if cfg.Rerank.Enabled {
		scorer := rerank.NewClient(rerank.Config{
			Endpoint: cfg.Rerank.Endpoint,
			Timeout:  cfg.RerankTimeout(),
		})
		a.closers = append(a.closers, scorer.Close)
		ropts = append(ropts, search.WithScorer(scorer))
	}
	reranker := search.NewReranker(ropts...)

	expander := search.NewExpander(search.WithMaxExpansions(cfg.Search.MaxExpansions))

	return search.NewEngine(expander, coordinator, reranker), nil
}
