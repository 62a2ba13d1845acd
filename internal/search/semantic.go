package search

import (
	"context"
	"log/slog"

	"github.com/kotoba-ai/kotoba/internal/embed"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// SemanticSearcher runs vector similarity search: embed the query, search
// the HNSW store with the level predicate, hydrate chunk content from the
// metadata store. Failures degrade to an empty result list; the keyword leg
// of hybrid search still runs.
type SemanticSearcher struct {
	vectors  store.VectorStore
	embedder embed.Embedder
	chunks   store.MetadataStore
	logger   *slog.Logger
}

// NewSemanticSearcher creates a semantic search client.
func NewSemanticSearcher(vectors store.VectorStore, embedder embed.Embedder, chunks store.MetadataStore) *SemanticSearcher {
	return &SemanticSearcher{
		vectors:  vectors,
		embedder: embedder,
		chunks:   chunks,
		logger:   slog.Default().With(slog.String("component", "semantic")),
	}
}

// Search returns candidates by vector similarity, restricted to content at
// or below the given level. Scores are cosine similarities in [0,1]. An
// empty slice with no error means the search ran and found nothing or was
// degraded; the error return is reserved for context cancellation.
func (s *SemanticSearcher) Search(ctx context.Context, query string, level store.Level, limit int) ([]*Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []*Candidate{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("query embedding failed, skipping semantic search",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return []*Candidate{}, nil
	}

	hits, err := s.vectors.Search(ctx, vec, limit, level.AllowedLevels())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("vector search failed",
			slog.String("error", err.Error()))
		return []*Candidate{}, nil
	}
	if len(hits) == 0 {
		return []*Candidate{}, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = float64(h.Score)
	}

	loaded, err := s.chunks.GetChunks(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("chunk hydration failed",
			slog.String("error", err.Error()))
		return []*Candidate{}, nil
	}

	out := make([]*Candidate, 0, len(loaded))
	for _, c := range loaded {
		out = append(out, &Candidate{
			Key:           CandidateKey(c.Content),
			ChunkID:       c.ID,
			Content:       c.Content,
			Metadata:      c.Metadata,
			Source:        SourceSemantic,
			SemanticScore: scores[c.ID],
			QueryMatches:  1,
		})
	}
	return out, nil
}
