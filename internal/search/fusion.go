package search

import (
	"context"
	"log/slog"
	"sort"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// DefaultOverFetch is the multiple of the requested limit fetched from each
// source before fusion, so dedup and level filtering do not starve the
// final list.
const DefaultOverFetch = 2

// HybridRetriever runs one query variant through both retrieval legs and
// fuses the scores. Semantic and keyword scores live on different scales;
// keyword BM25 is normalized by the list max before weighting.
type HybridRetriever struct {
	semantic  *SemanticSearcher
	keyword   store.KeywordIndex
	chunks    store.MetadataStore
	weights   Weights
	overFetch int
	logger    *slog.Logger
}

// NewHybridRetriever creates a hybrid retriever with the given fusion
// weights. An overFetch below 1 falls back to the default.
func NewHybridRetriever(semantic *SemanticSearcher, keyword store.KeywordIndex, chunks store.MetadataStore, weights Weights, overFetch int) *HybridRetriever {
	if overFetch < 1 {
		overFetch = DefaultOverFetch
	}
	return &HybridRetriever{
		semantic:  semantic,
		keyword:   keyword,
		chunks:    chunks,
		weights:   weights,
		overFetch: overFetch,
		logger:    slog.Default().With(slog.String("component", "fusion")),
	}
}

// Search retrieves and fuses candidates for a single query variant. An
// error is returned only when both legs fail or the context is done; one
// failed leg degrades to the other.
func (h *HybridRetriever) Search(ctx context.Context, query string, level store.Level, limit int) ([]*Candidate, error) {
	fetch := limit * h.overFetch

	semantic, semErr := h.semantic.Search(ctx, query, level, fetch)
	if semErr != nil {
		return nil, semErr
	}

	keyword, kwErr := h.keyword.Search(ctx, query, level, fetch)
	if kwErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		h.logger.Warn("keyword search failed",
			slog.String("query", query),
			slog.String("error", kwErr.Error()))
		if len(semantic) == 0 {
			// Both legs came up empty-handed; the hybrid source failed.
			return nil, kerrors.SourceError(string(SourceHybrid), kwErr)
		}
		keyword = nil
	}

	fused, err := h.fuse(ctx, semantic, keyword)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].HybridScore > fused[j].HybridScore
	})
	if len(fused) > fetch {
		fused = fused[:fetch]
	}
	return fused, nil
}

// fuse combines the two result lists keyed by content. Candidates found by
// both legs become source hybrid with the weighted sum of both scores;
// single-leg candidates carry their weighted score alone.
func (h *HybridRetriever) fuse(ctx context.Context, semantic []*Candidate, keyword []*store.KeywordResult) ([]*Candidate, error) {
	byKey := make(map[string]*Candidate, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for _, c := range semantic {
		c.HybridScore = c.SemanticScore * h.weights.Semantic
		if _, ok := byKey[c.Key]; !ok {
			byKey[c.Key] = c
			order = append(order, c.Key)
		}
	}

	if len(keyword) > 0 {
		byChunk := make(map[string]*Candidate, len(semantic))
		for _, c := range semantic {
			if c.ChunkID != "" {
				byChunk[c.ChunkID] = c
			}
		}

		maxScore := keyword[0].Score
		for _, r := range keyword {
			if r.Score > maxScore {
				maxScore = r.Score
			}
		}

		var missing []string
		normalized := make(map[string]float64, len(keyword))
		for _, r := range keyword {
			norm := 0.0
			if maxScore > 0 {
				norm = r.Score / maxScore
			}
			normalized[r.DocID] = norm

			if existing, ok := byChunk[r.DocID]; ok {
				existing.KeywordScore = norm
				existing.HybridScore += norm * h.weights.Keyword
				existing.Source = SourceHybrid
			} else {
				missing = append(missing, r.DocID)
			}
		}

		if len(missing) > 0 {
			loaded, err := h.chunks.GetChunks(ctx, missing)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				h.logger.Warn("keyword chunk hydration failed",
					slog.String("error", err.Error()))
				loaded = nil
			}
			for _, c := range loaded {
				key := CandidateKey(c.Content)
				norm := normalized[c.ID]
				if existing, ok := byKey[key]; ok {
					// Same content under a different chunk ID; keep the
					// better keyword score instead of stacking both.
					if norm > existing.KeywordScore {
						existing.HybridScore += (norm - existing.KeywordScore) * h.weights.Keyword
						existing.KeywordScore = norm
					}
					if existing.SemanticScore > 0 {
						existing.Source = SourceHybrid
					}
					continue
				}
				cand := &Candidate{
					Key:          key,
					ChunkID:      c.ID,
					Content:      c.Content,
					Metadata:     c.Metadata,
					Source:       SourceKeyword,
					KeywordScore: norm,
					HybridScore:  norm * h.weights.Keyword,
					QueryMatches: 1,
				}
				byKey[key] = cand
				order = append(order, key)
			}
		}
	}

	out := make([]*Candidate, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out, nil
}

// MergeVariants folds per-variant candidate lists into one deduplicated
// list. A candidate surfaced by several variants keeps the maximum of each
// score and counts one QueryMatch per variant that found it. Discovery
// order across the input lists is preserved for downstream tie-breaking.
func MergeVariants(lists [][]*Candidate) []*Candidate {
	byKey := make(map[string]*Candidate)
	out := make([]*Candidate, 0)

	for _, list := range lists {
		for _, c := range list {
			existing, ok := byKey[c.Key]
			if !ok {
				c.discovered = len(out)
				byKey[c.Key] = c
				out = append(out, c)
				continue
			}
			existing.QueryMatches++
			if c.SemanticScore > existing.SemanticScore {
				existing.SemanticScore = c.SemanticScore
			}
			if c.KeywordScore > existing.KeywordScore {
				existing.KeywordScore = c.KeywordScore
			}
			if c.HybridScore > existing.HybridScore {
				existing.HybridScore = c.HybridScore
			}
			if c.Source.Priority() > existing.Source.Priority() {
				existing.Source = c.Source
			}
		}
	}
	return out
}
