package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kotoba-ai/kotoba/internal/store"
)

const (
	// DefaultRerankBatchSize bounds pairwise scoring requests.
	DefaultRerankBatchSize = 8

	// DefaultRerankWeight and DefaultHybridWeight blend the cross-encoder
	// score with the fused retrieval score.
	DefaultRerankWeight = 0.7
	DefaultHybridWeight = 0.3
)

// Reranker rescores candidates with a cross-encoder when one is reachable
// and falls back to a deterministic lexical rescoring when it is not. The
// stage always produces a FinalScore for every candidate; it never fails a
// request.
type Reranker struct {
	scorer       PairwiseScorer
	batchSize    int
	rerankWeight float64
	hybridWeight float64
	minScore     float64
	logger       *slog.Logger
}

// RerankerOption configures a Reranker.
type RerankerOption func(*Reranker)

// WithScorer attaches a cross-encoder. Without one the lexical fallback is
// always used.
func WithScorer(s PairwiseScorer) RerankerOption {
	return func(r *Reranker) { r.scorer = s }
}

// WithBatchSize overrides the scoring batch size.
func WithBatchSize(n int) RerankerOption {
	return func(r *Reranker) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithBlend overrides the rerank/hybrid blend weights.
func WithBlend(rerank, hybrid float64) RerankerOption {
	return func(r *Reranker) {
		r.rerankWeight = rerank
		r.hybridWeight = hybrid
	}
}

// WithMinScore drops candidates whose blended score falls below the
// threshold.
func WithMinScore(min float64) RerankerOption {
	return func(r *Reranker) { r.minScore = min }
}

// NewReranker creates a reranking stage.
func NewReranker(opts ...RerankerOption) *Reranker {
	r := &Reranker{
		batchSize:    DefaultRerankBatchSize,
		rerankWeight: DefaultRerankWeight,
		hybridWeight: DefaultHybridWeight,
		logger:       slog.Default().With(slog.String("component", "rerank")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank assigns FinalScore to every candidate. With a reachable scorer
// the score blends the normalized cross-encoder score with the normalized
// hybrid score; batches that fail to score keep the hybrid portion alone.
// Without a scorer the lexical fallback runs instead.
func (r *Reranker) Rerank(ctx context.Context, query string, cands []*Candidate) []*Candidate {
	if len(cands) == 0 {
		return cands
	}

	if r.scorer == nil || !r.scorer.Available(ctx) {
		r.logger.Debug("cross-encoder unavailable, using lexical fallback",
			slog.Int("candidates", len(cands)))
		r.lexicalFallback(query, cands)
		return r.filter(cands)
	}

	scored := r.scoreBatches(ctx, query, cands)
	r.blend(cands, scored)
	return r.filter(cands)
}

// scoreBatches runs the cross-encoder in fixed-size batches. The returned
// slice is parallel to cands; entries for failed batches are false.
func (r *Reranker) scoreBatches(ctx context.Context, query string, cands []*Candidate) []bool {
	scored := make([]bool, len(cands))
	for start := 0; start < len(cands); start += r.batchSize {
		end := start + r.batchSize
		if end > len(cands) {
			end = len(cands)
		}
		passages := make([]string, 0, end-start)
		for _, c := range cands[start:end] {
			passages = append(passages, c.Content)
		}

		scores, err := r.scorer.ScorePairs(ctx, query, passages)
		if err != nil || len(scores) != len(passages) {
			if err != nil {
				r.logger.Warn("rerank batch failed, keeping hybrid scores",
					slog.Int("batch_start", start),
					slog.String("error", err.Error()))
			} else {
				r.logger.Warn("rerank batch returned wrong score count",
					slog.Int("batch_start", start),
					slog.Int("want", len(passages)),
					slog.Int("got", len(scores)))
			}
			continue
		}
		for i, s := range scores {
			cands[start+i].RerankScore = s
			scored[start+i] = true
		}
	}
	return scored
}

// blend combines normalized rerank and hybrid scores. Both are normalized
// by their list max so the blend weights act on comparable [0,1] ranges.
func (r *Reranker) blend(cands []*Candidate, scored []bool) {
	var maxRerank, maxHybrid float64
	for i, c := range cands {
		if scored[i] && c.RerankScore > maxRerank {
			maxRerank = c.RerankScore
		}
		if c.HybridScore > maxHybrid {
			maxHybrid = c.HybridScore
		}
	}

	for i, c := range cands {
		hy := 0.0
		if maxHybrid > 0 {
			hy = c.HybridScore / maxHybrid
		}
		if !scored[i] {
			c.FinalScore = hy
			continue
		}
		rr := 0.0
		if maxRerank > 0 {
			rr = c.RerankScore / maxRerank
		}
		c.FinalScore = rr*r.rerankWeight + hy*r.hybridWeight
	}
}

// lexicalFallback rescores without the cross-encoder: the hybrid score
// plus a bonus for exact query term coverage and another for terms
// appearing early in the content. Deterministic for a fixed candidate set.
func (r *Reranker) lexicalFallback(query string, cands []*Candidate) {
	terms := store.Tokenize(query)
	for _, c := range cands {
		ratio, early := lexicalSignals(terms, c.Content)
		c.FinalScore = c.HybridScore + ratio*0.3 + early*0.2
	}
}

// lexicalSignals returns the fraction of query terms present in the
// content and a position bonus that is the reciprocal of the earliest
// match index: 1 for a match at the start, decaying toward 0.
func lexicalSignals(terms []string, content string) (ratio, early float64) {
	if len(terms) == 0 || content == "" {
		return 0, 0
	}
	lower := strings.ToLower(content)

	matched := 0
	earliest := -1
	for _, t := range terms {
		idx := strings.Index(lower, t)
		if idx < 0 {
			continue
		}
		matched++
		if earliest < 0 || idx < earliest {
			earliest = idx
		}
	}
	if matched == 0 {
		return 0, 0
	}

	ratio = float64(matched) / float64(len(terms))
	early = 1.0 / float64(earliest+1)
	return ratio, early
}

// filter drops candidates below the minimum blended score.
func (r *Reranker) filter(cands []*Candidate) []*Candidate {
	if r.minScore <= 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		if c.FinalScore >= r.minScore {
			out = append(out, c)
		}
	}
	return out
}
