package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// Engine runs the full retrieval pipeline: expansion, concurrent
// multi-source retrieval, reranking, and signal adjustment. A request
// fails only on invalid input or a cancelled context; retrieval source
// failures degrade the response and are surfaced in its SourceReport.
type Engine struct {
	expander    *Expander
	coordinator *Coordinator
	reranker    *Reranker
	logger      *slog.Logger
}

// NewEngine assembles the pipeline stages into an engine.
func NewEngine(expander *Expander, coordinator *Coordinator, reranker *Reranker) *Engine {
	return &Engine{
		expander:    expander,
		coordinator: coordinator,
		reranker:    reranker,
		logger:      slog.Default().With(slog.String("component", "engine")),
	}
}

// Search answers a retrieval request. When every source fails the response
// carries zero results and the report says why; that outcome is not an
// error. An unknown level narrows to beginner rather than failing.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, kerrors.New(kerrors.ErrCodeInvalidQuery, "query text is empty", nil).
			WithSuggestion("provide a non-empty question")
	}
	if q.MaxResults <= 0 {
		return nil, kerrors.New(kerrors.ErrCodeInvalidMaxResults, "max results must be positive", nil).
			WithDetail("max_results", strconv.Itoa(q.MaxResults))
	}
	level := q.Level
	if !level.Valid() {
		level = store.ParseLevel(string(level))
	}

	start := time.Now()

	expansion := e.expander.Expand(q.Text, level)
	candidates, report := e.coordinator.Retrieve(ctx, expansion, level, q.MaxResults)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp := &Response{
		Query:   expansion.Original,
		Level:   level,
		Results: []*Result{},
		Report:  report,
	}
	if len(expansion.Variants) > 1 {
		resp.Expanded = expansion.Variants
	}

	if report.AllFailed() {
		e.logger.Warn("all retrieval sources failed",
			slog.String("query", expansion.Original))
		return resp, nil
	}

	candidates = e.reranker.Rerank(ctx, expansion.Original, candidates)
	candidates = AdjustSignals(candidates, level, q.MaxResults)

	for _, c := range candidates {
		resp.Results = append(resp.Results, &Result{
			ChunkID:      c.ChunkID,
			Content:      c.Content,
			Metadata:     c.Metadata,
			URL:          c.URL,
			Source:       c.Source,
			Score:        presentationScore(c.FinalScore),
			QueryMatches: c.QueryMatches,
		})
	}

	e.logger.Info("search completed",
		slog.String("query", expansion.Original),
		slog.String("level", string(level)),
		slog.Int("variants", len(expansion.Variants)),
		slog.Int("results", len(resp.Results)),
		slog.Int("degraded_sources", len(report.Degraded())),
		slog.Duration("elapsed", time.Since(start)))

	return resp, nil
}
