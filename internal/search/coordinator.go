package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// DefaultWebTimeout bounds the web source so a slow endpoint cannot stall
// corpus retrieval.
const DefaultWebTimeout = 5 * time.Second

// Coordinator fans retrieval out across sources: one hybrid search per
// expansion variant, plus single-shot web and history searches on the
// original query. Sources settle independently; a failed source is
// recorded in the SourceReport and never aborts the others.
type Coordinator struct {
	hybrid     *HybridRetriever
	web        WebSearcher
	history    HistorySearcher
	webTimeout time.Duration
	logger     *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWebSearcher attaches a web search source.
func WithWebSearcher(w WebSearcher) CoordinatorOption {
	return func(c *Coordinator) { c.web = w }
}

// WithHistorySearcher attaches a conversation history source.
func WithHistorySearcher(h HistorySearcher) CoordinatorOption {
	return func(c *Coordinator) { c.history = h }
}

// WithWebTimeout overrides the web source timeout.
func WithWebTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.webTimeout = d
		}
	}
}

// NewCoordinator creates a retrieval coordinator over the hybrid retriever.
func NewCoordinator(hybrid *HybridRetriever, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		hybrid:     hybrid,
		webTimeout: DefaultWebTimeout,
		logger:     slog.Default().With(slog.String("component", "coordinator")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Retrieve runs all sources concurrently and returns the merged candidate
// list plus the per-source report. The candidate list may be empty; the
// report says why.
func (c *Coordinator) Retrieve(ctx context.Context, expansion QueryExpansion, level store.Level, limit int) ([]*Candidate, SourceReport) {
	variants := expansion.Variants
	if len(variants) == 0 {
		variants = []string{expansion.Original}
	}

	variantResults := make([][]*Candidate, len(variants))
	variantErrs := make([]error, len(variants))
	var webDocs, historyDocs []ExternalDoc
	var webErr, historyErr error
	webAttempted := false
	historyAttempted := false

	g := new(errgroup.Group)

	for i, v := range variants {
		g.Go(func() error {
			cands, err := c.hybrid.Search(ctx, v, level, limit)
			if err != nil {
				c.logger.Warn("hybrid variant failed",
					slog.String("variant", v),
					slog.String("error", err.Error()))
				variantErrs[i] = err
				return nil
			}
			variantResults[i] = cands
			return nil
		})
	}

	if c.web != nil {
		webAttempted = true
		g.Go(func() error {
			webCtx, cancel := context.WithTimeout(ctx, c.webTimeout)
			defer cancel()
			webDocs, webErr = c.web.Search(webCtx, expansion.Original, limit)
			if webErr != nil {
				c.logger.Warn("web search failed",
					slog.String("error", webErr.Error()))
			}
			return nil
		})
	}

	if c.history != nil && c.history.Enabled() {
		historyAttempted = true
		g.Go(func() error {
			historyDocs, historyErr = c.history.Search(ctx, expansion.Original, limit)
			if historyErr != nil {
				c.logger.Warn("history search failed",
					slog.String("error", historyErr.Error()))
			}
			return nil
		})
	}

	// Goroutines swallow their errors into the slots above.
	_ = g.Wait()

	report := SourceReport{}

	hybridOK := false
	hybridResults := 0
	var hybridErrMsg string
	for i := range variants {
		if variantErrs[i] == nil {
			hybridOK = true
			hybridResults += len(variantResults[i])
		} else if hybridErrMsg == "" {
			hybridErrMsg = variantErrs[i].Error()
		}
	}
	report[SourceHybrid] = SourceStatus{
		Attempted: true,
		Succeeded: hybridOK,
		Results:   hybridResults,
		Error:     hybridErrMsg,
	}

	if webAttempted {
		st := SourceStatus{Attempted: true, Succeeded: webErr == nil, Results: len(webDocs)}
		if webErr != nil {
			st.Error = webErr.Error()
		}
		report[SourceInternet] = st
	}
	if historyAttempted {
		st := SourceStatus{Attempted: true, Succeeded: historyErr == nil, Results: len(historyDocs)}
		if historyErr != nil {
			st.Error = historyErr.Error()
		}
		report[SourceHistory] = st
	}

	merged := MergeVariants(variantResults)
	merged = append(merged, externalCandidates(webDocs, SourceInternet, level, len(merged))...)
	merged = append(merged, externalCandidates(historyDocs, SourceHistory, level, len(merged))...)
	merged = dedupExternal(merged)

	return merged, report
}

// externalCandidates converts web or history documents to candidates.
// External sources carry no similarity score, so rank position stands in:
// the first document scores 1/1, the second 1/2, and so on, keeping them
// comparable with fused corpus scores without ever dominating them.
func externalCandidates(docs []ExternalDoc, source SourceType, level store.Level, discoveredBase int) []*Candidate {
	out := make([]*Candidate, 0, len(docs))
	for i, d := range docs {
		if !level.Includes(d.Level) {
			continue
		}
		out = append(out, &Candidate{
			Key:     CandidateKey(d.Content),
			ChunkID: d.ID,
			Content: d.Content,
			Metadata: store.Metadata{
				Title:        d.Title,
				Level:        d.Level,
				SourceDomain: d.Domain,
				URL:          d.URL,
			},
			URL:          d.URL,
			Source:       source,
			HybridScore:  1.0 / float64(i+1),
			QueryMatches: 1,
			discovered:   discoveredBase + i,
		})
	}
	return out
}

// dedupExternal drops external candidates whose content already appears in
// the corpus-backed list. Corpus candidates win because they carry level
// and category metadata the external copy lacks.
func dedupExternal(cands []*Candidate) []*Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if seen[c.Key] {
			continue
		}
		seen[c.Key] = true
		out = append(out, c)
	}
	return out
}
