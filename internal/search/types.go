// Package search implements the hybrid retrieval pipeline: query expansion,
// concurrent multi-source retrieval, score fusion, reranking with fallback,
// and signal-based adjustment of the final ranking.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// SourceType identifies the retrieval path that produced a candidate.
type SourceType string

const (
	// SourceHybrid marks candidates found by both semantic and keyword search.
	SourceHybrid SourceType = "hybrid"
	// SourceSemantic marks candidates found by vector similarity only.
	SourceSemantic SourceType = "semantic"
	// SourceKeyword marks candidates found by BM25 only.
	SourceKeyword SourceType = "keyword"
	// SourceInternet marks candidates from web search.
	SourceInternet SourceType = "internet"
	// SourceHistory marks candidates from conversation history.
	SourceHistory SourceType = "history"
)

// sourcePriority orders sources for tie-breaking; corpus-grounded results
// outrank external ones at equal score.
var sourcePriority = map[SourceType]int{
	SourceHybrid:   5,
	SourceSemantic: 4,
	SourceKeyword:  3,
	SourceInternet: 2,
	SourceHistory:  1,
}

// Priority returns the tie-break rank of the source (higher wins).
func (s SourceType) Priority() int {
	return sourcePriority[s]
}

// Query is a single retrieval request.
type Query struct {
	// Text is the learner's question.
	Text string

	// Level is the learner's proficiency level. Content above this level
	// is never surfaced.
	Level store.Level

	// MaxResults is the number of results to return. Must be positive.
	MaxResults int
}

// QueryExpansion is the set of query variants searched concurrently.
// Variants always contains the original query first.
type QueryExpansion struct {
	Original string
	Variants []string
}

// Candidate is a retrieval result flowing through the pipeline. Score
// fields accumulate stage by stage; only FinalScore is meaningful after
// the signal adjustment stage.
type Candidate struct {
	// Key is the content-derived dedup key.
	Key string

	// ChunkID is the corpus chunk ID, empty for external sources.
	ChunkID string

	Content  string
	Metadata store.Metadata

	// URL is set for internet results.
	URL string

	Source SourceType

	SemanticScore float64
	KeywordScore  float64
	HybridScore   float64
	RerankScore   float64
	FinalScore    float64

	// QueryMatches counts how many expansion variants surfaced this
	// candidate.
	QueryMatches int

	// discovered preserves arrival order as the last tie-breaker.
	discovered int
}

// CandidateKey derives the dedup key from content. Case and whitespace
// differences collapse so the same passage retrieved via different sources
// dedups to one candidate.
func CandidateKey(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// ExternalDoc is a document returned by the web or history sources.
type ExternalDoc struct {
	ID      string
	Title   string
	Content string
	URL     string
	Domain  string
	Level   store.Level
}

// WebSearcher retrieves supplementary documents from the open web.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]ExternalDoc, error)
}

// HistorySearcher retrieves snippets from past conversations.
type HistorySearcher interface {
	Search(ctx context.Context, query string, limit int) ([]ExternalDoc, error)
	Enabled() bool
}

// PairwiseScorer scores (query, passage) pairs with a cross-encoder.
// Implementations are expected to be remote services; every method takes a
// context and may fail, and the pipeline degrades without them.
type PairwiseScorer interface {
	ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error)
	Available(ctx context.Context) bool
}

// SourceStatus reports one retrieval source's outcome for a request.
type SourceStatus struct {
	Attempted bool
	Succeeded bool
	Results   int
	Error     string
}

// SourceReport maps each source to its outcome, supporting degraded
// completeness reporting: a response is valid with any subset of sources,
// and the report says which ones contributed.
type SourceReport map[SourceType]SourceStatus

// Degraded returns the sources that were attempted but failed.
func (r SourceReport) Degraded() []SourceType {
	var out []SourceType
	for _, s := range []SourceType{SourceHybrid, SourceInternet, SourceHistory} {
		if st, ok := r[s]; ok && st.Attempted && !st.Succeeded {
			out = append(out, s)
		}
	}
	return out
}

// AllFailed reports whether every attempted source failed.
func (r SourceReport) AllFailed() bool {
	attempted := 0
	for _, st := range r {
		if st.Attempted {
			attempted++
			if st.Succeeded {
				return false
			}
		}
	}
	return attempted > 0
}

// Result is a single ranked result presented to the caller.
type Result struct {
	ChunkID  string         `json:"chunk_id,omitempty"`
	Content  string         `json:"content"`
	Metadata store.Metadata `json:"metadata"`
	URL      string         `json:"url,omitempty"`
	Source   SourceType     `json:"source"`

	// Score is the presentation score, clamped to [0,1].
	Score float64 `json:"score"`

	// QueryMatches counts expansion variants that surfaced this result.
	QueryMatches int `json:"query_matches"`
}

// Response is the outcome of a retrieval request.
type Response struct {
	Query    string       `json:"query"`
	Level    store.Level  `json:"level"`
	Results  []*Result    `json:"results"`
	Report   SourceReport `json:"sources"`
	Expanded []string     `json:"expanded_queries,omitempty"`
}

// Weights are the hybrid fusion weights. They must sum to 1.
type Weights struct {
	Semantic float64
	Keyword  float64
}

// DefaultWeights favors semantic similarity, with keyword matching as the
// precision anchor.
func DefaultWeights() Weights {
	return Weights{Semantic: 0.7, Keyword: 0.3}
}
