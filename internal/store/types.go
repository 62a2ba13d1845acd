// Package store provides the persistence layer for indexed lesson content:
// an in-memory BM25 keyword index, an HNSW vector store, and SQLite-backed
// chunk metadata.
package store

import (
	"context"
	"fmt"
	"time"
)

// Level is the learner proficiency scale. Levels are ordered; a request at
// level L may surface content tagged at L or any lower level, never higher.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelElementary   Level = "elementary"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// levelRanks orders levels from lowest to highest proficiency.
var levelRanks = map[Level]int{
	LevelBeginner:     0,
	LevelElementary:   1,
	LevelIntermediate: 2,
	LevelAdvanced:     3,
}

// Rank returns the ordinal position of the level (beginner=0 .. advanced=3).
// Unknown levels rank as beginner so malformed tags never leak upward.
func (l Level) Rank() int {
	if r, ok := levelRanks[l]; ok {
		return r
	}
	return 0
}

// Valid reports whether the level is one of the four known values.
func (l Level) Valid() bool {
	_, ok := levelRanks[l]
	return ok
}

// Includes reports whether content tagged `other` may be surfaced to a
// request at level l (cumulative downward: other <= l).
func (l Level) Includes(other Level) bool {
	return other.Rank() <= l.Rank()
}

// AllowedLevels returns every level visible to a request at level l, lowest
// first. This is the `$in`-style predicate pushed into vector search.
func (l Level) AllowedLevels() []Level {
	all := []Level{LevelBeginner, LevelElementary, LevelIntermediate, LevelAdvanced}
	allowed := make([]Level, 0, len(all))
	for _, lv := range all {
		if lv.Rank() <= l.Rank() {
			allowed = append(allowed, lv)
		}
	}
	return allowed
}

// ParseLevel normalizes a level string, defaulting to beginner on unknown
// input so a bad tag can never widen visibility.
func ParseLevel(s string) Level {
	l := Level(s)
	if l.Valid() {
		return l
	}
	return LevelBeginner
}

// Metadata is the explicit, validated metadata attached to a chunk.
// Fields are named rather than carried in an open property bag; validation
// happens once at ingestion.
type Metadata struct {
	Title        string   `yaml:"title" json:"title"`
	Level        Level    `yaml:"level" json:"level"`
	Category     string   `yaml:"category" json:"category"`
	SourceDomain string   `yaml:"source_domain" json:"source_domain"`
	URL          string   `yaml:"url,omitempty" json:"url,omitempty"`
	Topics       []string `yaml:"topics,omitempty" json:"topics,omitempty"`
}

// Chunk is a retrievable unit of lesson content. Chunks are immutable once
// indexed; changing content means re-indexing under a new ID, not editing
// in place.
type Chunk struct {
	ID        string
	Content   string
	Metadata  Metadata
	Tags      []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// KeywordResult is a single BM25 keyword search hit.
// Scores are raw BM25 values: unbounded, >= 0, and comparable only within
// one result list. Normalization happens at fusion time.
type KeywordResult struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// KeywordStats provides statistics about the keyword index snapshot.
type KeywordStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// KeywordIndex provides BM25 keyword search over the lesson corpus with
// level-hierarchy filtering.
type KeywordIndex interface {
	// Rebuild replaces the index contents atomically. Concurrent searches
	// keep reading the previous snapshot until the new one is published.
	Rebuild(ctx context.Context, chunks []*Chunk) error

	// Search returns chunks matching the query, scored by BM25, restricted
	// to content at or below the given level.
	Search(ctx context.Context, query string, level Level, limit int) ([]*KeywordResult, error)

	// Stats returns statistics for the current snapshot.
	Stats() *KeywordStats

	// Close releases resources.
	Close() error
}

// VectorResult is a single nearest-neighbor hit. Score is a cosine
// similarity already converted from distance and clamped to [0,1].
type VectorResult struct {
	ID    string
	Score float32
}

// VectorStore provides approximate nearest-neighbor search over chunk
// embeddings with a level metadata predicate.
type VectorStore interface {
	// Add inserts vectors with their chunk IDs and level tags.
	Add(ctx context.Context, ids []string, vectors [][]float32, levels []Level) error

	// Search finds the k nearest neighbors among chunks whose level is in
	// the allowed set. An empty allowed set means no level filtering.
	Search(ctx context.Context, query []float32, k int, allowed []Level) ([]*VectorResult, error)

	// Delete removes vectors by chunk ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored vectors.
	Count() int

	// Save persists the store to disk.
	Save(path string) error

	// Load restores the store from disk.
	Load(path string) error

	// Close releases resources.
	Close() error
}

// MetadataStore persists chunk metadata in SQLite.
type MetadataStore interface {
	SaveChunks(ctx context.Context, chunks []*Chunk) error
	GetChunk(ctx context.Context, id string) (*Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)
	ListChunks(ctx context.Context) ([]*Chunk, error)
	DeleteChunks(ctx context.Context, ids []string) error

	// State operations (key-value store for runtime state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// State keys for the metadata store.
const (
	// StateKeyIndexDimension stores the embedding dimension used for the index.
	StateKeyIndexDimension = "index_embedding_dimension"
	// StateKeyIndexModel stores the embedding model name used for the index.
	StateKeyIndexModel = "index_embedding_model"
	// StateKeyCorpusVersion stores a hash of the ingested corpus files.
	StateKeyCorpusVersion = "corpus_version"
)

// VectorStoreConfig configures the HNSW vector store.
type VectorStoreConfig struct {
	Dimensions int    // Embedding dimension (required)
	Metric     string // "cos" (default) or "l2"
	M          int    // HNSW connectivity (default: 16)
	EfSearch   int    // HNSW search breadth (default: 20)
}

// BM25Config configures the keyword index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default: 1.5).
	K1 float64

	// B is the document length normalization parameter (default: 0.75).
	B float64

	// StopWords are excluded from indexing and queries. Nil means
	// DefaultStopWords; an empty non-nil slice disables filtering.
	StopWords []string
}

// DefaultBM25Config returns the standard BM25 parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75, StopWords: DefaultStopWords()}
}

// ErrDimensionMismatch is returned when a vector's dimension does not match
// the store's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
