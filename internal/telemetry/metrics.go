// Package telemetry collects local query metrics for tuning retrieval.
// Nothing is reported externally.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent captures one retrieval request for recording.
type QueryEvent struct {
	Query       string
	Level       store.Level
	ResultCount int
	Latency     time.Duration
	Degraded    []search.SourceType
	AllFailed   bool
	Timestamp   time.Time
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// TermCount is a term and its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	TotalQueries        int64                        `json:"total_queries"`
	LevelCounts         map[store.Level]int64        `json:"level_counts"`
	LatencyDistribution map[LatencyBucket]int64      `json:"latency_distribution"`
	DegradedCounts      map[search.SourceType]int64  `json:"degraded_counts"`
	AllFailedCount      int64                        `json:"all_failed_count"`
	ZeroResultCount     int64                        `json:"zero_result_count"`
	ZeroResultQueries   []string                     `json:"zero_result_queries"`
	TopTerms            []TermCount                  `json:"top_terms"`
	ExactRepeatCount    int64                        `json:"exact_repeat_count"`
	Since               time.Time                    `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config sizes the metric collectors.
type Config struct {
	TopTermsCapacity      int // default 100
	ZeroResultsCapacity   int // default 100
	RecentQueriesCapacity int // default 500
}

// DefaultConfig returns the default sizing.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// Metrics collects query telemetry. Safe for concurrent use.
type Metrics struct {
	mu sync.RWMutex

	levelCounts      map[store.Level]int64
	latencies        map[LatencyBucket]int64
	degradedCounts   map[search.SourceType]int64
	topTerms         *lru.Cache[string, int64]
	recentQueries    *lru.Cache[string, struct{}]
	zeroResults      *ringBuffer[string]
	totalQueries     int64
	zeroResultCount  int64
	allFailedCount   int64
	exactRepeatCount int64
	startTime        time.Time
}

// NewMetrics creates a metrics collector.
func NewMetrics(cfg Config) *Metrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = 500
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recentQueries, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &Metrics{
		levelCounts:    make(map[store.Level]int64),
		latencies:      make(map[LatencyBucket]int64),
		degradedCounts: make(map[search.SourceType]int64),
		topTerms:       topTerms,
		recentQueries:  recentQueries,
		zeroResults:    newRingBuffer[string](cfg.ZeroResultsCapacity),
		startTime:      time.Now(),
	}
}

// Record captures one query event.
func (m *Metrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalQueries++
	m.levelCounts[event.Level]++
	m.latencies[LatencyToBucket(event.Latency)]++

	for _, src := range event.Degraded {
		m.degradedCounts[src]++
	}
	if event.AllFailed {
		m.allFailedCount++
	}

	for _, term := range store.Tokenize(event.Query) {
		if len(term) < 2 {
			continue
		}
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.add(event.Query)
		m.zeroResultCount++
	}

	hash := hashQuery(event.Query)
	if _, seen := m.recentQueries.Get(hash); seen {
		m.exactRepeatCount++
	}
	m.recentQueries.Add(hash, struct{}{})
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	levels := make(map[store.Level]int64, len(m.levelCounts))
	for k, v := range m.levelCounts {
		levels[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}
	degraded := make(map[search.SourceType]int64, len(m.degradedCounts))
	for k, v := range m.degradedCounts {
		degraded[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		LevelCounts:         levels,
		LatencyDistribution: latencies,
		DegradedCounts:      degraded,
		AllFailedCount:      m.allFailedCount,
		ZeroResultCount:     m.zeroResultCount,
		ZeroResultQueries:   m.zeroResults.items(),
		TopTerms:            terms,
		ExactRepeatCount:    m.exactRepeatCount,
		Since:               m.startTime,
	}
}

// hashQuery normalizes and hashes a query for repetition detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// ringBuffer is a fixed-capacity FIFO buffer.
type ringBuffer[T any] struct {
	buf      []T
	head     int
	size     int
	capacity int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &ringBuffer[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// add appends an item, evicting the oldest when full. Callers hold the
// Metrics lock.
func (b *ringBuffer[T]) add(item T) {
	b.buf[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// items returns the contents oldest first.
func (b *ringBuffer[T]) items() []T {
	if b.size == 0 {
		return []T{}
	}
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.buf[:b.size])
	} else {
		copy(out, b.buf[b.head:])
		copy(out[b.capacity-b.head:], b.buf[:b.head])
	}
	return out
}
