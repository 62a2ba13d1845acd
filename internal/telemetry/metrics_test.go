package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketP10, LatencyToBucket(5*time.Millisecond))
	assert.Equal(t, BucketP50, LatencyToBucket(30*time.Millisecond))
	assert.Equal(t, BucketP100, LatencyToBucket(80*time.Millisecond))
	assert.Equal(t, BucketP500, LatencyToBucket(300*time.Millisecond))
	assert.Equal(t, BucketP1000, LatencyToBucket(2*time.Second))
}

func TestMetrics_RecordAndSnapshot(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.Record(QueryEvent{
		Query:       "particle wa",
		Level:       store.LevelBeginner,
		ResultCount: 3,
		Latency:     20 * time.Millisecond,
	})
	m.Record(QueryEvent{
		Query:       "obscure keigo nuance",
		Level:       store.LevelAdvanced,
		ResultCount: 0,
		Latency:     600 * time.Millisecond,
		Degraded:    []search.SourceType{search.SourceInternet},
	})

	snap := m.Snapshot()

	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.LevelCounts[store.LevelBeginner])
	assert.Equal(t, int64(1), snap.LevelCounts[store.LevelAdvanced])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP50])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP1000])
	assert.Equal(t, int64(1), snap.DegradedCounts[search.SourceInternet])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"obscure keigo nuance"}, snap.ZeroResultQueries)
	assert.InDelta(t, 50.0, snap.ZeroResultPercentage(), 0.001)
}

func TestMetrics_TopTermsSorted(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	for i := 0; i < 3; i++ {
		m.Record(QueryEvent{Query: "particle wa", ResultCount: 1})
	}
	m.Record(QueryEvent{Query: "counter words", ResultCount: 1})

	snap := m.Snapshot()

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, "particle", snap.TopTerms[0].Term)
	assert.Equal(t, int64(3), snap.TopTerms[0].Count)
}

func TestMetrics_ExactRepeatDetection(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.Record(QueryEvent{Query: "Particle WA", ResultCount: 1})
	m.Record(QueryEvent{Query: "particle wa", ResultCount: 1})
	m.Record(QueryEvent{Query: "something else", ResultCount: 1})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
}

func TestMetrics_AllFailedCounted(t *testing.T) {
	m := NewMetrics(DefaultConfig())

	m.Record(QueryEvent{Query: "wa", ResultCount: 0, AllFailed: true})

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.AllFailedCount)
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	b := newRingBuffer[string](3)

	for _, s := range []string{"a", "b", "c", "d"} {
		b.add(s)
	}

	assert.Equal(t, []string{"b", "c", "d"}, b.items())
}

func TestMetrics_ZeroResultBufferBounded(t *testing.T) {
	m := NewMetrics(Config{ZeroResultsCapacity: 2})

	m.Record(QueryEvent{Query: "one"})
	m.Record(QueryEvent{Query: "two"})
	m.Record(QueryEvent{Query: "three"})

	snap := m.Snapshot()
	assert.Equal(t, []string{"two", "three"}, snap.ZeroResultQueries)
}
