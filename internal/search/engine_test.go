package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-ai/kotoba/internal/embed"
	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/store"
)

func testEngine(t *testing.T, corpus []*store.Chunk, vectors *fakeVectorStore, coordOpts []CoordinatorOption, rerankOpts ...RerankerOption) *Engine {
	t.Helper()
	chunks := newFakeChunkStore(corpus...)
	coord := NewCoordinator(buildHybrid(t, vectors, chunks, corpus), coordOpts...)
	return NewEngine(NewExpander(), coord, NewReranker(rerankOpts...))
}

func waCorpus() []*store.Chunk {
	return []*store.Chunk{
		chunk("wa-1", "The particle wa (は) marks the topic of a sentence. For example: 私は学生です。", store.LevelBeginner),
		chunk("ga-1", "The particle ga (が) marks the grammatical subject.", store.LevelBeginner),
		chunk("keigo-1", "尊敬語 raises the listener; 謙譲語 lowers the speaker. Advanced keigo grammar.", store.LevelAdvanced),
		chunk("count-1", "Counter words attach to numbers when counting objects.", store.LevelElementary),
	}
}

func TestEngine_EmptyQueryRejected(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	_, err := e.Search(context.Background(), Query{Text: "  ", Level: store.LevelBeginner, MaxResults: 5})

	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeInvalidQuery, kerrors.GetCode(err))
}

func TestEngine_NonPositiveMaxResultsRejected(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	for _, n := range []int{0, -3} {
		_, err := e.Search(context.Background(), Query{Text: "particle wa", Level: store.LevelBeginner, MaxResults: n})
		require.Error(t, err)
		assert.Equal(t, kerrors.ErrCodeInvalidMaxResults, kerrors.GetCode(err))
	}
}

func TestEngine_UnknownLevelNarrowsToBeginner(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	resp, err := e.Search(context.Background(), Query{Text: "keigo grammar", Level: "fluent", MaxResults: 5})

	require.NoError(t, err)
	assert.Equal(t, store.LevelBeginner, resp.Level)
	for _, r := range resp.Results {
		assert.NotEqual(t, "keigo-1", r.ChunkID)
	}
}

func TestEngine_WaParticleEndToEnd(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	resp, err := e.Search(context.Background(), Query{Text: "how does the particle wa work", Level: store.LevelBeginner, MaxResults: 3})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Equal(t, "wa-1", top.ChunkID)
	assert.GreaterOrEqual(t, top.Score, 0.0)
	assert.LessOrEqual(t, top.Score, 1.0)
	assert.LessOrEqual(t, len(resp.Results), 3)

	// The advanced chunk never surfaces at beginner level.
	for _, r := range resp.Results {
		assert.NotEqual(t, "keigo-1", r.ChunkID)
	}
}

func TestEngine_Deterministic(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	first, err := e.Search(context.Background(), Query{Text: "particle wa topic", Level: store.LevelBeginner, MaxResults: 4})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := e.Search(context.Background(), Query{Text: "particle wa topic", Level: store.LevelBeginner, MaxResults: 4})
		require.NoError(t, err)
		require.Len(t, again.Results, len(first.Results))
		for j := range first.Results {
			assert.Equal(t, first.Results[j].ChunkID, again.Results[j].ChunkID)
			assert.InDelta(t, first.Results[j].Score, again.Results[j].Score, 1e-12)
		}
	}
}

func TestEngine_AllSourcesFailedIsEmptyNotError(t *testing.T) {
	chunks := &fakeChunkStore{chunks: map[string]*store.Chunk{}, err: errors.New("db gone")}
	vectors := &fakeVectorStore{err: errors.New("index gone")}

	keyword := &failingKeywordIndex{}
	semantic := NewSemanticSearcher(vectors, embed.NewStaticEmbedder(), chunks)
	hybrid := NewHybridRetriever(semantic, keyword, chunks, DefaultWeights(), DefaultOverFetch)
	web := &fakeWebSearcher{err: errors.New("endpoint down")}
	coord := NewCoordinator(hybrid, WithWebSearcher(web))
	e := NewEngine(NewExpander(), coord, NewReranker())

	resp, err := e.Search(context.Background(), Query{Text: "particle wa", Level: store.LevelBeginner, MaxResults: 5})

	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.True(t, resp.Report.AllFailed())
}

func TestEngine_ExpandedQueriesReported(t *testing.T) {
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, nil)

	resp, err := e.Search(context.Background(), Query{Text: "particle wa", Level: store.LevelBeginner, MaxResults: 3})
	require.NoError(t, err)

	require.NotEmpty(t, resp.Expanded)
	assert.Equal(t, "particle wa", resp.Expanded[0])
	assert.Greater(t, len(resp.Expanded), 1)
}

func TestEngine_WebResultsCarryURL(t *testing.T) {
	web := &fakeWebSearcher{docs: []ExternalDoc{
		{ID: "w1", Title: "Particles", Content: "a unique web explanation of something else entirely", URL: "https://imabi.org/particles", Domain: "imabi.org", Level: store.LevelBeginner},
	}}
	e := testEngine(t, waCorpus(), &fakeVectorStore{}, []CoordinatorOption{WithWebSearcher(web)})

	resp, err := e.Search(context.Background(), Query{Text: "particle wa", Level: store.LevelBeginner, MaxResults: 10})
	require.NoError(t, err)

	var webResult *Result
	for _, r := range resp.Results {
		if r.Source == SourceInternet {
			webResult = r
		}
	}
	require.NotNil(t, webResult)
	assert.Equal(t, "https://imabi.org/particles", webResult.URL)
}

func TestEngine_StalledEmbedderStillYieldsOtherSources(t *testing.T) {
	corpus := waCorpus()
	chunks := newFakeChunkStore(corpus...)
	keyword := store.NewMemoryKeywordIndex(store.DefaultBM25Config())
	require.NoError(t, keyword.Rebuild(context.Background(), corpus))
	t.Cleanup(func() { _ = keyword.Close() })

	// The semantic leg hangs until its per-request deadline; keyword and
	// web retrieval must still come back well inside that bound.
	semantic := NewSemanticSearcher(&fakeVectorStore{}, &stalledEmbedder{limit: 50 * time.Millisecond}, chunks)
	hybrid := NewHybridRetriever(semantic, keyword, chunks, DefaultWeights(), DefaultOverFetch)
	web := &fakeWebSearcher{docs: []ExternalDoc{
		{ID: "w1", Title: "Particles", Content: "web notes on the wa particle", URL: "https://imabi.org/wa", Domain: "imabi.org", Level: store.LevelBeginner},
	}}
	e := NewEngine(NewExpander(), NewCoordinator(hybrid, WithWebSearcher(web)), NewReranker())

	start := time.Now()
	resp, err := e.Search(context.Background(), Query{Text: "particle wa", Level: store.LevelBeginner, MaxResults: 10})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.NotEmpty(t, resp.Results)
	byID := make(map[string]*Result, len(resp.Results))
	for _, r := range resp.Results {
		byID[r.ChunkID] = r
	}
	require.Contains(t, byID, "wa-1")
	assert.Equal(t, SourceKeyword, byID["wa-1"].Source)
	require.Contains(t, byID, "w1")
	assert.Equal(t, SourceInternet, byID["w1"].Source)
}

// stalledEmbedder hangs until its own request deadline fires, like a
// remote endpoint that never answers but whose client enforces a timeout.
type stalledEmbedder struct{ limit time.Duration }

func (s *stalledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.limit)
	defer cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stalledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	_, err := s.Embed(ctx, "")
	return nil, err
}

func (s *stalledEmbedder) Dimensions() int                    { return embed.StaticDimensions }
func (s *stalledEmbedder) ModelName() string                  { return "stalled" }
func (s *stalledEmbedder) Available(ctx context.Context) bool { return true }
func (s *stalledEmbedder) Close() error                       { return nil }

// failingKeywordIndex always errors, for total-failure scenarios.
type failingKeywordIndex struct{}

func (f *failingKeywordIndex) Rebuild(ctx context.Context, chunks []*store.Chunk) error {
	return nil
}

func (f *failingKeywordIndex) Search(ctx context.Context, query string, level store.Level, limit int) ([]*store.KeywordResult, error) {
	return nil, errors.New("keyword index unavailable")
}

func (f *failingKeywordIndex) Stats() *store.KeywordStats { return &store.KeywordStats{} }
func (f *failingKeywordIndex) Close() error               { return nil }
