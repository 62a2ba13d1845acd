package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// fakeVectorStore returns a scripted hit list filtered by the allowed
// levels, ignoring the query vector.
type fakeVectorStore struct {
	hits   []*store.VectorResult
	levels map[string]store.Level
	err    error
}

func (f *fakeVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32, levels []store.Level) error {
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, query []float32, k int, allowed []store.Level) ([]*store.VectorResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	allowedSet := make(map[store.Level]bool, len(allowed))
	for _, l := range allowed {
		allowedSet[l] = true
	}
	out := make([]*store.VectorResult, 0, len(f.hits))
	for _, h := range f.hits {
		if len(allowed) > 0 && !allowedSet[f.levels[h.ID]] {
			continue
		}
		out = append(out, h)
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) Count() int                                     { return len(f.hits) }
func (f *fakeVectorStore) Save(path string) error                         { return nil }
func (f *fakeVectorStore) Load(path string) error                         { return nil }
func (f *fakeVectorStore) Close() error                                   { return nil }

// fakeChunkStore serves chunks from a map.
type fakeChunkStore struct {
	chunks map[string]*store.Chunk
	err    error
}

func newFakeChunkStore(chunks ...*store.Chunk) *fakeChunkStore {
	m := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		m[c.ID] = c
	}
	return &fakeChunkStore{chunks: m}
}

func (f *fakeChunkStore) SaveChunks(ctx context.Context, chunks []*store.Chunk) error {
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeChunkStore) GetChunk(ctx context.Context, id string) (*store.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks[id], nil
}

func (f *fakeChunkStore) GetChunks(ctx context.Context, ids []string) ([]*store.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*store.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) ListChunks(ctx context.Context) ([]*store.Chunk, error) {
	out := make([]*store.Chunk, 0, len(f.chunks))
	for _, c := range f.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeChunkStore) DeleteChunks(ctx context.Context, ids []string) error { return nil }
func (f *fakeChunkStore) GetState(ctx context.Context, key string) (string, error) {
	return "", nil
}
func (f *fakeChunkStore) SetState(ctx context.Context, key, value string) error { return nil }
func (f *fakeChunkStore) Close() error                                          { return nil }

// fakeWebSearcher returns scripted documents or an error.
type fakeWebSearcher struct {
	docs  []ExternalDoc
	err   error
	calls atomic.Int32
}

func (f *fakeWebSearcher) Search(ctx context.Context, query string, limit int) ([]ExternalDoc, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.docs) > limit {
		return f.docs[:limit], nil
	}
	return f.docs, nil
}

// fakeHistorySearcher returns scripted documents when enabled.
type fakeHistorySearcher struct {
	docs    []ExternalDoc
	err     error
	enabled bool
}

func (f *fakeHistorySearcher) Search(ctx context.Context, query string, limit int) ([]ExternalDoc, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.docs, nil
}

func (f *fakeHistorySearcher) Enabled() bool { return f.enabled }

// fakeScorer scores pairs by a scripted function and can fail on selected
// batch indexes.
type fakeScorer struct {
	scoreFn    func(passage string) float64
	failBatch  map[int]bool
	available  bool
	batchCount atomic.Int32
}

func (f *fakeScorer) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	batch := int(f.batchCount.Add(1)) - 1
	if f.failBatch[batch] {
		return nil, errors.New("scorer overloaded")
	}
	out := make([]float64, len(passages))
	for i, p := range passages {
		out[i] = f.scoreFn(p)
	}
	return out, nil
}

func (f *fakeScorer) Available(ctx context.Context) bool { return f.available }

// chunk builds a test chunk with content and level.
func chunk(id, content string, level store.Level) *store.Chunk {
	return &store.Chunk{
		ID:      id,
		Content: content,
		Metadata: store.Metadata{
			Title: fmt.Sprintf("chunk %s", id),
			Level: level,
		},
	}
}
