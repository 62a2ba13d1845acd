package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
)

// MemoryKeywordIndex is an in-memory BM25 index over lesson chunks.
//
// The index holds its state in an immutable snapshot behind an atomic
// pointer: Rebuild constructs a complete new snapshot and publishes it in
// one store, so concurrent searches never observe a half-built index.
//
// IDF statistics are computed over the level-filtered subset of the corpus
// at query time (document frequencies are tracked per level), matching the
// behavior of the assistant this index serves.
type MemoryKeywordIndex struct {
	config    BM25Config
	stopWords map[string]struct{}
	snap      atomic.Pointer[keywordSnapshot]
	closed    atomic.Bool
}

// Verify interface implementation at compile time.
var _ KeywordIndex = (*MemoryKeywordIndex)(nil)

const numLevels = 4

// keywordDoc is one indexed document in a snapshot.
type keywordDoc struct {
	id     string
	level  int // level rank
	length int // token count
	tf     map[string]int
}

// keywordSnapshot is an immutable index state. All fields are read-only
// after construction.
type keywordSnapshot struct {
	docs     []keywordDoc
	postings map[string][]int32 // term -> indices into docs
	df       map[string]*[numLevels]int
	docCount [numLevels]int
	totalLen [numLevels]int
}

// NewMemoryKeywordIndex creates an empty BM25 index.
func NewMemoryKeywordIndex(config BM25Config) *MemoryKeywordIndex {
	if config.K1 <= 0 {
		config.K1 = DefaultBM25Config().K1
	}
	if config.B <= 0 {
		config.B = DefaultBM25Config().B
	}
	if config.StopWords == nil {
		config.StopWords = DefaultStopWords()
	}
	idx := &MemoryKeywordIndex{
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
	idx.snap.Store(&keywordSnapshot{
		postings: map[string][]int32{},
		df:       map[string]*[numLevels]int{},
	})
	return idx
}

// Rebuild replaces the index contents atomically.
func (idx *MemoryKeywordIndex) Rebuild(ctx context.Context, chunks []*Chunk) error {
	if idx.closed.Load() {
		return fmt.Errorf("keyword index is closed")
	}

	snap := &keywordSnapshot{
		docs:     make([]keywordDoc, 0, len(chunks)),
		postings: make(map[string][]int32),
		df:       make(map[string]*[numLevels]int),
	}

	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		tokens := FilterStopWords(Tokenize(c.Content), idx.stopWords)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}

		rank := c.Metadata.Level.Rank()
		docIdx := int32(len(snap.docs))
		snap.docs = append(snap.docs, keywordDoc{
			id:     c.ID,
			level:  rank,
			length: len(tokens),
			tf:     tf,
		})
		snap.docCount[rank]++
		snap.totalLen[rank] += len(tokens)

		for term := range tf {
			snap.postings[term] = append(snap.postings[term], docIdx)
			counts, ok := snap.df[term]
			if !ok {
				counts = &[numLevels]int{}
				snap.df[term] = counts
			}
			counts[rank]++
		}
	}

	idx.snap.Store(snap)
	return nil
}

// Search scores documents against the query using BM25 (k1, b from config),
// restricted to documents at or below the requested level. Raw scores are
// unbounded; callers normalize before comparing against other sources.
func (idx *MemoryKeywordIndex) Search(ctx context.Context, query string, level Level, limit int) ([]*KeywordResult, error) {
	if idx.closed.Load() {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snap := idx.snap.Load()
	maxRank := level.Rank()

	// Corpus statistics over the level-filtered subset.
	var n, totalLen int
	for r := 0; r <= maxRank; r++ {
		n += snap.docCount[r]
		totalLen += snap.totalLen[r]
	}

	terms := uniqueTerms(FilterStopWords(Tokenize(query), idx.stopWords))
	if len(terms) == 0 || n == 0 {
		return []*KeywordResult{}, nil
	}
	avgDocLen := float64(totalLen) / float64(n)

	// Per-term IDF over the filtered subset.
	idf := make(map[string]float64, len(terms))
	for _, term := range terms {
		counts, ok := snap.df[term]
		if !ok {
			continue
		}
		var df int
		for r := 0; r <= maxRank; r++ {
			df += counts[r]
		}
		if df == 0 {
			continue
		}
		idf[term] = math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}

	// Gather candidates via postings, score each once.
	type scored struct {
		doc   *keywordDoc
		score float64
	}
	seen := make(map[int32]bool)
	var candidates []scored

	k1, b := idx.config.K1, idx.config.B
	for _, term := range terms {
		if _, ok := idf[term]; !ok {
			continue
		}
		for _, di := range snap.postings[term] {
			if seen[di] {
				continue
			}
			seen[di] = true

			doc := &snap.docs[di]
			if doc.level > maxRank {
				continue
			}

			var score float64
			norm := k1 * (1 - b + b*float64(doc.length)/avgDocLen)
			for _, qt := range terms {
				tf := float64(doc.tf[qt])
				if tf == 0 {
					continue
				}
				score += idf[qt] * (tf * (k1 + 1)) / (tf + norm)
			}
			if score > 0 {
				candidates = append(candidates, scored{doc: doc, score: score})
			}
		}
	}

	// Deterministic order: score desc, then DocID asc.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].doc.id < candidates[j].doc.id
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]*KeywordResult, len(candidates))
	for i, c := range candidates {
		var matched []string
		for _, qt := range terms {
			if c.doc.tf[qt] > 0 {
				matched = append(matched, qt)
			}
		}
		results[i] = &KeywordResult{
			DocID:        c.doc.id,
			Score:        c.score,
			MatchedTerms: matched,
		}
	}

	return results, nil
}

// Stats returns statistics for the current snapshot.
func (idx *MemoryKeywordIndex) Stats() *KeywordStats {
	snap := idx.snap.Load()

	var docs, totalLen int
	for r := 0; r < numLevels; r++ {
		docs += snap.docCount[r]
		totalLen += snap.totalLen[r]
	}

	avg := 0.0
	if docs > 0 {
		avg = float64(totalLen) / float64(docs)
	}
	return &KeywordStats{
		DocumentCount: docs,
		TermCount:     len(snap.postings),
		AvgDocLength:  avg,
	}
}

// Close marks the index closed. Subsequent operations fail.
func (idx *MemoryKeywordIndex) Close() error {
	idx.closed.Store(true)
	return nil
}

// uniqueTerms deduplicates tokens preserving first-seen order.
func uniqueTerms(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			result = append(result, t)
		}
	}
	return result
}
