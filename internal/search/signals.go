package search

import (
	"sort"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// Boost factors applied after reranking. Boosts multiply so several weak
// signals compound; scores are not clamped until presentation.
const (
	exactLevelBoost  = 1.15
	idealLengthBoost = 1.1
	exampleBoost     = 1.15
	grammarBoost     = 1.1

	idealLengthMin = 200
	idealLengthMax = 1000

	densityThreshold = 0.2
	densityFactor    = 0.2
)

// AdjustSignals applies content-quality boosts to each candidate's final
// score, then sorts by the total order and truncates to maxResults.
func AdjustSignals(cands []*Candidate, level store.Level, maxResults int) []*Candidate {
	for _, c := range cands {
		c.FinalScore *= boostFor(c, level)
	}

	sortCandidates(cands)

	if maxResults > 0 && len(cands) > maxResults {
		cands = cands[:maxResults]
	}
	return cands
}

// boostFor computes the combined multiplicative boost for one candidate.
func boostFor(c *Candidate, level store.Level) float64 {
	boost := 1.0

	if c.Metadata.Level.Valid() && c.Metadata.Level == level {
		boost *= exactLevelBoost
	}

	if n := len(c.Content); n >= idealLengthMin && n < idealLengthMax {
		boost *= idealLengthBoost
	}

	if density := store.JapaneseDensity(c.Content); density > densityThreshold {
		boost *= 1 + density*densityFactor
	}

	if HasExampleMarker(c.Content) {
		boost *= exampleBoost
	}

	if HasGrammarTerm(c.Content) {
		boost *= grammarBoost
	}

	return boost
}

// sortCandidates orders by the ranking total order: final score, then
// expansion variant coverage, then source priority, then discovery order.
// Every comparison is deterministic so identical inputs rank identically.
func sortCandidates(cands []*Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.QueryMatches != b.QueryMatches {
			return a.QueryMatches > b.QueryMatches
		}
		if a.Source.Priority() != b.Source.Priority() {
			return a.Source.Priority() > b.Source.Priority()
		}
		return a.discovered < b.discovered
	})
}

// presentationScore clamps the internal score into [0,1] for output.
// Boosts can push scores above 1; callers only ever see the clamped value.
func presentationScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
