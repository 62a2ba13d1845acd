package search

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/kotoba-ai/kotoba/internal/store"
)

// DefaultMaxExpansions caps variants generated beyond the original query.
const DefaultMaxExpansions = 4

// Expander generates query variants from the synonym table, grammar
// construction notation, topic-related terms, and kana/romaji
// transliteration. Expansion never fails: the zero outcome is the original
// query alone.
type Expander struct {
	maxExpansions int
	logger        *slog.Logger
}

// ExpanderOption configures an Expander.
type ExpanderOption func(*Expander)

// WithMaxExpansions overrides the variant cap.
func WithMaxExpansions(n int) ExpanderOption {
	return func(e *Expander) {
		if n > 0 {
			e.maxExpansions = n
		}
	}
}

// NewExpander creates a query expander.
func NewExpander(opts ...ExpanderOption) *Expander {
	e := &Expander{
		maxExpansions: DefaultMaxExpansions,
		logger:        slog.Default().With(slog.String("component", "expander")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand produces the variant set for a query at the given learner level.
// The original query is always first; total size is capped at
// maxExpansions+1. Synonym variants above the learner's level are not
// generated.
func (e *Expander) Expand(query string, level store.Level) QueryExpansion {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return QueryExpansion{Original: query, Variants: []string{query}}
	}

	variants := []string{trimmed}
	seen := map[string]bool{trimmed: true}
	full := false

	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] || full {
			return
		}
		seen[v] = true
		variants = append(variants, v)
		if len(variants) >= e.maxExpansions+1 {
			full = true
		}
	}

	lower := strings.ToLower(trimmed)

	// Transliteration first: it recovers the largest vocabulary gap
	// (learner typed romaji, corpus written in kana, or the reverse).
	add(transliterate(trimmed))

	// Grammar construction notation variants.
	for _, key := range sortedKeys(grammarConstructions) {
		if !strings.Contains(lower, key) {
			continue
		}
		for _, alt := range grammarConstructions[key] {
			add(strings.ReplaceAll(lower, key, alt))
		}
	}

	// Level-gated synonym substitutions.
	for _, key := range sortedKeys(synonymTable) {
		if !strings.Contains(lower, strings.ToLower(key)) {
			continue
		}
		for _, alt := range synonymsFor(key, level) {
			add(strings.ReplaceAll(lower, strings.ToLower(key), alt))
		}
	}

	// Topic-related terms widen the query instead of substituting.
	for _, key := range sortedKeys(relatedTerms) {
		if !strings.Contains(lower, key) {
			continue
		}
		for _, term := range relatedTerms[key] {
			if !strings.Contains(lower, strings.ToLower(term)) {
				add(trimmed + " " + term)
			}
		}
	}

	if len(variants) > 1 {
		e.logger.Debug("expanded query",
			slog.String("query", trimmed),
			slog.Int("variants", len(variants)))
	}

	return QueryExpansion{Original: trimmed, Variants: variants}
}

// sortedKeys returns map keys in a fixed order so expansion output is
// deterministic run to run.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
