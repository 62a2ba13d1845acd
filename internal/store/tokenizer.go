package store

import (
	"strings"
	"unicode"
)

// Tokenize splits mixed Japanese/Latin text with script-aware rules.
// Latin runs are split on whitespace and punctuation and lowercased;
// Japanese runs (Hiragana, Katakana, Han) are emitted one rune per token.
// Without the per-rune strategy, BM25 scores degrade to near-zero for
// non-space-delimited text because every sentence becomes one giant term.
func Tokenize(text string) []string {
	var tokens []string
	var latin strings.Builder

	flush := func() {
		if latin.Len() > 0 {
			tokens = append(tokens, strings.ToLower(latin.String()))
			latin.Reset()
		}
	}

	for _, r := range text {
		switch {
		case IsJapaneseRune(r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			latin.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// IsJapaneseRune reports whether r belongs to a Japanese script
// (Hiragana, Katakana including halfwidth/phonetic extensions, or Han).
func IsJapaneseRune(r rune) bool {
	return unicode.In(r, unicode.Hiragana, unicode.Katakana, unicode.Han) ||
		(r >= 0x31F0 && r <= 0x31FF) || // Katakana phonetic extensions
		(r >= 0xFF66 && r <= 0xFF9D) // Halfwidth Katakana
}

// JapaneseDensity returns the fraction of runes in text that are Japanese
// script. Whitespace is excluded from the denominator so formatting does
// not dilute the measurement.
func JapaneseDensity(text string) float64 {
	var total, japanese int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if IsJapaneseRune(r) {
			japanese++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(japanese) / float64(total)
}

// DefaultStopWords returns the Latin-script function words excluded from
// BM25 indexing. Japanese tokens are never filtered: single-rune tokens
// are particles and morphemes learners search for.
func DefaultStopWords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "but", "by",
		"for", "if", "in", "into", "is", "it", "no", "not", "of",
		"on", "or", "such", "that", "the", "their", "then", "there",
		"these", "they", "this", "to", "was", "will", "with",
	}
}

// BuildStopWordMap converts a slice of stop words to a set for lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
