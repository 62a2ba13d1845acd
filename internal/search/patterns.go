package search

import (
	"regexp"
	"sort"
	"strings"
)

// relatedTerms maps topic keywords to terms that co-occur in lesson
// material. Unlike synonyms these are appended to the query rather than
// substituted, widening recall without changing the question.
var relatedTerms = map[string][]string{
	"particle":    {"grammar", "sentence structure"},
	"wa":          {"topic", "ga", "contrast"},
	"ga":          {"subject", "wa"},
	"verb":        {"conjugation", "tense"},
	"keigo":       {"politeness", "formal speech"},
	"counter":     {"counting", "numbers"},
	"kanji":       {"reading", "radical"},
	"te form":     {"conjunction", "request"},
	"question":    {"か", "interrogative"},
	"adjective":   {"description", "modification"},
	"conditional": {"ば", "たら", "なら"},
}

// grammarConstructions maps construction names to the notation variants
// textbooks use for the same pattern.
var grammarConstructions = map[string][]string{
	"te form":    {"て form", "て-form", "てform"},
	"ta form":    {"た form", "past plain form"},
	"nai form":   {"ない form", "plain negative"},
	"masu form":  {"ます form", "polite form"},
	"dictionary": {"dictionary form", "辞書形", "plain form"},
	"tai form":   {"たい form", "want to"},
	"te iru":     {"ている", "progressive", "resultant state"},
	"te kudasai": {"てください", "polite request"},
}

// kanaRomaji maps romaji spellings of particles and common function words
// to their kana, and vice versa. Learners type either script; the corpus
// uses both.
var kanaRomaji = map[string]string{
	"wa":   "は",
	"ga":   "が",
	"wo":   "を",
	"ni":   "に",
	"de":   "で",
	"no":   "の",
	"to":   "と",
	"mo":   "も",
	"ka":   "か",
	"yo":   "よ",
	"ne":   "ね",
	"kara": "から",
	"made": "まで",
}

// kanaOrdered lists kana keys longest first so "から" is replaced before
// "か". The fixed order also keeps expansion output deterministic.
var kanaOrdered = func() []string {
	keys := make([]string, 0, len(kanaRomaji))
	for _, kana := range kanaRomaji {
		keys = append(keys, kana)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// romajiKana is the reverse mapping, derived once at init.
var romajiKana = func() map[string]string {
	m := make(map[string]string, len(kanaRomaji))
	for romaji, kana := range kanaRomaji {
		m[kana] = romaji
	}
	return m
}()

// exampleMarkerRe detects content that carries worked example sentences.
var exampleMarkerRe = regexp.MustCompile(`(?i)(例文|例[:：]|for example|example[:.]|e\.g\.)`)

// grammarTermRe detects explicit grammar-explanation vocabulary.
var grammarTermRe = regexp.MustCompile(`(?i)(grammar|particle|conjugat|tense|文法|助詞|活用|動詞|形容詞)`)

// HasExampleMarker reports whether content contains an example-sentence
// marker.
func HasExampleMarker(content string) bool {
	return exampleMarkerRe.MatchString(content)
}

// HasGrammarTerm reports whether content uses grammar-explanation
// terminology.
func HasGrammarTerm(content string) bool {
	return grammarTermRe.MatchString(content)
}

// transliterate returns the query with romaji particles swapped to kana
// (or kana to romaji), or empty string when nothing applies. Only
// whole-word romaji tokens are swapped; substrings inside longer words are
// left alone.
func transliterate(query string) string {
	changed := false

	// Kana to romaji is a direct substring replacement; kana particles
	// cannot collide with longer Latin words.
	out := query
	for _, kana := range kanaOrdered {
		if strings.Contains(out, kana) {
			out = strings.ReplaceAll(out, kana, romajiKana[kana])
			changed = true
		}
	}
	if changed {
		return out
	}

	// Romaji to kana, token by token.
	fields := strings.Fields(query)
	for i, f := range fields {
		if kana, ok := kanaRomaji[strings.ToLower(f)]; ok {
			fields[i] = kana
			changed = true
		}
	}
	if !changed {
		return ""
	}
	return strings.Join(fields, " ")
}
