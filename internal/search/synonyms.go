package search

import "github.com/kotoba-ai/kotoba/internal/store"

// synonym is an alternative phrasing gated by learner level: an expansion
// variant is only generated when the synonym's level is at or below the
// requested level, so expansion never drags in vocabulary the learner has
// not reached.
type synonym struct {
	text  string
	level store.Level
}

// synonymTable maps query terms to alternative phrasings learners and
// reference materials use for the same concept. Keys are matched
// case-insensitively against the query.
var synonymTable = map[string][]synonym{
	// Particles.
	"particle": {
		{text: "助詞", level: store.LevelElementary},
		{text: "postposition", level: store.LevelAdvanced},
	},
	"は": {
		{text: "wa", level: store.LevelBeginner},
		{text: "topic marker", level: store.LevelBeginner},
	},
	"が": {
		{text: "ga", level: store.LevelBeginner},
		{text: "subject marker", level: store.LevelBeginner},
	},
	"を": {
		{text: "wo", level: store.LevelBeginner},
		{text: "object marker", level: store.LevelBeginner},
	},
	"に": {
		{text: "ni", level: store.LevelBeginner},
		{text: "direction particle", level: store.LevelElementary},
	},
	"で": {
		{text: "de", level: store.LevelBeginner},
		{text: "location particle", level: store.LevelElementary},
	},

	// Verb morphology.
	"conjugation": {
		{text: "活用", level: store.LevelIntermediate},
		{text: "verb form", level: store.LevelBeginner},
	},
	"past tense": {
		{text: "た form", level: store.LevelBeginner},
		{text: "過去形", level: store.LevelIntermediate},
	},
	"negative": {
		{text: "ない form", level: store.LevelBeginner},
		{text: "否定形", level: store.LevelIntermediate},
	},
	"potential": {
		{text: "potential form", level: store.LevelElementary},
		{text: "可能形", level: store.LevelIntermediate},
	},
	"passive": {
		{text: "られる form", level: store.LevelIntermediate},
		{text: "受身形", level: store.LevelAdvanced},
	},
	"causative": {
		{text: "させる form", level: store.LevelIntermediate},
		{text: "使役形", level: store.LevelAdvanced},
	},

	// Politeness and register.
	"polite": {
		{text: "です ます form", level: store.LevelBeginner},
		{text: "丁寧語", level: store.LevelIntermediate},
	},
	"honorific": {
		{text: "keigo", level: store.LevelIntermediate},
		{text: "敬語", level: store.LevelIntermediate},
		{text: "尊敬語", level: store.LevelAdvanced},
	},
	"humble": {
		{text: "謙譲語", level: store.LevelAdvanced},
	},
	"casual": {
		{text: "plain form", level: store.LevelBeginner},
		{text: "タメ口", level: store.LevelAdvanced},
	},

	// Vocabulary domains.
	"counter": {
		{text: "counter word", level: store.LevelBeginner},
		{text: "助数詞", level: store.LevelIntermediate},
	},
	"adjective": {
		{text: "い adjective", level: store.LevelBeginner},
		{text: "な adjective", level: store.LevelBeginner},
		{text: "形容詞", level: store.LevelIntermediate},
	},
	"kanji": {
		{text: "漢字", level: store.LevelBeginner},
	},
	"hiragana": {
		{text: "ひらがな", level: store.LevelBeginner},
	},
	"katakana": {
		{text: "カタカナ", level: store.LevelBeginner},
	},
}

// synonymsFor returns the alternative phrasings for a term visible at the
// given level. Returns an empty slice when the term is unknown.
func synonymsFor(term string, level store.Level) []string {
	entries, ok := synonymTable[term]
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(entries))
	for _, s := range entries {
		if level.Includes(s.level) {
			out = append(out, s.text)
		}
	}
	return out
}
