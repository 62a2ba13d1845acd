package ui

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-ai/kotoba/internal/index"
	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

func plainPrinter(buf *bytes.Buffer) *Printer {
	return NewPrinter(NewConfig(buf, WithForcePlain(true)))
}

func sampleResponse() *search.Response {
	return &search.Response{
		Query: "wa vs ga",
		Level: store.LevelBeginner,
		Results: []*search.Result{
			{
				ChunkID: "particles#0",
				Content: "The particle wa marks the topic of a sentence.",
				Metadata: store.Metadata{
					Title: "Particles",
					Level: store.LevelBeginner,
				},
				Source:       search.SourceHybrid,
				Score:        0.92,
				QueryMatches: 2,
			},
			{
				Content: "Ga marks the grammatical subject.",
				URL:     "https://www.tofugu.com/particles",
				Metadata: store.Metadata{
					Level: store.LevelBeginner,
				},
				Source: search.SourceInternet,
				Score:  0.41,
			},
		},
		Report: search.SourceReport{
			search.SourceHybrid: {Attempted: true, Succeeded: true, Results: 2},
		},
		Expanded: []string{"wa vs ga", "wa vs ga topic marker"},
	}
}

func TestPrinter_Results(t *testing.T) {
	var buf bytes.Buffer
	plainPrinter(&buf).Results(sampleResponse())

	out := buf.String()
	assert.Contains(t, out, `2 result(s) for "wa vs ga" [beginner]`)
	assert.Contains(t, out, "searched: wa vs ga | wa vs ga topic marker")
	assert.Contains(t, out, "[0.92] hybrid")
	assert.Contains(t, out, "Particles")
	assert.Contains(t, out, "[0.41] internet")
	assert.Contains(t, out, "https://www.tofugu.com/particles")
	assert.NotContains(t, out, "warning:")
}

func TestPrinter_Results_DegradedWarning(t *testing.T) {
	resp := sampleResponse()
	resp.Report[search.SourceInternet] = search.SourceStatus{
		Attempted: true,
		Error:     "timeout",
	}

	var buf bytes.Buffer
	plainPrinter(&buf).Results(resp)

	assert.Contains(t, buf.String(), "warning: sources unavailable: internet")
}

func TestPrinter_Results_Empty(t *testing.T) {
	resp := &search.Response{
		Query:   "xyzzy",
		Level:   store.LevelBeginner,
		Results: []*search.Result{},
		Report:  search.SourceReport{},
	}

	var buf bytes.Buffer
	plainPrinter(&buf).Results(resp)

	assert.Contains(t, buf.String(), "No results found")
}

func TestPrinter_ResultsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, plainPrinter(&buf).ResultsJSON(sampleResponse()))

	var decoded search.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "wa vs ga", decoded.Query)
	require.Len(t, decoded.Results, 2)
	assert.Equal(t, search.SourceHybrid, decoded.Results[0].Source)
}

func TestPrinter_BuildStats(t *testing.T) {
	var buf bytes.Buffer
	plainPrinter(&buf).BuildStats(index.Stats{
		Chunks:          12,
		EmbeddedBatches: 2,
		CorpusVersion:   "abc123",
		Elapsed:         1500 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "Index built")
	assert.Contains(t, out, "chunks: 12")
	assert.Contains(t, out, "version: abc123")
	assert.Contains(t, out, "1.5s")
}

func TestPrinter_BuildStats_Skipped(t *testing.T) {
	var buf bytes.Buffer
	plainPrinter(&buf).BuildStats(index.Stats{CorpusVersion: "abc123"})

	assert.Contains(t, buf.String(), "up to date")
}

func TestSnippet_TruncatesLongContent(t *testing.T) {
	long := strings.Repeat("あ", snippetRunes+50)
	out := snippet(long)

	assert.Equal(t, snippetRunes+1, len([]rune(out)))
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestSnippet_CollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "wa marks topic", snippet("wa\n  marks\ttopic"))
}

func TestIsTTY_NilAndBuffer(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestDetectCI(t *testing.T) {
	t.Setenv("GITHUB_ACTIONS", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}
