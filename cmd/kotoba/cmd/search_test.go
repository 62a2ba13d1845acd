package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

func TestSearchCmd_FindsIndexedContent(t *testing.T) {
	dir := setupProject(t)
	writeCorpus(t, dir)

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	out, err := runCLI(t, "search", "particle", "wa", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, `result(s) for "particle wa"`)
	assert.Contains(t, out, "particle wa marks the topic")
}

func TestSearchCmd_JSONFormat(t *testing.T) {
	dir := setupProject(t)
	writeCorpus(t, dir)

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	out, err := runCLI(t, "search", "particle", "--format", "json")
	require.NoError(t, err)

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "particle", resp.Query)
	assert.Equal(t, store.LevelBeginner, resp.Level)
	assert.NotEmpty(t, resp.Results)
}

func TestSearchCmd_LevelFlag(t *testing.T) {
	dir := setupProject(t)
	writeCorpus(t, dir)

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	out, err := runCLI(t, "search", "particle", "--level", "advanced", "--format", "json")
	require.NoError(t, err)

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, store.LevelAdvanced, resp.Level)
}

func TestSearchCmd_MaxResultsFlag(t *testing.T) {
	dir := setupProject(t)
	writeCorpus(t, dir)

	_, err := runCLI(t, "index")
	require.NoError(t, err)

	out, err := runCLI(t, "search", "particle", "-n", "1", "--format", "json")
	require.NoError(t, err)

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Len(t, resp.Results, 1)
}

func TestSearchCmd_EmptyIndexReturnsNoResults(t *testing.T) {
	setupProject(t)

	out, err := runCLI(t, "search", "anything", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found")
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	setupProject(t)

	_, err := runCLI(t, "search")
	assert.Error(t, err)
}

func TestApp_OwnsMetricsCollector(t *testing.T) {
	setupProject(t)

	a, err := openApp()
	require.NoError(t, err)
	defer a.close()

	a.recordQuery(&search.Response{
		Query: "particle wa",
		Level: store.LevelBeginner,
	}, 12*time.Millisecond)

	snap := a.metrics.Snapshot()
	assert.Equal(t, int64(1), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, int64(1), snap.LevelCounts[store.LevelBeginner])

	// Each app carries its own collector; nothing leaks across instances.
	b, err := openApp()
	require.NoError(t, err)
	defer b.close()
	assert.Zero(t, b.metrics.Snapshot().TotalQueries)
}
