package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
)

type rawResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func newTestClient(t *testing.T, results []rawResult, status int) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeConfigInvalid, kerrors.GetCode(err))
}

func TestClient_Search(t *testing.T) {
	client, _ := newTestClient(t, []rawResult{
		{Title: "Wa vs Ga", URL: "https://www.tofugu.com/japanese/wa-ga/", Content: "wa marks the topic"},
		{Title: "Particles", URL: "https://imabi.org/particles", Content: "particle overview"},
	}, http.StatusOK)

	docs, err := client.Search(context.Background(), "particle wa", 5)
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "Wa vs Ga", docs[0].Title)
	assert.Equal(t, "www.tofugu.com", docs[0].Domain)
	assert.Equal(t, "https://www.tofugu.com/japanese/wa-ga/", docs[0].URL)
}

func TestClient_Search_AllowlistFilters(t *testing.T) {
	client, _ := newTestClient(t, []rawResult{
		{Title: "Spam", URL: "https://content-farm.example.com/jp", Content: "irrelevant"},
		{Title: "Good", URL: "https://jlptsensei.com/wa", Content: "wa lesson"},
	}, http.StatusOK)

	docs, err := client.Search(context.Background(), "wa", 5)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "jlptsensei.com", docs[0].Domain)
}

func TestClient_Search_EmptyContentSkipped(t *testing.T) {
	client, _ := newTestClient(t, []rawResult{
		{Title: "Empty", URL: "https://tofugu.com/a", Content: "   "},
		{Title: "Full", URL: "https://tofugu.com/b", Content: "real content"},
	}, http.StatusOK)

	docs, err := client.Search(context.Background(), "wa", 5)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "Full", docs[0].Title)
}

func TestClient_Search_LimitApplies(t *testing.T) {
	results := make([]rawResult, 10)
	for i := range results {
		results[i] = rawResult{Title: "r", URL: "https://imabi.org/x", Content: "c"}
	}
	client, _ := newTestClient(t, results, http.StatusOK)

	docs, err := client.Search(context.Background(), "wa", 3)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	// A limit beyond the configured cap is clamped.
	docs, err = client.Search(context.Background(), "wa", 100)
	require.NoError(t, err)
	assert.Len(t, docs, DefaultMaxResults)
}

func TestClient_Search_ServerErrorTripsBreaker(t *testing.T) {
	client, srv := newTestClient(t, nil, http.StatusBadGateway)

	for i := 0; i < 5; i++ {
		_, err := client.Search(context.Background(), "wa", 5)
		require.Error(t, err)
	}

	srv.Close()
	_, err := client.Search(context.Background(), "wa", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrCircuitOpen)
}

func TestClient_Search_CustomAllowlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"results": []rawResult{
			{Title: "Custom", URL: "https://nihongo.example.org/page", Content: "lesson"},
			{Title: "Default", URL: "https://tofugu.com/page", Content: "lesson"},
		}})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Endpoint:       srv.URL,
		AllowedDomains: []string{"nihongo.example.org"},
	})
	require.NoError(t, err)

	docs, err := client.Search(context.Background(), "wa", 5)
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "Custom", docs[0].Title)
}
