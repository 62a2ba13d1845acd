package rerank

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

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(Config{Endpoint: srv.URL})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestClient_ScorePairs(t *testing.T) {
	var gotReq scoreRequest
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.9, 0.1}})
	})

	scores, err := client.ScorePairs(context.Background(), "particle wa", []string{"doc a", "doc b"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.9, 0.1}, scores)
	assert.Equal(t, "particle wa", gotReq.Query)
	assert.Equal(t, []string{"doc a", "doc b"}, gotReq.Passages)
	assert.Equal(t, DefaultModel, gotReq.Model)
}

func TestClient_ScorePairs_EmptyInput(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://localhost:1"})
	t.Cleanup(func() { _ = client.Close() })

	scores, err := client.ScorePairs(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestClient_ScorePairs_ServerError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	})

	_, err := client.ScorePairs(context.Background(), "q", []string{"doc"})
	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeRerankUnavailable, kerrors.GetCode(err))
}

func TestClient_ScorePairs_CountMismatch(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.5}})
	})

	_, err := client.ScorePairs(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch")
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})

	for i := 0; i < 5; i++ {
		_, err := client.ScorePairs(context.Background(), "q", []string{"doc"})
		require.Error(t, err)
	}

	// Circuit is open now: the request never reaches the server.
	_, err := client.ScorePairs(context.Background(), "q", []string{"doc"})
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrCircuitOpen)
	assert.False(t, client.Available(context.Background()))
}

func TestClient_Available(t *testing.T) {
	healthy := true
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" && healthy {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	assert.True(t, client.Available(context.Background()))

	healthy = false
	assert.False(t, client.Available(context.Background()))
}

func TestClient_SwitchModel(t *testing.T) {
	var gotModel string
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.5}})
	})

	client.SwitchModel("cross-encoder-large")
	assert.Equal(t, "cross-encoder-large", client.Model())

	_, err := client.ScorePairs(context.Background(), "q", []string{"doc"})
	require.NoError(t, err)
	assert.Equal(t, "cross-encoder-large", gotModel)

	// Empty model name is ignored.
	client.SwitchModel("")
	assert.Equal(t, "cross-encoder-large", client.Model())
}

func TestClient_ClosedFailsFast(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://localhost:1"})
	require.NoError(t, client.Close())

	_, err := client.ScorePairs(context.Background(), "q", []string{"doc"})
	require.Error(t, err)
	assert.False(t, client.Available(context.Background()))
}
