// Package rerank provides an HTTP client for a cross-encoder scoring
// service. The pipeline treats the service as optional; callers fall back
// to deterministic scoring whenever it is unreachable.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/search"
)

// Verify interface implementation at compile time.
var _ search.PairwiseScorer = (*Client)(nil)

const (
	// DefaultEndpoint is the local cross-encoder service address.
	DefaultEndpoint = "http://localhost:9770"

	// DefaultModel is the model alias requested from the service.
	DefaultModel = "cross-encoder-small"

	// DefaultTimeout bounds one scoring request.
	DefaultTimeout = 10 * time.Second
)

// Config holds cross-encoder client configuration.
type Config struct {
	// Endpoint is the scoring service URL.
	Endpoint string

	// Model is the model alias to score with.
	Model string

	// Timeout is the per-request timeout.
	Timeout time.Duration
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		Model:    DefaultModel,
		Timeout:  DefaultTimeout,
	}
}

// Client scores (query, passage) pairs against a cross-encoder service.
// A read-write lock guards the model name so SwitchModel can swap models
// without racing in-flight requests; scoring requests hold the read side.
type Client struct {
	client   *http.Client
	endpoint string
	timeout  time.Duration
	breaker  *kerrors.CircuitBreaker
	logger   *slog.Logger

	mu     sync.RWMutex
	model  string
	closed bool
}

// NewClient creates a cross-encoder client. The service is not contacted
// until the first request; use Available to probe it.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		endpoint: cfg.Endpoint,
		timeout:  cfg.Timeout,
		breaker:  kerrors.NewCircuitBreaker("rerank"),
		logger:   slog.Default().With(slog.String("component", "rerank_client")),
		model:    cfg.Model,
	}
}

// scoreRequest is the JSON request to the /score endpoint.
type scoreRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
	Model    string   `json:"model,omitempty"`
}

// scoreResponse is the JSON response from the /score endpoint.
type scoreResponse struct {
	Scores []float64 `json:"scores"`
	Model  string    `json:"model"`
}

// ScorePairs scores each passage against the query. The returned slice is
// parallel to passages. Failures trip the circuit breaker so a dead
// service stops being probed on every batch.
func (c *Client) ScorePairs(ctx context.Context, query string, passages []string) ([]float64, error) {
	if len(passages) == 0 {
		return []float64{}, nil
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, kerrors.New(kerrors.ErrCodeRerankUnavailable, "rerank client is closed", nil)
	}
	model := c.model
	c.mu.RUnlock()

	if !c.breaker.Allow() {
		return nil, kerrors.New(kerrors.ErrCodeRerankUnavailable,
			"rerank service circuit open", kerrors.ErrCircuitOpen)
	}

	scores, err := c.score(ctx, query, passages, model)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return scores, nil
}

func (c *Client) score(ctx context.Context, query string, passages []string, model string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{
		Query:    query,
		Passages: passages,
		Model:    model,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kerrors.New(kerrors.ErrCodeRerankUnavailable, "score request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, kerrors.New(kerrors.ErrCodeRerankUnavailable,
			fmt.Sprintf("score request failed (status %d): %s", resp.StatusCode, msg), nil)
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}
	if len(result.Scores) != len(passages) {
		return nil, fmt.Errorf("score count mismatch: want %d, got %d", len(passages), len(result.Scores))
	}

	c.logger.Debug("scored pairs",
		slog.Int("passages", len(passages)),
		slog.String("model", model),
		slog.Duration("elapsed", time.Since(start)))

	return result.Scores, nil
}

// Available probes the service health endpoint. An open circuit breaker
// short-circuits the probe.
func (c *Client) Available(ctx context.Context) bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed || !c.breaker.Allow() {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.breaker.RecordFailure()
		return false
	}
	c.breaker.RecordSuccess()
	return true
}

// SwitchModel changes the model used for subsequent requests. In-flight
// requests finish with the model they started with.
func (c *Client) SwitchModel(model string) {
	if model == "" {
		return
	}
	c.mu.Lock()
	old := c.model
	c.model = model
	c.mu.Unlock()

	if old != model {
		c.logger.Info("switched rerank model",
			slog.String("from", old),
			slog.String("to", model))
	}
}

// Model returns the model used for new requests.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// Close releases idle connections. Subsequent requests fail fast.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
