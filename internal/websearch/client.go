// Package websearch retrieves supplementary lesson material from a
// SearxNG-compatible metasearch endpoint, restricted to an allowlist of
// trusted Japanese-learning domains.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	kerrors "github.com/kotoba-ai/kotoba/internal/errors"
	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
)

const (
	// DefaultTimeout bounds one search request.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxResults caps results taken from the endpoint per query.
	DefaultMaxResults = 5
)

// DefaultAllowedDomains lists the trusted reference sites. Results from
// any other domain are dropped.
var DefaultAllowedDomains = []string{
	"guidetojapanese.org",
	"imabi.org",
	"jlptsensei.com",
	"tofugu.com",
}

// Config holds web search client configuration.
type Config struct {
	// Endpoint is the SearxNG-compatible search URL.
	Endpoint string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// AllowedDomains restricts results to these domains and their
	// subdomains. Empty means the default allowlist.
	AllowedDomains []string

	// MaxResults caps results per query.
	MaxResults int
}

// Client queries a metasearch endpoint and filters results down to the
// domain allowlist. Web content carries no proficiency tag, so every
// result is labeled beginner and stays visible at all levels.
type Client struct {
	client  *http.Client
	config  Config
	breaker *kerrors.CircuitBreaker
	logger  *slog.Logger
}

// Verify interface implementation at compile time.
var _ search.WebSearcher = (*Client)(nil)

// NewClient creates a web search client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, kerrors.ConfigError("web search endpoint is required", nil)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if len(cfg.AllowedDomains) == 0 {
		cfg.AllowedDomains = DefaultAllowedDomains
	}

	return &Client{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config:  cfg,
		breaker: kerrors.NewCircuitBreaker("websearch"),
		logger:  slog.Default().With(slog.String("component", "websearch")),
	}, nil
}

// searchResponse is the SearxNG JSON result format.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
		Engine  string `json:"engine"`
	} `json:"results"`
}

// Search queries the endpoint and returns allowlisted documents in rank
// order. Failures trip the circuit breaker.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]search.ExternalDoc, error) {
	if !c.breaker.Allow() {
		return nil, kerrors.SourceError("internet", kerrors.ErrCircuitOpen)
	}
	if limit <= 0 || limit > c.config.MaxResults {
		limit = c.config.MaxResults
	}

	docs, err := c.search(ctx, query, limit)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, err
	}
	c.breaker.RecordSuccess()
	return docs, nil
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]search.ExternalDoc, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet,
		c.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, kerrors.SourceError("internet", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, kerrors.SourceError("internet",
			fmt.Errorf("search failed (status %d): %s", resp.StatusCode, msg))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, kerrors.SourceError("internet", fmt.Errorf("decode search response: %w", err))
	}

	docs := make([]search.ExternalDoc, 0, limit)
	dropped := 0
	for _, r := range result.Results {
		if len(docs) >= limit {
			break
		}
		domain := domainOf(r.URL)
		if !c.domainAllowed(domain) {
			dropped++
			continue
		}
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		docs = append(docs, search.ExternalDoc{
			ID:      r.URL,
			Title:   r.Title,
			Content: r.Content,
			URL:     r.URL,
			Domain:  domain,
			Level:   store.LevelBeginner,
		})
	}

	c.logger.Debug("web search completed",
		slog.String("query", query),
		slog.Int("results", len(docs)),
		slog.Int("dropped_by_allowlist", dropped),
		slog.Duration("elapsed", time.Since(start)))

	return docs, nil
}

// domainAllowed reports whether the domain or one of its parents is on
// the allowlist.
func (c *Client) domainAllowed(domain string) bool {
	if domain == "" {
		return false
	}
	for _, allowed := range c.config.AllowedDomains {
		if domain == allowed || strings.HasSuffix(domain, "."+allowed) {
			return true
		}
	}
	return false
}

// domainOf extracts the lowercased host from a URL, without a port.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Close releases idle connections.
func (c *Client) Close() error {
	if transport, ok := c.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
