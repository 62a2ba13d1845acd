package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kotoba-ai/kotoba/internal/search"
	"github.com/kotoba-ai/kotoba/internal/store"
	"github.com/kotoba-ai/kotoba/internal/telemetry"
	"github.com/kotoba-ai/kotoba/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	level      string
	maxResults int
	format     string // "text", "json"
	plain      bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the lesson corpus",
		Long: `Search the lesson corpus with level-aware hybrid retrieval.

The query is expanded with romaji and grammar-term variants, retrieved
from every configured source concurrently, fused, reranked, and
adjusted for learner-relevant signals. Results above the learner's
level are never returned.

Examples:
  kotoba search "wa vs ga"
  kotoba search "how to use keigo" --level advanced
  kotoba search "te form" -n 3 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.level, "level", "l", "", "Learner level: beginner, elementary, intermediate, advanced")
	cmd.Flags().IntVarP(&opts.maxResults, "max-results", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Disable colored output")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	engine, err := a.newEngine(ctx)
	if err != nil {
		return err
	}

	level := opts.level
	if level == "" {
		level = a.cfg.Search.DefaultLevel
	}
	maxResults := opts.maxResults
	if maxResults <= 0 {
		maxResults = a.cfg.Search.MaxResults
	}

	started := time.Now()
	resp, err := engine.Search(ctx, search.Query{
		Text:       query,
		Level:      store.ParseLevel(level),
		MaxResults: maxResults,
	})
	if err != nil {
		return err
	}
	a.recordQuery(resp, time.Since(started))

	printer := ui.NewPrinter(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(opts.plain)))
	if opts.format == "json" {
		return printer.ResultsJSON(resp)
	}
	printer.Results(resp)
	return nil
}

// recordQuery feeds the query outcome into the app's metrics collector
// and logs the summary for log-based analysis across invocations.
func (a *app) recordQuery(resp *search.Response, elapsed time.Duration) {
	event := telemetry.QueryEvent{
		Query:       resp.Query,
		Level:       resp.Level,
		ResultCount: len(resp.Results),
		Latency:     elapsed,
		Degraded:    resp.Report.Degraded(),
		AllFailed:   resp.Report.AllFailed(),
		Timestamp:   time.Now(),
	}
	a.metrics.Record(event)

	slog.Debug("query recorded",
		slog.String("latency_bucket", string(telemetry.LatencyToBucket(elapsed))),
		slog.Int("results", event.ResultCount),
		slog.Bool("zero_result", event.IsZeroResult()))
}
