package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kotoba-ai/kotoba/internal/ui"
	"github.com/kotoba-ai/kotoba/internal/watcher"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	corpus string
	force  bool
	watch  bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the search index from the lesson corpus",
		Long: `Build the search index from the lesson corpus.

Loads every YAML lesson file, embeds the chunks, and writes the
metadata, vector, and keyword indexes. Unchanged corpora are skipped
unless --force is given.

Examples:
  kotoba index
  kotoba index --corpus ./lessons --force
  kotoba index --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.corpus, "corpus", "c", "", "Corpus directory (default from config)")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Rebuild even if the corpus is unchanged")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep running and rebuild on corpus changes")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	corpusDir := opts.corpus
	if corpusDir == "" {
		corpusDir = a.cfg.Paths.CorpusDir
	}
	if _, err := os.Stat(corpusDir); err != nil {
		return fmt.Errorf("corpus directory %q not found", corpusDir)
	}

	printer := ui.NewPrinter(ui.NewConfig(cmd.OutOrStdout()))
	builder := a.newBuilder()

	stats, err := builder.Build(ctx, corpusDir, opts.force)
	if err != nil {
		return err
	}
	printer.BuildStats(*stats)

	if !opts.watch {
		return nil
	}

	return watchCorpus(ctx, cmd, a, corpusDir)
}

// watchCorpus blocks, rebuilding the index whenever the corpus changes,
// until interrupted.
func watchCorpus(ctx context.Context, cmd *cobra.Command, a *app, corpusDir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := watcher.NewCorpusWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	if err := w.Start(ctx, corpusDir); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes (Ctrl-C to stop)\n", corpusDir)

	builder := a.newBuilder()
	watcher.RunRebuilds(ctx, w, func(ctx context.Context) error {
		_, err := builder.Build(ctx, corpusDir, false)
		return err
	})
	return nil
}
