// Package cmd provides the CLI commands for Kotoba.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kotoba-ai/kotoba/internal/logging"
	"github.com/kotoba-ai/kotoba/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the kotoba CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kotoba",
		Short: "Level-aware study search for Japanese learners",
		Long: `Kotoba answers Japanese grammar and usage questions from a curated
lesson corpus, blending semantic and keyword retrieval with optional
web and conversation-history sources.

Results never exceed the learner's proficiency level.

Run 'kotoba index' once to build the index, then 'kotoba search'.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("kotoba version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.kotoba/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug file logging when the flag is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}

	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

// stopLogging flushes and closes the debug log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
