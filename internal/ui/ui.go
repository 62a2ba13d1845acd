// Package ui renders search results and index progress for the terminal,
// with color for interactive sessions and plain text for pipes and CI.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Config configures terminal output.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output regardless of TTY detection.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// NewConfig creates a Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// useColor decides whether styled output is appropriate for the config
// and environment.
func useColor(cfg Config) bool {
	if cfg.ForcePlain || cfg.NoColor {
		return false
	}
	if DetectNoColor() || DetectCI() {
		return false
	}
	return IsTTY(cfg.Output)
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
