// Command perfreview gathers an engineer's contributions to a GitHub
// organization over a date range, assesses each one and writes an
// executive summary.
//
// Usage:
//
//	GITHUB_TOKEN=ghp_... ANTHROPIC_API_KEY=sk-... perfreview run --org acme --actor octocat --since 2024-01-01 --until 2024-03-31
//	perfreview cache clear --owner acme --repo widgets
//	perfreview locate https://github.com/acme/widgets/pull/42
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/perfreview/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "perfreview",
		Short: "Contribution-based performance reviews for GitHub organizations",
		Long: "perfreview searches an organization for an engineer's issues, pull requests\n" +
			"and discussions, judges each contribution and writes an executive summary.",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		Version: version,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newLocateCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger: JSON to stderr, or a console writer
// in development.
func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(w).With().Timestamp().Logger()

	if cfg.Environment == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: w})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		logger = logger.Level(level)
	}

	log.Logger = logger
	return logger
}
