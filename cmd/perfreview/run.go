package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/perfreview/internal/assess"
	"github.com/p-blackswan/perfreview/internal/cache"
	"github.com/p-blackswan/perfreview/internal/config"
	"github.com/p-blackswan/perfreview/internal/docstore"
	"github.com/p-blackswan/perfreview/internal/github"
	"github.com/p-blackswan/perfreview/internal/llm"
	"github.com/p-blackswan/perfreview/internal/locator"
	"github.com/p-blackswan/perfreview/internal/metrics"
	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/internal/notify"
	"github.com/p-blackswan/perfreview/internal/orchestrator"
	"github.com/p-blackswan/perfreview/internal/report"
	"github.com/p-blackswan/perfreview/internal/retry"
	"github.com/p-blackswan/perfreview/pkg/tokenstore"
)

const dateLayout = "2006-01-02"

type runFlags struct {
	org    string
	actor  string
	since  string
	until  string
	role   string
	out    string
	format string
	limit  int
	quiet  bool

	formatSet bool
	limitSet  bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a review for one actor",
		Long: `Search the organization for the actor's contributions in the date range,
fetch and assess each one, then summarize.

Details and assessments are cached under CACHE_DIR and reused while the
contribution is unchanged on GitHub.

Usage:
  perfreview run --org acme --actor octocat --since 2024-01-01 --until 2024-03-31
  perfreview run --org acme --actor octocat --since 2024-01-01 --until 2024-03-31 \
      --role role.yaml --out review.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.formatSet = cmd.Flags().Changed("format")
			f.limitSet = cmd.Flags().Changed("limit")
			return runReview(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), &f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.org, "org", "", "GitHub organization (required)")
	fl.StringVar(&f.actor, "actor", "", "GitHub login under review (required)")
	fl.StringVar(&f.since, "since", "", "Start of the review period, YYYY-MM-DD (required)")
	fl.StringVar(&f.until, "until", "", "End of the review period, YYYY-MM-DD (required)")
	fl.StringVar(&f.role, "role", "", "Role description file (YAML profile or plain text)")
	fl.StringVarP(&f.out, "out", "o", "", "Write the full result to this file")
	fl.StringVar(&f.format, "format", "json", "Result file format: json or yaml (default from --out extension)")
	fl.IntVar(&f.limit, "limit", 0, "Cap on results per search facet, 0 = no cap (default $SEARCH_LIMIT)")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print the summary to stdout")
	for _, name := range []string{"org", "actor", "since", "until"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// parseRange parses inclusive YYYY-MM-DD bounds.
func parseRange(since, until string) (orchestrator.DateRange, error) {
	s, err := time.Parse(dateLayout, since)
	if err != nil {
		return orchestrator.DateRange{}, fmt.Errorf("invalid --since %q: want YYYY-MM-DD", since)
	}
	u, err := time.Parse(dateLayout, until)
	if err != nil {
		return orchestrator.DateRange{}, fmt.Errorf("invalid --until %q: want YYYY-MM-DD", until)
	}
	r := orchestrator.DateRange{Since: s, Until: u}
	if err := r.Validate(); err != nil {
		return orchestrator.DateRange{}, err
	}
	return r, nil
}

// outputFormat resolves --format against the --out extension. An explicit
// --format wins.
func outputFormat(f *runFlags) (report.Format, error) {
	format, err := report.ParseFormat(f.format)
	if err != nil {
		return "", err
	}
	if !f.formatSet && f.out != "" {
		format = report.FormatFor(f.out, format)
	}
	return format, nil
}

// searchLimit resolves --limit against SEARCH_LIMIT. An explicit --limit wins.
func searchLimit(f *runFlags, cfg *config.Config) int {
	if f.limitSet {
		return f.limit
	}
	return cfg.SearchLimit
}

func tokenSource(cfg *config.Config, fs afero.Fs, logger zerolog.Logger) (github.TokenSource, error) {
	if cfg.GitHubToken != "" {
		return github.StaticToken(cfg.GitHubToken), nil
	}
	store := tokenstore.NewFileStore(fs, filepath.Join(cfg.CacheDir, "tokens.json"))
	src, err := github.NewAppTokenSource(
		cfg.GitHubAppID,
		cfg.GitHubInstallationID,
		cfg.GitHubPrivateKeyPath,
		cfg.GitHubAPIURL,
		store,
		logger,
	)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func runReview(ctx context.Context, stdout, stderr io.Writer, f *runFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger(cfg, stderr)

	dates, err := parseRange(f.since, f.until)
	if err != nil {
		return err
	}
	format, err := outputFormat(f)
	if err != nil {
		return err
	}

	fs := afero.NewOsFs()
	role, err := assess.LoadRoleDescription(fs, f.role)
	if err != nil {
		return err
	}

	m := metrics.New()

	source, err := tokenSource(cfg, fs, logger)
	if err != nil {
		return fmt.Errorf("GitHub credentials: %w", err)
	}
	httpClient := github.NewHTTPClient(source, cfg.RequestTimeout)
	limiter := github.NewRateLimiter(cfg.MinRequestDelay, cfg.RateLimitCeiling,
		github.WithWaitHook(func(d time.Duration) {
			m.RecordRateLimitWait()
			logger.Warn().Dur("wait", d).Msg("rate limit exhausted, waiting for reset")
		}),
	)
	exec := github.NewExecutor(cfg.GitHubAPIURL, httpClient, limiter, logger, github.WithRecorder(m))
	rest, err := github.NewRESTClient(httpClient, cfg.GitHubAPIURL)
	if err != nil {
		return err
	}
	client := github.NewClient(exec, rest, logger, github.WithPageSize(cfg.SearchPageSize))

	details := cache.NewDetailCache[models.Detail](
		docstore.New(fs, cfg.DetailCacheDir()),
		cache.WithMemorySize(cfg.MemoryCacheSize),
		cache.WithLogger(logger),
	)
	analyses := cache.NewAnalysisCache[models.Record](
		docstore.New(fs, cfg.AnalysisCacheDir()),
		f.actor,
		cache.WithMemorySize(cfg.MemoryCacheSize),
		cache.WithLogger(logger),
	)

	provider := llm.NewAnthropicProvider(cfg.AnthropicAPIKey,
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithLogger(logger),
	)
	parser := locator.NewParser(cfg.GitHubWebHost)

	orch := orchestrator.New(
		client,
		details,
		analyses,
		assess.NewLLMAnalyzer(provider, parser, logger),
		assess.NewLLMSummarizer(provider, logger),
		logger,
		orchestrator.WithParser(parser),
		orchestrator.WithRecorder(m),
		orchestrator.WithProgress(logProgress(logger)),
	)

	logger.Info().
		Str("org", f.org).
		Str("actor", f.actor).
		Str("range", dates.String()).
		Bool("github_app", cfg.GitHubToken == "").
		Bool("slack_enabled", cfg.SlackEnabled()).
		Str("metrics_addr", cfg.MetricsAddr).
		Msg("starting review")

	res, err := runWithMetrics(ctx, cfg.MetricsAddr, m, logger, func(ctx context.Context) (*orchestrator.Result, error) {
		return orch.Run(ctx, orchestrator.RunConfig{
			Actor:           f.actor,
			Org:             f.org,
			Range:           dates,
			RoleDescription: role,
			SearchLimit:     searchLimit(f, cfg),
			AnalysisRetry:   retry.LinearConfig(cfg.AnalysisMaxAttempts, cfg.AnalysisBackoff),
		})
	})
	if err != nil {
		return err
	}

	if f.out != "" {
		if err := report.WriteFile(fs, f.out, res, format); err != nil {
			return err
		}
		logger.Info().Str("path", f.out).Str("format", string(format)).Msg("result written")
	}
	if !f.quiet {
		if err := report.Console(stdout, res); err != nil {
			return err
		}
	}

	if cfg.SlackEnabled() {
		n := notify.New(cfg.SlackBotToken, cfg.SlackChannel, logger)
		if _, err := n.Deliver(ctx, res); err != nil {
			logger.Warn().Err(err).Msg("failed to deliver summary to Slack (non-fatal)")
		}
	}
	return nil
}

// runWithMetrics serves /metrics on addr for the duration of fn. An empty
// addr runs fn alone.
func runWithMetrics(
	ctx context.Context,
	addr string,
	m *metrics.Metrics,
	logger zerolog.Logger,
	fn func(context.Context) (*orchestrator.Result, error),
) (*orchestrator.Result, error) {
	if addr == "" {
		return fn(ctx)
	}

	runCtx, done := context.WithCancel(ctx)
	defer done()
	g, gctx := errgroup.WithContext(runCtx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	var res *orchestrator.Result
	g.Go(func() error {
		defer done()
		var err error
		res, err = fn(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func logProgress(logger zerolog.Logger) func(orchestrator.Progress) {
	return func(p orchestrator.Progress) {
		logger.Debug().
			Str("phase", string(p.Phase)).
			Int("done", p.Done).
			Int("total", p.Total).
			Msg("progress")
	}
}
