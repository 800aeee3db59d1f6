// Package orchestrator drives a review run through its phases: search for
// an actor's contributions, fetch their detail, analyze each one, then
// summarize. Work is strictly sequential so that one loop owns the rate
// budget. A failure on a single contribution is recorded as a skip and
// never blocks the run; only a failed summary or a configuration error
// aborts it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/perfreview/internal/assess"
	"github.com/p-blackswan/perfreview/internal/cache"
	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/github"
	"github.com/p-blackswan/perfreview/internal/locator"
	"github.com/p-blackswan/perfreview/internal/metrics"
	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/internal/retry"
)

// Platform is the subset of the GitHub client a run needs.
type Platform interface {
	Search(ctx context.Context, q string, kind github.SearchKind, limit int) ([]models.Ref, error)
	FetchDetail(ctx context.Context, ref models.Ref) (models.Detail, error)
}

// Recorder receives run instrumentation. *metrics.Metrics implements it.
type Recorder interface {
	RecordCacheLookup(cache string, hit bool)
	RecordSkip(phase, cause string)
	SetPhase(phase string, all []string)
	PublishCounts(c metrics.Counts)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheLookup(string, bool) {}
func (nopRecorder) RecordSkip(string, string)      {}
func (nopRecorder) SetPhase(string, []string)      {}
func (nopRecorder) PublishCounts(metrics.Counts)   {}

// Progress is reported after each unit of work.
type Progress struct {
	Phase Phase
	Done  int
	Total int
}

// RunConfig holds the per-run parameters.
type RunConfig struct {
	Actor           string
	Org             string
	Range           DateRange
	RoleDescription string
	// SearchLimit caps results per facet search; <= 0 means no cap.
	SearchLimit int
	// AnalysisRetry governs retries of analysis calls. The summary is
	// requested once.
	AnalysisRetry retry.Config
}

// Orchestrator runs review pipelines. Build one per run.
type Orchestrator struct {
	platform   Platform
	details    *cache.DetailCache[models.Detail]
	analyses   *cache.AnalysisCache[models.Record]
	analyzer   assess.Analyzer
	summarizer assess.Summarizer
	parser     *locator.Parser
	recorder   Recorder
	progress   func(Progress)
	newRunID   func() string
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches run metrics.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithParser sets the locator used to check search results. The default
// accepts URLs on github.com.
func WithParser(p *locator.Parser) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.parser = p
		}
	}
}

// WithProgress registers an observer for progress events.
func WithProgress(fn func(Progress)) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithRunID overrides run identifier generation.
func WithRunID(fn func() string) Option {
	return func(o *Orchestrator) { o.newRunID = fn }
}

// New wires an orchestrator from its collaborators.
func New(
	platform Platform,
	details *cache.DetailCache[models.Detail],
	analyses *cache.AnalysisCache[models.Record],
	analyzer assess.Analyzer,
	summarizer assess.Summarizer,
	logger zerolog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		platform:   platform,
		details:    details,
		analyses:   analyses,
		analyzer:   analyzer,
		summarizer: summarizer,
		parser:     locator.NewParser(""),
		recorder:   nopRecorder{},
		progress:   func(Progress) {},
		newRunID:   func() string { return uuid.NewString() },
		now:        time.Now,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// state is the run's phase state. It is owned by a single Run call.
type state struct {
	phase    Phase
	pending  []models.Ref
	fetched  []models.Detail
	accepted []models.Record
	skipped  []Skip
	failed   []SearchFailure
	excluded int
	counts   metrics.Counts
	summary  *models.ExecutiveSummary
}

// Run executes one review run to completion.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) (*Result, error) {
	if cfg.Actor == "" || cfg.Org == "" {
		return nil, fmt.Errorf("%w: actor and org are required", perrors.ErrConfiguration)
	}
	if err := cfg.Range.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", perrors.ErrConfiguration, err)
	}
	if o.analyses.Actor() != cfg.Actor {
		if err := o.analyses.Bind(cfg.Actor); err != nil {
			return nil, err
		}
	}

	runID := o.newRunID()
	logger := o.logger.With().Str("run_id", runID).Str("actor", cfg.Actor).Str("org", cfg.Org).Logger()
	started := o.now()

	st := &state{}
	phase, effects := Start()
	o.enter(st, phase, logger)
	for {
		var event Event
		for _, eff := range effects {
			ev, err := o.apply(ctx, eff, cfg, st, logger)
			if err != nil {
				logger.Error().Err(err).Str("phase", string(st.phase)).Msg("run failed")
				return nil, err
			}
			event = ev
		}

		next, nextEffects, err := Transition(st.phase, event)
		if err != nil {
			return nil, err
		}
		o.enter(st, next, logger)
		if next == PhaseComplete {
			break
		}
		effects = nextEffects
	}

	res := &Result{
		RunID:        runID,
		Actor:        cfg.Actor,
		Org:          cfg.Org,
		Range:        cfg.Range,
		StartedAt:    started,
		FinishedAt:   o.now(),
		Analyses:     st.accepted,
		Counts:       st.counts,
		Summary:      st.summary,
		Skipped:        st.skipped,
		FailedSearches: st.failed,
		ExcludedOpen:   st.excluded,
	}
	logger.Info().
		Int("analyses", len(res.Analyses)).
		Int("skipped", len(res.Skipped)).
		Int("failed_searches", len(res.FailedSearches)).
		Int("excluded_open", res.ExcludedOpen).
		Bool("summary", res.Summary != nil).
		Msg("run complete")
	return res, nil
}

func (o *Orchestrator) enter(st *state, p Phase, logger zerolog.Logger) {
	st.phase = p
	all := make([]string, len(Phases))
	for i, ph := range Phases {
		all[i] = string(ph)
	}
	o.recorder.SetPhase(string(p), all)
	logger.Info().Str("phase", string(p)).Msg("entering phase")
}

func (o *Orchestrator) apply(ctx context.Context, eff Effect, cfg RunConfig, st *state, logger zerolog.Logger) (Event, error) {
	switch eff {
	case EffectSearch:
		return o.search(ctx, cfg, st, logger)
	case EffectFetch:
		return o.fetch(ctx, st, logger)
	case EffectAnalyze:
		return o.analyze(ctx, cfg, st, logger)
	case EffectSummarize:
		return o.summarize(ctx, cfg, st, logger)
	}
	return "", fmt.Errorf("unknown effect %q", eff)
}

// fatal reports whether err must abort the run rather than skip one item.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, perrors.ErrConfiguration) || errors.Is(err, perrors.ErrAuthFailure)
}

func (o *Orchestrator) skip(st *state, ref models.Ref, phase Phase, err error, logger zerolog.Logger) {
	s := Skip{Ref: ref, Phase: phase, Cause: perrors.Kind(err), Error: err.Error()}
	st.skipped = append(st.skipped, s)
	o.recorder.RecordSkip(string(phase), s.Cause)
	logger.Warn().
		Err(err).
		Str("owner", ref.Owner).
		Str("repo", ref.Repo).
		Str("type", string(ref.Type)).
		Int("number", ref.Number).
		Str("phase", string(phase)).
		Str("cause", s.Cause).
		Msg("skipping contribution")
}

func (o *Orchestrator) search(ctx context.Context, cfg RunConfig, st *state, logger zerolog.Logger) (Event, error) {
	var found []models.Ref
	facets := Facets()
	searches := 0
	for _, f := range facets {
		searches += len(f.Kinds)
	}

	var total int
	for _, f := range facets {
		q := f.Query(cfg.Org, cfg.Actor, cfg.Range)
		for _, kind := range f.Kinds {
			total++
			refs, err := o.platform.Search(ctx, q, kind, cfg.SearchLimit)
			if err != nil {
				if fatal(ctx, err) {
					return "", fmt.Errorf("search %s: %w", f.Name, err)
				}
				fail := SearchFailure{Facet: f.Name, Kind: kind, Query: q, Cause: perrors.Kind(err), Error: err.Error()}
				st.failed = append(st.failed, fail)
				o.recorder.RecordSkip(string(PhaseSearch), fail.Cause)
				logger.Warn().Err(err).Str("facet", f.Name).Str("kind", string(kind)).Str("cause", fail.Cause).Msg("facet search failed")
				continue
			}
			for i := range refs {
				refs[i].Role = f.Role
			}
			found = append(found, refs...)
			logger.Debug().Str("facet", f.Name).Str("kind", string(kind)).Int("results", len(refs)).Msg("facet searched")
		}
		o.progress(Progress{Phase: PhaseSearch, Done: total, Total: searches})
	}
	if total > 0 && len(st.failed) == total {
		return "", fmt.Errorf("every search failed; last: %s", st.failed[len(st.failed)-1].Error)
	}

	merged := Merge(found)
	for _, ref := range merged {
		if err := o.locate(ref); err != nil {
			o.skip(st, ref, PhaseSearch, err, logger)
			continue
		}
		st.pending = append(st.pending, ref)
	}
	logger.Info().Int("found", len(found)).Int("unique", len(st.pending)).Msg("search complete")
	return EventSearched, nil
}

func (o *Orchestrator) fetch(ctx context.Context, st *state, logger zerolog.Logger) (Event, error) {
	total := len(st.pending)
	for done := 1; len(st.pending) > 0; done++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ref := st.pending[0]
		st.pending = st.pending[1:]
		detail, err := o.fetchOne(ctx, ref, logger)
		if err != nil {
			if fatal(ctx, err) {
				return "", err
			}
			o.skip(st, ref, PhaseFetch, err, logger)
		} else {
			st.fetched = append(st.fetched, detail)
		}
		o.progress(Progress{Phase: PhaseFetch, Done: done, Total: total})
	}
	return EventFetched, nil
}

// fetchOne serves ref from the detail cache when fresh, otherwise fetches
// it, stores it and erases analyses derived from the previous version.
func (o *Orchestrator) fetchOne(ctx context.Context, ref models.Ref, logger zerolog.Logger) (models.Detail, error) {
	key := ref.Key()
	entry, hit, err := o.details.Get(key, ref.RemoteUpdatedAt)
	if err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("detail cache read failed, refetching")
	}
	o.recorder.RecordCacheLookup("detail", hit)
	if hit {
		detail := entry.Data
		detail.Ref = withRemote(ref, entry.RemoteUpdatedAt)
		return detail, nil
	}

	detail, err := o.platform.FetchDetail(ctx, ref)
	if err != nil {
		return models.Detail{}, err
	}
	remote := detail.Ref.RemoteUpdatedAt
	if ref.RemoteUpdatedAt.After(remote) {
		remote = ref.RemoteUpdatedAt
	}
	detail.Ref = withRemote(ref, remote)

	if _, err := o.details.Set(key, detail, remote); err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("detail cache write failed")
	}
	if err := o.analyses.Invalidate(key); err != nil {
		return models.Detail{}, err
	}
	return detail, nil
}

func withRemote(ref models.Ref, remote time.Time) models.Ref {
	ref.RemoteUpdatedAt = remote
	return ref
}

func (o *Orchestrator) analyze(ctx context.Context, cfg RunConfig, st *state, logger zerolog.Logger) (Event, error) {
	for i, detail := range st.fetched {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if detail.IsOpenPullRequest() {
			st.excluded++
			logger.Debug().Str("key", detail.Ref.Key().String()).Msg("open pull request excluded")
		} else {
			rec, err := o.analyzeOne(ctx, cfg, detail, logger)
			if err != nil {
				if fatal(ctx, err) {
					return "", err
				}
				o.skip(st, detail.Ref, PhaseAnalyze, err, logger)
			} else {
				st.accepted = append(st.accepted, rec)
			}
		}
		o.progress(Progress{Phase: PhaseAnalyze, Done: i + 1, Total: len(st.fetched)})
	}
	return EventAnalyzed, nil
}

func (o *Orchestrator) analyzeOne(ctx context.Context, cfg RunConfig, detail models.Detail, logger zerolog.Logger) (models.Record, error) {
	key := detail.Ref.Key()
	entry, hit, err := o.analyses.Get(key, detail.Ref.RemoteUpdatedAt)
	if err != nil {
		if errors.Is(err, perrors.ErrConfiguration) {
			return models.Record{}, err
		}
		logger.Warn().Err(err).Str("key", key.String()).Msg("analysis cache read failed, reanalyzing")
	}
	o.recorder.RecordCacheLookup("analysis", hit)
	if hit {
		rec := entry.Data
		rec.Ref = detail.Ref
		return rec, nil
	}

	var assessment models.Assessment
	err = retry.Do(ctx, o.retryConfig(cfg, key.String()), func(ctx context.Context) error {
		var err error
		assessment, err = o.analyzer.Analyze(ctx, assess.AnalysisRequest{
			Actor:           cfg.Actor,
			Detail:          detail,
			RoleDescription: cfg.RoleDescription,
		})
		return err
	})
	if err != nil {
		return models.Record{}, err
	}

	rec := models.Record{Actor: cfg.Actor, Ref: detail.Ref, Assessment: assessment}
	if _, err := o.analyses.Set(key, rec, detail.Ref.RemoteUpdatedAt); err != nil {
		if errors.Is(err, perrors.ErrConfiguration) {
			return models.Record{}, err
		}
		logger.Warn().Err(err).Str("key", key.String()).Msg("analysis cache write failed")
	}
	return rec, nil
}

func (o *Orchestrator) summarize(ctx context.Context, cfg RunConfig, st *state, logger zerolog.Logger) (Event, error) {
	st.counts = metrics.Tally(st.accepted)
	o.recorder.PublishCounts(st.counts)
	if len(st.accepted) == 0 {
		logger.Info().Msg("no accepted analyses, nothing to summarize")
		return EventNothingToSummarize, nil
	}

	summary, err := o.summarizer.Summarize(ctx, assess.SummaryRequest{
		Actor:           cfg.Actor,
		Analyses:        st.accepted,
		RoleDescription: cfg.RoleDescription,
		Counts:          st.counts,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	st.summary = &summary
	o.progress(Progress{Phase: PhaseSummarize, Done: 1, Total: 1})
	return EventSummarized, nil
}

func (o *Orchestrator) retryConfig(cfg RunConfig, subject string) retry.Config {
	rc := cfg.AnalysisRetry
	if rc.MaxAttempts == 0 {
		rc = retry.LinearConfig(3, 2*time.Second)
	}
	rc.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.logger.Warn().Err(err).Str("subject", subject).Int("attempt", attempt).Dur("delay", delay).Msg("collaborator call failed, retrying")
	}
	return rc
}
