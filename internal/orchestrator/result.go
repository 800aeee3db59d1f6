package orchestrator

import (
	"time"

	"github.com/p-blackswan/perfreview/internal/github"
	"github.com/p-blackswan/perfreview/internal/metrics"
	"github.com/p-blackswan/perfreview/internal/models"
)

// Skip records a contribution that was left out of the run and why.
type Skip struct {
	Ref   models.Ref `json:"ref" yaml:"ref"`
	Phase Phase      `json:"phase" yaml:"phase"`
	Cause string     `json:"cause" yaml:"cause"`
	Error string     `json:"error" yaml:"error"`
}

// SearchFailure records a facet search that failed. Its contributions, if
// any, are missing from the run.
type SearchFailure struct {
	Facet string            `json:"facet" yaml:"facet"`
	Kind  github.SearchKind `json:"kind" yaml:"kind"`
	Query string            `json:"query" yaml:"query"`
	Cause string            `json:"cause" yaml:"cause"`
	Error string            `json:"error" yaml:"error"`
}

// Result is everything a completed run produced.
type Result struct {
	RunID          string                   `json:"run_id" yaml:"run_id"`
	Actor          string                   `json:"actor" yaml:"actor"`
	Org            string                   `json:"org" yaml:"org"`
	Range          DateRange                `json:"range" yaml:"range"`
	StartedAt      time.Time                `json:"started_at" yaml:"started_at"`
	FinishedAt     time.Time                `json:"finished_at" yaml:"finished_at"`
	Analyses       []models.Record          `json:"analyses" yaml:"analyses"`
	Counts         metrics.Counts           `json:"counts" yaml:"counts"`
	Summary        *models.ExecutiveSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Skipped        []Skip                   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	FailedSearches []SearchFailure          `json:"failed_searches,omitempty" yaml:"failed_searches,omitempty"`
	ExcludedOpen   int                      `json:"excluded_open_pull_requests" yaml:"excluded_open_pull_requests"`
}
