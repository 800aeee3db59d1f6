// Package github is the platform access layer: a rate-limited GraphQL
// executor with cursor pagination, typed search and detail queries on top
// of it, and per-commit diff statistics through the REST API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/models"
	"github.com/p-blackswan/perfreview/internal/retry"
)

// SearchKind selects the GraphQL search type.
type SearchKind string

const (
	// SearchIssues covers issues and pull requests.
	SearchIssues      SearchKind = "ISSUE"
	SearchDiscussions SearchKind = "DISCUSSION"
)

// DefaultPageSize is the number of search results requested per page.
const DefaultPageSize = 50

// Client exposes the typed platform calls the pipeline needs.
type Client struct {
	exec     *Executor
	rest     *gogithub.Client
	pageSize int
	logger   zerolog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPageSize sets the search page size (1..100).
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 && n <= 100 {
			c.pageSize = n
		}
	}
}

// NewClient wires a GraphQL executor and a REST client that share one rate limiter.
func NewClient(exec *Executor, rest *gogithub.Client, logger zerolog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		exec:     exec,
		rest:     rest,
		pageSize: DefaultPageSize,
		logger:   logger.With().Str("component", "github").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewRESTClient returns a go-github client for apiURL.
func NewRESTClient(httpClient *http.Client, apiURL string) (*gogithub.Client, error) {
	client := gogithub.NewClient(httpClient)
	if apiURL != "" && strings.TrimSuffix(apiURL, "/") != "https://api.github.com" {
		base, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parsing API URL: %w", err)
		}
		client.BaseURL = base
	}
	return client, nil
}

// Executor returns the underlying query executor.
func (c *Client) Executor() *Executor { return c.exec }

type searchNode struct {
	Typename   string    `json:"__typename"`
	URL        string    `json:"url"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Repository struct {
		Name  string    `json:"name"`
		Owner actorNode `json:"owner"`
	} `json:"repository"`
}

var typenames = map[string]models.ContributionType{
	"Issue":       models.TypeIssue,
	"PullRequest": models.TypePullRequest,
	"Discussion":  models.TypeDiscussion,
}

// Search runs a platform search query and returns the matching
// contributions. Roles are left for the caller to assign.
func (c *Client) Search(ctx context.Context, q string, kind SearchKind, limit int) ([]models.Ref, error) {
	nodes, err := c.exec.ExecutePaginated(ctx, searchQuery, map[string]any{
		"q":     q,
		"type":  string(kind),
		"first": c.pageSize,
	}, []string{"search"}, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}

	refs := make([]models.Ref, 0, len(nodes))
	for _, raw := range nodes {
		var n searchNode
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode search node: %w", err)
		}
		typ, ok := typenames[n.Typename]
		if !ok {
			continue
		}
		refs = append(refs, models.Ref{
			URL:             n.URL,
			Type:            typ,
			Owner:           n.Repository.Owner.Login,
			Repo:            n.Repository.Name,
			Number:          n.Number,
			Title:           n.Title,
			RemoteUpdatedAt: n.UpdatedAt,
		})
	}
	c.logger.Debug().Str("query", q).Int("results", len(refs)).Msg("search complete")
	return refs, nil
}

// CommitStats fetches diff statistics for one commit. It shares the
// executor's rate limiter and absorbs transient failures the same way.
func (c *Client) CommitStats(ctx context.Context, owner, repo, sha string) (models.CommitStat, error) {
	var stat models.CommitStat
	err := retry.Do(ctx, c.exec.retry, func(ctx context.Context) error {
		if err := c.exec.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		commit, resp, err := c.rest.Repositories.GetCommit(ctx, owner, repo, sha, nil)
		if resp != nil && resp.Rate.Limit > 0 {
			c.exec.limiter.Observe(resp.Rate.Remaining, resp.Rate.Reset.Time)
			c.exec.recorder.SetRateLimitRemaining(resp.Rate.Remaining)
		}
		if err != nil {
			c.exec.recorder.RecordRemoteCall("commit", "error", time.Since(start).Seconds())
			return c.classifyREST(err)
		}
		c.exec.recorder.RecordRemoteCall("commit", "ok", time.Since(start).Seconds())

		stat = models.CommitStat{
			SHA:       sha,
			Message:   commit.GetCommit().GetMessage(),
			Additions: commit.GetStats().GetAdditions(),
			Deletions: commit.GetStats().GetDeletions(),
		}
		for _, f := range commit.Files {
			stat.ChangedFiles = append(stat.ChangedFiles, f.GetFilename())
		}
		return nil
	})
	if err != nil {
		return models.CommitStat{}, fmt.Errorf("commit %s/%s@%s: %w", owner, repo, sha, err)
	}
	return stat, nil
}

func (c *Client) classifyREST(err error) error {
	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		c.exec.limiter.Observe(0, rle.Rate.Reset.Time)
		return fmt.Errorf("%w: %v", perrors.ErrRateLimit, err)
	}
	var abuse *gogithub.AbuseRateLimitError
	if errors.As(err, &abuse) {
		c.exec.limiter.Observe(0, time.Now().Add(abuse.GetRetryAfter()))
		return fmt.Errorf("%w: %v", perrors.ErrRateLimit, err)
	}
	var er *gogithub.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		apiErr := &perrors.APIError{Service: "github", StatusCode: er.Response.StatusCode, Message: er.Message, Err: err}
		if er.Response.StatusCode == http.StatusNotFound {
			apiErr.Err = fmt.Errorf("%w: %v", perrors.ErrNotFound, err)
		}
		return apiErr
	}
	return err
}
