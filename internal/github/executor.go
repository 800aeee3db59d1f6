package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/retry"
)

// CursorVar is the query variable ExecutePaginated advances between pages.
const CursorVar = "cursor"

// CallRecorder receives one observation per remote call.
type CallRecorder interface {
	RecordRemoteCall(kind, status string, seconds float64)
	SetRateLimitRemaining(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordRemoteCall(string, string, float64) {}
func (nopRecorder) SetRateLimitRemaining(int)                {}

// Executor issues GraphQL queries under the shared rate limiter.
type Executor struct {
	endpoint   string
	httpClient *http.Client
	limiter    *RateLimiter
	retry      retry.Config
	recorder   CallRecorder
	logger     zerolog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetry overrides how transient failures are absorbed.
func WithRetry(cfg retry.Config) ExecutorOption {
	return func(e *Executor) { e.retry = cfg }
}

// WithRecorder attaches call metrics.
func WithRecorder(r CallRecorder) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewExecutor returns an executor posting to the GraphQL endpoint derived from apiURL.
func NewExecutor(apiURL string, httpClient *http.Client, limiter *RateLimiter, logger zerolog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		endpoint:   GraphQLEndpoint(apiURL),
		httpClient: httpClient,
		limiter:    limiter,
		retry:      retry.DefaultConfig(),
		recorder:   nopRecorder{},
		logger:     logger.With().Str("component", "github.executor").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// GraphQLEndpoint maps a REST base URL to its GraphQL endpoint.
// https://api.github.com -> https://api.github.com/graphql,
// https://ghe.example.com/api/v3 -> https://ghe.example.com/api/graphql.
func GraphQLEndpoint(apiURL string) string {
	base := strings.TrimSuffix(apiURL, "/")
	base = strings.TrimSuffix(base, "/v3")
	return base + "/graphql"
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Execute runs one query and returns its data object. Transient failures
// (rate limiting, 5xx, timeouts) are absorbed by suspending and retrying;
// every other error is returned to the caller.
func (e *Executor) Execute(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	var data json.RawMessage
	err := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		var err error
		data, err = e.do(ctx, query, vars)
		if err != nil && perrors.IsRetryable(err) {
			e.logger.Warn().Err(err).Msg("transient GitHub error, retrying")
		}
		return err
	})
	return data, err
}

func (e *Executor) do(ctx context.Context, query string, vars map[string]any) (json.RawMessage, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/vnd.github+json")

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.recorder.RecordRemoteCall("graphql", "error", time.Since(start).Seconds())
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	e.limiter.ObserveHeaders(resp.Header)
	remaining, _ := e.limiter.Remaining()
	e.recorder.SetRateLimitRemaining(remaining)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recorder.RecordRemoteCall("graphql", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("read body: %w", err)
	}

	if err := classifyStatus(resp.StatusCode, resp.Header, raw); err != nil {
		e.recorder.RecordRemoteCall("graphql", "error", time.Since(start).Seconds())
		return nil, err
	}

	var gr graphQLResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		e.recorder.RecordRemoteCall("graphql", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Errors) > 0 {
		e.recorder.RecordRemoteCall("graphql", "error", time.Since(start).Seconds())
		return nil, graphQLErrors(gr.Errors)
	}
	e.recorder.RecordRemoteCall("graphql", "ok", time.Since(start).Seconds())
	return gr.Data, nil
}

// classifyTransport labels a failed round trip. Errors raised by the
// transport itself, such as an auth failure from the token source, keep
// their chain so callers can still recognise them.
func classifyTransport(err error) error {
	if errors.Is(err, perrors.ErrAuthFailure) || errors.Is(err, perrors.ErrConfiguration) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", perrors.ErrTimeout, err)
	}
	var apiErr *perrors.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%w: %w", perrors.ErrUnavailable, err)
}

func classifyStatus(status int, h http.Header, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized:
		return &perrors.APIError{Service: "github", StatusCode: status, Message: string(body), Err: perrors.ErrAuthFailure}
	case status == http.StatusTooManyRequests,
		status == http.StatusForbidden && (h.Get("X-RateLimit-Remaining") == "0" || h.Get("Retry-After") != ""):
		return &perrors.APIError{Service: "github", StatusCode: status, Message: "rate limited", Err: perrors.ErrRateLimit}
	default:
		return perrors.NewAPIError("github", status, truncate(string(body), 300))
	}
}

func graphQLErrors(errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	msg := strings.Join(msgs, "; ")
	switch errs[0].Type {
	case "NOT_FOUND":
		return fmt.Errorf("%w: %s", perrors.ErrNotFound, msg)
	case "RATE_LIMITED":
		return fmt.Errorf("%w: %s", perrors.ErrRateLimit, msg)
	}
	return perrors.NewAPIError("github", http.StatusOK, msg)
}

// PageInfo is the cursor state of a GraphQL connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type connection struct {
	Nodes    []json.RawMessage `json:"nodes"`
	PageInfo PageInfo          `json:"pageInfo"`
}

// ExecutePaginated runs query repeatedly, passing the previous page's end
// cursor as $cursor, and returns the nodes of the connection at path in
// arrival order. It stops when there are no more pages or once at least
// limit nodes have been collected (limit <= 0 means no limit). The limit is
// checked after each page, so the result may exceed it by less than a page.
func (e *Executor) ExecutePaginated(ctx context.Context, query string, vars map[string]any, path []string, limit int) ([]json.RawMessage, error) {
	pageVars := make(map[string]any, len(vars)+1)
	for k, v := range vars {
		pageVars[k] = v
	}
	pageVars[CursorVar] = nil

	var nodes []json.RawMessage
	for page := 1; ; page++ {
		data, err := e.Execute(ctx, query, pageVars)
		if err != nil {
			return nil, err
		}
		conn, err := connectionAt(data, path)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, conn.Nodes...)

		e.logger.Debug().
			Int("page", page).
			Int("page_nodes", len(conn.Nodes)).
			Int("total_nodes", len(nodes)).
			Bool("has_next", conn.PageInfo.HasNextPage).
			Msg("fetched page")

		if !conn.PageInfo.HasNextPage || conn.PageInfo.EndCursor == "" {
			break
		}
		if limit > 0 && len(nodes) >= limit {
			break
		}
		pageVars[CursorVar] = conn.PageInfo.EndCursor
	}
	return nodes, nil
}

// connectionAt walks data along path and decodes the connection there.
func connectionAt(data json.RawMessage, path []string) (connection, error) {
	cur := data
	for _, field := range path {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return connection{}, fmt.Errorf("decode %q: %w", field, err)
		}
		next, ok := obj[field]
		if !ok || string(next) == "null" {
			return connection{}, fmt.Errorf("%w: no %q in response", perrors.ErrNotFound, strings.Join(path, "."))
		}
		cur = next
	}
	var conn connection
	if err := json.Unmarshal(cur, &conn); err != nil {
		return connection{}, fmt.Errorf("decode connection %q: %w", strings.Join(path, "."), err)
	}
	return conn, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
