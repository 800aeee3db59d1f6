package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/internal/retry"
)

func testRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestExecutor(t *testing.T, url string, limiter *RateLimiter) *Executor {
	t.Helper()
	if limiter == nil {
		limiter = NewRateLimiter(0, 5000)
	}
	return NewExecutor(url, http.DefaultClient, limiter, zerolog.Nop(), WithRetry(testRetry()))
}

func decodeRequest(t *testing.T, r *http.Request) graphQLRequest {
	t.Helper()
	var req graphQLRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}

func TestGraphQLEndpoint(t *testing.T) {
	assert.Equal(t, "https://api.github.com/graphql", GraphQLEndpoint("https://api.github.com"))
	assert.Equal(t, "https://api.github.com/graphql", GraphQLEndpoint("https://api.github.com/"))
	assert.Equal(t, "https://ghe.example.com/api/graphql", GraphQLEndpoint("https://ghe.example.com/api/v3"))
}

func TestExecute_ReturnsData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graphql", r.URL.Path)
		req := decodeRequest(t, r)
		assert.Equal(t, "acme", req.Variables["owner"])
		fmt.Fprint(w, `{"data":{"viewer":{"login":"octocat"}}}`)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv.URL, nil)
	data, err := exec.Execute(context.Background(), "query { viewer { login } }", map[string]any{"owner": "acme"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"viewer":{"login":"octocat"}}`, string(data))
}

func pageServer(t *testing.T, pages int, perPage int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		n := int(atomic.AddInt32(calls, 1))

		cursor, _ := req.Variables[CursorVar].(string)
		if n == 1 {
			assert.Nil(t, req.Variables[CursorVar], "first page has no cursor")
		} else {
			assert.Equal(t, fmt.Sprintf("c%d", n-1), cursor)
		}

		nodes := make([]map[string]int, 0, perPage)
		for i := 0; i < perPage; i++ {
			nodes = append(nodes, map[string]int{"id": (n-1)*perPage + i})
		}
		resp := map[string]any{
			"data": map[string]any{
				"search": map[string]any{
					"nodes":    nodes,
					"pageInfo": map[string]any{"hasNextPage": n < pages, "endCursor": fmt.Sprintf("c%d", n)},
				},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func nodeIDs(t *testing.T, nodes []json.RawMessage) []int {
	t.Helper()
	ids := make([]int, 0, len(nodes))
	for _, raw := range nodes {
		var n struct {
			ID int `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &n))
		ids = append(ids, n.ID)
	}
	return ids
}

func TestExecutePaginated_AllPages(t *testing.T) {
	var calls int32
	srv := pageServer(t, 3, 2, &calls)
	defer srv.Close()

	exec := newTestExecutor(t, srv.URL, nil)
	nodes, err := exec.ExecutePaginated(context.Background(), searchQuery, map[string]any{"q": "x"}, []string{"search"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, nodeIDs(t, nodes), "every page, in arrival order")
	assert.Equal(t, int32(3), calls)
}

func TestExecutePaginated_Limit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantNodes int
		wantCalls int32
	}{
		{name: "limit within first page", limit: 2, wantNodes: 2, wantCalls: 1},
		{name: "limit checked after each page", limit: 3, wantNodes: 4, wantCalls: 2},
		{name: "limit beyond results", limit: 100, wantNodes: 6, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := pageServer(t, 3, 2, &calls)
			defer srv.Close()

			exec := newTestExecutor(t, srv.URL, nil)
			nodes, err := exec.ExecutePaginated(context.Background(), searchQuery, nil, []string{"search"}, tt.limit)
			require.NoError(t, err)
			assert.Len(t, nodes, tt.wantNodes)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestExecutePaginated_MissingConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"search":null}}`)
	}))
	defer srv.Close()

	exec := newTestExecutor(t, srv.URL, nil)
	_, err := exec.ExecutePaginated(context.Background(), searchQuery, nil, []string{"search"}, 0)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestExecute_SuspendsOnExhaustedQuota(t *testing.T) {
	clock := newFakeClock()
	reset := clock.t.Add(2 * time.Minute)
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
		}
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	limiter := NewRateLimiter(0, 5000, WithClock(clock.now, clock.sleep))
	exec := newTestExecutor(t, srv.URL, limiter)

	_, err := exec.Execute(context.Background(), "query {}", nil)
	require.NoError(t, err)
	assert.Empty(t, clock.sleeps)

	_, err = exec.Execute(context.Background(), "query {}", nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Minute}, clock.sleeps, "second call waits for the reset instant")
}

func TestExecute_RetriesRateLimited(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"data":{"ok":true}}`)
	}))
	defer srv.Close()

	limiter := NewRateLimiter(0, 5000, WithClock(clock.now, clock.sleep))
	exec := newTestExecutor(t, srv.URL, limiter)

	data, err := exec.Execute(context.Background(), "query {}", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.Equal(t, int32(2), calls)
	assert.Contains(t, clock.sleeps, 30*time.Second)
}

func TestExecute_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		wantCalls int32
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"Bad credentials"}`, wantErr: perrors.ErrAuthFailure, wantCalls: 1},
		{name: "graphql not found", status: http.StatusOK, body: `{"errors":[{"type":"NOT_FOUND","message":"Could not resolve"}]}`, wantErr: perrors.ErrNotFound, wantCalls: 1},
		{name: "server error retried", status: http.StatusBadGateway, body: `oops`, wantCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			exec := newTestExecutor(t, srv.URL, nil)
			_, err := exec.Execute(context.Background(), "query {}", nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

type failingTokenSource struct {
	calls int32
	err   error
}

func (s *failingTokenSource) Token(context.Context) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return "", s.err
}

func TestExecute_TokenAuthFailureIsNotRetried(t *testing.T) {
	var served int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&served, 1)
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	source := &failingTokenSource{err: &perrors.APIError{Service: "github", StatusCode: 401, Message: "bad JWT", Err: perrors.ErrAuthFailure}}
	exec := NewExecutor(srv.URL, NewHTTPClient(source, time.Second), NewRateLimiter(0, 5000), zerolog.Nop(), WithRetry(testRetry()))

	_, err := exec.Execute(context.Background(), "query {}", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrAuthFailure)
	assert.NotErrorIs(t, err, perrors.ErrTimeout)
	assert.False(t, perrors.IsRetryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls), "auth failures are not retried")
	assert.Zero(t, atomic.LoadInt32(&served))
}

func TestClassifyTransport(t *testing.T) {
	timeout := &net.DNSError{Err: "i/o timeout", IsTimeout: true}
	assert.ErrorIs(t, classifyTransport(timeout), perrors.ErrTimeout)

	refused := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	err := classifyTransport(refused)
	assert.ErrorIs(t, err, perrors.ErrUnavailable)
	assert.True(t, perrors.IsRetryable(err))

	auth := fmt.Errorf("token: %w", perrors.ErrAuthFailure)
	assert.Same(t, auth, classifyTransport(auth))
}

type recordedCall struct {
	kind, status string
}

type fakeRecorder struct {
	calls     []recordedCall
	remaining int
}

func (f *fakeRecorder) RecordRemoteCall(kind, status string, _ float64) {
	f.calls = append(f.calls, recordedCall{kind, status})
}

func (f *fakeRecorder) SetRateLimitRemaining(n int) { f.remaining = n }

func TestExecute_RecordsCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4321")
		fmt.Fprint(w, `{"data":{}}`)
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	exec := NewExecutor(srv.URL, http.DefaultClient, NewRateLimiter(0, 5000), zerolog.Nop(), WithRecorder(rec))
	_, err := exec.Execute(context.Background(), "query {}", nil)
	require.NoError(t, err)
	assert.Equal(t, []recordedCall{{"graphql", "ok"}}, rec.calls)
	assert.Equal(t, 4321, rec.remaining)
}
