package github

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/agent-dashboard/internal/source"
)

type fakeTransport struct {
	requests []*http.Request
	respond  func(req *http.Request) (*http.Response, error)
}

func (f *fakeTransport) Do(req *http.Request) (*http.Response, error) {
	f.requests = append(f.requests, req)
	return f.respond(req)
}

func jsonResponse(status int, body string) (*http.Response, error) {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func newTestClient(transport *fakeTransport) *Client {
	return NewClient(source.ClientConfig{
		BaseURL: "https://api.example.com",
		Token:   "test-token",
	}, transport, zerolog.Nop())
}

func TestFetchEvents(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `[
			{"id": "evt-1", "type": "IssuesEvent", "actor": {"login": "devbot"}},
			{"id": "evt-2", "type": "PushEvent", "actor": {"login": "alice"}}
		]`)
	}}
	client := newTestClient(transport)

	// Act
	events, err := client.FetchEvents(context.Background(), "acme/app", 2)

	// Assert
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Equal(t, "devbot", events[0].Actor.Login)

	require.Len(t, transport.requests, 1)
	req := transport.requests[0]
	assert.Equal(t, "https://api.example.com/repos/acme/app/events?per_page=100&page=2", req.URL.String())
	assert.Equal(t, "Bearer test-token", req.Header.Get("Authorization"))
	assert.Equal(t, "application/vnd.github+json", req.Header.Get("Accept"))
}

func TestSearchIssuesEscapesQuery(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"items": [{"number": 7, "state": "open"}]}`)
	}}
	client := newTestClient(transport)

	// Act
	items, err := client.SearchIssues(context.Background(), "repo:acme/app updated:>=2025-06-01", 1)

	// Assert
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Number)

	query := transport.requests[0].URL.Query()
	assert.Equal(t, "repo:acme/app updated:>=2025-06-01", query.Get("q"))
	assert.Equal(t, "updated", query.Get("sort"))
}

func TestFetchRuns(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"workflow_runs": [{"id": 42, "name": "deploy"}]}`)
	}}
	client := newTestClient(transport)

	// Act
	runs, err := client.FetchRuns(context.Background(), "acme/app", 10)

	// Assert
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(42), runs[0].ID)
	assert.Contains(t, transport.requests[0].URL.String(), "/repos/acme/app/actions/runs?per_page=10")
}

func TestFetchPRTitle(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"title": "Remove orphaned avatars"}`)
	}}
	client := newTestClient(transport)

	// Act
	title, err := client.FetchPRTitle(context.Background(), "acme/app", 177)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Remove orphaned avatars", title)
	assert.Contains(t, transport.requests[0].URL.Path, "/repos/acme/app/pulls/177")
}

func TestCountRoutesCommitQueries(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"total_count": 31}`)
	}}
	client := newTestClient(transport)

	// Act
	issues, err := client.Count(context.Background(), "repo:acme/app type:issue is:open")
	require.NoError(t, err)
	commits, err := client.Count(context.Background(), "repo:acme/app author-date:>=2025-06-01")
	require.NoError(t, err)

	// Assert
	assert.Equal(t, 31, issues)
	assert.Equal(t, 31, commits)
	assert.Equal(t, "/search/issues", transport.requests[0].URL.Path)
	assert.Equal(t, "/search/commits", transport.requests[1].URL.Path)
}

func TestNon200StatusReturnsError(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusForbidden, `{"message": "API rate limit exceeded"}`)
	}}
	client := newTestClient(transport)

	// Act
	_, err := client.FetchEvents(context.Background(), "acme/app", 1)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `upstream down`)
	}}
	client := newTestClient(transport)
	ctx := context.Background()

	// Act: five consecutive failures trip the breaker.
	for i := 0; i < 5; i++ {
		_, err := client.FetchEvents(ctx, "acme/app", 1)
		require.Error(t, err)
	}
	_, err := client.FetchEvents(ctx, "acme/app", 1)

	// Assert: the sixth call fails fast without reaching the transport.
	require.Error(t, err)
	assert.Len(t, transport.requests, 5)
}

func TestMalformedJSONReturnsError(t *testing.T) {
	// Arrange
	transport := &fakeTransport{respond: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{not json`)
	}}
	client := newTestClient(transport)

	// Act
	_, err := client.SearchIssues(context.Background(), "repo:acme/app", 1)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}
