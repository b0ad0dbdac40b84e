// Package github implements the upstream source contracts against the
// GitHub REST API: repository events, issue search, workflow runs, pull
// request titles and search counts.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vilaca/agent-dashboard/internal/source"
	"github.com/vilaca/agent-dashboard/internal/telemetry"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 10 * time.Second
	perPageEvents  = 100
)

// HTTPClient is the minimal HTTP surface the client needs (mockable in tests).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the GitHub REST API. Every call carries its own timeout,
// passes through a shared rate limiter, and is guarded by a circuit breaker
// so a flapping upstream fails fast instead of piling up blocked requests.
type Client struct {
	baseURL    string
	token      string
	httpClient HTTPClient
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	timeout    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a GitHub client.
func NewClient(config source.ClientConfig, httpClient HTTPClient, logger zerolog.Logger) *Client {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	settings := gobreaker.Settings{
		Name:    "github",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(5), 10),
		breaker:    gobreaker.NewCircuitBreaker[[]byte](settings),
		timeout:    defaultTimeout,
		logger:     logger.With().Str("component", "github").Logger(),
	}
}

// FetchEvents retrieves one page of the repository event stream.
func (c *Client) FetchEvents(ctx context.Context, repo string, page int) ([]source.RawEvent, error) {
	u := fmt.Sprintf("%s/repos/%s/events?per_page=%d&page=%d", c.baseURL, repo, perPageEvents, page)

	var events []source.RawEvent
	if err := c.doRequest(ctx, "events", u, &events); err != nil {
		return nil, fmt.Errorf("failed to get repository events: %w", err)
	}
	return events, nil
}

// SearchIssues retrieves one page of issue/PR search results, most recently
// updated first.
func (c *Client) SearchIssues(ctx context.Context, query string, page int) ([]source.RawItem, error) {
	u := fmt.Sprintf("%s/search/issues?q=%s&sort=updated&order=desc&per_page=%d&page=%d",
		c.baseURL, url.QueryEscape(query), source.SearchPageSize, page)

	var response struct {
		Items []source.RawItem `json:"items"`
	}
	if err := c.doRequest(ctx, "search", u, &response); err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	return response.Items, nil
}

// FetchRuns retrieves the most recent workflow runs for a repository.
func (c *Client) FetchRuns(ctx context.Context, repo string, limit int) ([]source.RawRun, error) {
	u := fmt.Sprintf("%s/repos/%s/actions/runs?per_page=%d", c.baseURL, repo, limit)

	var response struct {
		WorkflowRuns []source.RawRun `json:"workflow_runs"`
	}
	if err := c.doRequest(ctx, "runs", u, &response); err != nil {
		return nil, fmt.Errorf("failed to get workflow runs: %w", err)
	}
	return response.WorkflowRuns, nil
}

// FetchPRTitle resolves a pull request number to its title.
func (c *Client) FetchPRTitle(ctx context.Context, repo string, number int) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/pulls/%d", c.baseURL, repo, number)

	var response struct {
		Title string `json:"title"`
	}
	if err := c.doRequest(ctx, "title", u, &response); err != nil {
		return "", fmt.Errorf("failed to get pull request #%d: %w", number, err)
	}
	return response.Title, nil
}

// Count answers a count-style search query. Commit queries are recognized by
// their date qualifier and routed to the commit search endpoint; everything
// else goes through issue search.
func (c *Client) Count(ctx context.Context, query string) (int, error) {
	endpoint := "/search/issues"
	if strings.Contains(query, "committer-date:") || strings.Contains(query, "author-date:") {
		endpoint = "/search/commits"
	}
	u := fmt.Sprintf("%s%s?q=%s&per_page=1", c.baseURL, endpoint, url.QueryEscape(query))

	var response struct {
		TotalCount int `json:"total_count"`
	}
	if err := c.doRequest(ctx, "count", u, &response); err != nil {
		return 0, fmt.Errorf("failed to count %q: %w", query, err)
	}
	return response.TotalCount, nil
}

// doRequest performs a rate-limited, breaker-guarded GET and decodes the
// JSON response into result.
func (c *Client) doRequest(ctx context.Context, operation, url string, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetch(ctx, url)
	})
	if err != nil {
		telemetry.UpstreamRequests.WithLabelValues(operation, "error").Inc()
		return err
	}
	telemetry.UpstreamRequests.WithLabelValues(operation, "ok").Inc()

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// fetch performs the raw HTTP GET with the per-call timeout applied.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
