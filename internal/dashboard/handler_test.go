package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/agent-dashboard/internal/domain"
)

type fakeActivity struct {
	lastPage    int
	lastPerPage int
	events      []domain.ActivityEvent
	items       []domain.FeedItem
}

func (f *fakeActivity) FlatActivity(ctx context.Context, page, perPage int) []domain.ActivityEvent {
	f.lastPage = page
	f.lastPerPage = perPage
	return f.events
}

func (f *fakeActivity) ThreadedActivity(ctx context.Context, perPage int) []domain.FeedItem {
	f.lastPerPage = perPage
	return f.items
}

type fakeMetrics struct {
	windows  domain.WindowedMetrics
	snapshot domain.MetricsSnapshot
}

func (f *fakeMetrics) WindowedMetrics(ctx context.Context) domain.WindowedMetrics {
	return f.windows
}

func (f *fakeMetrics) AggregateMetrics(ctx context.Context) domain.MetricsSnapshot {
	return f.snapshot
}

func newTestRouter(act *fakeActivity, met *fakeMetrics) http.Handler {
	return NewHandler(act, met, zerolog.Nop()).Routes()
}

func doRequest(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestActivityEndpoint(t *testing.T) {
	// Arrange
	act := &fakeActivity{events: []domain.ActivityEvent{{
		ID:          "evt-1",
		Type:        domain.EventIssueCreated,
		Actor:       "builder",
		Description: "Opened issue #4: Timeouts on cold start",
		Timestamp:   time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}}}
	router := newTestRouter(act, &fakeMetrics{})

	// Act
	rec := doRequest(t, router, "/api/activity?page=2&per_page=10")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, 2, act.lastPage)
	assert.Equal(t, 10, act.lastPerPage)

	var body activityResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Page)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "evt-1", body.Events[0].ID)
}

func TestActivityEndpointClampsParams(t *testing.T) {
	// Arrange
	act := &fakeActivity{}
	router := newTestRouter(act, &fakeMetrics{})

	// Act
	doRequest(t, router, "/api/activity?page=0&per_page=9999")

	// Assert
	assert.Equal(t, 1, act.lastPage)
	assert.Equal(t, maxPerPage, act.lastPerPage)
}

func TestActivityEndpointDefaults(t *testing.T) {
	// Arrange
	act := &fakeActivity{}
	router := newTestRouter(act, &fakeMetrics{})

	// Act
	doRequest(t, router, "/api/activity?per_page=abc")

	// Assert
	assert.Equal(t, 1, act.lastPage)
	assert.Equal(t, defaultPerPage, act.lastPerPage)
}

func TestThreadsEndpoint(t *testing.T) {
	// Arrange
	act := &fakeActivity{items: []domain.FeedItem{
		{Thread: &domain.Thread{
			SubjectType:   domain.SubjectIssue,
			SubjectNumber: 4,
			SubjectTitle:  "Timeouts on cold start",
		}},
		{Standalone: &domain.ActivityEvent{ID: "evt-9", Type: domain.EventDeploy}},
	}}
	router := newTestRouter(act, &fakeMetrics{})

	// Act
	rec := doRequest(t, router, "/api/activity/threads")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)

	var body threadsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	require.NotNil(t, body.Items[0].Thread)
	assert.Equal(t, 4, body.Items[0].Thread.SubjectNumber)
	require.NotNil(t, body.Items[1].Standalone)
	assert.Equal(t, "evt-9", body.Items[1].Standalone.ID)
}

func TestWindowedMetricsEndpoint(t *testing.T) {
	// Arrange
	met := &fakeMetrics{windows: domain.WindowedMetrics{
		IssuesClosed: domain.WindowedCount{Day: 1, Week: 2, Month: 3},
	}}
	router := newTestRouter(&fakeActivity{}, met)

	// Act
	rec := doRequest(t, router, "/api/metrics/windows")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body["issues_closed"]["24h"])
	assert.Equal(t, 2, body["issues_closed"]["7d"])
	assert.Equal(t, 3, body["issues_closed"]["30d"])
}

func TestAggregateMetricsEndpoint(t *testing.T) {
	// Arrange
	met := &fakeMetrics{snapshot: domain.MetricsSnapshot{
		OpenIssues: 12,
		ByAgent:    map[string]domain.AgentStats{"builder": {Commits: 6}},
	}}
	router := newTestRouter(&fakeActivity{}, met)

	// Act
	rec := doRequest(t, router, "/api/metrics")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)

	var body domain.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 12, body.OpenIssues)
	assert.Equal(t, 6, body.ByAgent["builder"].Commits)
}

func TestHealthEndpoint(t *testing.T) {
	// Arrange
	router := newTestRouter(&fakeActivity{}, &fakeMetrics{})

	// Act
	rec := doRequest(t, router, "/healthz")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestUnknownRouteReturns404(t *testing.T) {
	// Arrange
	router := newTestRouter(&fakeActivity{}, &fakeMetrics{})

	// Act
	rec := doRequest(t, router, "/api/nope")

	// Assert
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
