package refresh

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/vilaca/agent-dashboard/internal/activity"
	"github.com/vilaca/agent-dashboard/internal/cache"
	"github.com/vilaca/agent-dashboard/internal/metrics"
	"github.com/vilaca/agent-dashboard/internal/normalize"
	"github.com/vilaca/agent-dashboard/internal/source"
)

type fakeSources struct {
	eventCalls atomic.Int32
	countCalls atomic.Int32
}

func (f *fakeSources) FetchEvents(ctx context.Context, repo string, page int) ([]source.RawEvent, error) {
	f.eventCalls.Add(1)
	actor := source.RawActor{Login: "devbot"}
	num := 1
	title := "Fix flaky retry"
	return []source.RawEvent{{
		ID:        "evt-1",
		Type:      "IssuesEvent",
		Actor:     actor,
		CreatedAt: time.Now().Add(-time.Hour),
		Payload: source.RawPayload{
			Action: "opened",
			Issue:  &source.RawIssue{Number: num, Title: &title},
		},
	}}, nil
}

func (f *fakeSources) SearchIssues(ctx context.Context, query string, page int) ([]source.RawItem, error) {
	return nil, nil
}

func (f *fakeSources) FetchRuns(ctx context.Context, repo string, limit int) ([]source.RawRun, error) {
	return nil, nil
}

func (f *fakeSources) FetchPRTitle(ctx context.Context, repo string, number int) (string, error) {
	return "", nil
}

func (f *fakeSources) Count(ctx context.Context, query string) (int, error) {
	f.countCalls.Add(1)
	return 1, nil
}

func newTestRefresher(src *fakeSources) *Refresher {
	n := normalize.New(normalize.Config{})
	logger := zerolog.Nop()
	repos := []string{"acme/app"}

	backfiller := activity.NewBackfiller(src, "acme/app", logger)
	act := activity.NewService(src, src, src, n, backfiller,
		cache.New("activity", time.Minute, 8), repos, logger)
	met := metrics.NewService(src, src, n,
		cache.New("metrics", time.Minute, 8), repos, nil, logger)

	return New(act, met, time.Minute, logger)
}

func TestWarmPopulatesCaches(t *testing.T) {
	// Arrange
	src := &fakeSources{}
	r := newTestRefresher(src)

	// Act
	r.warm()
	eventCalls := src.eventCalls.Load()
	countCalls := src.countCalls.Load()
	r.warm()

	// Assert: the second cycle is served entirely from fresh caches.
	assert.Positive(t, eventCalls)
	assert.Positive(t, countCalls)
	assert.Equal(t, eventCalls, src.eventCalls.Load())
	assert.Equal(t, countCalls, src.countCalls.Load())
}

func TestStartStopIdempotent(t *testing.T) {
	// Arrange
	r := newTestRefresher(&fakeSources{})

	// Act
	r.Start()
	r.Start()
	r.Stop()
	r.Stop()

	// Assert: reaching here without deadlock or panic is the contract.
	assert.False(t, r.running)
}
