// Package refresh keeps the activity and metrics caches warm so that most
// dashboard requests are served without waiting on upstream calls.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vilaca/agent-dashboard/internal/activity"
	"github.com/vilaca/agent-dashboard/internal/metrics"
)

// startupDelay lets the HTTP server come up before the first warm-up fetch.
const startupDelay = 2 * time.Second

// defaultWarmPageSize is the activity page size pre-fetched on each cycle,
// matching the dashboard's default page.
const defaultWarmPageSize = 30

// Refresher periodically re-runs the expensive aggregation paths. It relies
// on the services' own caching: a warm-up call that lands while the cache is
// still fresh is a cheap no-op.
type Refresher struct {
	activity *activity.Service
	metrics  *metrics.Service
	interval time.Duration
	logger   zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// New creates a refresher for the given services.
func New(act *activity.Service, met *metrics.Service, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		activity: act,
		metrics:  met,
		interval: interval,
		logger:   logger.With().Str("component", "refresher").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the refresh loop. Non-blocking; safe to call once.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.logger.Info().Dur("interval", r.interval).Msg("starting")
	r.wg.Add(1)
	go r.loop()
}

// Stop shuts the loop down and waits for an in-flight cycle to finish.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	r.logger.Info().Msg("stopped")
}

func (r *Refresher) loop() {
	defer r.wg.Done()

	select {
	case <-time.After(startupDelay):
	case <-r.stopChan:
		return
	}
	r.warm()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.warm()
		case <-r.stopChan:
			return
		}
	}
}

// warm runs every cached read path once. Errors are already handled (and
// logged) inside the services; a failed cycle leaves the previous cache
// entries in place.
func (r *Refresher) warm() {
	ctx := context.Background()
	start := time.Now()

	events := r.activity.FlatActivity(ctx, 1, defaultWarmPageSize)
	r.metrics.WindowedMetrics(ctx)
	r.metrics.AggregateMetrics(ctx)

	r.logger.Info().
		Int("events", len(events)).
		Dur("took", time.Since(start)).
		Msg("caches warmed")
}
