// Package activity assembles the activity feed: it orchestrates the
// primary, fallback and deploy-run sources, normalizes and merges their
// output, backfills missing titles and groups events into threads.
package activity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vilaca/agent-dashboard/internal/cache"
	"github.com/vilaca/agent-dashboard/internal/domain"
	"github.com/vilaca/agent-dashboard/internal/normalize"
	"github.com/vilaca/agent-dashboard/internal/source"
)

const (
	// fallbackWindow is how far back the query-based fallback source looks.
	fallbackWindow = 30 * 24 * time.Hour
	// fallbackMaxPages bounds fallback pagination.
	fallbackMaxPages = 10
	// runFetchLimit is how many deploy runs are pulled per repository.
	runFetchLimit = 10
)

// Service orchestrates the activity feed pipeline. Individual source
// failures degrade to "no data from this source"; the only outcome a caller
// can observe is a well-formed, possibly empty, event list.
type Service struct {
	events     source.EventSource
	search     source.SearchSource
	runs       source.RunSource
	normalizer *normalize.Normalizer
	backfiller *Backfiller
	cache      *cache.Cache
	repos      []string
	logger     zerolog.Logger

	// now is injected for deterministic tests.
	now func() time.Time
}

// NewService creates the activity service.
func NewService(
	events source.EventSource,
	search source.SearchSource,
	runs source.RunSource,
	normalizer *normalize.Normalizer,
	backfiller *Backfiller,
	c *cache.Cache,
	repos []string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		events:     events,
		search:     search,
		runs:       runs,
		normalizer: normalizer,
		backfiller: backfiller,
		cache:      c,
		repos:      repos,
		logger:     logger.With().Str("component", "activity").Logger(),
		now:        time.Now,
	}
}

// FlatActivity returns one page of the merged activity feed, newest first.
// Results come from cache when fresh; a fresh empty result is returned
// uncached so the next request retries the upstreams instead of pinning the
// empty page. Stale cache entries are deliberately not substituted on this
// path: an activity feed should show "currently nothing new" over silently
// stale content.
func (s *Service) FlatActivity(ctx context.Context, page, perPage int) []domain.ActivityEvent {
	key := fmt.Sprintf("activity:flat:%d:%d", page, perPage)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]domain.ActivityEvent)
	}

	events := s.assemble(ctx, page, perPage)
	if len(events) > 0 {
		s.cache.Set(key, events)
	}
	return events
}

// ThreadedActivity returns the feed grouped into conversation threads.
func (s *Service) ThreadedActivity(ctx context.Context, perPage int) []domain.FeedItem {
	return GroupThreads(s.FlatActivity(ctx, 1, perPage))
}

// assemble runs the three-stage pipeline: primary event streams plus deploy
// runs concurrently, then the search fallback if the primary produced
// nothing, then merge, sort, cap and backfill.
func (s *Service) assemble(ctx context.Context, page, perPage int) []domain.ActivityEvent {
	primary, deploys := s.fetchPrimaryAndRuns(ctx, page)

	sortByTimestampDesc(primary)
	if len(primary) > perPage {
		primary = primary[:perPage]
	}

	if len(primary) == 0 {
		primary = s.fetchFallback(ctx)
	}

	merged := append(primary, deploys...)
	sortByTimestampDesc(merged)
	if len(merged) > perPage {
		merged = merged[:perPage]
	}

	s.backfiller.Backfill(ctx, merged)
	return merged
}

// fetchPrimaryAndRuns fetches the per-repo event streams and deploy runs
// concurrently. One fetch failing never cancels or blocks the others; a
// failed repo simply contributes no events.
func (s *Service) fetchPrimaryAndRuns(ctx context.Context, page int) (primary, deploys []domain.ActivityEvent) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, repo := range s.repos {
		g.Go(func() error {
			raw, err := s.events.FetchEvents(gctx, repo, page)
			if err != nil {
				s.logger.Warn().Err(err).Str("repo", repo).Msg("event fetch failed")
				return nil
			}
			normalized := s.normalizer.NormalizeEvents(repo, raw)
			mu.Lock()
			primary = append(primary, normalized...)
			mu.Unlock()
			return nil
		})

		g.Go(func() error {
			raw, err := s.runs.FetchRuns(gctx, repo, runFetchLimit)
			if err != nil {
				s.logger.Warn().Err(err).Str("repo", repo).Msg("deploy run fetch failed")
				return nil
			}
			normalized := s.normalizer.NormalizeRuns(raw)
			mu.Lock()
			deploys = append(deploys, normalized...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // goroutines absorb their own errors
	return primary, deploys
}

// fetchFallback queries the secondary issue/PR source, paginating until the
// update-time watermark passes the fallback window or a short page signals
// the end of results.
func (s *Service) fetchFallback(ctx context.Context) []domain.ActivityEvent {
	watermark := s.now().Add(-fallbackWindow)

	var events []domain.ActivityEvent
	for _, repo := range s.repos {
		query := fmt.Sprintf("repo:%s updated:>=%s", repo, watermark.Format("2006-01-02"))

		for p := 1; p <= fallbackMaxPages; p++ {
			items, err := s.search.SearchIssues(ctx, query, p)
			if err != nil {
				s.logger.Warn().Err(err).Str("repo", repo).Msg("fallback search failed")
				break
			}
			if len(items) == 0 {
				break
			}

			events = append(events, s.normalizer.NormalizeSearchItems(items)...)

			// Results arrive most recently updated first, so once the last
			// item falls behind the watermark there is nothing left to page.
			if items[len(items)-1].UpdatedAt.Before(watermark) || len(items) < source.SearchPageSize {
				break
			}
		}
	}
	return events
}

func sortByTimestampDesc(events []domain.ActivityEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
