// Package metrics computes the windowed and aggregate dashboard metrics.
// Window counts are fetched independently per window and repaired into a
// monotonic triple; the aggregate snapshot substitutes stale cached values
// for categories whose fetch failed outright, so a transient single-category
// outage never zeroes a previously populated dashboard metric.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vilaca/agent-dashboard/internal/cache"
	"github.com/vilaca/agent-dashboard/internal/domain"
	"github.com/vilaca/agent-dashboard/internal/normalize"
	"github.com/vilaca/agent-dashboard/internal/source"
)

const (
	windowDay   = 24 * time.Hour
	windowWeek  = 7 * 24 * time.Hour
	windowMonth = 30 * 24 * time.Hour

	// mergedFetchMaxPages bounds the wide merged-PR fetch.
	mergedFetchMaxPages = 10

	keyWindows   = "metrics:windows"
	keyAggregate = "metrics:aggregate"
)

// Service answers the metrics queries.
type Service struct {
	counts     source.CountSource
	search     source.SearchSource
	normalizer *normalize.Normalizer
	cache      *cache.Cache
	repos      []string
	actors     []string // logins tracked in the by-agent breakdown
	logger     zerolog.Logger

	// now is injected for deterministic tests.
	now func() time.Time
}

// NewService creates the metrics service. actors lists the account logins
// tracked in the per-agent breakdown; their role attribution follows the
// normalizer's policy.
func NewService(
	counts source.CountSource,
	search source.SearchSource,
	normalizer *normalize.Normalizer,
	c *cache.Cache,
	repos []string,
	actors []string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		counts:     counts,
		search:     search,
		normalizer: normalizer,
		cache:      c,
		repos:      repos,
		actors:     actors,
		logger:     logger.With().Str("component", "metrics").Logger(),
		now:        time.Now,
	}
}

// WindowedMetrics returns the 24h/7d/30d counts for issues closed, PRs
// merged and commits. Issue and commit windows come from three independent
// count queries each, run through the monotonicity repair. Merged-PR counts
// are derived from one wide 30-day fetch filtered per window boundary,
// because the upstream merged-PR count query is unreliable for narrow
// windows.
func (s *Service) WindowedMetrics(ctx context.Context) domain.WindowedMetrics {
	if cached, ok := s.cache.Get(keyWindows); ok {
		return cached.(domain.WindowedMetrics)
	}

	var (
		issues  domain.WindowedCount
		commits domain.WindowedCount
		merged  domain.WindowedCount

		issuesOK, commitsOK, mergedOK bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		issues, issuesOK = s.countWindows(gctx, s.repoQualifier()+" type:issue is:closed closed:>=%s")
		return nil
	})
	g.Go(func() error {
		commits, commitsOK = s.countWindows(gctx, s.repoQualifier()+" author-date:>=%s")
		return nil
	})
	g.Go(func() error {
		merged, mergedOK = s.mergedPRWindows(gctx)
		return nil
	})
	_ = g.Wait()

	result := domain.WindowedMetrics{
		IssuesClosed: issues,
		PRsMerged:    merged,
		Commits:      commits,
	}

	// Caching a snapshot where every fetch failed would pin zeros for a
	// full TTL; leave it uncached so the next request retries.
	if issuesOK || commitsOK || mergedOK {
		s.cache.Set(keyWindows, result)
	}
	return result
}

// countWindows issues the three window count queries concurrently.
// queryFmt carries one %s verb for the window cutoff. The second return
// reports whether at least one window was fetched.
func (s *Service) countWindows(ctx context.Context, queryFmt string) (domain.WindowedCount, bool) {
	now := s.now()
	samples := make([]sample, 3)

	g, gctx := errgroup.WithContext(ctx)
	for i, window := range []time.Duration{windowDay, windowWeek, windowMonth} {
		g.Go(func() error {
			query := fmt.Sprintf(queryFmt, now.Add(-window).UTC().Format(time.RFC3339))
			n, err := s.counts.Count(gctx, query)
			if err != nil {
				s.logger.Warn().Err(err).Str("query", query).Msg("count query failed")
				return nil // unknown, repaired later
			}
			samples[i] = known(n)
			return nil
		})
	}
	_ = g.Wait()

	anyKnown := samples[0].known || samples[1].known || samples[2].known
	return repairWindows(samples[0], samples[1], samples[2]), anyKnown
}

// mergedPRWindows fetches merged PRs of the last 30 days once and counts
// window membership client-side from the merge timestamps.
func (s *Service) mergedPRWindows(ctx context.Context) (domain.WindowedCount, bool) {
	now := s.now()
	cutoff := now.Add(-windowMonth)
	query := fmt.Sprintf("%s type:pr is:merged merged:>=%s",
		s.repoQualifier(), cutoff.UTC().Format("2006-01-02"))

	var result domain.WindowedCount
	fetched := false

	for page := 1; page <= mergedFetchMaxPages; page++ {
		items, err := s.search.SearchIssues(ctx, query, page)
		if err != nil {
			s.logger.Warn().Err(err).Msg("merged PR fetch failed")
			break
		}
		fetched = true
		if len(items) == 0 {
			break
		}

		for _, item := range items {
			if item.PullRequest == nil || item.PullRequest.MergedAt == nil {
				continue
			}
			mergedAt := *item.PullRequest.MergedAt
			if mergedAt.Before(cutoff) {
				continue
			}
			result.Month++
			if mergedAt.After(now.Add(-windowWeek)) {
				result.Week++
			}
			if mergedAt.After(now.Add(-windowDay)) {
				result.Day++
			}
		}

		if len(items) < source.SearchPageSize {
			break
		}
	}
	return result, fetched
}

func (s *Service) repoQualifier() string {
	parts := make([]string, len(s.repos))
	for i, repo := range s.repos {
		parts[i] = "repo:" + repo
	}
	return strings.Join(parts, " ")
}
