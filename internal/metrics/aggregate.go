package metrics

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vilaca/agent-dashboard/internal/domain"
)

// issuesCategory is the issue portion of the aggregate snapshot.
type issuesCategory struct {
	open    int
	closed  domain.WindowedCount
	byAgent map[string]domain.AgentStats
}

// prsCategory is the pull request portion of the aggregate snapshot.
type prsCategory struct {
	open    int
	merged  domain.WindowedCount
	byAgent map[string]domain.AgentStats
}

// commitsCategory is the commit portion of the aggregate snapshot.
type commitsCategory struct {
	commits domain.WindowedCount
	byAgent map[string]domain.AgentStats
}

// AggregateMetrics assembles the full metrics snapshot. The three
// categories (issues, PRs, commits) are fetched concurrently and fail
// independently; a failed category is substituted from the stale cached
// snapshot, including its per-agent sub-fields, while the others stay
// fresh. Per-agent stats are merged role by role: roles present only in
// stale data are appended, roles present in both have only the failed
// category's fields overwritten.
func (s *Service) AggregateMetrics(ctx context.Context) domain.MetricsSnapshot {
	if cached, ok := s.cache.Get(keyAggregate); ok {
		return cached.(domain.MetricsSnapshot)
	}

	var (
		issues  issuesCategory
		prs     prsCategory
		commits commitsCategory

		issuesErr, prsErr, commitsErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		issues, issuesErr = s.fetchIssuesCategory(gctx)
		return nil
	})
	g.Go(func() error {
		prs, prsErr = s.fetchPRsCategory(gctx)
		return nil
	})
	g.Go(func() error {
		commits, commitsErr = s.fetchCommitsCategory(gctx)
		return nil
	})
	_ = g.Wait()

	snap := domain.MetricsSnapshot{
		OpenIssues:   issues.open,
		OpenPRs:      prs.open,
		IssuesClosed: issues.closed,
		PRsMerged:    prs.merged,
		Commits:      commits.commits,
		ByAgent:      make(map[string]domain.AgentStats),
	}
	mergeAgents(snap.ByAgent, issues.byAgent, prs.byAgent, commits.byAgent)

	stale, hasStale := s.staleSnapshot()
	if hasStale {
		if issuesErr != nil {
			s.logger.Warn().Err(issuesErr).Msg("issue category failed, substituting stale values")
			substituteIssues(&snap, stale)
		}
		if prsErr != nil {
			s.logger.Warn().Err(prsErr).Msg("PR category failed, substituting stale values")
			substitutePRs(&snap, stale)
		}
		if commitsErr != nil {
			s.logger.Warn().Err(commitsErr).Msg("commit category failed, substituting stale values")
			substituteCommits(&snap, stale)
		}
	}

	// A snapshot with no fresh category would only re-pin stale data under
	// a fresh TTL; leave it uncached.
	if issuesErr == nil || prsErr == nil || commitsErr == nil {
		s.cache.Set(keyAggregate, snap)
	}
	return snap
}

// fetchIssuesCategory fetches the issue counts. The open-issue count is the
// category sentinel: when it fails the whole category is considered failed.
// Sub-query failures inside a healthy category degrade to zero instead.
func (s *Service) fetchIssuesCategory(ctx context.Context) (issuesCategory, error) {
	cat := issuesCategory{byAgent: make(map[string]domain.AgentStats)}

	open, err := s.counts.Count(ctx, s.repoQualifier()+" type:issue is:open")
	if err != nil {
		return cat, fmt.Errorf("open issue count: %w", err)
	}
	cat.open = open
	cat.closed, _ = s.countWindows(ctx, s.repoQualifier()+" type:issue is:closed closed:>=%s")

	s.forEachActor(ctx, func(ctx context.Context, login, role string) domain.AgentStats {
		return domain.AgentStats{
			IssuesOpened: s.countOrZero(ctx, fmt.Sprintf("%s type:issue author:%s created:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
			IssuesClosed: s.countOrZero(ctx, fmt.Sprintf("%s type:issue author:%s is:closed closed:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
		}
	}, true, cat.byAgent)
	return cat, nil
}

// fetchPRsCategory fetches the pull request counts, sentinel is the open-PR
// count.
func (s *Service) fetchPRsCategory(ctx context.Context) (prsCategory, error) {
	cat := prsCategory{byAgent: make(map[string]domain.AgentStats)}

	open, err := s.counts.Count(ctx, s.repoQualifier()+" type:pr is:open")
	if err != nil {
		return cat, fmt.Errorf("open PR count: %w", err)
	}
	cat.open = open
	cat.merged, _ = s.mergedPRWindows(ctx)

	s.forEachActor(ctx, func(ctx context.Context, login, role string) domain.AgentStats {
		return domain.AgentStats{
			PRsOpened: s.countOrZero(ctx, fmt.Sprintf("%s type:pr author:%s created:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
			PRsMerged: s.countOrZero(ctx, fmt.Sprintf("%s type:pr author:%s is:merged merged:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
			Reviews: s.countOrZero(ctx, fmt.Sprintf("%s type:pr reviewed-by:%s updated:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
		}
	}, true, cat.byAgent)
	return cat, nil
}

// fetchCommitsCategory fetches the commit counts. The category fails when
// none of the three window queries succeeded.
func (s *Service) fetchCommitsCategory(ctx context.Context) (commitsCategory, error) {
	cat := commitsCategory{byAgent: make(map[string]domain.AgentStats)}

	windows, ok := s.countWindows(ctx, s.repoQualifier()+" author-date:>=%s")
	if !ok {
		return cat, fmt.Errorf("all commit window counts failed")
	}
	cat.commits = windows

	s.forEachActor(ctx, func(ctx context.Context, login, role string) domain.AgentStats {
		return domain.AgentStats{
			Commits: s.countOrZero(ctx, fmt.Sprintf("%s author:%s author-date:>=%s",
				s.repoQualifier(), login, s.monthCutoff())),
		}
	}, false, cat.byAgent)
	return cat, nil
}

// forEachActor runs fn concurrently for every tracked actor and accumulates
// the results by resolved role. interactive selects which operator role the
// attribution policy yields.
func (s *Service) forEachActor(
	ctx context.Context,
	fn func(ctx context.Context, login, role string) domain.AgentStats,
	interactive bool,
	out map[string]domain.AgentStats,
) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, login := range s.actors {
		role := s.normalizer.ResolveActor(login, interactive)
		g.Go(func() error {
			stats := fn(gctx, login, role)
			mu.Lock()
			addStats(out, role, stats)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// countOrZero degrades a failed sub-query to zero inside a healthy category.
func (s *Service) countOrZero(ctx context.Context, query string) int {
	n, err := s.counts.Count(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Str("query", query).Msg("per-agent count failed")
		return 0
	}
	return n
}

func (s *Service) monthCutoff() string {
	return s.now().Add(-windowMonth).UTC().Format("2006-01-02")
}

func (s *Service) staleSnapshot() (domain.MetricsSnapshot, bool) {
	v, ok := s.cache.GetStale(keyAggregate)
	if !ok {
		return domain.MetricsSnapshot{}, false
	}
	snap, ok := v.(domain.MetricsSnapshot)
	return snap, ok
}

func mergeAgents(out map[string]domain.AgentStats, parts ...map[string]domain.AgentStats) {
	for _, part := range parts {
		for role, stats := range part {
			addStats(out, role, stats)
		}
	}
}

func addStats(out map[string]domain.AgentStats, role string, stats domain.AgentStats) {
	cur := out[role]
	cur.IssuesOpened += stats.IssuesOpened
	cur.IssuesClosed += stats.IssuesClosed
	cur.PRsOpened += stats.PRsOpened
	cur.PRsMerged += stats.PRsMerged
	cur.Reviews += stats.Reviews
	cur.Commits += stats.Commits
	out[role] = cur
}

func substituteIssues(snap *domain.MetricsSnapshot, stale domain.MetricsSnapshot) {
	snap.OpenIssues = stale.OpenIssues
	snap.IssuesClosed = stale.IssuesClosed
	for role, st := range stale.ByAgent {
		cur := snap.ByAgent[role]
		cur.IssuesOpened = st.IssuesOpened
		cur.IssuesClosed = st.IssuesClosed
		snap.ByAgent[role] = cur
	}
}

func substitutePRs(snap *domain.MetricsSnapshot, stale domain.MetricsSnapshot) {
	snap.OpenPRs = stale.OpenPRs
	snap.PRsMerged = stale.PRsMerged
	for role, st := range stale.ByAgent {
		cur := snap.ByAgent[role]
		cur.PRsOpened = st.PRsOpened
		cur.PRsMerged = st.PRsMerged
		cur.Reviews = st.Reviews
		snap.ByAgent[role] = cur
	}
}

func substituteCommits(snap *domain.MetricsSnapshot, stale domain.MetricsSnapshot) {
	snap.Commits = stale.Commits
	for role, st := range stale.ByAgent {
		cur := snap.ByAgent[role]
		cur.Commits = st.Commits
		snap.ByAgent[role] = cur
	}
}
