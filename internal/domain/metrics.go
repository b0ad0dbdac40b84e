package domain

// WindowedCount is a cumulative count over the three trailing windows.
// Invariant: Day <= Week <= Month, enforced even when individual window
// fetches fail.
type WindowedCount struct {
	Day   int `json:"24h"`
	Week  int `json:"7d"`
	Month int `json:"30d"`
}

// Monotonic reports whether the cross-window invariant holds.
func (w WindowedCount) Monotonic() bool {
	return w.Day <= w.Week && w.Week <= w.Month
}

// WindowedMetrics holds the per-category windowed counts served by the
// metrics endpoint.
type WindowedMetrics struct {
	IssuesClosed WindowedCount `json:"issues_closed"`
	PRsMerged    WindowedCount `json:"prs_merged"`
	Commits      WindowedCount `json:"commits"`
}

// AgentStats counts per-role contributions over the reporting window.
type AgentStats struct {
	IssuesOpened int `json:"issues_opened"`
	IssuesClosed int `json:"issues_closed"`
	PRsOpened    int `json:"prs_opened"`
	PRsMerged    int `json:"prs_merged"`
	Reviews      int `json:"reviews"`
	Commits      int `json:"commits"`
}

// MetricsSnapshot is the full aggregate response. Built fresh per call;
// individual categories may be substituted from a stale snapshot when their
// fetch fails while the others succeed.
type MetricsSnapshot struct {
	OpenIssues   int                   `json:"open_issues"`
	OpenPRs      int                   `json:"open_prs"`
	IssuesClosed WindowedCount         `json:"issues_closed"`
	PRsMerged    WindowedCount         `json:"prs_merged"`
	Commits      WindowedCount         `json:"commits"`
	ByAgent      map[string]AgentStats `json:"by_agent"`
}
