// Package source defines the upstream data-source contracts consumed by the
// aggregation services, and the raw payload shapes those sources return.
// Raw shapes are converted to the canonical domain model immediately after
// fetching and never leak past the normalizer.
package source

import "context"

// EventSource is the primary event-stream upstream (one page of repository
// events). A transport or status error is returned as a non-nil error so
// callers can distinguish "zero events" from "fetch failed".
type EventSource interface {
	FetchEvents(ctx context.Context, repo string, page int) ([]RawEvent, error)
}

// SearchPageSize is the page size of the query-based source. Callers treat
// a page shorter than this as the last one.
const SearchPageSize = 50

// SearchSource is the secondary query-based upstream. Issues and pull
// requests are first-class results; callers paginate until their time
// watermark passes or a short page is returned.
type SearchSource interface {
	SearchIssues(ctx context.Context, query string, page int) ([]RawItem, error)
}

// RunSource is the deploy-run upstream (workflow runs), best-effort only.
type RunSource interface {
	FetchRuns(ctx context.Context, repo string, limit int) ([]RawRun, error)
}

// TitleSource resolves a pull request number to its title, used by the
// backfill pass for events whose title came back empty.
type TitleSource interface {
	FetchPRTitle(ctx context.Context, repo string, number int) (string, error)
}

// CountSource answers count-style queries for the windowed metrics.
type CountSource interface {
	Count(ctx context.Context, query string) (int, error)
}

// ClientConfig holds common configuration for upstream clients.
type ClientConfig struct {
	BaseURL string
	Token   string
}
