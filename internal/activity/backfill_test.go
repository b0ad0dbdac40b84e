package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vilaca/agent-dashboard/internal/domain"
)

// fakeTitleSource resolves PR titles from a fixed map and records lookups.
type fakeTitleSource struct {
	mu     sync.Mutex
	titles map[int]string
	err    error
	calls  []int
}

func (f *fakeTitleSource) FetchPRTitle(ctx context.Context, repo string, number int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, number)
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	return f.titles[number], nil
}

func TestBackfillRoundTrip(t *testing.T) {
	// Arrange
	titles := &fakeTitleSource{titles: map[int]string{177: "Remove orphaned avatars"}}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	events := []domain.ActivityEvent{{
		ID:            "1",
		Type:          domain.EventPRMerged,
		Description:   "Merged PR #177: ",
		SubjectType:   domain.SubjectPR,
		SubjectNumber: 177,
		SubjectTitle:  "",
	}}

	// Act
	b.Backfill(context.Background(), events)

	// Assert
	assert.Equal(t, "Remove orphaned avatars", events[0].SubjectTitle)
	assert.Equal(t, "Merged PR #177: Remove orphaned avatars", events[0].Description)
}

func TestBackfillFailureLeavesEventUntouched(t *testing.T) {
	// Arrange
	titles := &fakeTitleSource{err: errors.New("boom")}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	events := []domain.ActivityEvent{{
		ID:            "1",
		Description:   "Merged PR #177: ",
		SubjectType:   domain.SubjectPR,
		SubjectNumber: 177,
	}}

	// Act
	b.Backfill(context.Background(), events)

	// Assert
	assert.Equal(t, "", events[0].SubjectTitle)
	assert.Equal(t, "Merged PR #177: ", events[0].Description)
}

func TestBackfillOnlyRewritesTrailingPlaceholder(t *testing.T) {
	// Arrange: the PR number appears mid-sentence, not as a trailing placeholder
	titles := &fakeTitleSource{titles: map[int]string{9: "A title"}}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	events := []domain.ActivityEvent{{
		ID:            "1",
		Description:   "Commented on PR #9: see notes",
		SubjectType:   domain.SubjectPR,
		SubjectNumber: 9,
	}}

	// Act
	b.Backfill(context.Background(), events)

	// Assert: title patched, description untouched
	assert.Equal(t, "A title", events[0].SubjectTitle)
	assert.Equal(t, "Commented on PR #9: see notes", events[0].Description)
}

func TestBackfillDeduplicatesLookups(t *testing.T) {
	// Arrange: three events about the same PR
	titles := &fakeTitleSource{titles: map[int]string{5: "Shared"}}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	events := []domain.ActivityEvent{
		{ID: "1", Description: "Opened PR #5: ", SubjectType: domain.SubjectPR, SubjectNumber: 5},
		{ID: "2", Description: "Reviewed PR #5: ", SubjectType: domain.SubjectPR, SubjectNumber: 5},
		{ID: "3", Description: "Merged PR #5: ", SubjectType: domain.SubjectPR, SubjectNumber: 5},
	}

	// Act
	b.Backfill(context.Background(), events)

	// Assert: one upstream lookup, all three events patched
	require.Len(t, titles.calls, 1)
	for _, ev := range events {
		assert.Equal(t, "Shared", ev.SubjectTitle)
	}
}

func TestBackfillUsesPermanentTitleCache(t *testing.T) {
	// Arrange
	titles := &fakeTitleSource{titles: map[int]string{5: "Cached"}}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	first := []domain.ActivityEvent{
		{ID: "1", Description: "Merged PR #5: ", SubjectType: domain.SubjectPR, SubjectNumber: 5},
	}
	second := []domain.ActivityEvent{
		{ID: "2", Description: "Reviewed PR #5: ", SubjectType: domain.SubjectPR, SubjectNumber: 5},
	}

	// Act
	b.Backfill(context.Background(), first)
	b.Backfill(context.Background(), second)

	// Assert: merged PR titles are immutable, the second pass hits the cache
	require.Len(t, titles.calls, 1)
	assert.Equal(t, "Cached", second[0].SubjectTitle)
}

func TestBackfillMixedCachedAndUncachedPage(t *testing.T) {
	// Arrange: one page mixing many cache-resolved numbers with numbers
	// that still need a concurrent lookup.
	lookup := make(map[int]string)
	var events []domain.ActivityEvent
	titles := &fakeTitleSource{}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())

	for n := 1; n <= 64; n++ {
		b.cache.Store(n, fmt.Sprintf("Cached title %d", n))
		events = append(events, domain.ActivityEvent{
			ID:            fmt.Sprintf("c-%d", n),
			Description:   fmt.Sprintf("Merged PR #%d: ", n),
			SubjectType:   domain.SubjectPR,
			SubjectNumber: n,
		})
	}
	for n := 100; n < 132; n++ {
		lookup[n] = fmt.Sprintf("Fetched title %d", n)
		events = append(events, domain.ActivityEvent{
			ID:            fmt.Sprintf("u-%d", n),
			Description:   fmt.Sprintf("Merged PR #%d: ", n),
			SubjectType:   domain.SubjectPR,
			SubjectNumber: n,
		})
	}
	titles.titles = lookup

	// Act
	b.Backfill(context.Background(), events)

	// Assert: only uncached numbers hit the source, every event is patched
	require.Len(t, titles.calls, len(lookup))
	for _, ev := range events {
		assert.NotEmpty(t, ev.SubjectTitle, "event %s missing title", ev.ID)
		assert.Equal(t, "Merged PR #"+
			fmt.Sprint(ev.SubjectNumber)+": "+ev.SubjectTitle, ev.Description)
	}
}

func TestBackfillSkipsIssuesAndTitledEvents(t *testing.T) {
	// Arrange
	titles := &fakeTitleSource{titles: map[int]string{1: "X", 2: "Y"}}
	b := NewBackfiller(titles, "org/repo", zerolog.Nop())
	events := []domain.ActivityEvent{
		// issues are never backfilled
		{ID: "1", SubjectType: domain.SubjectIssue, SubjectNumber: 1},
		// already titled
		{ID: "2", SubjectType: domain.SubjectPR, SubjectNumber: 2, SubjectTitle: "Y"},
	}

	// Act
	b.Backfill(context.Background(), events)

	// Assert
	assert.Empty(t, titles.calls)
}
