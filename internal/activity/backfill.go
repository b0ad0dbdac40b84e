package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vilaca/agent-dashboard/internal/domain"
	"github.com/vilaca/agent-dashboard/internal/source"
)

// backfillConcurrency caps the number of in-flight title lookups.
const backfillConcurrency = 8

// Backfiller enriches events whose PR title came back empty from the event
// stream. Lookups are deduplicated per PR number and issued concurrently;
// resolved titles go into a permanent in-process cache since a merged PR's
// title no longer changes. A failed lookup leaves its events untouched.
type Backfiller struct {
	titles source.TitleSource
	repo   string
	cache  sync.Map // int -> string
	logger zerolog.Logger
}

// NewBackfiller creates a backfiller resolving titles against repo.
func NewBackfiller(titles source.TitleSource, repo string, logger zerolog.Logger) *Backfiller {
	return &Backfiller{
		titles: titles,
		repo:   repo,
		logger: logger.With().Str("component", "backfill").Logger(),
	}
}

// Backfill patches SubjectTitle in place for every PR event with an empty
// title, and rewrites the trailing "#<n>: " description placeholder to carry
// the fetched title. Only the end-of-string placeholder is touched, never
// mid-sentence text.
func (b *Backfiller) Backfill(ctx context.Context, events []domain.ActivityEvent) {
	numbers := make(map[int]bool)
	for _, ev := range events {
		if ev.SubjectType == domain.SubjectPR && ev.SubjectTitle == "" {
			numbers[ev.SubjectNumber] = true
		}
	}
	if len(numbers) == 0 {
		return
	}

	// Cached titles are collected before any lookup goroutine starts, so
	// the map is only written concurrently under mu.
	titles := make(map[int]string)
	var pending []int
	for number := range numbers {
		if cached, ok := b.cache.Load(number); ok {
			titles[number] = cached.(string)
		} else {
			pending = append(pending, number)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(backfillConcurrency)
	for _, number := range pending {
		g.Go(func() error {
			title, err := b.titles.FetchPRTitle(gctx, b.repo, number)
			if err != nil {
				// Per-number failures are non-fatal; the event keeps its
				// empty title rather than failing the request.
				b.logger.Warn().Err(err).Int("number", number).Msg("title lookup failed")
				return nil
			}
			if title == "" {
				return nil
			}
			b.cache.Store(number, title)
			mu.Lock()
			titles[number] = title
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // lookups never return errors, Wait only joins

	for i := range events {
		ev := &events[i]
		if ev.SubjectType != domain.SubjectPR || ev.SubjectTitle != "" {
			continue
		}
		title, ok := titles[ev.SubjectNumber]
		if !ok {
			continue
		}
		ev.SubjectTitle = title

		placeholder := fmt.Sprintf("#%d: ", ev.SubjectNumber)
		if len(ev.Description) >= len(placeholder) &&
			ev.Description[len(ev.Description)-len(placeholder):] == placeholder {
			ev.Description += title
		}
	}
}
