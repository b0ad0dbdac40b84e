package activity

import (
	"fmt"
	"sort"

	"github.com/vilaca/agent-dashboard/internal/domain"
)

// GroupThreads groups events sharing a subject into threads and leaves
// subject-less events as standalone items. Pure function, no I/O.
//
// Within a thread events are sorted ascending (conversation reading order)
// and the thread's latest timestamp is taken from the last element after
// sorting. The thread title is the first non-empty title in input order
// (not first-in-time), because upstream may deliver the titled creation
// event after an untitled comment event or vice versa. The top-level
// sequence is sorted descending by recency with a stable sort, so ties keep
// insertion order.
func GroupThreads(events []domain.ActivityEvent) []domain.FeedItem {
	threads := make(map[string]*domain.Thread)
	var order []domain.FeedItem

	for _, ev := range events {
		if !ev.HasSubject() {
			standalone := ev
			order = append(order, domain.FeedItem{Standalone: &standalone})
			continue
		}

		key := fmt.Sprintf("%s#%d", ev.SubjectType, ev.SubjectNumber)
		th, ok := threads[key]
		if !ok {
			th = &domain.Thread{
				SubjectType:   ev.SubjectType,
				SubjectNumber: ev.SubjectNumber,
			}
			threads[key] = th
			order = append(order, domain.FeedItem{Thread: th})
		}

		th.Events = append(th.Events, ev)
		if th.SubjectTitle == "" && ev.SubjectTitle != "" {
			th.SubjectTitle = ev.SubjectTitle
		}
	}

	for _, th := range threads {
		sort.SliceStable(th.Events, func(i, j int) bool {
			return th.Events[i].Timestamp.Before(th.Events[j].Timestamp)
		})
		th.LatestTimestamp = th.Events[len(th.Events)-1].Timestamp
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].Recency().After(order[j].Recency())
	})
	return order
}
