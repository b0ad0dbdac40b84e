package domain

import "time"

// Thread groups all events sharing one subject, in conversation reading
// order (oldest first). Threads are derived per request and never persisted.
type Thread struct {
	SubjectType   string          `json:"subject_type"`
	SubjectNumber int             `json:"subject_number"`
	SubjectTitle  string          `json:"subject_title,omitempty"`
	Events        []ActivityEvent `json:"events"`
	// LatestTimestamp is the timestamp of the last event after sorting,
	// never the first-seen event.
	LatestTimestamp time.Time `json:"latest_timestamp"`
}

// FeedItem is one entry of the threaded feed: either a thread or a single
// standalone event with no subject. Exactly one of the two fields is set.
type FeedItem struct {
	Thread     *Thread        `json:"thread,omitempty"`
	Standalone *ActivityEvent `json:"standalone,omitempty"`
}

// Recency is the ordering key for the top-level feed: a thread's latest
// timestamp, or the standalone event's own timestamp.
func (f FeedItem) Recency() time.Time {
	if f.Thread != nil {
		return f.Thread.LatestTimestamp
	}
	return f.Standalone.Timestamp
}
