package domain

import "time"

// EventType identifies the kind of activity an event describes.
type EventType string

const (
	EventIssueCreated EventType = "issue_created"
	EventIssueClosed  EventType = "issue_closed"
	EventIssueLabeled EventType = "issue_labeled"
	EventPROpened     EventType = "pr_opened"
	EventPRMerged     EventType = "pr_merged"
	EventPRClosed     EventType = "pr_closed"
	EventPRReviewed   EventType = "pr_reviewed"
	EventCommit       EventType = "commit"
	EventComment      EventType = "comment"
	EventRelease      EventType = "release"
	EventDeploy       EventType = "deploy"
)

// Subject type constants. An event with a subject always carries both the
// type and the number; one without the other is a construction bug.
const (
	SubjectIssue = "issue"
	SubjectPR    = "pr"
)

// ActivityEvent is the canonical event model. Every upstream record is
// converted into this shape at the fetcher boundary; raw shapes never leak
// past normalization. Immutable once constructed, except for title backfill
// which patches SubjectTitle and Description in place.
type ActivityEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Actor       string    `json:"actor"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url,omitempty"`

	// Subject fields are set together or not at all.
	SubjectType   string `json:"subject_type,omitempty"`
	SubjectNumber int    `json:"subject_number,omitempty"`
	SubjectTitle  string `json:"subject_title,omitempty"`

	// Optional excerpt for comment-bearing events. CommentURL points at the
	// full text when the body was truncated.
	CommentBody string `json:"comment_body,omitempty"`
	CommentURL  string `json:"comment_url,omitempty"`

	// Only set for deploy-type events.
	DeployStatus string `json:"deploy_status,omitempty"`
}

// HasSubject reports whether the event belongs to a numbered issue or PR.
func (e ActivityEvent) HasSubject() bool {
	return e.SubjectType != "" && e.SubjectNumber > 0
}
