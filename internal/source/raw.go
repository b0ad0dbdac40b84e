package source

import "time"

// RawEvent is one record from the repository event stream.
type RawEvent struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Actor     RawActor   `json:"actor"`
	Payload   RawPayload `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
}

// RawActor is the account that triggered an event.
type RawActor struct {
	Login string `json:"login"`
}

// RawPayload carries the type-specific portion of an event. Only the fields
// relevant to the triggering event type are populated.
type RawPayload struct {
	Action      string      `json:"action,omitempty"`
	Issue       *RawIssue   `json:"issue,omitempty"`
	PullRequest *RawPull    `json:"pull_request,omitempty"`
	Label       *RawLabel   `json:"label,omitempty"`
	Comment     *RawComment `json:"comment,omitempty"`
	Review      *RawReview  `json:"review,omitempty"`
	Commits     []RawCommit `json:"commits,omitempty"`
	Release     *RawRelease `json:"release,omitempty"`
	Ref         string      `json:"ref,omitempty"`
}

// RawIssue is the issue attached to an event. Title may be null upstream.
// PullRequest is non-nil when the "issue" is actually a pull request, which
// is how comment events on PRs arrive.
type RawIssue struct {
	Number      int          `json:"number"`
	Title       *string      `json:"title"`
	HTMLURL     string       `json:"html_url"`
	PullRequest *RawItemPull `json:"pull_request,omitempty"`
}

// RawPull is the pull request attached to an event.
type RawPull struct {
	Number   int        `json:"number"`
	Title    *string    `json:"title"`
	Merged   bool       `json:"merged"`
	MergedAt *time.Time `json:"merged_at"`
	HTMLURL  string     `json:"html_url"`
}

// RawLabel is a label applied by an IssuesEvent with action "labeled".
type RawLabel struct {
	Name string `json:"name"`
}

// RawComment is an issue or review comment.
type RawComment struct {
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
}

// RawReview is a pull request review.
type RawReview struct {
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
}

// RawCommit is one commit of a push event.
type RawCommit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
}

// RawRelease is a published release.
type RawRelease struct {
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
	HTMLURL string `json:"html_url"`
}

// RawItem is one result of the fallback issue/PR search. The PullRequest
// field is non-nil when the item is a pull request.
type RawItem struct {
	Number      int          `json:"number"`
	Title       *string      `json:"title"`
	State       string       `json:"state"`
	HTMLURL     string       `json:"html_url"`
	User        RawActor     `json:"user"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ClosedAt    *time.Time   `json:"closed_at"`
	PullRequest *RawItemPull `json:"pull_request,omitempty"`
}

// RawItemPull marks a search item as a pull request.
type RawItemPull struct {
	MergedAt *time.Time `json:"merged_at"`
}

// IsPull reports whether the search item is a pull request.
func (i RawItem) IsPull() bool {
	return i.PullRequest != nil
}

// RawRun is one workflow (deploy) run.
type RawRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	Actor      RawActor  `json:"actor"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
