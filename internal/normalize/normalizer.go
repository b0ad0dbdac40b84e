// Package normalize converts raw upstream records into the canonical
// activity event model. It owns the actor attribution policy, the label
// allow-list and the duplicate-label collapse.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/vilaca/agent-dashboard/internal/domain"
	"github.com/vilaca/agent-dashboard/internal/source"
)

// Upstream raw event type names.
const (
	typeIssues            = "IssuesEvent"
	typePullRequest       = "PullRequestEvent"
	typePullRequestReview = "PullRequestReviewEvent"
	typeIssueComment      = "IssueCommentEvent"
	typeReviewComment     = "PullRequestReviewCommentEvent"
	typePush              = "PushEvent"
	typeRelease           = "ReleaseEvent"
)

// maxCommentLen is the excerpt length for comment bodies, in runes.
const maxCommentLen = 140

// Config holds the normalization policy.
type Config struct {
	// ActorRoles maps automation account logins to short role names.
	// Unknown logins pass through unchanged.
	ActorRoles map[string]string

	// OperatorLogin is the human operator account, attributed to one of two
	// roles depending on whether the triggering event is interactive
	// (issues, comments, reviews, PR actions) or administrative (pushes,
	// releases, deploys).
	OperatorLogin       string
	OperatorInteractive string
	OperatorAdmin       string

	// AllowedLabels and AllowedLabelPrefixes form the allow-list of label
	// names surfaced as events; everything else is dropped silently.
	AllowedLabels        []string
	AllowedLabelPrefixes []string
}

// Normalizer maps raw source records to canonical activity events.
type Normalizer struct {
	cfg           Config
	allowedLabels map[string]bool
}

// New creates a normalizer from the given policy.
func New(cfg Config) *Normalizer {
	allowed := make(map[string]bool, len(cfg.AllowedLabels))
	for _, l := range cfg.AllowedLabels {
		allowed[l] = true
	}
	return &Normalizer{cfg: cfg, allowedLabels: allowed}
}

// NormalizeEvents converts one page of the repository event stream. Compound
// push records collapse to a single commit event; label noise outside the
// allow-list is dropped; duplicate label events are deduplicated.
func (n *Normalizer) NormalizeEvents(repo string, raw []source.RawEvent) []domain.ActivityEvent {
	events := make([]domain.ActivityEvent, 0, len(raw))
	for _, r := range raw {
		if ev, ok := n.normalizeOne(repo, r); ok {
			events = append(events, ev)
		}
	}
	return dedupLabelEvents(events)
}

func (n *Normalizer) normalizeOne(repo string, r source.RawEvent) (domain.ActivityEvent, bool) {
	switch r.Type {
	case typeIssues:
		return n.normalizeIssuesEvent(r)
	case typePullRequest:
		return n.normalizePullRequestEvent(r)
	case typePullRequestReview:
		return n.normalizeReviewEvent(r)
	case typeIssueComment, typeReviewComment:
		return n.normalizeCommentEvent(r)
	case typePush:
		return n.normalizePushEvent(repo, r)
	case typeRelease:
		return n.normalizeReleaseEvent(r)
	}
	return domain.ActivityEvent{}, false
}

func (n *Normalizer) normalizeIssuesEvent(r source.RawEvent) (domain.ActivityEvent, bool) {
	issue := r.Payload.Issue
	if issue == nil {
		return domain.ActivityEvent{}, false
	}
	title := derefTitle(issue.Title)

	ev := domain.ActivityEvent{
		ID:            r.ID,
		Actor:         n.ResolveActor(r.Actor.Login, true),
		Timestamp:     r.CreatedAt.UTC(),
		URL:           issue.HTMLURL,
		SubjectType:   domain.SubjectIssue,
		SubjectNumber: issue.Number,
		SubjectTitle:  title,
	}

	switch r.Payload.Action {
	case "opened":
		ev.Type = domain.EventIssueCreated
		ev.Description = fmt.Sprintf("Opened issue #%d: %s", issue.Number, title)
	case "closed":
		ev.Type = domain.EventIssueClosed
		ev.Description = fmt.Sprintf("Closed issue #%d: %s", issue.Number, title)
	case "labeled":
		if r.Payload.Label == nil || !n.labelAllowed(r.Payload.Label.Name) {
			return domain.ActivityEvent{}, false
		}
		ev.Type = domain.EventIssueLabeled
		ev.Description = fmt.Sprintf("Labeled issue #%d with '%s'", issue.Number, r.Payload.Label.Name)
	default:
		return domain.ActivityEvent{}, false
	}
	return ev, true
}

func (n *Normalizer) normalizePullRequestEvent(r source.RawEvent) (domain.ActivityEvent, bool) {
	pr := r.Payload.PullRequest
	if pr == nil {
		return domain.ActivityEvent{}, false
	}
	title := derefTitle(pr.Title)

	ev := domain.ActivityEvent{
		ID:            r.ID,
		Actor:         n.ResolveActor(r.Actor.Login, true),
		Timestamp:     r.CreatedAt.UTC(),
		URL:           pr.HTMLURL,
		SubjectType:   domain.SubjectPR,
		SubjectNumber: pr.Number,
		SubjectTitle:  title,
	}

	switch r.Payload.Action {
	case "opened":
		ev.Type = domain.EventPROpened
		ev.Description = fmt.Sprintf("Opened PR #%d: %s", pr.Number, title)
	case "closed":
		if pr.Merged || pr.MergedAt != nil {
			ev.Type = domain.EventPRMerged
			ev.Description = fmt.Sprintf("Merged PR #%d: %s", pr.Number, title)
		} else {
			ev.Type = domain.EventPRClosed
			ev.Description = fmt.Sprintf("Closed PR #%d: %s", pr.Number, title)
		}
	default:
		return domain.ActivityEvent{}, false
	}
	return ev, true
}

func (n *Normalizer) normalizeReviewEvent(r source.RawEvent) (domain.ActivityEvent, bool) {
	pr := r.Payload.PullRequest
	if pr == nil {
		return domain.ActivityEvent{}, false
	}
	title := derefTitle(pr.Title)

	state := ""
	url := pr.HTMLURL
	if r.Payload.Review != nil {
		state = strings.ToLower(r.Payload.Review.State)
		if r.Payload.Review.HTMLURL != "" {
			url = r.Payload.Review.HTMLURL
		}
	}

	desc := fmt.Sprintf("Reviewed PR #%d: %s", pr.Number, title)
	if state != "" {
		desc = fmt.Sprintf("Reviewed PR #%d (%s): %s", pr.Number, state, title)
	}

	return domain.ActivityEvent{
		ID:            r.ID,
		Type:          domain.EventPRReviewed,
		Actor:         n.ResolveActor(r.Actor.Login, true),
		Description:   desc,
		Timestamp:     r.CreatedAt.UTC(),
		URL:           url,
		SubjectType:   domain.SubjectPR,
		SubjectNumber: pr.Number,
		SubjectTitle:  title,
	}, true
}

func (n *Normalizer) normalizeCommentEvent(r source.RawEvent) (domain.ActivityEvent, bool) {
	var (
		number  int
		title   string
		subject string
		url     string
	)

	switch {
	case r.Payload.Issue != nil:
		number = r.Payload.Issue.Number
		title = derefTitle(r.Payload.Issue.Title)
		subject = domain.SubjectIssue
		if r.Payload.Issue.PullRequest != nil {
			subject = domain.SubjectPR
		}
		url = r.Payload.Issue.HTMLURL
	case r.Payload.PullRequest != nil:
		number = r.Payload.PullRequest.Number
		title = derefTitle(r.Payload.PullRequest.Title)
		subject = domain.SubjectPR
		url = r.Payload.PullRequest.HTMLURL
	default:
		return domain.ActivityEvent{}, false
	}

	noun := "issue"
	if subject == domain.SubjectPR {
		noun = "PR"
	}

	ev := domain.ActivityEvent{
		ID:            r.ID,
		Type:          domain.EventComment,
		Actor:         n.ResolveActor(r.Actor.Login, true),
		Description:   fmt.Sprintf("Commented on %s #%d: %s", noun, number, title),
		Timestamp:     r.CreatedAt.UTC(),
		URL:           url,
		SubjectType:   subject,
		SubjectNumber: number,
		SubjectTitle:  title,
	}

	if r.Payload.Comment != nil {
		body, truncated := truncate(r.Payload.Comment.Body, maxCommentLen)
		ev.CommentBody = body
		if truncated {
			ev.CommentURL = r.Payload.Comment.HTMLURL
		}
		if ev.URL == "" {
			ev.URL = r.Payload.Comment.HTMLURL
		}
	}
	return ev, true
}

// normalizePushEvent collapses a push into one commit event for the head
// commit, with a "+N more" suffix when the push carried more than one.
func (n *Normalizer) normalizePushEvent(repo string, r source.RawEvent) (domain.ActivityEvent, bool) {
	commits := r.Payload.Commits
	if len(commits) == 0 {
		return domain.ActivityEvent{}, false
	}

	head := commits[len(commits)-1]
	desc := fmt.Sprintf("Pushed: %s", firstLine(head.Message))
	if len(commits) > 1 {
		desc = fmt.Sprintf("%s (+%d more)", desc, len(commits)-1)
	}

	return domain.ActivityEvent{
		ID:          r.ID,
		Type:        domain.EventCommit,
		Actor:       n.ResolveActor(r.Actor.Login, false),
		Description: desc,
		Timestamp:   r.CreatedAt.UTC(),
		URL:         fmt.Sprintf("https://github.com/%s/commit/%s", repo, head.SHA),
	}, true
}

func (n *Normalizer) normalizeReleaseEvent(r source.RawEvent) (domain.ActivityEvent, bool) {
	rel := r.Payload.Release
	if rel == nil || r.Payload.Action != "published" {
		return domain.ActivityEvent{}, false
	}

	name := rel.Name
	if name == "" {
		name = rel.TagName
	}

	return domain.ActivityEvent{
		ID:          r.ID,
		Type:        domain.EventRelease,
		Actor:       n.ResolveActor(r.Actor.Login, false),
		Description: fmt.Sprintf("Released %s", name),
		Timestamp:   r.CreatedAt.UTC(),
		URL:         rel.HTMLURL,
	}, true
}

// NormalizeSearchItems converts fallback search results into events, one per
// item, reflecting the item's most recent state transition. IDs are
// synthesized since the search source has no event identity.
func (n *Normalizer) NormalizeSearchItems(items []source.RawItem) []domain.ActivityEvent {
	events := make([]domain.ActivityEvent, 0, len(items))
	for _, item := range items {
		title := derefTitle(item.Title)
		actor := n.ResolveActor(item.User.Login, true)

		ev := domain.ActivityEvent{
			ID:           fmt.Sprintf("fallback-issue-%d", item.Number),
			Actor:        actor,
			URL:          item.HTMLURL,
			SubjectTitle: title,
		}

		switch {
		case item.IsPull() && item.PullRequest.MergedAt != nil:
			ev.Type = domain.EventPRMerged
			ev.SubjectType = domain.SubjectPR
			ev.Timestamp = item.PullRequest.MergedAt.UTC()
			ev.Description = fmt.Sprintf("Merged PR #%d: %s", item.Number, title)
		case item.IsPull() && item.State == "closed":
			ev.Type = domain.EventPRClosed
			ev.SubjectType = domain.SubjectPR
			ev.Timestamp = closedOrUpdated(item)
			ev.Description = fmt.Sprintf("Closed PR #%d: %s", item.Number, title)
		case item.IsPull():
			ev.Type = domain.EventPROpened
			ev.SubjectType = domain.SubjectPR
			ev.Timestamp = item.CreatedAt.UTC()
			ev.Description = fmt.Sprintf("Opened PR #%d: %s", item.Number, title)
		case item.State == "closed":
			ev.Type = domain.EventIssueClosed
			ev.SubjectType = domain.SubjectIssue
			ev.Timestamp = closedOrUpdated(item)
			ev.Description = fmt.Sprintf("Closed issue #%d: %s", item.Number, title)
		default:
			ev.Type = domain.EventIssueCreated
			ev.SubjectType = domain.SubjectIssue
			ev.Timestamp = item.CreatedAt.UTC()
			ev.Description = fmt.Sprintf("Opened issue #%d: %s", item.Number, title)
		}
		ev.SubjectNumber = item.Number
		events = append(events, ev)
	}
	return events
}

// NormalizeRuns converts workflow runs into deploy events.
func (n *Normalizer) NormalizeRuns(runs []source.RawRun) []domain.ActivityEvent {
	events := make([]domain.ActivityEvent, 0, len(runs))
	for _, run := range runs {
		status := run.Conclusion
		if status == "" {
			status = run.Status
		}

		events = append(events, domain.ActivityEvent{
			ID:           fmt.Sprintf("run-%d", run.ID),
			Type:         domain.EventDeploy,
			Actor:        n.ResolveActor(run.Actor.Login, false),
			Description:  fmt.Sprintf("Deploy run '%s' on %s: %s", run.Name, run.HeadBranch, status),
			Timestamp:    run.UpdatedAt.UTC(),
			URL:          run.HTMLURL,
			DeployStatus: status,
		})
	}
	return events
}

// ResolveActor maps an account login to its role name. Known automation
// identities resolve through the role table; the operator account splits
// into two roles by event kind; everything else passes through unchanged.
func (n *Normalizer) ResolveActor(login string, interactive bool) string {
	if login == n.cfg.OperatorLogin && n.cfg.OperatorLogin != "" {
		if interactive {
			return n.cfg.OperatorInteractive
		}
		return n.cfg.OperatorAdmin
	}
	if role, ok := n.cfg.ActorRoles[login]; ok {
		return role
	}
	return login
}

func (n *Normalizer) labelAllowed(name string) bool {
	if n.allowedLabels[name] {
		return true
	}
	for _, prefix := range n.cfg.AllowedLabelPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// dedupLabelEvents collapses label events that share actor, description,
// subject and minute-truncated timestamp. Upstream emits several
// near-simultaneous duplicates for one human action; only label events get
// this treatment.
func dedupLabelEvents(events []domain.ActivityEvent) []domain.ActivityEvent {
	seen := make(map[string]bool)
	out := events[:0]
	for _, ev := range events {
		if ev.Type == domain.EventIssueLabeled {
			key := fmt.Sprintf("%s|%s|%d|%d", ev.Actor, ev.Description, ev.SubjectNumber,
				ev.Timestamp.Truncate(time.Minute).Unix())
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, ev)
	}
	return out
}

func derefTitle(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}

func closedOrUpdated(item source.RawItem) time.Time {
	if item.ClosedAt != nil {
		return item.ClosedAt.UTC()
	}
	return item.UpdatedAt.UTC()
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}

func truncate(s string, limit int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}
