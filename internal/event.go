package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind identifies the decoded variant of an inbound webhook event.
type EventKind string

const (
	KindPush          EventKind = "push"
	KindPullRequest   EventKind = "pull_request"
	KindReview        EventKind = "pull_request_review"
	KindReviewComment EventKind = "pull_request_review_comment"
	KindIssue         EventKind = "issues"
	KindIssueComment  EventKind = "issue_comment"
	KindCommitComment EventKind = "commit_comment"
	KindStatus        EventKind = "status"
	KindGeneric       EventKind = "generic"
)

// Repository identifies the originating repository. URL is the stable HTML
// URL used as the primary key for secrets, rule config and runtime state.
type Repository struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	URL      string `json:"html_url"`
	Owner    struct {
		Login string `json:"login"`
		Name  string `json:"name"`
	} `json:"owner"`
	DefaultBranch string `json:"default_branch"`
}

// OwnerAndName splits the repository into the owner/name pair API calls take.
func (r Repository) OwnerAndName() (string, string) {
	if owner, name, ok := strings.Cut(r.FullName, "/"); ok {
		return owner, name
	}
	owner := r.Owner.Login
	if owner == "" {
		owner = r.Owner.Name
	}
	return owner, r.Name
}

type User struct {
	Login string `json:"login"`
}

type Label struct {
	Name string `json:"name"`
}

type Author struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// Commit is one commit entry of a push payload.
type Commit struct {
	ID       string   `json:"id"`
	Distinct bool     `json:"distinct"`
	Message  string   `json:"message"`
	URL      string   `json:"url"`
	Author   Author   `json:"author"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// ChangedPaths returns the commit's added, removed and modified paths.
func (c Commit) ChangedPaths() []string {
	paths := make([]string, 0, len(c.Added)+len(c.Removed)+len(c.Modified))
	paths = append(paths, c.Added...)
	paths = append(paths, c.Removed...)
	paths = append(paths, c.Modified...)
	return paths
}

// Event is the decoded webhook variant: exactly one concrete type per kind,
// with GenericEvent as the fallback for kinds we accept but do not route.
type Event interface {
	Kind() EventKind
	Repo() Repository
	SenderLogin() string
}

type PushEvent struct {
	Ref        string     `json:"ref"`
	Before     string     `json:"before"`
	After      string     `json:"after"`
	Compare    string     `json:"compare"`
	Commits    []Commit   `json:"commits"`
	HeadCommit *Commit    `json:"head_commit"`
	Repository Repository `json:"repository"`
	Pusher     Author     `json:"pusher"`
	Sender     User       `json:"sender"`
}

func (e *PushEvent) Kind() EventKind     { return KindPush }
func (e *PushEvent) Repo() Repository    { return e.Repository }
func (e *PushEvent) SenderLogin() string { return e.Sender.Login }

// Branch strips the refs/heads/ prefix from the push ref.
func (e *PushEvent) Branch() string {
	return strings.TrimPrefix(e.Ref, "refs/heads/")
}

type GitRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type PullRequest struct {
	Number  int     `json:"number"`
	State   string  `json:"state"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Draft   bool    `json:"draft"`
	Merged  bool    `json:"merged"`
	HTMLURL string  `json:"html_url"`
	User    User    `json:"user"`
	Labels  []Label `json:"labels"`
	Head    GitRef  `json:"head"`
	Base    GitRef  `json:"base"`
}

type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Label       *Label      `json:"label"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

func (e *PullRequestEvent) Kind() EventKind     { return KindPullRequest }
func (e *PullRequestEvent) Repo() Repository    { return e.Repository }
func (e *PullRequestEvent) SenderLogin() string { return e.Sender.Login }

type Review struct {
	State   string `json:"state"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	User    User   `json:"user"`
}

type ReviewEvent struct {
	Action      string      `json:"action"`
	Review      Review      `json:"review"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

func (e *ReviewEvent) Kind() EventKind     { return KindReview }
func (e *ReviewEvent) Repo() Repository    { return e.Repository }
func (e *ReviewEvent) SenderLogin() string { return e.Sender.Login }

type Comment struct {
	Body     string `json:"body"`
	Path     string `json:"path"`
	CommitID string `json:"commit_id"`
	HTMLURL  string `json:"html_url"`
	User     User   `json:"user"`
}

type ReviewCommentEvent struct {
	Action      string      `json:"action"`
	Comment     Comment     `json:"comment"`
	PullRequest PullRequest `json:"pull_request"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

func (e *ReviewCommentEvent) Kind() EventKind     { return KindReviewComment }
func (e *ReviewCommentEvent) Repo() Repository    { return e.Repository }
func (e *ReviewCommentEvent) SenderLogin() string { return e.Sender.Login }

type Issue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	State   string  `json:"state"`
	Body    string  `json:"body"`
	HTMLURL string  `json:"html_url"`
	User    User    `json:"user"`
	Labels  []Label `json:"labels"`
}

type IssueEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Label      *Label     `json:"label"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

func (e *IssueEvent) Kind() EventKind     { return KindIssue }
func (e *IssueEvent) Repo() Repository    { return e.Repository }
func (e *IssueEvent) SenderLogin() string { return e.Sender.Login }

type IssueCommentEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Comment    Comment    `json:"comment"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

func (e *IssueCommentEvent) Kind() EventKind     { return KindIssueComment }
func (e *IssueCommentEvent) Repo() Repository    { return e.Repository }
func (e *IssueCommentEvent) SenderLogin() string { return e.Sender.Login }

type CommitCommentEvent struct {
	Action     string     `json:"action"`
	Comment    Comment    `json:"comment"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

func (e *CommitCommentEvent) Kind() EventKind     { return KindCommitComment }
func (e *CommitCommentEvent) Repo() Repository    { return e.Repository }
func (e *CommitCommentEvent) SenderLogin() string { return e.Sender.Login }

// StatusCommit is the commit object embedded in a status payload.
type StatusCommit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"author"`
	} `json:"commit"`
	Author User `json:"author"`
}

type StatusBranch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type StatusEvent struct {
	SHA         string         `json:"sha"`
	State       string         `json:"state"`
	Description string         `json:"description"`
	Context     string         `json:"context"`
	TargetURL   string         `json:"target_url"`
	Commit      StatusCommit   `json:"commit"`
	Branches    []StatusBranch `json:"branches"`
	Repository  Repository     `json:"repository"`
	Sender      User           `json:"sender"`
}

func (e *StatusEvent) Kind() EventKind     { return KindStatus }
func (e *StatusEvent) Repo() Repository    { return e.Repository }
func (e *StatusEvent) SenderLogin() string { return e.Sender.Login }

// GenericEvent carries kinds outside the known set. Still decodes repository
// and sender so unsupported kinds degrade to a log line instead of an error.
type GenericEvent struct {
	EventName  string     `json:"-"`
	Action     string     `json:"action"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

func (e *GenericEvent) Kind() EventKind     { return KindGeneric }
func (e *GenericEvent) Repo() Repository    { return e.Repository }
func (e *GenericEvent) SenderLogin() string { return e.Sender.Login }

// ParseEvent selects a decoder from the event-kind header value and decodes
// the body into the matching typed payload. Unknown kinds decode into
// GenericEvent; malformed JSON is fatal for the request.
func ParseEvent(eventName string, body []byte) (Event, error) {
	var ev Event
	switch EventKind(eventName) {
	case KindPush:
		ev = &PushEvent{}
	case KindPullRequest:
		ev = &PullRequestEvent{}
	case KindReview:
		ev = &ReviewEvent{}
	case KindReviewComment:
		ev = &ReviewCommentEvent{}
	case KindIssue:
		ev = &IssueEvent{}
	case KindIssueComment:
		ev = &IssueCommentEvent{}
	case KindCommitComment:
		ev = &CommitCommentEvent{}
	case KindStatus:
		ev = &StatusEvent{}
	default:
		generic := &GenericEvent{EventName: eventName}
		if err := json.Unmarshal(body, generic); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
		}
		return generic, nil
	}
	if err := json.Unmarshal(body, ev); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventName, err)
	}
	return ev, nil
}

// EventSummary renders the one-line log summary for an inbound event.
func EventSummary(ev Event) string {
	repo := ev.Repo().FullName
	switch e := ev.(type) {
	case *PushEvent:
		return fmt.Sprintf("kind=push repo=%s branch=%s commits=%d sender=%s", repo, e.Branch(), len(e.Commits), e.Sender.Login)
	case *PullRequestEvent:
		return fmt.Sprintf("kind=pull_request repo=%s number=%d action=%s sender=%s", repo, e.PullRequest.Number, e.Action, e.Sender.Login)
	case *ReviewEvent:
		return fmt.Sprintf("kind=pull_request_review repo=%s number=%d state=%s sender=%s", repo, e.PullRequest.Number, e.Review.State, e.Sender.Login)
	case *ReviewCommentEvent:
		return fmt.Sprintf("kind=pull_request_review_comment repo=%s number=%d action=%s sender=%s", repo, e.PullRequest.Number, e.Action, e.Sender.Login)
	case *IssueEvent:
		return fmt.Sprintf("kind=issues repo=%s number=%d action=%s sender=%s", repo, e.Issue.Number, e.Action, e.Sender.Login)
	case *IssueCommentEvent:
		return fmt.Sprintf("kind=issue_comment repo=%s number=%d action=%s sender=%s", repo, e.Issue.Number, e.Action, e.Sender.Login)
	case *CommitCommentEvent:
		return fmt.Sprintf("kind=commit_comment repo=%s commit=%s sender=%s", repo, shortSHA(e.Comment.CommitID), e.Sender.Login)
	case *StatusEvent:
		return fmt.Sprintf("kind=status repo=%s pipeline=%s state=%s branches=%d", repo, e.Context, e.State, len(e.Branches))
	case *GenericEvent:
		return fmt.Sprintf("kind=%s repo=%s action=%s sender=%s", e.EventName, repo, e.Action, e.Sender.Login)
	default:
		return fmt.Sprintf("kind=%s repo=%s sender=%s", ev.Kind(), repo, ev.SenderLogin())
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
