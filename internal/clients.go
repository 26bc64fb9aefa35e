package internal

import "context"

// FullCommit is a commit fetched from the source host, carrying the full
// changed-file list that push payloads truncate.
type FullCommit struct {
	SHA     string
	Message string
	URL     string
	Author  Author
	Files   []string
}

type PullRequestDetails struct {
	Number int
	Title  string
	State  string
	Body   string
	Author string
	URL    string
	Merged bool
}

type IssueDetails struct {
	Number int
	Title  string
	State  string
	Body   string
	Author string
	URL    string
}

type CompareDetails struct {
	Base         string
	Head         string
	TotalCommits int
	URL          string
}

// SourceClient is the source-control host API the router consumes.
type SourceClient interface {
	FileContent(ctx context.Context, owner, repo, path string) ([]byte, error)
	Commit(ctx context.Context, owner, repo, sha string) (*FullCommit, error)
	PullRequest(ctx context.Context, owner, repo string, number int) (*PullRequestDetails, error)
	Issue(ctx context.Context, owner, repo string, number int) (*IssueDetails, error)
	Compare(ctx context.Context, owner, repo, base, head string) (*CompareDetails, error)
	RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers, teams []string) error
}

// Preview is a rich link preview submitted back to the chat platform.
type Preview struct {
	Title     string
	TitleLink string
	Text      string
	Footer    string
}

// ChatClient is the chat platform API the router consumes. Message targets
// are channel names or user ids; the platform resolves both.
type ChatClient interface {
	SendMessage(ctx context.Context, target, text string) error
	UserIDByEmail(ctx context.Context, email string) (string, error)
	Identity(ctx context.Context) (string, error)
	Unfurl(ctx context.Context, channel, timestamp string, previews map[string]Preview) error
}
