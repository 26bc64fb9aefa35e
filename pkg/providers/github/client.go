package github

import (
	"context"
	"fmt"
	"strings"

	"herald/internal"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Config holds the source host API settings.
type Config struct {
	// Token is a personal access token or installation token.
	Token string
	// BaseURL points at a GitHub Enterprise instance when set.
	BaseURL string
}

// Client implements the source host API on top of the official GitHub SDK.
type Client struct {
	gh *gh.Client
}

var _ internal.SourceClient = (*Client)(nil)

// NewClient creates an authenticated source host client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL != "" {
		client, err := gh.NewEnterpriseClient(baseURL, baseURL, httpClient)
		if err != nil {
			return nil, err
		}
		return &Client{gh: client}, nil
	}
	return &Client{gh: gh.NewClient(httpClient)}, nil
}

// FileContent fetches a file from the repository's default branch.
func (c *Client) FileContent(ctx context.Context, owner, repo, path string) ([]byte, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, fmt.Errorf("%s is not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

// Commit fetches a commit with its full changed-file list.
func (c *Client) Commit(ctx context.Context, owner, repo, sha string) (*internal.FullCommit, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, err
	}
	full := &internal.FullCommit{
		SHA:     commit.GetSHA(),
		Message: commit.GetCommit().GetMessage(),
		URL:     commit.GetHTMLURL(),
		Author: internal.Author{
			Name:     commit.GetCommit().GetAuthor().GetName(),
			Email:    commit.GetCommit().GetAuthor().GetEmail(),
			Username: commit.GetAuthor().GetLogin(),
		},
	}
	for _, file := range commit.Files {
		full.Files = append(full.Files, file.GetFilename())
	}
	return full, nil
}

// PullRequest fetches a pull request by number.
func (c *Client) PullRequest(ctx context.Context, owner, repo string, number int) (*internal.PullRequestDetails, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return &internal.PullRequestDetails{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		State:  pr.GetState(),
		Body:   pr.GetBody(),
		Author: pr.GetUser().GetLogin(),
		URL:    pr.GetHTMLURL(),
		Merged: pr.GetMerged(),
	}, nil
}

// Issue fetches an issue by number.
func (c *Client) Issue(ctx context.Context, owner, repo string, number int) (*internal.IssueDetails, error) {
	issue, _, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}
	return &internal.IssueDetails{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		State:  issue.GetState(),
		Body:   issue.GetBody(),
		Author: issue.GetUser().GetLogin(),
		URL:    issue.GetHTMLURL(),
	}, nil
}

// Compare fetches the comparison between two refs.
func (c *Client) Compare(ctx context.Context, owner, repo, base, head string) (*internal.CompareDetails, error) {
	comparison, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
	if err != nil {
		return nil, err
	}
	return &internal.CompareDetails{
		Base:         base,
		Head:         head,
		TotalCommits: comparison.GetTotalCommits(),
		URL:          comparison.GetHTMLURL(),
	}, nil
}

// RequestReviewers assigns reviewers and team reviewers to a pull request.
func (c *Client) RequestReviewers(ctx context.Context, owner, repo string, number int, reviewers, teams []string) error {
	_, _, err := c.gh.PullRequests.RequestReviewers(ctx, owner, repo, number, gh.ReviewersRequest{
		Reviewers:     reviewers,
		TeamReviewers: teams,
	})
	return err
}
