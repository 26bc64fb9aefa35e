package internal

import (
	"context"
	"fmt"
)

// maxUnfurlLinks caps how many links of one message are unfurled. Messages
// with more links are skipped entirely.
const maxUnfurlLinks = 2

// LinkShared is a chat-platform notification that a user posted links in a
// channel the bot can see.
type LinkShared struct {
	User      string
	Channel   string
	Timestamp string
	Links     []string
}

// HandleLinkShared builds rich previews for recognized repository links and
// submits them back to the chat platform. Links the bot itself posted are
// ignored, as are messages carrying too many links. A link that cannot be
// previewed is skipped with a log line; the remaining links still unfurl.
func (o *Orchestrator) HandleLinkShared(ctx context.Context, ev LinkShared) error {
	botID, err := o.botIdentity(ctx)
	if err != nil {
		return err
	}
	if ev.User == botID {
		return nil
	}
	if len(ev.Links) > maxUnfurlLinks {
		o.logger.Printf("skipping unfurl of %d links in %s, limit is %d", len(ev.Links), ev.Channel, maxUnfurlLinks)
		return nil
	}

	previews := make(map[string]Preview)
	for _, raw := range ev.Links {
		link, ok := ParseLink(raw, o.hosts)
		if !ok {
			o.logger.Printf("skipping unfurl of unrecognized link %s", raw)
			continue
		}
		preview, err := o.buildPreview(ctx, link)
		if err != nil {
			o.logger.Printf("skipping unfurl of %s: %v", raw, err)
			continue
		}
		previews[raw] = preview
	}
	if len(previews) == 0 {
		return nil
	}
	if err := o.chat.Unfurl(ctx, ev.Channel, ev.Timestamp, previews); err != nil {
		return fmt.Errorf("unfurl in %s: %w", ev.Channel, err)
	}
	IncUnfurl()
	return nil
}

// botIdentity returns the bot's own chat user id, resolving and persisting
// it on first use.
func (o *Orchestrator) botIdentity(ctx context.Context) (string, error) {
	if id := o.state.BotIdentity(); id != "" {
		return id, nil
	}
	id, err := o.chat.Identity(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving bot identity: %w", err)
	}
	o.state.SetBotIdentity(id)
	if err := o.store.Save(ctx, o.state.Snapshot()); err != nil {
		o.logger.Printf("persisting bot identity failed: %v", err)
	}
	return id, nil
}

func (o *Orchestrator) buildPreview(ctx context.Context, link RepoLink) (Preview, error) {
	repo := fmt.Sprintf("%s/%s", link.Owner, link.Repo)
	switch link.Kind {
	case LinkPullRequest:
		pr, err := o.source.PullRequest(ctx, link.Owner, link.Repo, link.Number)
		if err != nil {
			return Preview{}, err
		}
		return Preview{
			Title:     fmt.Sprintf("#%d %s", pr.Number, pr.Title),
			TitleLink: pr.URL,
			Text:      firstLine(pr.Body),
			Footer:    fmt.Sprintf("%s · pull request %s by %s", repo, prState(pr), pr.Author),
		}, nil
	case LinkIssue:
		issue, err := o.source.Issue(ctx, link.Owner, link.Repo, link.Number)
		if err != nil {
			return Preview{}, err
		}
		return Preview{
			Title:     fmt.Sprintf("#%d %s", issue.Number, issue.Title),
			TitleLink: issue.URL,
			Text:      firstLine(issue.Body),
			Footer:    fmt.Sprintf("%s · issue %s by %s", repo, issue.State, issue.Author),
		}, nil
	case LinkCommit:
		commit, err := o.source.Commit(ctx, link.Owner, link.Repo, link.SHA)
		if err != nil {
			return Preview{}, err
		}
		return Preview{
			Title:     fmt.Sprintf("%s %s", shortSHA(commit.SHA), firstLine(commit.Message)),
			TitleLink: commit.URL,
			Text:      fmt.Sprintf("%d files changed", len(commit.Files)),
			Footer:    fmt.Sprintf("%s · commit by %s", repo, commit.Author.Name),
		}, nil
	case LinkCompare:
		compare, err := o.source.Compare(ctx, link.Owner, link.Repo, link.Base, link.Head)
		if err != nil {
			return Preview{}, err
		}
		return Preview{
			Title:     fmt.Sprintf("%s...%s", compare.Base, compare.Head),
			TitleLink: compare.URL,
			Text:      fmt.Sprintf("%d commits", compare.TotalCommits),
			Footer:    fmt.Sprintf("%s · comparison", repo),
		}, nil
	default:
		return Preview{}, fmt.Errorf("unsupported link kind")
	}
}

func prState(pr *PullRequestDetails) string {
	if pr.Merged {
		return "merged"
	}
	return pr.State
}
