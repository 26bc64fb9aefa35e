package internal

import (
	"fmt"
	"strings"
)

// Notification is one outbound message for a channel or a direct-message
// target. Exactly one of Channel/UserID is set.
type Notification struct {
	Channel string
	UserID  string
	Text    string
}

// Target returns the chat destination the message is sent to.
func (n Notification) Target() string {
	if n.UserID != "" {
		return n.UserID
	}
	return n.Channel
}

func link(url, text string) string {
	if url == "" {
		return text
	}
	return fmt.Sprintf("<%s|%s>", url, text)
}

func repoLink(repo Repository) string {
	return link(repo.URL, repo.FullName)
}

// BuildPushNotifications renders one message per routed channel, listing
// the commits destined for it.
func BuildPushNotifications(ev *PushEvent, routed map[string][]Commit) []Notification {
	notifications := make([]Notification, 0, len(routed))
	for channel, commits := range routed {
		var b strings.Builder
		fmt.Fprintf(&b, "%d new commit", len(commits))
		if len(commits) != 1 {
			b.WriteString("s")
		}
		fmt.Fprintf(&b, " pushed to `%s` in %s:", ev.Branch(), repoLink(ev.Repository))
		for _, commit := range commits {
			title := commit.Message
			if i := strings.IndexByte(title, '\n'); i >= 0 {
				title = title[:i]
			}
			fmt.Fprintf(&b, "\n• %s %s — %s", link(commit.URL, shortSHA(commit.ID)), title, commit.Author.Name)
		}
		notifications = append(notifications, Notification{Channel: channel, Text: b.String()})
	}
	return notifications
}

// BuildEventNotifications renders one independent message per channel for
// the label-routed event kinds and for commit comments.
func BuildEventNotifications(ev Event, channels []string) []Notification {
	text := eventText(ev)
	if text == "" {
		return nil
	}
	notifications := make([]Notification, 0, len(channels))
	for _, channel := range channels {
		notifications = append(notifications, Notification{Channel: channel, Text: text})
	}
	return notifications
}

func eventText(ev Event) string {
	switch e := ev.(type) {
	case *PullRequestEvent:
		return fmt.Sprintf("Pull request #%d %s in %s: %s by %s",
			e.PullRequest.Number, prAction(e), repoLink(e.Repository),
			link(e.PullRequest.HTMLURL, e.PullRequest.Title), e.PullRequest.User.Login)
	case *ReviewEvent:
		return fmt.Sprintf("%s %s pull request #%d in %s: %s",
			e.Review.User.Login, reviewVerb(e.Review.State), e.PullRequest.Number,
			repoLink(e.Repository), link(e.Review.HTMLURL, e.PullRequest.Title))
	case *ReviewCommentEvent:
		return fmt.Sprintf("%s commented on pull request #%d in %s: %s\n> %s",
			e.Comment.User.Login, e.PullRequest.Number, repoLink(e.Repository),
			link(e.Comment.HTMLURL, e.PullRequest.Title), firstLine(e.Comment.Body))
	case *IssueEvent:
		return fmt.Sprintf("Issue #%d %s in %s: %s by %s",
			e.Issue.Number, e.Action, repoLink(e.Repository),
			link(e.Issue.HTMLURL, e.Issue.Title), e.Issue.User.Login)
	case *IssueCommentEvent:
		return fmt.Sprintf("%s commented on issue #%d in %s: %s\n> %s",
			e.Comment.User.Login, e.Issue.Number, repoLink(e.Repository),
			link(e.Comment.HTMLURL, e.Issue.Title), firstLine(e.Comment.Body))
	case *CommitCommentEvent:
		return fmt.Sprintf("%s commented on commit %s in %s: %s\n> %s",
			e.Comment.User.Login, shortSHA(e.Comment.CommitID), repoLink(e.Repository),
			link(e.Comment.HTMLURL, "view comment"), firstLine(e.Comment.Body))
	default:
		return ""
	}
}

func prAction(e *PullRequestEvent) string {
	switch e.Action {
	case "closed":
		if e.PullRequest.Merged {
			return "merged"
		}
		return "closed"
	case "ready_for_review":
		return "ready for review"
	default:
		return e.Action
	}
}

func reviewVerb(state string) string {
	switch state {
	case "approved":
		return "approved"
	case "changes_requested":
		return "requested changes on"
	default:
		return "reviewed"
	}
}

// BuildStatusNotifications renders one message per resolved channel plus
// one direct message when a DM target was resolved.
func BuildStatusNotifications(ev *StatusEvent, channels []string, dmUser string, branches []string) []Notification {
	text := statusText(ev, branches)
	notifications := make([]Notification, 0, len(channels)+1)
	for _, channel := range channels {
		notifications = append(notifications, Notification{Channel: channel, Text: text})
	}
	if dmUser != "" {
		notifications = append(notifications, Notification{UserID: dmUser, Text: text})
	}
	return notifications
}

func statusText(ev *StatusEvent, branches []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pipeline `%s` is *%s* on `%s` in %s",
		ev.Context, ev.State, strings.Join(branches, "`, `"), repoLink(ev.Repository))
	if ev.Description != "" {
		fmt.Fprintf(&b, ": %s", ev.Description)
	}
	if ev.TargetURL != "" {
		fmt.Fprintf(&b, " (%s)", link(ev.TargetURL, "details"))
	}
	fmt.Fprintf(&b, " — commit %s", link(ev.Commit.HTMLURL, shortSHA(ev.SHA)))
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200] + "…"
	}
	return s
}
