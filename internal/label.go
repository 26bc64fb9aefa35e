package internal

import "strings"

// labelActions gates which actions of each event kind are label-routed.
var labelActions = map[EventKind]map[string]bool{
	KindPullRequest: {
		"opened":           true,
		"closed":           true,
		"reopened":         true,
		"labeled":          true,
		"ready_for_review": true,
	},
	KindIssue: {
		"opened":   true,
		"closed":   true,
		"reopened": true,
		"labeled":  true,
	},
	KindReviewComment: {"created": true},
	KindIssueComment:  {"created": true},
	KindReview:        {"submitted": true},
}

// LabelRouting extracts the label list a label-routed event is matched on,
// applying the per-kind action gates. ok is false when the event is not
// routed at all: gated-off actions, draft pull requests, and submitted
// "commented" reviews with an empty body (their content already arrived via
// the review-comment event).
func LabelRouting(ev Event) (labels []Label, ok bool) {
	gate := labelActions[ev.Kind()]
	switch e := ev.(type) {
	case *PullRequestEvent:
		if !gate[e.Action] || e.PullRequest.Draft {
			return nil, false
		}
		return e.PullRequest.Labels, true
	case *IssueEvent:
		if !gate[e.Action] {
			return nil, false
		}
		return e.Issue.Labels, true
	case *ReviewCommentEvent:
		if !gate[e.Action] {
			return nil, false
		}
		return e.PullRequest.Labels, true
	case *IssueCommentEvent:
		if !gate[e.Action] {
			return nil, false
		}
		return e.Issue.Labels, true
	case *ReviewEvent:
		if !gate[e.Action] {
			return nil, false
		}
		if e.Review.State == "commented" && strings.TrimSpace(e.Review.Body) == "" {
			return nil, false
		}
		return e.PullRequest.Labels, true
	default:
		return nil, false
	}
}

// Match resolves channels for the labels: first matching rule wins per
// label, results deduplicated and sorted, default channel as fallback.
func (l LabelRules) Match(labels []Label) []string {
	var matched []string
	for _, label := range labels {
		for _, rule := range l.Rules {
			if rule.Label == label.Name {
				matched = append(matched, rule.Channel)
				break
			}
		}
	}
	return resolveChannels(matched, l.Default, true)
}
