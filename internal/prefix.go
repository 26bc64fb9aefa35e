package internal

import (
	"regexp"
	"strings"
)

// mergeBranchPattern matches the first line of merge commit messages the
// source host synthesizes, e.g. "Merge branch 'develop' into main" or
// "Merge remote-tracking branch 'origin/x' of https://host/r into main".
var mergeBranchPattern = regexp.MustCompile(`^Merge (?:remote-tracking )?branch '([^']+)'(?: of \S+)?(?: into (.+))?$`)

// isMergeIntoMainArtifact reports whether a commit pushed to the main branch
// is the synthesized merge of a branch whose commits were already notified.
// A merge message naming a different explicit target passes through.
func isMergeIntoMainArtifact(commit Commit, branch, mainBranch string) bool {
	if mainBranch == "" || branch != mainBranch {
		return false
	}
	first := commit.Message
	if i := strings.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}
	m := mergeBranchPattern.FindStringSubmatch(strings.TrimRight(first, "\r"))
	if m == nil {
		return false
	}
	name, target := m[1], m[2]
	return name == branch || target == "" || target == branch
}

// ruleApplies is the branch predicate for prefix rules: an explicit branch
// restriction binds the rule to that branch; with main_only set, unscoped
// rules are skipped when the pushed branch is the main branch itself.
func (p PrefixRules) ruleApplies(rule PrefixRule, branch string) bool {
	if rule.Branch != "" {
		return rule.Branch == branch
	}
	if p.MainOnly && p.MainBranch != "" && branch == p.MainBranch {
		return false
	}
	return true
}

// MatchPaths returns the channels whose prefix rules match any of the given
// paths, deduplicated and sorted. First matching rule wins per path. No
// default fallback is applied here.
func (p PrefixRules) MatchPaths(paths []string, branch string) []string {
	var matched []string
	for _, path := range paths {
		for _, rule := range p.Rules {
			if !p.ruleApplies(rule, branch) {
				continue
			}
			if strings.HasPrefix(path, rule.Prefix) {
				matched = append(matched, rule.Channel)
				break
			}
		}
	}
	return resolveChannels(matched, "", false)
}

// RoutePush groups a push's commits by destination channel. Merge-into-main
// artifacts are dropped first; distinct commits that match no rule fall back
// to the default channel, non-distinct ones get no channel.
func (p PrefixRules) RoutePush(ev *PushEvent) map[string][]Commit {
	branch := ev.Branch()
	routed := make(map[string][]Commit)
	for _, commit := range ev.Commits {
		if isMergeIntoMainArtifact(commit, branch, p.MainBranch) {
			continue
		}
		channels := resolveChannels(p.MatchPaths(commit.ChangedPaths(), branch), p.Default, commit.Distinct)
		for _, channel := range channels {
			routed[channel] = append(routed[channel], commit)
		}
	}
	return routed
}

// RouteCommitComment resolves channels for a commit comment from the
// commented file path, falling back to the default channel.
func (p PrefixRules) RouteCommitComment(ev *CommitCommentEvent) []string {
	var paths []string
	if ev.Comment.Path != "" {
		paths = []string{ev.Comment.Path}
	}
	return resolveChannels(p.MatchPaths(paths, ""), p.Default, true)
}
