package internal

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// RuleSet is the per-repository routing configuration. It lives in a file
// inside the repository itself and is fetched through the source host API.
type RuleSet struct {
	Prefix       PrefixRules  `yaml:"prefix"`
	Labels       LabelRules   `yaml:"labels"`
	Status       []StatusRule `yaml:"status"`
	Owners       []OwnerRule  `yaml:"owners"`
	IgnoredUsers []string     `yaml:"ignored_users"`
}

// PrefixRules route commits by file path. Rules are tried in order; the
// first matching prefix wins per path.
type PrefixRules struct {
	Rules      []PrefixRule `yaml:"rules"`
	Default    string       `yaml:"default"`
	MainOnly   bool         `yaml:"main_only"`
	MainBranch string       `yaml:"main_branch"`
}

type PrefixRule struct {
	Prefix  string `yaml:"prefix"`
	Channel string `yaml:"channel"`
	// Branch restricts the rule to pushes on that branch when set.
	Branch string `yaml:"branch"`
}

// LabelRules route pull requests and issues by label, first match wins.
type LabelRules struct {
	Rules   []LabelRule `yaml:"rules"`
	Default string      `yaml:"default"`
}

type LabelRule struct {
	Label   string `yaml:"label"`
	Channel string `yaml:"channel"`
}

// StatusPolicy decides whether a matched pipeline notifies.
type StatusPolicy string

const (
	PolicyIgnore    StatusPolicy = "ignore"
	PolicyAllow     StatusPolicy = "allow"
	PolicyAllowOnce StatusPolicy = "allow_once"
)

// StatusRule maps a pipeline-name pattern to a policy. The pattern is an
// anchored regular expression compiled at parse time.
type StatusRule struct {
	Pattern        string       `yaml:"pattern"`
	Policy         StatusPolicy `yaml:"policy"`
	NotifyChannels bool         `yaml:"notify_channels"`
	NotifyDM       bool         `yaml:"notify_dm"`

	re *regexp.Regexp
}

func (r StatusRule) matches(pipeline string) bool {
	return r.re != nil && r.re.MatchString(pipeline)
}

// OwnerRule maps a label to the reviewers requested on labeled pull requests.
type OwnerRule struct {
	Label         string   `yaml:"label"`
	Reviewers     []string `yaml:"reviewers"`
	TeamReviewers []string `yaml:"team_reviewers"`
}

// ParseRuleSet decodes and validates a remote rule config document.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode rule config: %w", err)
	}
	for i := range rs.Status {
		rule := &rs.Status[i]
		rule.Pattern = strings.TrimSpace(rule.Pattern)
		if rule.Pattern == "" {
			return nil, fmt.Errorf("status rule %d is missing pattern", i)
		}
		switch rule.Policy {
		case PolicyAllow, PolicyAllowOnce:
		case "", PolicyIgnore:
			rule.Policy = PolicyIgnore
		default:
			return nil, fmt.Errorf("status rule %d has unknown policy %q", i, rule.Policy)
		}
		re, err := regexp.Compile("^(?:" + rule.Pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("status rule %d: %w", i, err)
		}
		rule.re = re
	}
	for i, rule := range rs.Prefix.Rules {
		if rule.Channel == "" {
			return nil, fmt.Errorf("prefix rule %d is missing channel", i)
		}
	}
	for i, rule := range rs.Labels.Rules {
		if rule.Label == "" || rule.Channel == "" {
			return nil, fmt.Errorf("label rule %d is missing label or channel", i)
		}
	}
	return &rs, nil
}

// StatusRuleFor returns the first status rule matching the pipeline name.
func (rs *RuleSet) StatusRuleFor(pipeline string) (StatusRule, bool) {
	for _, rule := range rs.Status {
		if rule.matches(pipeline) {
			return rule, true
		}
	}
	return StatusRule{}, false
}

// OwnersForLabels collects the reviewers and team reviewers requested by
// the owner rules matching any of the labels.
func (rs *RuleSet) OwnersForLabels(labels []Label) (reviewers, teams []string) {
	for _, rule := range rs.Owners {
		for _, label := range labels {
			if rule.Label == label.Name {
				reviewers = append(reviewers, rule.Reviewers...)
				teams = append(teams, rule.TeamReviewers...)
				break
			}
		}
	}
	return uniqueSorted(reviewers), uniqueSorted(teams)
}

// IsIgnoredUser reports whether events from the login are dropped before
// any rule evaluation.
func (rs *RuleSet) IsIgnoredUser(login string) bool {
	if login == "" {
		return false
	}
	for _, ignored := range rs.IgnoredUsers {
		if ignored == login {
			return true
		}
	}
	return false
}

// resolveChannels deduplicates and sorts matched channel names, falling
// back to the default channel when nothing matched and fallback is set.
// All three matchers resolve through here so the fallback cannot diverge.
func resolveChannels(matched []string, def string, fallback bool) []string {
	out := uniqueSorted(matched)
	if len(out) == 0 {
		if fallback && def != "" {
			return []string{def}
		}
		return nil
	}
	return out
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}
