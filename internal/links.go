package internal

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// LinkKind classifies a recognized source-host URL shape.
type LinkKind int

const (
	LinkUnknown LinkKind = iota
	LinkPullRequest
	LinkIssue
	LinkCommit
	LinkCompare
)

// RepoLink is a parsed source-host URL pointing at a repository object.
type RepoLink struct {
	Kind   LinkKind
	Owner  string
	Repo   string
	Number int
	SHA    string
	Base   string
	Head   string
}

var (
	pullPath    = regexp.MustCompile(`^/([^/]+)/([^/]+)/pull/(\d+)$`)
	issuePath   = regexp.MustCompile(`^/([^/]+)/([^/]+)/issues/(\d+)$`)
	commitPath  = regexp.MustCompile(`^/([^/]+)/([^/]+)/commit/([0-9a-f]{7,40})$`)
	comparePath = regexp.MustCompile(`^/([^/]+)/([^/]+)/compare/([^.]+)\.\.\.(.+)$`)
)

// ParseLink parses a shared URL into a repository object reference. Only
// links on a known source host and with a recognized path shape parse;
// everything else returns false.
func ParseLink(raw string, hosts []string) (RepoLink, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return RepoLink{}, false
	}
	if !hostKnown(u.Hostname(), hosts) {
		return RepoLink{}, false
	}
	path := strings.TrimSuffix(u.Path, "/")

	if m := pullPath.FindStringSubmatch(path); m != nil {
		n, _ := strconv.Atoi(m[3])
		return RepoLink{Kind: LinkPullRequest, Owner: m[1], Repo: m[2], Number: n}, true
	}
	if m := issuePath.FindStringSubmatch(path); m != nil {
		n, _ := strconv.Atoi(m[3])
		return RepoLink{Kind: LinkIssue, Owner: m[1], Repo: m[2], Number: n}, true
	}
	if m := commitPath.FindStringSubmatch(path); m != nil {
		return RepoLink{Kind: LinkCommit, Owner: m[1], Repo: m[2], SHA: m[3]}, true
	}
	if m := comparePath.FindStringSubmatch(path); m != nil {
		return RepoLink{Kind: LinkCompare, Owner: m[1], Repo: m[2], Base: m[3], Head: m[4]}, true
	}
	return RepoLink{}, false
}

func hostKnown(host string, hosts []string) bool {
	for _, h := range hosts {
		if strings.EqualFold(host, h) {
			return true
		}
	}
	return false
}
