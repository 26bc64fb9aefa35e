package internal

import "testing"

var linkHosts = []string{"github.com", "git.acme.dev"}

// TestParseLinkShapes tests recognition of the four supported URL shapes.
func TestParseLinkShapes(t *testing.T) {
	link, ok := ParseLink("https://github.com/acme/herald/pull/42", linkHosts)
	if !ok || link.Kind != LinkPullRequest || link.Number != 42 || link.Owner != "acme" || link.Repo != "herald" {
		t.Fatalf("unexpected pull link %+v ok=%v", link, ok)
	}

	link, ok = ParseLink("https://github.com/acme/herald/issues/7", linkHosts)
	if !ok || link.Kind != LinkIssue || link.Number != 7 {
		t.Fatalf("unexpected issue link %+v ok=%v", link, ok)
	}

	link, ok = ParseLink("https://github.com/acme/herald/commit/deadbeefcafe", linkHosts)
	if !ok || link.Kind != LinkCommit || link.SHA != "deadbeefcafe" {
		t.Fatalf("unexpected commit link %+v ok=%v", link, ok)
	}

	link, ok = ParseLink("https://github.com/acme/herald/compare/main...develop", linkHosts)
	if !ok || link.Kind != LinkCompare || link.Base != "main" || link.Head != "develop" {
		t.Fatalf("unexpected compare link %+v ok=%v", link, ok)
	}
}

// TestParseLinkCustomHost tests that configured enterprise hosts are accepted.
func TestParseLinkCustomHost(t *testing.T) {
	link, ok := ParseLink("https://git.acme.dev/acme/herald/pull/3", linkHosts)
	if !ok || link.Kind != LinkPullRequest {
		t.Fatalf("expected custom host to parse, got %+v ok=%v", link, ok)
	}
}

// TestParseLinkRejections tests unknown hosts and unrecognized path shapes.
func TestParseLinkRejections(t *testing.T) {
	cases := []string{
		"https://example.com/acme/herald/pull/42",
		"https://github.com/acme/herald",
		"https://github.com/acme/herald/releases/tag/v1.0.0",
		"https://github.com/acme/herald/pull/notanumber",
		"https://github.com/acme/herald/commit/XYZ",
		"not a url at all ://",
	}
	for _, raw := range cases {
		if _, ok := ParseLink(raw, linkHosts); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
