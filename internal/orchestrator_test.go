package internal

import (
	"context"
	"errors"
	"net/http"
	"testing"
)

const testRepoURL = "https://github.com/acme/herald"

const orchestratorRules = `
prefix:
  rules:
    - prefix: pkg/
      channel: chan-pkg
  default: chan-default
  main_branch: main
labels:
  rules:
    - label: bug
      channel: chan-bugs
  default: chan-default
status:
  - pattern: ci/.*
    policy: allow_once
    notify_channels: true
    notify_dm: true
owners:
  - label: backend
    reviewers: [alice]
ignored_users:
  - dependabot[bot]
`

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeSource, *fakeChat, *memStore) {
	t.Helper()
	source := newFakeSource()
	source.files[".herald.yml"] = []byte(orchestratorRules)
	chat := newFakeChat()
	store := &memStore{}
	orch := NewOrchestrator(OrchestratorOptions{
		Repositories: map[string]RepoConfig{
			testRepoURL: {Secret: "s3cret", Pipelines: []string{"ci/build"}},
		},
		Configs: NewConfigCache(source, ".herald.yml"),
		State:   NewStateStore(),
		Store:   store,
		Source:  source,
		Chat:    chat,
		Hosts:   []string{"github.com"},
	})
	return orch, source, chat, store
}

func signedHeader(secret string, body []byte) http.Header {
	header := http.Header{}
	header.Set(SignatureHeader, signBody(secret, body))
	return header
}

// TestHandleSourceEventPush tests the push path end to end: parse, sign,
// route, send.
func TestHandleSourceEventPush(t *testing.T) {
	orch, _, chat, store := newTestOrchestrator(t)
	body := []byte(`{
		"ref": "refs/heads/develop",
		"commits": [{"id": "abc1234", "distinct": true, "message": "fix", "modified": ["pkg/a.go"]}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)

	err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("s3cret", body), body)
	if err != nil {
		t.Fatalf("handle push: %v", err)
	}
	if got := chat.sentTo("chan-pkg"); len(got) != 1 {
		t.Fatalf("expected one message on chan-pkg, got %v", chat.sent)
	}
	if store.saves != 0 {
		t.Fatalf("push must not persist state, got %d saves", store.saves)
	}
}

// TestHandleSourceEventBadSignature tests rejection of a wrong digest.
func TestHandleSourceEventBadSignature(t *testing.T) {
	orch, _, chat, _ := newTestOrchestrator(t)
	body := []byte(`{"ref": "refs/heads/main", "repository": {"html_url": "` + testRepoURL + `"}}`)

	err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("wrong", body), body)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("rejected event must not send")
	}
}

// TestHandleSourceEventUnknownRepository tests rejection of unconfigured repos.
func TestHandleSourceEventUnknownRepository(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	body := []byte(`{"repository": {"html_url": "https://github.com/other/repo"}}`)

	err := orch.HandleSourceEvent(context.Background(), "push", http.Header{}, body)
	if !errors.Is(err, ErrUnsupportedRepository) {
		t.Fatalf("expected ErrUnsupportedRepository, got %v", err)
	}
}

// TestHandleSourceEventIgnoredUser tests the ignored-user gate.
func TestHandleSourceEventIgnoredUser(t *testing.T) {
	orch, _, chat, _ := newTestOrchestrator(t)
	body := []byte(`{
		"ref": "refs/heads/main",
		"commits": [{"id": "abc", "distinct": true, "modified": ["pkg/a.go"]}],
		"repository": {"html_url": "` + testRepoURL + `"},
		"sender": {"login": "dependabot[bot]"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle push: %v", err)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("ignored user must not trigger sends, got %v", chat.sent)
	}
}

// TestHandleSourceEventConfigRefresh tests that a push touching the rule
// config refetches it exactly once.
func TestHandleSourceEventConfigRefresh(t *testing.T) {
	orch, source, _, _ := newTestOrchestrator(t)
	warmup := []byte(`{
		"ref": "refs/heads/main",
		"repository": {"html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)
	if err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("s3cret", warmup), warmup); err != nil {
		t.Fatalf("warmup push: %v", err)
	}
	if source.fileFetches != 1 {
		t.Fatalf("expected one initial fetch, got %d", source.fileFetches)
	}

	touch := []byte(`{
		"ref": "refs/heads/main",
		"commits": [{"id": "abc", "distinct": true, "modified": [".herald.yml"]}],
		"repository": {"html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)
	if err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("s3cret", touch), touch); err != nil {
		t.Fatalf("config push: %v", err)
	}
	if source.fileFetches != 2 {
		t.Fatalf("expected exactly one refetch, got %d total", source.fileFetches)
	}
}

// TestHandleSourceEventStatus tests the status path: policy, DM lookup,
// channel resolution through the fetched commit, persistence.
func TestHandleSourceEventStatus(t *testing.T) {
	orch, source, chat, store := newTestOrchestrator(t)
	source.commits["deadbeef"] = &FullCommit{SHA: "deadbeef", Files: []string{"pkg/a.go"}}
	chat.users["alice@acme.dev"] = "U42"
	body := []byte(`{
		"sha": "deadbeef",
		"state": "failure",
		"context": "ci/build",
		"commit": {"commit": {"author": {"email": "alice@acme.dev"}}},
		"branches": [{"name": "main"}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "ci"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "status", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle status: %v", err)
	}
	if got := chat.sentTo("chan-pkg"); len(got) != 1 {
		t.Fatalf("expected status on chan-pkg via commit files, got %v", chat.sent)
	}
	if got := chat.sentTo("U42"); len(got) != 1 {
		t.Fatalf("expected direct message to U42, got %v", chat.sent)
	}
	if store.saves != 1 {
		t.Fatalf("status event must persist a snapshot, got %d saves", store.saves)
	}

	// The repeat is suppressed by allow_once but still persists state.
	if err := orch.HandleSourceEvent(context.Background(), "status", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle repeat status: %v", err)
	}
	if got := chat.sentTo("chan-pkg"); len(got) != 1 {
		t.Fatalf("repeated status must be suppressed, got %v", chat.sent)
	}
	if store.saves != 2 {
		t.Fatalf("repeat must still persist, got %d saves", store.saves)
	}
}

// TestHandleSourceEventStatusDMFailure tests that a failed user lookup drops
// only the direct-message leg.
func TestHandleSourceEventStatusDMFailure(t *testing.T) {
	orch, source, chat, _ := newTestOrchestrator(t)
	source.commits["deadbeef"] = &FullCommit{SHA: "deadbeef", Files: []string{"pkg/a.go"}}
	body := []byte(`{
		"sha": "deadbeef",
		"state": "failure",
		"context": "ci/build",
		"commit": {"commit": {"author": {"email": "ghost@acme.dev"}}},
		"branches": [{"name": "main"}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "ci"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "status", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle status: %v", err)
	}
	if got := chat.sentTo("chan-pkg"); len(got) != 1 {
		t.Fatalf("channel leg must survive dm failure, got %v", chat.sent)
	}
}

// TestHandleSourceEventStatusCommitFetchFatal tests that a failed commit
// fetch during channel resolution aborts the request before any send, while
// the policy state written earlier is still persisted.
func TestHandleSourceEventStatusCommitFetchFatal(t *testing.T) {
	orch, source, chat, store := newTestOrchestrator(t)
	source.failCommit = true
	body := []byte(`{
		"sha": "deadbeef",
		"state": "failure",
		"context": "ci/build",
		"branches": [{"name": "main"}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "ci"}
	}`)

	err := orch.HandleSourceEvent(context.Background(), "status", signedHeader("s3cret", body), body)
	if err == nil {
		t.Fatalf("expected commit fetch failure to surface")
	}
	if len(chat.sent) != 0 {
		t.Fatalf("aborted request must not send, got %v", chat.sent)
	}
	if store.saves != 1 {
		t.Fatalf("policy state must still persist, got %d saves", store.saves)
	}
}

// TestHandleSourceEventStatusOutsideAllowList tests that unlisted pipelines
// do nothing.
func TestHandleSourceEventStatusOutsideAllowList(t *testing.T) {
	orch, _, chat, store := newTestOrchestrator(t)
	body := []byte(`{
		"sha": "deadbeef",
		"state": "failure",
		"context": "coverage",
		"branches": [{"name": "main"}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "ci"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "status", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle status: %v", err)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("unlisted pipeline must not notify, got %v", chat.sent)
	}
	// Status events persist regardless of the routing outcome.
	if store.saves != 1 {
		t.Fatalf("expected one save, got %d", store.saves)
	}
}

// TestHandleSourceEventPullRequestReviewers tests label routing plus the
// concurrent reviewer-assignment side task.
func TestHandleSourceEventPullRequestReviewers(t *testing.T) {
	orch, source, chat, _ := newTestOrchestrator(t)
	body := []byte(`{
		"action": "labeled",
		"pull_request": {
			"number": 42, "title": "Add parser",
			"labels": [{"name": "bug"}, {"name": "backend"}],
			"user": {"login": "alice"}
		},
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "pull_request", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle pull request: %v", err)
	}
	if got := chat.sentTo("chan-bugs"); len(got) != 1 {
		t.Fatalf("expected message on chan-bugs, got %v", chat.sent)
	}
	if len(source.reviewerReqs) != 1 {
		t.Fatalf("expected one reviewer request, got %v", source.reviewerReqs)
	}
}

// TestHandleSourceEventGeneric tests that unrecognized kinds only log.
func TestHandleSourceEventGeneric(t *testing.T) {
	orch, _, chat, _ := newTestOrchestrator(t)
	body := []byte(`{
		"action": "created",
		"repository": {"html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)

	if err := orch.HandleSourceEvent(context.Background(), "deployment", signedHeader("s3cret", body), body); err != nil {
		t.Fatalf("handle generic: %v", err)
	}
	if len(chat.sent) != 0 {
		t.Fatalf("generic events must not send, got %v", chat.sent)
	}
}

// TestHandleSourceEventSendFailure tests that a send error is surfaced to
// the caller after all sends were attempted.
func TestHandleSourceEventSendFailure(t *testing.T) {
	orch, _, chat, _ := newTestOrchestrator(t)
	chat.sendErr = errors.New("channel archived")
	body := []byte(`{
		"ref": "refs/heads/develop",
		"commits": [{"id": "abc", "distinct": true, "modified": ["pkg/a.go"]}],
		"repository": {"full_name": "acme/herald", "html_url": "` + testRepoURL + `"},
		"sender": {"login": "alice"}
	}`)

	err := orch.HandleSourceEvent(context.Background(), "push", signedHeader("s3cret", body), body)
	if err == nil {
		t.Fatalf("expected send failure to surface")
	}
}
