package internal

import (
	"context"
	"fmt"
	"sync"

	"herald/pkg/storage"
)

// fakeSource is an in-memory SourceClient for tests.
type fakeSource struct {
	mu           sync.Mutex
	files        map[string][]byte
	commits      map[string]*FullCommit
	pulls        map[int]*PullRequestDetails
	issues       map[int]*IssueDetails
	compares     map[string]*CompareDetails
	fileFetches  int
	reviewerReqs [][]string
	failCommit   bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files:    make(map[string][]byte),
		commits:  make(map[string]*FullCommit),
		pulls:    make(map[int]*PullRequestDetails),
		issues:   make(map[int]*IssueDetails),
		compares: make(map[string]*CompareDetails),
	}
}

func (f *fakeSource) FileContent(_ context.Context, _, _, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileFetches++
	data, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no file %s", path)
	}
	return data, nil
}

func (f *fakeSource) Commit(_ context.Context, _, _, sha string) (*FullCommit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCommit {
		return nil, fmt.Errorf("commit fetch unavailable")
	}
	commit, ok := f.commits[sha]
	if !ok {
		return nil, fmt.Errorf("no commit %s", sha)
	}
	return commit, nil
}

func (f *fakeSource) PullRequest(_ context.Context, _, _ string, number int) (*PullRequestDetails, error) {
	pr, ok := f.pulls[number]
	if !ok {
		return nil, fmt.Errorf("no pull request %d", number)
	}
	return pr, nil
}

func (f *fakeSource) Issue(_ context.Context, _, _ string, number int) (*IssueDetails, error) {
	issue, ok := f.issues[number]
	if !ok {
		return nil, fmt.Errorf("no issue %d", number)
	}
	return issue, nil
}

func (f *fakeSource) Compare(_ context.Context, _, _, base, head string) (*CompareDetails, error) {
	cmp, ok := f.compares[base+"..."+head]
	if !ok {
		return nil, fmt.Errorf("no comparison %s...%s", base, head)
	}
	return cmp, nil
}

func (f *fakeSource) RequestReviewers(_ context.Context, _, _ string, number int, reviewers, teams []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewerReqs = append(f.reviewerReqs, append(append([]string{}, reviewers...), teams...))
	return nil
}

// fakeChat records sent messages and unfurls.
type fakeChat struct {
	mu       sync.Mutex
	sent     map[string][]string
	sendErr  error
	users    map[string]string
	identity string
	unfurls  []map[string]Preview
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		sent:     make(map[string][]string),
		users:    make(map[string]string),
		identity: "UBOT",
	}
}

func (f *fakeChat) SendMessage(_ context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent[target] = append(f.sent[target], text)
	return nil
}

func (f *fakeChat) UserIDByEmail(_ context.Context, email string) (string, error) {
	id, ok := f.users[email]
	if !ok {
		return "", fmt.Errorf("no user for %s", email)
	}
	return id, nil
}

func (f *fakeChat) Identity(context.Context) (string, error) {
	return f.identity, nil
}

func (f *fakeChat) Unfurl(_ context.Context, _, _ string, previews map[string]Preview) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unfurls = append(f.unfurls, previews)
	return nil
}

func (f *fakeChat) sentTo(target string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[target]
}

// memStore is an in-memory storage.Store.
type memStore struct {
	mu    sync.Mutex
	snap  storage.Snapshot
	saves int
}

func (m *memStore) Save(_ context.Context, snap storage.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saves++
	return nil
}

func (m *memStore) Load(context.Context) (storage.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memStore) Close() error { return nil }
