package internal

import (
	"sync"

	"herald/pkg/storage"
)

// RepoState is the mutable runtime state for one repository. It is created
// on the first successfully processed event for that repository and lives
// for the process lifetime.
type RepoState struct {
	mu sync.Mutex
	// pipeline -> branch -> last observed status
	statuses map[string]map[string]string
}

func newRepoState() *RepoState {
	return &RepoState{statuses: make(map[string]map[string]string)}
}

// lastStatus and setStatus require s.mu to be held by the caller.
func (s *RepoState) lastStatus(pipeline, branch string) (string, bool) {
	branches, ok := s.statuses[pipeline]
	if !ok {
		return "", false
	}
	status, ok := branches[branch]
	return status, ok
}

func (s *RepoState) setStatus(pipeline, branch, status string) {
	branches, ok := s.statuses[pipeline]
	if !ok {
		branches = make(map[string]string)
		s.statuses[pipeline] = branches
	}
	branches[branch] = status
}

// LastStatus returns the last observed status for (pipeline, branch).
func (s *RepoState) LastStatus(pipeline, branch string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus(pipeline, branch)
}

// SetStatus records the latest observed status for (pipeline, branch).
func (s *RepoState) SetStatus(pipeline, branch, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStatus(pipeline, branch, status)
}

func (s *RepoState) snapshot() map[string]map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]map[string]string, len(s.statuses))
	for pipeline, branches := range s.statuses {
		copied := make(map[string]string, len(branches))
		for branch, status := range branches {
			copied[branch] = status
		}
		out[pipeline] = copied
	}
	return out
}

// StateStore holds per-repository runtime state and the cached bot identity.
// Each repository carries its own lock so read-modify-write spans such as
// the allow-once compare-then-write never interleave.
type StateStore struct {
	mu    sync.RWMutex
	repos map[string]*RepoState
	botID string
}

func NewStateStore() *StateStore {
	return &StateStore{repos: make(map[string]*RepoState)}
}

// Repo finds or creates the runtime state for a repository URL.
func (s *StateStore) Repo(url string) *RepoState {
	s.mu.RLock()
	state, ok := s.repos[url]
	s.mu.RUnlock()
	if ok {
		return state
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok = s.repos[url]; ok {
		return state
	}
	state = newRepoState()
	s.repos[url] = state
	return state
}

// BotIdentity returns the cached chat user id of this bot, if known.
func (s *StateStore) BotIdentity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.botID
}

func (s *StateStore) SetBotIdentity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botID = id
}

// Snapshot exports the whole store for persistence.
func (s *StateStore) Snapshot() storage.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := storage.Snapshot{
		BotIdentity: s.botID,
		Repos:       make(map[string]map[string]map[string]string, len(s.repos)),
	}
	for url, state := range s.repos {
		statuses := state.snapshot()
		if len(statuses) == 0 {
			continue
		}
		snap.Repos[url] = statuses
	}
	return snap
}

// Restore replaces the store contents with a persisted snapshot.
func (s *StateStore) Restore(snap storage.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.botID = snap.BotIdentity
	s.repos = make(map[string]*RepoState, len(snap.Repos))
	for url, statuses := range snap.Repos {
		state := newRepoState()
		for pipeline, branches := range statuses {
			for branch, status := range branches {
				state.setStatus(pipeline, branch, status)
			}
		}
		s.repos[url] = state
	}
}
