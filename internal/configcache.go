package internal

import (
	"context"
	"fmt"
	"sync"
)

// ConfigCache implements the config refresh protocol: rule configuration is
// fetched on first need and cached indefinitely; it is refreshed only when
// a push modifies the designated config file. Replacement is whole-value;
// there is no stale-config fallback on fetch failure.
type ConfigCache struct {
	source SourceClient
	path   string

	mu    sync.Mutex
	cache map[string]*RuleSet
}

func NewConfigCache(source SourceClient, path string) *ConfigCache {
	return &ConfigCache{
		source: source,
		path:   path,
		cache:  make(map[string]*RuleSet),
	}
}

// Get returns the cached rule set for the repository, fetching it first if
// this repository has never been loaded.
func (c *ConfigCache) Get(ctx context.Context, repo Repository) (*RuleSet, error) {
	c.mu.Lock()
	rs, ok := c.cache[repo.URL]
	c.mu.Unlock()
	if ok {
		return rs, nil
	}
	return c.Refresh(ctx, repo)
}

// Refresh fetches the rule config and atomically replaces the cached value.
func (c *ConfigCache) Refresh(ctx context.Context, repo Repository) (*RuleSet, error) {
	owner, name := repo.OwnerAndName()
	data, err := c.source.FileContent(ctx, owner, name, c.path)
	if err != nil {
		return nil, fmt.Errorf("fetch rule config for %s: %w", repo.URL, err)
	}
	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("rule config for %s: %w", repo.URL, err)
	}
	c.mu.Lock()
	c.cache[repo.URL] = rs
	c.mu.Unlock()
	return rs, nil
}

// TouchesConfig reports whether any commit of the push changed the
// designated config file.
func (c *ConfigCache) TouchesConfig(ev *PushEvent) bool {
	for _, commit := range ev.Commits {
		for _, path := range commit.Modified {
			if path == c.path {
				return true
			}
		}
		for _, path := range commit.Added {
			if path == c.path {
				return true
			}
		}
	}
	return false
}
