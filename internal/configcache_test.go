package internal

import (
	"context"
	"testing"
)

// TestConfigCacheFetchOnce tests that the rule config is fetched on first
// use only.
func TestConfigCacheFetchOnce(t *testing.T) {
	source := newFakeSource()
	source.files[".herald.yml"] = []byte("prefix:\n  default: chan-default\n")
	cache := NewConfigCache(source, ".herald.yml")
	repo := Repository{FullName: "acme/herald", URL: "https://github.com/acme/herald"}

	for i := 0; i < 3; i++ {
		rs, err := cache.Get(context.Background(), repo)
		if err != nil {
			t.Fatalf("get rules: %v", err)
		}
		if rs.Prefix.Default != "chan-default" {
			t.Fatalf("unexpected rules %+v", rs.Prefix)
		}
	}
	if source.fileFetches != 1 {
		t.Fatalf("expected one fetch, got %d", source.fileFetches)
	}
}

// TestConfigCacheRefreshReplaces tests that Refresh replaces the cached
// value as a whole.
func TestConfigCacheRefreshReplaces(t *testing.T) {
	source := newFakeSource()
	source.files[".herald.yml"] = []byte("prefix:\n  default: chan-old\n")
	cache := NewConfigCache(source, ".herald.yml")
	repo := Repository{FullName: "acme/herald", URL: "https://github.com/acme/herald"}

	if _, err := cache.Get(context.Background(), repo); err != nil {
		t.Fatalf("get rules: %v", err)
	}
	source.files[".herald.yml"] = []byte("prefix:\n  default: chan-new\n")
	rs, err := cache.Refresh(context.Background(), repo)
	if err != nil {
		t.Fatalf("refresh rules: %v", err)
	}
	if rs.Prefix.Default != "chan-new" {
		t.Fatalf("expected refreshed rules, got %+v", rs.Prefix)
	}
	rs, err = cache.Get(context.Background(), repo)
	if err != nil {
		t.Fatalf("get rules: %v", err)
	}
	if rs.Prefix.Default != "chan-new" {
		t.Fatalf("cache not replaced, got %+v", rs.Prefix)
	}
}

// TestConfigCacheRefreshFailure tests that a failed refresh is an error and
// does not poison the cache with a nil value.
func TestConfigCacheRefreshFailure(t *testing.T) {
	source := newFakeSource()
	cache := NewConfigCache(source, ".herald.yml")
	repo := Repository{FullName: "acme/herald", URL: "https://github.com/acme/herald"}

	if _, err := cache.Get(context.Background(), repo); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

// TestTouchesConfig tests the push-changed-config detection.
func TestTouchesConfig(t *testing.T) {
	cache := NewConfigCache(newFakeSource(), ".herald.yml")

	ev := &PushEvent{Commits: []Commit{{Modified: []string{"pkg/a.go"}}}}
	if cache.TouchesConfig(ev) {
		t.Fatalf("unrelated push must not touch config")
	}
	ev = &PushEvent{Commits: []Commit{{Modified: []string{".herald.yml"}}}}
	if !cache.TouchesConfig(ev) {
		t.Fatalf("modified config must be detected")
	}
	ev = &PushEvent{Commits: []Commit{{}, {Added: []string{".herald.yml"}}}}
	if !cache.TouchesConfig(ev) {
		t.Fatalf("added config must be detected")
	}
}
