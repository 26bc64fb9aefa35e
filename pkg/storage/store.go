package storage

import "context"

// Snapshot is the whole persisted runtime state: the bot's chat identity
// and the last observed pipeline status per repository, pipeline and
// branch. It is written and read as one value.
type Snapshot struct {
	BotIdentity string
	// repository URL -> pipeline -> branch -> status
	Repos map[string]map[string]map[string]string
}

// Store defines persistence for runtime state snapshots.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	Close() error
}
