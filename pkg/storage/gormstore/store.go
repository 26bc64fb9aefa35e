package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"herald/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config selects the database the snapshot store writes to.
type Config struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

// Store implements storage.Store on top of GORM. Saving replaces the whole
// snapshot inside one transaction, matching the snapshot's whole-value
// semantics.
type Store struct {
	db *gorm.DB
}

type statusRow struct {
	RepoURL   string    `gorm:"column:repo_url;size:512;not null;index"`
	Pipeline  string    `gorm:"column:pipeline;size:255;not null"`
	Branch    string    `gorm:"column:branch;size:255;not null"`
	Status    string    `gorm:"column:status;size:64;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (statusRow) TableName() string { return "pipeline_statuses" }

type identityRow struct {
	ID        int       `gorm:"column:id;primaryKey"`
	BotUserID string    `gorm:"column:bot_user_id;size:64"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (identityRow) TableName() string { return "bot_identity" }

// Open creates a GORM-backed snapshot store.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	db, err := openGorm(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&statusRow{}, &identityRow{}); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	opts := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		return gorm.Open(sqlite.Open(dsn), opts)
	case "postgres", "postgresql":
		return gorm.Open(postgres.Open(dsn), opts)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), opts)
	default:
		return nil, errors.New("unsupported storage driver: " + driver)
	}
}

// Save replaces the persisted snapshot with snap.
func (s *Store) Save(ctx context.Context, snap storage.Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	rows := make([]statusRow, 0)
	for repo, pipelines := range snap.Repos {
		for pipeline, branches := range pipelines {
			for branch, status := range branches {
				rows = append(rows, statusRow{
					RepoURL:  repo,
					Pipeline: pipeline,
					Branch:   branch,
					Status:   status,
				})
			}
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&statusRow{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("1 = 1").Delete(&identityRow{}).Error; err != nil {
			return err
		}
		if snap.BotIdentity != "" {
			return tx.Create(&identityRow{ID: 1, BotUserID: snap.BotIdentity}).Error
		}
		return nil
	})
}

// Load reads the persisted snapshot. An empty database yields an empty
// snapshot, not an error.
func (s *Store) Load(ctx context.Context) (storage.Snapshot, error) {
	snap := storage.Snapshot{Repos: make(map[string]map[string]map[string]string)}
	if s == nil || s.db == nil {
		return snap, errors.New("store is not initialized")
	}
	var rows []statusRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return snap, err
	}
	for _, row := range rows {
		pipelines, ok := snap.Repos[row.RepoURL]
		if !ok {
			pipelines = make(map[string]map[string]string)
			snap.Repos[row.RepoURL] = pipelines
		}
		branches, ok := pipelines[row.Pipeline]
		if !ok {
			branches = make(map[string]string)
			pipelines[row.Pipeline] = branches
		}
		branches[row.Branch] = row.Status
	}
	var identity identityRow
	err := s.db.WithContext(ctx).Take(&identity).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, err
	}
	snap.BotIdentity = identity.BotUserID
	return snap, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
