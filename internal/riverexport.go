package internal

import (
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"
)

// RiverExportConfig configures the river job-queue export driver, which
// inserts each record as a job into a River jobs table.
type RiverExportConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Kind        string   `yaml:"kind"`
	Queue       string   `yaml:"queue"`
	Priority    int      `yaml:"priority"`
	MaxAttempts int      `yaml:"max_attempts"`
	Tags        []string `yaml:"tags"`
}

func init() {
	RegisterExportDriver("river", buildRiverExport)
}

func buildRiverExport(cfg ExportConfig, _ watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	river := cfg.River
	if river.DSN == "" {
		return nil, nil, fmt.Errorf("river dsn is required")
	}
	driver := river.Driver
	if driver == "" {
		driver = "postgres"
	}
	if river.Table == "" {
		river.Table = "river_job"
	}
	if river.Kind == "" {
		river.Kind = "herald_export"
	}
	if river.Queue == "" {
		river.Queue = "default"
	}
	if river.MaxAttempts == 0 {
		river.MaxAttempts = 25
	}
	db, err := sql.Open(driver, river.DSN)
	if err != nil {
		return nil, nil, err
	}
	pub := &riverExportPublisher{db: db, cfg: river}
	return pub, nil, nil
}

// riverExportPublisher writes each message as one row in the River jobs
// table, so a River worker pool picks it up.
type riverExportPublisher struct {
	db  *sql.DB
	cfg RiverExportConfig
}

func (p *riverExportPublisher) Publish(topic string, messages ...*message.Message) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		p.cfg.Table,
	)
	metadata := fmt.Sprintf(`{"topic":%q}`, topic)
	for _, msg := range messages {
		_, err := p.db.Exec(
			query,
			string(msg.Payload),
			p.cfg.Kind,
			p.cfg.MaxAttempts,
			metadata,
			p.cfg.Priority,
			p.cfg.Queue,
			pq.Array(p.cfg.Tags),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *riverExportPublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
