package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// ExportRecord is the message published on the export bus for every
// processed event, so downstream consumers can audit or fan out further.
type ExportRecord struct {
	Time       time.Time `json:"time"`
	Kind       string    `json:"kind"`
	Repository string    `json:"repository"`
	Summary    string    `json:"summary"`
	Targets    []string  `json:"targets,omitempty"`
}

// ExportConfig selects and configures the export bus drivers.
type ExportConfig struct {
	Enabled bool     `yaml:"enabled"`
	Driver  string   `yaml:"driver"`
	Drivers []string `yaml:"drivers"`
	Topic   string   `yaml:"topic"`

	GoChannel GoChannelConfig   `yaml:"gochannel"`
	Kafka     KafkaConfig       `yaml:"kafka"`
	NATS      NATSConfig        `yaml:"nats"`
	AMQP      AMQPConfig        `yaml:"amqp"`
	SQL       SQLExportConfig   `yaml:"sql"`
	HTTP      HTTPExportConfig  `yaml:"http"`
	River     RiverExportConfig `yaml:"river"`
}

type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_channel_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type NATSConfig struct {
	URL       string `yaml:"url"`
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
}

type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

type SQLExportConfig struct {
	Driver           string `yaml:"driver"`
	Dialect          string `yaml:"dialect"`
	DSN              string `yaml:"dsn"`
	InitializeSchema bool   `yaml:"initialize_schema"`
}

type HTTPExportConfig struct {
	Mode    string `yaml:"mode"`
	BaseURL string `yaml:"base_url"`
}

// Exporter publishes export records through one or more bus drivers. A nil
// Exporter is valid and publishes nothing.
type Exporter struct {
	topic      string
	publishers map[string]message.Publisher
	closers    []func() error
}

// ExportDriverFactory builds a publisher for a custom driver name.
type ExportDriverFactory func(cfg ExportConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var exportFactories = map[string]ExportDriverFactory{
	"gochannel": buildGoChannelExport,
}

// RegisterExportDriver makes a custom driver available to NewExporter.
func RegisterExportDriver(name string, factory ExportDriverFactory) {
	if name == "" || factory == nil {
		return
	}
	exportFactories[strings.ToLower(name)] = factory
}

// NewExporter builds the configured export drivers. Drivers that fail to
// initialize are skipped with a log line; only an empty result is an error.
func NewExporter(cfg ExportConfig) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}

	exporter := &Exporter{
		topic:      cfg.Topic,
		publishers: make(map[string]message.Publisher, len(drivers)),
	}
	for _, driver := range drivers {
		key := strings.ToLower(driver)
		pub, closeFn, err := retryExportBuild(func() (message.Publisher, func() error, error) {
			return newExportPublisher(cfg, key, logger)
		})
		if err != nil {
			logger.Error("export driver init failed, skipping", err, watermill.LogFields{"driver": key})
			continue
		}
		exporter.publishers[key] = pub
		if closeFn != nil {
			exporter.closers = append(exporter.closers, closeFn)
		}
	}
	if len(exporter.publishers) == 0 {
		return nil, errors.New("no export drivers available")
	}
	return exporter, nil
}

func newExportPublisher(cfg ExportConfig, driver string, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	switch driver {
	case "http":
		mode := strings.ToLower(cfg.HTTP.Mode)
		if mode != "topic_url" && mode != "base_url" {
			return nil, nil, fmt.Errorf("unsupported http mode: %s", cfg.HTTP.Mode)
		}
		if mode == "base_url" && cfg.HTTP.BaseURL == "" {
			return nil, nil, fmt.Errorf("http base_url is required for base_url mode")
		}
		pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
				target, err := httpExportTarget(cfg.HTTP, topic)
				if err != nil {
					return nil, err
				}
				return wmhttp.DefaultMarshalMessageFunc(target, msg)
			},
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, nil, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, fmt.Errorf("kafka brokers are required")
		}
		pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, nil, nil
	case "nats":
		if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
			return nil, nil, fmt.Errorf("nats cluster_id and client_id are required")
		}
		natsCfg := wmnats.StreamingPublisherConfig{
			ClusterID: cfg.NATS.ClusterID,
			ClientID:  cfg.NATS.ClientID,
			Marshaler: wmnats.GobMarshaler{},
		}
		if cfg.NATS.URL != "" {
			natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
		}
		pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, nil, nil
	case "amqp":
		if cfg.AMQP.URL == "" {
			return nil, nil, fmt.Errorf("amqp url is required")
		}
		amqpCfg, err := amqpExportConfig(cfg.AMQP.URL, cfg.AMQP.Mode)
		if err != nil {
			return nil, nil, err
		}
		pub, err := wmamqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, nil, nil
	case "sql":
		if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
			return nil, nil, fmt.Errorf("sql driver and dsn are required")
		}
		schemaAdapter, err := sqlExportSchema(cfg.SQL.Dialect)
		if err != nil {
			return nil, nil, err
		}
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, nil, err
		}
		pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
			SchemaAdapter:        schemaAdapter,
			AutoInitializeSchema: cfg.SQL.InitializeSchema,
		}, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pub, db.Close, nil
	default:
		if factory, ok := exportFactories[driver]; ok {
			return factory(cfg, logger)
		}
		return nil, nil, fmt.Errorf("unsupported export driver: %s", driver)
	}
}

func retryExportBuild(build func() (message.Publisher, func() error, error)) (message.Publisher, func() error, error) {
	const attempts = 5
	const delay = 2 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		pub, closeFn, err := build()
		if err == nil {
			return pub, closeFn, nil
		}
		lastErr = err
		time.Sleep(delay)
	}
	return nil, nil, lastErr
}

// Publish sends the record to every built driver. Failures are joined so one
// broken driver does not hide the others.
func (e *Exporter) Publish(record ExportRecord) error {
	if e == nil {
		return nil
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	var errs error
	for driver, pub := range e.publishers {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if publishErr := pub.Publish(e.topic, msg); publishErr != nil {
			errs = errors.Join(errs, fmt.Errorf("driver %s: %w", driver, publishErr))
		}
	}
	return errs
}

func (e *Exporter) Close() error {
	if e == nil {
		return nil
	}
	var errs error
	for _, pub := range e.publishers {
		errs = errors.Join(errs, pub.Close())
	}
	for _, closeFn := range e.closers {
		errs = errors.Join(errs, closeFn())
	}
	return errs
}

func buildGoChannelExport(cfg ExportConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	pub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
			Persistent:                     cfg.GoChannel.Persistent,
			BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
		},
		logger,
	)
	return pub, nil, nil
}

func amqpExportConfig(url, mode string) (wmamqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlExportSchema(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}

func httpExportTarget(cfg HTTPExportConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", fmt.Errorf("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", fmt.Errorf("http base_url is empty")
		}
		if topic == "" {
			return strings.TrimRight(cfg.BaseURL, "/"), nil
		}
		return strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
