package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the service configuration. Rule configs are not part of it;
// those live inside each repository and are fetched at runtime.
type AppConfig struct {
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// GitHub configures the source host API client.
	GitHub struct {
		Token   string   `yaml:"token"`
		BaseURL string   `yaml:"base_url"`
		Hosts   []string `yaml:"hosts"`
	} `yaml:"github"`
	// Slack configures the chat platform client and its events endpoint.
	Slack struct {
		Token         string `yaml:"token"`
		SigningSecret string `yaml:"signing_secret"`
		EventsPath    string `yaml:"events_path"`
	} `yaml:"slack"`
	// WebhookPath is the endpoint source host deliveries arrive on.
	WebhookPath string `yaml:"webhook_path"`
	// ConfigFile is the in-repository path of each repository's rule config.
	ConfigFile string `yaml:"config_file"`
	// Storage configures the persistence backend for runtime state.
	Storage StorageConfig `yaml:"storage"`
	// Export configures the processed-event export bus.
	Export ExportConfig `yaml:"export"`
	// Repositories maps repository HTML URLs to their per-repo settings.
	Repositories map[string]RepoConfig `yaml:"repositories"`
}

// RepoConfig is the static per-repository service configuration.
type RepoConfig struct {
	// Secret is the webhook HMAC secret. Empty disables validation.
	Secret string `yaml:"secret"`
	// Pipelines is the allow-list of status contexts considered at all.
	Pipelines []string `yaml:"pipelines"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// LoadConfig loads the service configuration from a YAML file. Environment
// variables in the file are expanded before decoding and defaults applied
// after.
func LoadConfig(path string) (AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhooks/github"
	}
	if cfg.Slack.EventsPath == "" {
		cfg.Slack.EventsPath = "/webhooks/slack"
	}
	if cfg.ConfigFile == "" {
		cfg.ConfigFile = ".herald.yml"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" && cfg.Storage.Driver == "sqlite" {
		cfg.Storage.DSN = "herald.db"
	}
	if cfg.Export.Topic == "" {
		cfg.Export.Topic = "herald.events"
	}
	if cfg.Export.GoChannel.OutputChannelBuffer == 0 {
		cfg.Export.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Export.HTTP.Mode == "" {
		cfg.Export.HTTP.Mode = "topic_url"
	}
	cfg.GitHub.Hosts = ensureHost(cfg.GitHub.Hosts, "github.com")
	if cfg.GitHub.BaseURL != "" {
		if host := hostOf(cfg.GitHub.BaseURL); host != "" {
			cfg.GitHub.Hosts = ensureHost(cfg.GitHub.Hosts, host)
		}
	}
}

func validateConfig(cfg *AppConfig) error {
	if len(cfg.Repositories) == 0 {
		return fmt.Errorf("no repositories configured")
	}
	for url := range cfg.Repositories {
		if strings.TrimSpace(url) == "" {
			return fmt.Errorf("repository with empty url")
		}
	}
	return nil
}

func ensureHost(hosts []string, host string) []string {
	for _, h := range hosts {
		if strings.EqualFold(h, host) {
			return hosts
		}
	}
	return append(hosts, host)
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	host, _, _ := strings.Cut(trimmed, "/")
	return host
}
