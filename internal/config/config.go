// Package config loads collector configuration with layered sources:
// built-in defaults, then an optional YAML file, then TXC_ environment
// variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "TXC_CONFIG"

// DefaultConfigPaths lists where a config file is searched, first match wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tx-collector/config.yaml",
}

// Config is the full collector configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Feeds   FeedsConfig   `koanf:"feeds"`
	Batch   BatchConfig   `koanf:"batch"`
	Storage StorageConfig `koanf:"storage"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// FeedsConfig configures the upstream sources.
type FeedsConfig struct {
	TransactionURL string        `koanf:"transaction_url"`
	StoreDetailURL string        `koanf:"store_detail_url"`
	PageSize       int           `koanf:"page_size"`
	Timeout        time.Duration `koanf:"timeout"`
	CSVPath        string        `koanf:"csv_path"`
}

// BatchConfig configures the scheduled merge run.
type BatchConfig struct {
	Interval          time.Duration `koanf:"interval"`
	Size              int           `koanf:"size"`
	Floor             time.Duration `koanf:"floor"`
	DetailConcurrency int           `koanf:"detail_concurrency"`
}

// StorageConfig configures the JSON file store.
type StorageConfig struct {
	Path string `koanf:"path"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Feeds: FeedsConfig{
			TransactionURL: "http://localhost:4001",
			StoreDetailURL: "http://localhost:4002",
			// The upstream contract treats a page size of 1000 as
			// "return everything in one page".
			PageSize: 1000,
			Timeout:  10 * time.Second,
			CSVPath:  "transaction.csv",
		},
		Batch: BatchConfig{
			Interval:          10 * time.Second,
			Size:              20,
			Floor:             time.Second,
			DetailConcurrency: 4,
		},
		Storage: StorageConfig{
			Path: "db.json",
		},
	}
}

// Load builds the configuration from defaults, config file and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// TXC_FEEDS_TRANSACTION_URL -> feeds.transaction_url
	envProvider := env.Provider("TXC_", ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, "TXC_"))
		for _, section := range []string{"server", "feeds", "batch", "storage"} {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + strings.TrimPrefix(key, section+"_")
			}
		}
		return key
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as runtime faults.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Feeds.PageSize < 1 {
		return fmt.Errorf("config: feeds.page_size must be at least 1")
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("config: batch.size must be at least 1")
	}
	if c.Batch.Interval <= 0 {
		return fmt.Errorf("config: batch.interval must be positive")
	}
	if c.Batch.Floor < 0 {
		return fmt.Errorf("config: batch.floor must not be negative")
	}
	if c.Batch.DetailConcurrency < 1 {
		return fmt.Errorf("config: batch.detail_concurrency must be at least 1")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required")
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
