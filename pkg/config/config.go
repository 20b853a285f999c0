// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// JournalMemory keeps the journal in process memory.
	JournalMemory = "memory"
	// JournalPostgres writes the journal to Postgres.
	JournalPostgres = "postgres"
)

// LoadEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; existing variables win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// Load loads configuration from YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, expanding ${VAR} references first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Oracle.AggregateMode == "" {
		cfg.Oracle.AggregateMode = "median"
	}
	if cfg.Oracle.MinReports == 0 {
		cfg.Oracle.MinReports = 1
	}

	if cfg.Exchange.InitialEscrow == "" {
		cfg.Exchange.InitialEscrow = "0"
	}
	if cfg.Exchange.AssetClass == "" && len(cfg.Oracle.Reporters) > 0 {
		cfg.Exchange.AssetClass = cfg.Oracle.Reporters[0].AssetClass
	}

	if cfg.Server.HTTP.Addr == "" {
		cfg.Server.HTTP.Addr = ":8080"
	}
	if cfg.Server.WebSocket.Enabled && cfg.Server.WebSocket.Addr == "" {
		cfg.Server.WebSocket.Addr = ":8081"
	}
	if cfg.Server.MaxClockSkew.ToDuration() == 0 {
		cfg.Server.MaxClockSkew = Duration(60 * time.Second)
	}

	if cfg.Journal.Driver == "" {
		cfg.Journal.Driver = JournalMemory
	}
	if cfg.Journal.Postgres.Port == 0 {
		cfg.Journal.Postgres.Port = 5432
	}
	if cfg.Journal.Postgres.MaxConns == 0 {
		cfg.Journal.Postgres.MaxConns = 10
	}
	if cfg.Journal.Postgres.MinConns == 0 {
		cfg.Journal.Postgres.MinConns = 1
	}

	if cfg.Feeder.ServerURL == "" {
		cfg.Feeder.ServerURL = "http://localhost:8080"
	}
	if len(cfg.Feeder.AssetClasses) == 0 {
		for class := range cfg.Feeder.Prices {
			cfg.Feeder.AssetClasses = append(cfg.Feeder.AssetClasses, class)
		}
		sort.Strings(cfg.Feeder.AssetClasses)
	}
	if cfg.Feeder.Interval.ToDuration() == 0 {
		cfg.Feeder.Interval = Duration(30 * time.Second)
	}
	if cfg.Feeder.MaxRetries == 0 {
		cfg.Feeder.MaxRetries = 3
	}
	if cfg.Feeder.RetryInterval.ToDuration() == 0 {
		cfg.Feeder.RetryInterval = Duration(2 * time.Second)
	}
	if cfg.Feeder.Timeout.ToDuration() == 0 {
		cfg.Feeder.Timeout = Duration(10 * time.Second)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// OperatorKeyHex returns the exchange operator key, preferring the environment
// variable named by operator_key_env.
func (c *ExchangeConfig) OperatorKeyHex() (string, error) {
	return keyFrom(c.OperatorEnv, c.OperatorKey)
}

// KeyHex returns the reporter key, preferring the environment variable named
// by key_env.
func (c *FeederConfig) KeyHex() (string, error) {
	return keyFrom(c.KeyEnv, c.Key)
}

func keyFrom(envName, literal string) (string, error) {
	if envName != "" {
		key := os.Getenv(envName)
		if key == "" {
			return "", fmt.Errorf("%w: %s", ErrKeyEnvNotSet, envName)
		}
		return strings.TrimSpace(key), nil
	}
	return strings.TrimSpace(literal), nil
}
