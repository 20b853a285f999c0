package config

import "time"

// Config is the root configuration structure
type Config struct {
	Oracle   OracleConfig   `yaml:"oracle"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Server   ServerConfig   `yaml:"server"`
	Journal  JournalConfig  `yaml:"journal"`
	Feeder   FeederConfig   `yaml:"feeder"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// OracleConfig configures the trusted reporter set and consensus.
type OracleConfig struct {
	Reporters     []ReporterConfig `yaml:"reporters"`
	AggregateMode string           `yaml:"aggregate_mode"` // median, weighted_median, average, adaptive
	MinReports    int              `yaml:"min_reports"`
	Adaptive      AdaptiveConfig   `yaml:"adaptive"`
}

// ReporterConfig is one trusted reporter and the price it is seeded with.
// Each entry contributes one (reporter, asset class, price) seed.
type ReporterConfig struct {
	Address      string  `yaml:"address"`       // 0x-prefixed hex address
	AssetClass   string  `yaml:"asset_class"`   // e.g. "DVNFT"
	InitialPrice string  `yaml:"initial_price"` // decimal string
	Weight       float64 `yaml:"weight"`        // used by weighted aggregation modes
}

// AdaptiveConfig configures the adaptive aggregator.
type AdaptiveConfig struct {
	Sensitivity float64 `yaml:"sensitivity"`
	FinalMode   string  `yaml:"final_mode"`
}

// ExchangeConfig configures the custodial exchange.
type ExchangeConfig struct {
	AssetClass    string `yaml:"asset_class"`
	InitialEscrow string `yaml:"initial_escrow"`   // decimal string
	SupplyCap     int    `yaml:"supply_cap"`       // 0 = unlimited
	OperatorKey   string `yaml:"operator_key"`     // hex private key or mnemonic of the exchange principal
	OperatorEnv   string `yaml:"operator_key_env"` // environment variable holding the key
	OperatorPath  string `yaml:"operator_hd_path"` // mnemonic derivation path
}

// ServerConfig configures the API servers.
type ServerConfig struct {
	HTTP         HTTPConfig `yaml:"http"`
	WebSocket    WSConfig   `yaml:"websocket"`
	MaxClockSkew Duration   `yaml:"max_clock_skew"`
}

// HTTPConfig configures the HTTP server
type HTTPConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// WSConfig configures the WebSocket server
type WSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TLSConfig holds TLS certificate configuration
type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// JournalConfig configures event journaling.
type JournalConfig struct {
	Driver   string         `yaml:"driver"` // memory or postgres
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds connection settings for the journal database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// FeederConfig configures the reporter loop run by the feed command.
type FeederConfig struct {
	ServerURL     string            `yaml:"server_url"`
	Key           string            `yaml:"key"`     // hex private key or mnemonic of the reporter
	KeyEnv        string            `yaml:"key_env"` // environment variable holding the key
	HDPath        string            `yaml:"hd_path"` // mnemonic derivation path
	Prices        map[string]string `yaml:"prices"`  // static prices by asset class
	UpstreamURL   string            `yaml:"upstream_url"`
	AssetClasses  []string          `yaml:"asset_classes"`
	Interval      Duration          `yaml:"interval"`
	MaxRetries    int               `yaml:"max_retries"`
	RetryInterval Duration          `yaml:"retry_interval"`
	Timeout       Duration          `yaml:"timeout"`
}

// MetricsConfig configures Prometheus metrics
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Duration is a wrapper around time.Duration for YAML parsing
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(td)
	return nil
}

// ToDuration converts Duration to time.Duration
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}
