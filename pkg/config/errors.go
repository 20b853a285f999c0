package config

import "errors"

var (
	// ErrNoReporters indicates that no trusted reporters are configured.
	ErrNoReporters = errors.New("at least one reporter must be configured")
	// ErrInvalidReporterAddress indicates a malformed reporter address.
	ErrInvalidReporterAddress = errors.New("invalid reporter address")
	// ErrDuplicateReporter indicates the same address appears twice.
	ErrDuplicateReporter = errors.New("duplicate reporter address")
	// ErrAssetClassRequired indicates a missing asset class.
	ErrAssetClassRequired = errors.New("asset_class must be specified")
	// ErrInvalidPrice indicates a price that is not a non-negative decimal.
	ErrInvalidPrice = errors.New("price must be a non-negative decimal")
	// ErrInvalidAggregateMode indicates that the aggregation mode is invalid.
	ErrInvalidAggregateMode = errors.New("invalid aggregate_mode")
	// ErrInvalidMinReports indicates min_reports outside 1..len(reporters).
	ErrInvalidMinReports = errors.New("invalid min_reports")
	// ErrInvalidSupplyCap indicates a negative supply cap.
	ErrInvalidSupplyCap = errors.New("supply_cap must be >= 0")
	// ErrKeyEnvNotSet indicates that a key environment variable is not set.
	ErrKeyEnvNotSet = errors.New("key environment variable not set")
	// ErrUnknownAssetClass indicates the exchange trades a class no reporter prices.
	ErrUnknownAssetClass = errors.New("exchange asset_class has no reporters")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrInvalidJournalDriver indicates an unknown journal driver.
	ErrInvalidJournalDriver = errors.New("invalid journal driver")
	// ErrPostgresIncomplete indicates missing Postgres connection settings.
	ErrPostgresIncomplete = errors.New("postgres host, name and user must be specified")
	// ErrInvalidPoolSize indicates min_conns exceeds max_conns.
	ErrInvalidPoolSize = errors.New("min_conns cannot exceed max_conns")
	// ErrFeederKeyRequired indicates the feeder has no signing key.
	ErrFeederKeyRequired = errors.New("feeder key or key_env must be specified")
	// ErrFeederNoPrices indicates the feeder has neither static prices nor an upstream.
	ErrFeederNoPrices = errors.New("feeder needs prices or upstream_url")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
