package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Validate checks configuration for errors
func Validate(cfg *Config) error {
	if err := validateOracleConfig(&cfg.Oracle); err != nil {
		return fmt.Errorf("oracle config: %w", err)
	}

	if err := validateExchangeConfig(&cfg.Exchange, &cfg.Oracle); err != nil {
		return fmt.Errorf("exchange config: %w", err)
	}

	if err := validateServerConfig(&cfg.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateJournalConfig(&cfg.Journal); err != nil {
		return fmt.Errorf("journal config: %w", err)
	}

	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func validateOracleConfig(cfg *OracleConfig) error {
	if len(cfg.Reporters) == 0 {
		return ErrNoReporters
	}

	seen := make(map[common.Address]bool, len(cfg.Reporters))
	for i, r := range cfg.Reporters {
		if !common.IsHexAddress(r.Address) {
			return fmt.Errorf("reporter[%d]: %w: %q", i, ErrInvalidReporterAddress, r.Address)
		}
		addr := common.HexToAddress(r.Address)
		if addr == (common.Address{}) {
			return fmt.Errorf("reporter[%d]: %w: zero address", i, ErrInvalidReporterAddress)
		}
		if seen[addr] {
			return fmt.Errorf("reporter[%d]: %w: %s", i, ErrDuplicateReporter, addr.Hex())
		}
		seen[addr] = true

		if strings.TrimSpace(r.AssetClass) == "" {
			return fmt.Errorf("reporter[%d]: %w", i, ErrAssetClassRequired)
		}
		if err := validatePrice(r.InitialPrice); err != nil {
			return fmt.Errorf("reporter[%d] initial_price: %w", i, err)
		}
		if r.Weight < 0 {
			return fmt.Errorf("reporter[%d]: weight must be >= 0", i)
		}
	}

	switch strings.ToLower(cfg.AggregateMode) {
	case "median", "weighted_median", "average", "adaptive":
	default:
		return fmt.Errorf("%w: %s (must be 'median', 'weighted_median', 'average', or 'adaptive')", ErrInvalidAggregateMode, cfg.AggregateMode)
	}

	if cfg.MinReports < 1 || cfg.MinReports > len(cfg.Reporters) {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidMinReports, cfg.MinReports, len(cfg.Reporters))
	}

	return nil
}

func validateExchangeConfig(cfg *ExchangeConfig, oracle *OracleConfig) error {
	if strings.TrimSpace(cfg.AssetClass) == "" {
		return ErrAssetClassRequired
	}

	priced := false
	for _, r := range oracle.Reporters {
		if r.AssetClass == cfg.AssetClass {
			priced = true
			break
		}
	}
	if !priced {
		return fmt.Errorf("%w: %s", ErrUnknownAssetClass, cfg.AssetClass)
	}

	if err := validatePrice(cfg.InitialEscrow); err != nil {
		return fmt.Errorf("initial_escrow: %w", err)
	}

	if cfg.SupplyCap < 0 {
		return ErrInvalidSupplyCap
	}

	if cfg.OperatorEnv != "" && os.Getenv(cfg.OperatorEnv) == "" {
		return fmt.Errorf("%w: %s", ErrKeyEnvNotSet, cfg.OperatorEnv)
	}

	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.HTTP.TLS.Enabled {
		if cfg.HTTP.TLS.Cert == "" || cfg.HTTP.TLS.Key == "" {
			return ErrTLSConfigIncomplete
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Cert); err != nil {
			return fmt.Errorf("TLS cert file not found: %s", cfg.HTTP.TLS.Cert)
		}
		if _, err := os.Stat(cfg.HTTP.TLS.Key); err != nil {
			return fmt.Errorf("TLS key file not found: %s", cfg.HTTP.TLS.Key)
		}
	}

	return nil
}

func validateJournalConfig(cfg *JournalConfig) error {
	switch strings.ToLower(cfg.Driver) {
	case JournalMemory:
		return nil
	case JournalPostgres:
		pg := cfg.Postgres
		if pg.Host == "" || pg.Name == "" || pg.User == "" {
			return ErrPostgresIncomplete
		}
		if pg.MinConns > pg.MaxConns {
			return fmt.Errorf("%w: %d > %d", ErrInvalidPoolSize, pg.MinConns, pg.MaxConns)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s (must be 'memory' or 'postgres')", ErrInvalidJournalDriver, cfg.Driver)
	}
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	levelValid := false
	for _, l := range validLevels {
		if strings.ToLower(cfg.Level) == l {
			levelValid = true
			break
		}
	}
	if !levelValid {
		return fmt.Errorf("%w: %s (must be one of: %s)", ErrInvalidLogLevel, cfg.Level, strings.Join(validLevels, ", "))
	}

	formatValid := strings.ToLower(cfg.Format) == "json" || strings.ToLower(cfg.Format) == "text"
	if !formatValid {
		return fmt.Errorf("%w: %s (must be 'json' or 'text')", ErrInvalidLogFormat, cfg.Format)
	}

	return nil
}

func validatePrice(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, s)
	}
	return nil
}

// ValidateFeeder checks the feeder section. Only the feed command needs it.
func ValidateFeeder(cfg *FeederConfig) error {
	if cfg.Key == "" && cfg.KeyEnv == "" {
		return ErrFeederKeyRequired
	}
	if cfg.KeyEnv != "" && os.Getenv(cfg.KeyEnv) == "" {
		return fmt.Errorf("%w: %s", ErrKeyEnvNotSet, cfg.KeyEnv)
	}
	if len(cfg.Prices) == 0 && cfg.UpstreamURL == "" {
		return ErrFeederNoPrices
	}
	if len(cfg.AssetClasses) == 0 {
		return fmt.Errorf("feeder: %w", ErrAssetClassRequired)
	}
	for class, p := range cfg.Prices {
		if err := validatePrice(p); err != nil {
			return fmt.Errorf("feeder price %s: %w", class, err)
		}
	}
	if cfg.MaxRetries < 1 {
		return fmt.Errorf("feeder: max_retries must be >= 1, got %d", cfg.MaxRetries)
	}
	return nil
}
