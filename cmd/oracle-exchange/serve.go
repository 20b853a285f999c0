package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/oracle-exchange/pkg/aggregator"
	"github.com/StrathCole/oracle-exchange/pkg/config"
	"github.com/StrathCole/oracle-exchange/pkg/custody"
	"github.com/StrathCole/oracle-exchange/pkg/exchange"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/metrics"
	"github.com/StrathCole/oracle-exchange/pkg/oracle"
	"github.com/StrathCole/oracle-exchange/pkg/server/api"
	"github.com/StrathCole/oracle-exchange/pkg/version"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the oracle and exchange API",
	Long: `Seeds the price ledger from the configured reporters, opens the exchange
with its initial escrow and serves the HTTP API. The WebSocket stream and
the metrics endpoint start when enabled in the config.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}
	logger.Info("Starting oracle-exchange", "version", version.Version, "commit", version.Commit)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	j, closeJournal, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		return err
	}
	defer closeJournal()

	ledger, err := buildLedger(ctx, &cfg.Oracle, j, logger)
	if err != nil {
		return err
	}

	ex, err := buildExchange(&cfg.Exchange, ledger, j, logger)
	if err != nil {
		return err
	}

	httpServer := api.NewServer(cfg.Server.HTTP.Addr, ledger, ex, cfg.Server.MaxClockSkew.ToDuration(), logger)
	if cfg.Server.HTTP.TLS.Enabled {
		httpServer.SetTLS(cfg.Server.HTTP.TLS.Cert, cfg.Server.HTTP.TLS.Key)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	if cfg.Server.WebSocket.Enabled {
		ws := api.NewWebSocketServer(cfg.Server.WebSocket.Addr, ledger, logger)
		g.Go(func() error {
			return ws.Start(gctx)
		})
	}

	if cfg.Metrics.Enabled {
		metrics.Init()
		metrics.RecordEscrow(ex.EscrowBalance().InexactFloat64())
		metricsServer := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path)
		g.Go(func() error {
			logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	logger.Info("Exchange open",
		"address", ex.Address().Hex(),
		"asset_class", ex.AssetClass(),
		"escrow", ex.EscrowBalance().String(),
		"reporters", len(cfg.Oracle.Reporters))

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", "error", err)
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// openJournal returns the configured journal and a function releasing it.
func openJournal(ctx context.Context, cfg config.JournalConfig, logger *logging.Logger) (journal.Journal, func(), error) {
	if cfg.Driver != config.JournalPostgres {
		return journal.NewMemoryJournal(), func() {}, nil
	}

	pool, err := journal.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect journal database: %w", err)
	}
	pj := journal.NewPostgresJournal(pool)
	if err := pj.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("Journal connected", "driver", cfg.Driver, "host", cfg.Postgres.Host, "database", cfg.Postgres.Name)
	return pj, pool.Close, nil
}

func buildLedger(ctx context.Context, cfg *config.OracleConfig, j journal.Journal, logger *logging.Logger) (*oracle.PriceLedger, error) {
	reporters := make([]common.Address, len(cfg.Reporters))
	classes := make([]string, len(cfg.Reporters))
	prices := make([]decimal.Decimal, len(cfg.Reporters))
	weights := make(map[common.Address]float64, len(cfg.Reporters))

	for i, rc := range cfg.Reporters {
		addr, err := keystore.ParseAddress(rc.Address)
		if err != nil {
			return nil, fmt.Errorf("reporter %d: %w", i, err)
		}
		price, err := decimal.NewFromString(rc.InitialPrice)
		if err != nil {
			return nil, fmt.Errorf("reporter %d initial price: %w", i, err)
		}
		reporters[i] = addr
		classes[i] = rc.AssetClass
		prices[i] = price
		if rc.Weight > 0 {
			weights[addr] = rc.Weight
		}
	}

	registry, err := oracle.NewTrustRegistry(reporters, classes, prices)
	if err != nil {
		return nil, err
	}

	agg, err := aggregator.NewAggregatorWithConfig(cfg.AggregateMode, logger, &aggregator.AdaptiveConfig{
		Sensitivity: cfg.Adaptive.Sensitivity,
		FinalMode:   cfg.Adaptive.FinalMode,
	})
	if err != nil {
		return nil, err
	}

	return oracle.NewInitializedLedger(ctx, registry, agg, logger.With("component", "ledger"),
		oracle.WithMinReports(cfg.MinReports),
		oracle.WithWeights(weights),
		oracle.WithJournal(j),
	)
}

func buildExchange(cfg *config.ExchangeConfig, ledger *oracle.PriceLedger, j journal.Journal, logger *logging.Logger) (*exchange.Exchange, error) {
	secret, err := cfg.OperatorKeyHex()
	if err != nil {
		return nil, err
	}

	var operator *keystore.Signer
	if secret == "" {
		operator, err = keystore.Generate()
		logger.Warn("No operator key configured, using an ephemeral exchange address")
	} else {
		operator, err = keystore.Load(secret, cfg.OperatorPath)
	}
	if err != nil {
		return nil, fmt.Errorf("operator key: %w", err)
	}

	escrow, err := decimal.NewFromString(cfg.InitialEscrow)
	if err != nil {
		return nil, fmt.Errorf("initial escrow: %w", err)
	}

	return exchange.New(ledger, custody.New(logger.With("component", "custody")), exchange.Config{
		Address:       operator.Address(),
		AssetClass:    cfg.AssetClass,
		InitialEscrow: escrow,
		SupplyCap:     cfg.SupplyCap,
	}, j, logger)
}
