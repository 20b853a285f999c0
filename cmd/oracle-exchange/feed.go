package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/StrathCole/oracle-exchange/pkg/config"
	"github.com/StrathCole/oracle-exchange/pkg/feeder/client"
	"github.com/StrathCole/oracle-exchange/pkg/feeder/reporter"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
)

var feedOnce bool

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Post prices to a running server as a trusted reporter",
	Long: `Signs and posts one price per configured asset class every interval.
Prices come from the static feeder.prices table, or from the consensus of
another server when feeder.upstream_url is set.`,
	RunE: runFeed,
}

func init() {
	feedCmd.Flags().BoolVar(&feedOnce, "once", false, "Post a single round and exit")
}

func runFeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.ValidateFeeder(&cfg.Feeder); err != nil {
		return fmt.Errorf("invalid feeder configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return err
	}

	secret, err := cfg.Feeder.KeyHex()
	if err != nil {
		return err
	}
	signer, err := keystore.Load(secret, cfg.Feeder.HDPath)
	if err != nil {
		return fmt.Errorf("reporter key: %w", err)
	}

	fc := &cfg.Feeder
	poster := client.NewHTTPClient(fc.ServerURL, fc.Timeout.ToDuration(), signer)

	var source reporter.PriceSource
	if fc.UpstreamURL != "" {
		source = reporter.NewUpstreamSource(client.NewHTTPClient(fc.UpstreamURL, fc.Timeout.ToDuration(), nil))
	} else {
		prices := make(map[string]decimal.Decimal, len(fc.Prices))
		for class, p := range fc.Prices {
			prices[class] = decimal.RequireFromString(p)
		}
		source = reporter.NewStaticSource(prices)
	}

	r, err := reporter.New(reporter.Config{
		AssetClasses:  fc.AssetClasses,
		Interval:      fc.Interval.ToDuration(),
		MaxRetries:    fc.MaxRetries,
		RetryInterval: fc.RetryInterval.ToDuration(),
	}, source, poster, logger.ZerologLogger().With().Str("reporter", signer.Address().Hex()).Logger())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if feedOnce {
		return r.RunOnce(ctx)
	}
	if err := r.Start(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}
