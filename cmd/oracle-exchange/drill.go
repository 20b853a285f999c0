package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/StrathCole/oracle-exchange/pkg/drill"
	"github.com/StrathCole/oracle-exchange/pkg/journal"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
)

var (
	drillRemote   string
	drillTimeout  time.Duration
	drillKeys     []string
	drillLowPrice string
)

var drillCmd = &cobra.Command{
	Use:   "drill",
	Short: "Replay the leaked-key scenario and report the escrow drain",
	Long: `Uses leaked reporter keys to lower the median, buys one asset, raises
the median to the full escrow balance, sells the asset back and restores
the original price. Runs against an in-process exchange unless --remote
points at a running server. Prints the report as JSON.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := logging.New(os.Stderr, "text")

		s := drill.DefaultScenario()
		if len(drillKeys) > 0 {
			s.LeakedKeys = drillKeys
		}
		if drillLowPrice != "" {
			low, err := decimal.NewFromString(drillLowPrice)
			if err != nil {
				return err
			}
			s.LowPrice = low
		}

		var venue drill.Venue
		if drillRemote != "" {
			venue = &drill.RemoteVenue{BaseURL: drillRemote, Timeout: drillTimeout}
		} else {
			local, err := drill.NewLocalVenue(cmd.Context(), s, journal.NewMemoryJournal(), logger)
			if err != nil {
				return err
			}
			venue = local
		}

		report, err := drill.Run(cmd.Context(), venue, s, logger)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	drillCmd.Flags().StringVar(&drillRemote, "remote", "", "Base URL of a running server (default: in-process exchange)")
	drillCmd.Flags().DurationVar(&drillTimeout, "timeout", 10*time.Second, "HTTP timeout for --remote")
	drillCmd.Flags().StringSliceVar(&drillKeys, "key", nil, "Leaked reporter key (repeatable, default: the two known leaked keys)")
	drillCmd.Flags().StringVar(&drillLowPrice, "low-price", "", "Price posted before buying (default 0.001)")
}
