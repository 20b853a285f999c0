// Command oracle-exchange runs the price oracle and custodial exchange, feeds
// prices into it, and replays the compromised-reporter drill.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/StrathCole/oracle-exchange/pkg/config"
	"github.com/StrathCole/oracle-exchange/pkg/keystore"
	"github.com/StrathCole/oracle-exchange/pkg/logging"
	"github.com/StrathCole/oracle-exchange/pkg/version"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "oracle-exchange",
	Short: "Median price oracle and custodial exchange",
	Long: `oracle-exchange prices a single asset class from the median of a fixed
set of trusted reporters, and sells and buys back assets of that class at
the consensus price.

Commands:
  serve   - Run the oracle and exchange API
  feed    - Post prices to a running server as a trusted reporter
  drill   - Replay the leaked-key scenario and report the escrow drain
  address - Derive a reporter address from a private key`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.AgentString())
	},
}

var (
	generateKey bool
	hdPath      string
)

// addressCmd derives an address from a hex key or mnemonic, or generates one.
var addressCmd = &cobra.Command{
	Use:   "address [hex-key | mnemonic]",
	Short: "Derive the address of a private key",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if generateKey {
			mnemonic, err := keystore.NewMnemonic()
			if err != nil {
				return err
			}
			signer, err := keystore.FromMnemonic(mnemonic, hdPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "address:  %s\nkey:      %s\nmnemonic: %s\n", signer.Address().Hex(), signer.PrivateKeyHex(), mnemonic)
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("expected a hex key, a quoted mnemonic or --generate")
		}
		signer, err := keystore.Load(args[0], hdPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, signer.Address().Hex())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Load environment variables from this file before reading config")

	addressCmd.Flags().BoolVar(&generateKey, "generate", false, "Generate a new mnemonic instead of reading a key")
	addressCmd.Flags().StringVar(&hdPath, "hd-path", keystore.DefaultHDPath, "Derivation path for mnemonics")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(drillCmd)
	rootCmd.AddCommand(addressCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the env file, if present, and then the config file.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
