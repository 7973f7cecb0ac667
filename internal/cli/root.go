// Package cli wires the beancounterd commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umpyre/beancounterd/internal/config"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beancounterd",
	Short: "beancounterd - payment ledger and escrow service",
	Long: `beancounterd keeps the money ledger for the messaging platform: client
balances on real and promotional rails, per-message payment escrow, payouts
to connected card-processor accounts, and the RPC surface the rest of the
platform talks to.`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
}

// loadConfig loads the configuration honoring the --conf flag.
func loadConfig() (*config.Config, error) {
	return config.LoadConfig(configFile)
}
