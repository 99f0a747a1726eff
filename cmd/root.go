package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "swap-relay",
	Short: "A relayer for Solana token swaps through ephemeral deposit wallets",
	Long: `swap-relay brokers Solana token swaps through short-lived custodial
deposit wallets using the Jupiter aggregator. Run the relayer server, or use
the client subcommands against a running relay.

Examples:
  swap-relay serve
  swap-relay swap 1 SOL to USDC --to <your-address>
  swap-relay status <deposit-address> --watch
  swap-relay tokens`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
