package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swap-relay/config"
	"swap-relay/pkg/client"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <deposit-address>",
	Short: "Check the status of a swap",
	Long: `Check the state of a swap intent by its deposit address.

Examples:
  swap-relay status <deposit-address>
  swap-relay status <deposit-address> --watch
  swap-relay status <deposit-address> --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	depositAddress := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := client.NewRelayerClient(cfg.RelayerURL)

	if watchStatus {
		watchSwapStatus(apiClient, depositAddress, jsonOutput)
	} else {
		checkSwapStatus(apiClient, depositAddress, jsonOutput)
	}
}

func checkSwapStatus(apiClient *client.RelayerClient, depositAddress string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking swap status..."
		s.Start()
	}

	intent, err := apiClient.Status(depositAddress)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(intent, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayIntentStatus(intent)
	}
}

func watchSwapStatus(apiClient *client.RelayerClient, depositAddress string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	fmt.Printf("\nWatching swap status (Deposit Address: %s)\n", color.CyanString(depositAddress))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()

	// Check immediately first
	if checkAndDisplayStatus(apiClient, depositAddress) {
		return
	}

	// Then check periodically until the intent settles either way
	for range ticker.C {
		if checkAndDisplayStatus(apiClient, depositAddress) {
			return
		}
	}
}

func checkAndDisplayStatus(apiClient *client.RelayerClient, depositAddress string) bool {
	intent, err := apiClient.Status(depositAddress)
	if err != nil {
		color.Red("Error: %v", err)
		return true
	}

	displayIntentStatus(intent)

	switch intent.State {
	case "settled", "cancelled", "failed":
		return true
	}
	return false
}

func displayIntentStatus(intent *client.StatusData) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        SWAP STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Deposit Address: %s\n", color.CyanString(intent.DepositAddress))
	fmt.Printf("  State:           %s\n", getColoredState(intent.State))
	fmt.Printf("  Last Updated:    %s\n", intent.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if intent.FailureStage != "" {
		fmt.Printf("  Failure Stage:   %s\n", intent.FailureStage)
	}
	if intent.WalletRetained {
		color.Yellow("  Deposit wallet retained: funds may still be held at this address")
	}

	if res := intent.Result; res != nil {
		if res.SwapTx != "" {
			fmt.Printf("  Swap Tx:         %s\n", color.HiBlackString(res.SwapTx))
		}
		if res.TransferTx != "" {
			fmt.Printf("  Transfer Tx:     %s\n", color.HiBlackString(res.TransferTx))
		}
		if res.Message != "" {
			fmt.Printf("  Message:         %s\n", res.Message)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredState(state string) string {
	switch state {
	case "settled":
		return color.GreenString(strings.ToUpper(state))
	case "awaiting_confirmation", "executing", "quoted":
		return color.YellowString(strings.ToUpper(state))
	case "failed":
		return color.RedString(strings.ToUpper(state))
	case "cancelled":
		return color.MagentaString(strings.ToUpper(state))
	default:
		return strings.ToUpper(state)
	}
}
