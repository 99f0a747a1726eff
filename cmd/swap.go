package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swap-relay/config"
	"swap-relay/pkg/client"
	"swap-relay/pkg/deposit"
	"swap-relay/pkg/parser"
)

var (
	destinationAddr string
	slippageBps     int
	noConfirm       bool
	autoDeposit     bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <source-token> to <dest-token>",
	Short: "Perform a token swap through the relay",
	Long: `Swap Solana tokens through a running swap relay.

The relay answers with a one-time deposit address. Fund it with the quoted
amount, then confirm to execute the swap and receive the proceeds at your
destination address.

IMPORTANT:
  - You MUST specify --to (the address that receives the swapped tokens)

Examples:
  # Quote, fund manually, then confirm interactively
  swap-relay swap 1 SOL to USDC --to <your-address>

  # With auto-deposit from the configured funding wallet
  swap-relay swap 0.5 SOL to USDT --to <your-address> --auto-deposit

  # Skip the confirmation prompt
  swap-relay swap 100 USDC to SOL --to <your-address> --auto-deposit --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&destinationAddr, "to", "", "Destination address (REQUIRED - where you'll receive tokens)")
	swapCmd.Flags().IntVar(&slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points (default 50)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	swapCmd.Flags().BoolVar(&autoDeposit, "auto-deposit", false, "Automatically fund the deposit address (requires configuration)")
}

func runSwap(cmd *cobra.Command, args []string) {
	// Parse the command
	commandStr := strings.Join(args, " ")
	swapReq, err := parser.ParseSwapCommand(commandStr)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	swapReq.DestinationAddress = destinationAddr
	swapReq.SlippageBps = slippageBps

	if err := parser.ValidateSwapRequest(swapReq); err != nil {
		printError(err)
		os.Exit(1)
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	apiClient := client.NewRelayerClient(cfg.RelayerURL)

	// Get quote with spinner
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	data, err := apiClient.InitiateSwap(client.SwapRequest{
		SourceAsset:        swapReq.SourceMint,
		DestinationAsset:   swapReq.DestMint,
		Amount:             swapReq.AmountBaseUnits,
		DestinationAddress: swapReq.DestinationAddress,
		SlippageBps:        swapReq.SlippageBps,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printAPIError(err)
		os.Exit(1)
	}

	if verbose {
		fmt.Printf("\nQuote received:\n")
		dataJSON, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(dataJSON))
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayQuote(data, swapReq.SourceToken, swapReq.DestToken)
	}

	// Fund the deposit address
	if autoDeposit || cfg.AutoDeposit.Enabled {
		if err := handleAutoDeposit(cfg, data.DepositAddress, swapReq.SourceMint, swapReq.AmountBaseUnits, noConfirm); err != nil {
			color.Red("\nAuto-deposit failed: %v", err)
			color.Yellow("Please send the deposit manually to: %s\n", data.DepositAddress)
		}
	} else if !jsonOutput {
		displayDepositInstructions(data, swapReq.Amount, swapReq.SourceToken)
	}

	// Ask for confirmation
	confirmed := noConfirm || jsonOutput
	if !confirmed {
		confirmed = confirmSwap()
	}

	if !jsonOutput {
		s.Suffix = " Executing swap..."
		if !confirmed {
			s.Suffix = " Cancelling..."
		}
		s.Start()
	}

	outcome, err := apiClient.Confirm(client.ConfirmRequest{
		DepositAddress:     data.DepositAddress,
		Confirmation:       confirmed,
		DestinationAddress: swapReq.DestinationAddress,
		QuoteSnapshot:      data.Quote,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printAPIError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(outcome, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displayOutcome(outcome, data.DepositAddress)
}

func handleAutoDeposit(cfg *config.Config, depositAddress, mint, amount string, skipConfirm bool) error {
	depositMgr, err := deposit.NewManager(cfg)
	if err != nil {
		return err
	}
	if !depositMgr.IsEnabled() {
		return fmt.Errorf("auto-deposit is not enabled in configuration")
	}

	symbol := parser.SymbolForMint(mint)
	color.Yellow("\nInitiating auto-deposit...\n")
	fmt.Printf("  Amount:  %s %s\n", parser.FormatBaseUnits(mustUint(amount), symbol), symbol)
	fmt.Printf("  To:      %s\n", depositAddress)

	if !skipConfirm {
		if !confirmAutoDeposit() {
			return fmt.Errorf("auto-deposit cancelled by user")
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Sending deposit..."
	s.Start()

	txid, err := depositMgr.SendDeposit(depositAddress, mint, amount)
	s.Stop()

	if err != nil {
		return err
	}

	color.Green("\nDeposit sent successfully!")
	fmt.Printf("  Transaction ID: %s\n", color.CyanString(txid))
	return nil
}

func displayQuote(data *client.SwapData, sourceToken, destToken string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Deposit Address:   %s\n", color.CyanString(data.DepositAddress))
	fmt.Printf("  From:              %s %s\n", parser.FormatBaseUnits(data.Swap.InputAmount, sourceToken), color.YellowString(sourceToken))
	fmt.Printf("  To:                ~%s %s\n", parser.FormatBaseUnits(data.Swap.ExpectedOutputAmount, destToken), color.YellowString(destToken))
	fmt.Printf("  Price Impact:      %s%%\n", data.Swap.PriceImpactPct)
	fmt.Printf("  Slippage:          %d bps\n", data.Swap.SlippageBps)
	fmt.Printf("  Quote Expires:     %s\n", data.ExpiresAt.Local().Format("2006-01-02 15:04:05"))

	for _, warning := range data.Warnings {
		color.Yellow("\n  Warning: %s", warning)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayDepositInstructions(data *client.SwapData, amount, sourceToken string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Yellow("                 DEPOSIT INSTRUCTIONS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\nTo complete the swap, send %s %s to:\n\n", amount, sourceToken)
	color.Cyan("  %s\n", data.DepositAddress)
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func displayOutcome(outcome *client.ConfirmOutcome, depositAddress string) {
	switch outcome.Status {
	case "completed":
		color.Green("\nSwap and transfer completed successfully!")
		if outcome.Data != nil {
			fmt.Printf("  Swap Tx:     %s\n", color.CyanString(outcome.Data.ExplorerLinks.SwapTx))
			fmt.Printf("  Transfer Tx: %s\n", color.CyanString(outcome.Data.ExplorerLinks.TransferTx))
		}
	case "cancelled":
		fmt.Println("\nSwap cancelled.")
		if outcome.Message != "" {
			fmt.Printf("  %s\n", outcome.Message)
		}
	case "failed":
		color.Red("\nSwap failed.")
		if outcome.Error != "" {
			fmt.Printf("  Reason: %s\n", outcome.Error)
		}
		if outcome.SwapTx != "" {
			fmt.Printf("  Swap Tx: %s\n", color.CyanString(explorerURL(outcome.SwapTx)))
		}
		if outcome.WalletRetained {
			color.Yellow("  Funds are held in the deposit wallet pending recovery: %s", depositAddress)
		}
	default:
		fmt.Printf("\nSwap status: %s\n", outcome.Status)
	}
	fmt.Println()
}

func explorerURL(signature string) string {
	return "https://solscan.io/tx/" + signature
}

func printAPIError(err error) {
	printError(err)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && len(apiErr.Suggestions) > 0 {
		fmt.Println("Suggestions:")
		for _, suggestion := range apiErr.Suggestions {
			fmt.Printf("  - %s\n", suggestion)
		}
		fmt.Println()
	}
}

func mustUint(amount string) uint64 {
	var v uint64
	_, _ = fmt.Sscanf(amount, "%d", &v)
	return v
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func confirmAutoDeposit() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with auto-deposit? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
