package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swap-relay/pkg/policy"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List known tokens and their amount policy",
	Long: `List the tokens with built-in amount thresholds. Any SPL mint address is
accepted for swaps; unknown mints use the default thresholds.`,
	Run: runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(cmd *cobra.Command, _ []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if jsonOutput {
		out := make([]map[string]any, 0)
		for _, mint := range policy.KnownMints() {
			t := policy.ThresholdsFor(mint)
			out = append(out, map[string]any{
				"symbol":      policy.SymbolFor(mint),
				"mint":        mint,
				"minimum":     t.Minimum,
				"warning":     t.Warning,
				"recommended": t.Recommended,
			})
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                        KNOWN TOKENS")
	fmt.Println(strings.Repeat("=", 70))

	for _, mint := range policy.KnownMints() {
		t := policy.ThresholdsFor(mint)
		fmt.Printf("\n  %s\n", color.YellowString(policy.SymbolFor(mint)))
		fmt.Printf("    Mint:        %s\n", color.CyanString(mint))
		fmt.Printf("    Minimum:     %d (smallest units)\n", t.Minimum)
		fmt.Printf("    Warning:     below %d\n", t.Warning)
		fmt.Printf("    Recommended: %d or more\n", t.Recommended)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
