package policy

import (
	"fmt"
	"strconv"
)

// Well-known mint addresses
const (
	MintSOL  = "So11111111111111111111111111111111111111112"
	MintUSDC = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	MintUSDT = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

const lamportsPerSOL = 1_000_000_000

// Thresholds defines the per-asset amount policy, in the asset's smallest unit.
// Minimum is a hard floor; Warning and Recommended only produce advisory messages.
type Thresholds struct {
	Minimum     uint64
	Warning     uint64
	Recommended uint64
}

// The aggregator itself is very permissive (it accepts single smallest units),
// so the hard minimum is 1 everywhere. Warning and recommended levels exist
// purely for quote quality and user experience.
var assetThresholds = map[string]Thresholds{
	MintSOL:  {Minimum: 1, Warning: 100_000, Recommended: 1_000_000},
	MintUSDC: {Minimum: 1, Warning: 100, Recommended: 1_000},
	MintUSDT: {Minimum: 1, Warning: 100, Recommended: 1_000},
}

var defaultThresholds = Thresholds{Minimum: 1, Warning: 100, Recommended: 1_000}

// ThresholdsFor returns the policy table entry for a mint, falling back to the
// default entry for unknown assets.
func ThresholdsFor(mint string) Thresholds {
	if t, ok := assetThresholds[mint]; ok {
		return t
	}
	return defaultThresholds
}

// SymbolFor returns a display name for well-known mints.
func SymbolFor(mint string) string {
	switch mint {
	case MintSOL:
		return "SOL"
	case MintUSDC:
		return "USDC"
	case MintUSDT:
		return "USDT"
	default:
		return "tokens"
	}
}

// KnownMints lists the mints with explicit threshold entries.
func KnownMints() []string {
	return []string{MintSOL, MintUSDC, MintUSDT}
}

// Result is the outcome of classifying a swap request's amount.
// Errors reject the request; Warnings are advisory only.
type Result struct {
	OK       bool
	Errors   []string
	Warnings []string
}

// Classify validates a requested swap amount against the per-asset policy
// table. It is pure: no I/O, deterministic for identical inputs.
func Classify(sourceMint, destMint, amount string) Result {
	var res Result

	if sourceMint == "" {
		res.Errors = append(res.Errors, "sourceAsset is required")
	}
	if destMint == "" {
		res.Errors = append(res.Errors, "destinationAsset is required")
	}
	if sourceMint != "" && sourceMint == destMint {
		res.Errors = append(res.Errors, "sourceAsset and destinationAsset must be different: cannot swap an asset to itself")
	}

	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil || value == 0 {
		res.Errors = append(res.Errors, "amount is required and must be a positive integer in the asset's smallest unit")
		return res
	}

	t := ThresholdsFor(sourceMint)
	symbol := SymbolFor(sourceMint)

	switch {
	case value < t.Minimum:
		res.Errors = append(res.Errors, fmt.Sprintf("amount too small: minimum %d required for %s swaps, got %d", t.Minimum, symbol, value))
	case value < t.Warning:
		res.Warnings = append(res.Warnings, fmt.Sprintf("very small amount: for better rates and reliable quotes, consider using %s or more", formatAmount(t.Warning, sourceMint)))
	case value < t.Recommended:
		res.Warnings = append(res.Warnings, fmt.Sprintf("small amount: for optimal rates, consider using %s or more", formatAmount(t.Recommended, sourceMint)))
	}

	res.OK = len(res.Errors) == 0
	return res
}

// ValidateSlippageBps checks a slippage tolerance expressed in basis points.
func ValidateSlippageBps(bps int) error {
	if bps < 0 || bps > 10_000 {
		return fmt.Errorf("slippageBps must be an integer between 0 and 10000, got %d", bps)
	}
	return nil
}

func formatAmount(value uint64, mint string) string {
	if mint == MintSOL {
		return fmt.Sprintf("%.4f SOL", float64(value)/lamportsPerSOL)
	}
	return fmt.Sprintf("%d %s units", value, SymbolFor(mint))
}
