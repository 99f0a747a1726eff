package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"swap-relay/pkg/policy"
	"swap-relay/pkg/types"
)

type tokenInfo struct {
	mint     string
	decimals int32
}

var knownTokens = map[string]tokenInfo{
	"SOL":  {policy.MintSOL, 9},
	"USDC": {policy.MintUSDC, 6},
	"USDT": {policy.MintUSDT, 6},
}

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 SOL to USDT"
//   - "100 USDC to SOL"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	// Normalize the command
	command = strings.TrimSpace(strings.ToUpper(command))

	// Remove the word "SWAP" if present at the beginning
	command = strings.TrimPrefix(command, "SWAP ")

	// Pattern: <amount> <source_token> TO <dest_token>
	// Matches: "1 SOL TO USDC", "1.5 SOL TO USDT", "100.25 USDC TO SOL"
	pattern := regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)$`)

	matches := pattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token>' (e.g., 'swap 1 SOL to USDC')")
	}

	req := &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: NormalizeTokenSymbol(matches[2]),
		DestToken:   NormalizeTokenSymbol(matches[3]),
	}

	source, err := resolveToken(req.SourceToken)
	if err != nil {
		return nil, err
	}
	dest, err := resolveToken(req.DestToken)
	if err != nil {
		return nil, err
	}
	req.SourceMint = source.mint
	req.DestMint = dest.mint

	baseUnits, err := toBaseUnits(req.Amount, source.decimals)
	if err != nil {
		return nil, err
	}
	req.AmountBaseUnits = baseUnits

	return req, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.DestinationAddress == "" {
		return fmt.Errorf("destination address is required")
	}
	return nil
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WSOL": "SOL",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}

// FormatBaseUnits renders a smallest-unit amount as a human-readable figure
// for a known token symbol. Unknown symbols are shown in raw units.
func FormatBaseUnits(amount uint64, symbol string) string {
	info, ok := knownTokens[NormalizeTokenSymbol(symbol)]
	if !ok {
		return fmt.Sprintf("%d units", amount)
	}
	return decimal.NewFromUint64(amount).Shift(-info.decimals).String()
}

// SymbolForMint maps a mint address back to its known symbol.
func SymbolForMint(mint string) string {
	for symbol, info := range knownTokens {
		if info.mint == mint {
			return symbol
		}
	}
	return mint
}

func resolveToken(symbol string) (tokenInfo, error) {
	info, ok := knownTokens[symbol]
	if !ok {
		return tokenInfo{}, fmt.Errorf("unknown token %q (try: swap-relay tokens)", symbol)
	}
	return info, nil
}

// toBaseUnits converts a human-readable amount into the token's smallest
// unit. Fractional dust beyond the token's precision is rejected rather than
// silently truncated.
func toBaseUnits(amount string, decimals int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil || d.IsNegative() || d.IsZero() {
		return "", fmt.Errorf("amount must be a positive number, got %q", amount)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return scaled.Truncate(0).String(), nil
}
