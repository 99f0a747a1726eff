package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-relay/pkg/policy"
)

func TestParseSwapCommand(t *testing.T) {
	tests := []struct {
		command    string
		sourceMint string
		destMint   string
		baseUnits  string
	}{
		{"swap 1 SOL to USDC", policy.MintSOL, policy.MintUSDC, "1000000000"},
		{"1.5 SOL to USDT", policy.MintSOL, policy.MintUSDT, "1500000000"},
		{"100.25 USDC to SOL", policy.MintUSDC, policy.MintSOL, "100250000"},
		{"swap 0.000000001 sol to usdc", policy.MintSOL, policy.MintUSDC, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			req, err := ParseSwapCommand(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.sourceMint, req.SourceMint)
			assert.Equal(t, tt.destMint, req.DestMint)
			assert.Equal(t, tt.baseUnits, req.AmountBaseUnits)
		})
	}
}

func TestParseSwapCommandRejectsBadInput(t *testing.T) {
	bad := []string{
		"",
		"SOL to USDC",
		"swap one SOL to USDC",
		"swap 1 SOL USDC",
		"swap 1 DOGE to USDC",
		"swap 0.0000000001 SOL to USDC", // below one lamport
	}
	for _, command := range bad {
		_, err := ParseSwapCommand(command)
		assert.Error(t, err, "command %q should be rejected", command)
	}
}

func TestNormalizeTokenSymbol(t *testing.T) {
	assert.Equal(t, "SOL", NormalizeTokenSymbol("wsol"))
	assert.Equal(t, "USDC", NormalizeTokenSymbol(" usdc "))
}

func TestFormatBaseUnits(t *testing.T) {
	assert.Equal(t, "1.5", FormatBaseUnits(1_500_000_000, "SOL"))
	assert.Equal(t, "0.000001", FormatBaseUnits(1, "USDC"))
	assert.Equal(t, "42 units", FormatBaseUnits(42, "UNKNOWN"))
}

func TestSymbolForMint(t *testing.T) {
	assert.Equal(t, "SOL", SymbolForMint(policy.MintSOL))
	assert.Equal(t, "other", SymbolForMint("other"))
}
