package types

// SwapRequest represents a user's swap command
type SwapRequest struct {
	Amount             string // human-readable, e.g. "1.5"
	AmountBaseUnits    string // smallest units, e.g. lamports
	SourceToken        string
	DestToken          string
	SourceMint         string
	DestMint           string
	DestinationAddress string
	SlippageBps        int
}
