package swap

import (
	"sync"
	"time"

	"swap-relay/pkg/jupiter"
)

// State is the lifecycle position of a swap intent.
type State string

const (
	StateQuoted               State = "quoted"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StateSettled              State = "settled"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateSettled, StateCancelled, StateFailed:
		return true
	}
	return false
}

// FailureStage records how far execution got before failing. The stage
// decides the fate of the ephemeral wallet: a swap-stage failure with no
// funds frees it, a transfer-stage failure means the proceeds are stranded
// inside and the wallet must be retained.
type FailureStage string

const (
	StageSwap     FailureStage = "swap"
	StageTransfer FailureStage = "transfer"
)

// Result is the outcome record attached to a terminal intent.
type Result struct {
	Status     string `json:"status"`
	SwapTx     string `json:"swapTransaction,omitempty"`
	TransferTx string `json:"transferTransaction,omitempty"`
	Message    string `json:"message,omitempty"`
	Err        string `json:"error,omitempty"`
}

// Intent is one user's in-flight swap, keyed by its deposit address. Each
// intent carries its own lock so Confirm is serialized per intent while
// other intents proceed.
type Intent struct {
	mu sync.Mutex

	ID                 string         `json:"id"`
	DepositAddress     string         `json:"depositAddress"`
	DestinationAddress string         `json:"destinationAddress"`
	SourceMint         string         `json:"sourceMint"`
	DestinationMint    string         `json:"destinationMint"`
	Amount             uint64         `json:"amount"`
	Quote              *jupiter.Quote `json:"quote"`
	State              State          `json:"state"`
	FailureStage       FailureStage   `json:"failureStage,omitempty"`
	WalletRetained     bool           `json:"walletRetained,omitempty"`
	Result             *Result        `json:"result,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

var transitions = map[State][]State{
	StateQuoted:               {StateAwaitingConfirmation, StateCancelled},
	StateAwaitingConfirmation: {StateExecuting, StateCancelled},
	StateExecuting:            {StateSettled, StateFailed},
}

// advance moves the intent to next if the transition is legal. Callers hold
// the intent lock.
func (i *Intent) advance(next State) bool {
	for _, allowed := range transitions[i.State] {
		if allowed == next {
			i.State = next
			i.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// QuoteExpired reports whether the attached quote has aged past ttl.
func (i *Intent) QuoteExpired(ttl time.Duration, now time.Time) bool {
	if i.Quote == nil {
		return true
	}
	return now.Sub(i.Quote.ComputedAt) > ttl
}

// Snapshot returns a copy safe to read outside the intent lock. The quote and
// its payload are immutable once the intent is stored, so they are shared.
func (i *Intent) Snapshot() *Intent {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.snapshotLocked()
}

// snapshotLocked is Snapshot for callers already holding the intent lock.
func (i *Intent) snapshotLocked() *Intent {
	cp := &Intent{
		ID:                 i.ID,
		DepositAddress:     i.DepositAddress,
		DestinationAddress: i.DestinationAddress,
		SourceMint:         i.SourceMint,
		DestinationMint:    i.DestinationMint,
		Amount:             i.Amount,
		Quote:              i.Quote,
		State:              i.State,
		FailureStage:       i.FailureStage,
		WalletRetained:     i.WalletRetained,
		CreatedAt:          i.CreatedAt,
		UpdatedAt:          i.UpdatedAt,
	}
	if i.Result != nil {
		res := *i.Result
		cp.Result = &res
	}
	return cp
}
