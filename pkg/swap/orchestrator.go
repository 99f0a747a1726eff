package swap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"swap-relay/pkg/chain"
	"swap-relay/pkg/jupiter"
	"swap-relay/pkg/policy"
)

// DefaultQuoteTTL bounds how long a quoted intent stays confirmable.
const DefaultQuoteTTL = 30 * time.Minute

// QuoteGateway produces quotes and execution transactions.
type QuoteGateway interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (*jupiter.Quote, error)
	SwapTransaction(ctx context.Context, q *jupiter.Quote, executorAddress string) ([]byte, error)
}

// WalletRegistry manages ephemeral custodial keypairs. Retain pins a wallet
// against TTL reclamation; a retained wallet survives until Destroy.
type WalletRegistry interface {
	Create(ctx context.Context) (string, error)
	Load(address string) (solana.PrivateKey, error)
	Retain(address string)
	Destroy(address string)
	Live(address string) bool
}

// Settler forwards swap proceeds to the user's destination.
type Settler interface {
	Settle(ctx context.Context, signer solana.PrivateKey, destination solana.PublicKey, mint string) (solana.Signature, error)
}

// InitiateRequest starts a new swap intent.
type InitiateRequest struct {
	SourceMint         string
	DestinationMint    string
	Amount             string
	DestinationAddress string
	SlippageBps        int
}

// ConfirmRequest resolves a pending intent either way.
type ConfirmRequest struct {
	DepositAddress     string
	Confirmed          bool
	DestinationAddress string
	QuoteSnapshot      json.RawMessage
}

// Orchestrator drives a swap intent through its whole life: policy check,
// wallet creation, quoting, confirmation, execution, and settlement. The one
// rule it never bends: a wallet that may still hold user funds is retained,
// never destroyed.
type Orchestrator struct {
	gateway  QuoteGateway
	wallets  WalletRegistry
	settler  Settler
	chain    chain.Client
	store    *Store
	quoteTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewOrchestrator wires the orchestrator. A quoteTTL of zero selects the
// default.
func NewOrchestrator(gateway QuoteGateway, wallets WalletRegistry, settler Settler, c chain.Client, store *Store, quoteTTL time.Duration, log zerolog.Logger) *Orchestrator {
	if quoteTTL == 0 {
		quoteTTL = DefaultQuoteTTL
	}
	return &Orchestrator{
		gateway:  gateway,
		wallets:  wallets,
		settler:  settler,
		chain:    c,
		store:    store,
		quoteTTL: quoteTTL,
		now:      time.Now,
		log:      log.With().Str("component", "orchestrator").Logger(),
	}
}

// Initiate validates the request, provisions an ephemeral deposit wallet,
// fetches a quote bound to it, and parks the intent awaiting confirmation.
// No wallet is created for a request that fails validation, and a wallet
// whose quote fails is reclaimed immediately rather than left to its TTL.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*Intent, error) {
	res := policy.Classify(req.SourceMint, req.DestinationMint, req.Amount)
	if !res.OK {
		return nil, &ValidationError{Problems: res.Errors}
	}
	if err := policy.ValidateSlippageBps(req.SlippageBps); err != nil {
		return nil, NewValidationError(err.Error())
	}
	destination, err := solana.PublicKeyFromBase58(req.DestinationAddress)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("destinationAddress is not a valid address: %v", err))
	}

	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		return nil, NewValidationError("amount is required and must be a positive integer in the asset's smallest unit")
	}

	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = jupiter.DefaultSlippageBps
	}

	depositAddress, err := o.wallets.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: failed to create deposit wallet: %w", err)
	}

	quote, err := o.gateway.Quote(ctx, req.SourceMint, req.DestinationMint, amount, slippage)
	if err != nil {
		o.wallets.Destroy(depositAddress)
		return nil, err
	}
	quote.Warnings = append(res.Warnings, quote.Warnings...)

	now := o.now()
	intent := &Intent{
		ID:                 uuid.NewString(),
		DepositAddress:     depositAddress,
		DestinationAddress: destination.String(),
		SourceMint:         req.SourceMint,
		DestinationMint:    req.DestinationMint,
		Amount:             amount,
		Quote:              quote,
		State:              StateQuoted,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	intent.advance(StateAwaitingConfirmation)
	o.store.Put(intent)

	o.log.Info().
		Str("intent_id", intent.ID).
		Str("deposit_address", depositAddress).
		Str("source_mint", req.SourceMint).
		Str("destination_mint", req.DestinationMint).
		Uint64("amount", amount).
		Msg("swap intent created")
	return intent.Snapshot(), nil
}

// Get returns a read-consistent copy of the intent for a deposit address.
// Execution may be mutating the live intent concurrently; callers get a
// snapshot, never the live pointer.
func (o *Orchestrator) Get(depositAddress string) (*Intent, error) {
	intent, err := o.store.Get(depositAddress)
	if err != nil {
		return nil, err
	}
	return intent.Snapshot(), nil
}

// FundsAtRest reports whether the deposit wallet of a known intent still
// holds user funds. Wired as the wallet registry's reclaim guard so TTL
// expiry cannot zero the key guarding an unclaimed deposit.
func (o *Orchestrator) FundsAtRest(depositAddress string) bool {
	intent, err := o.store.Get(depositAddress)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return o.depositPresent(ctx, intent)
}

// Confirm resolves a pending intent. A declined confirmation cancels it; an
// approved one executes the swap and settles the proceeds. Confirm on a
// terminal intent returns the recorded outcome unchanged, so retries are
// safe. Execution outcomes live on the intent itself; the returned error is
// reserved for request-level problems.
func (o *Orchestrator) Confirm(ctx context.Context, req ConfirmRequest) (*Intent, error) {
	intent, err := o.store.Get(req.DepositAddress)
	if err != nil {
		return nil, err
	}

	intent.mu.Lock()
	defer intent.mu.Unlock()

	if intent.State.Terminal() {
		return intent.snapshotLocked(), nil
	}

	if !req.Confirmed {
		o.cancel(ctx, intent)
		return intent.snapshotLocked(), nil
	}

	if req.DestinationAddress != "" && req.DestinationAddress != intent.DestinationAddress {
		return nil, NewValidationError("destinationAddress does not match the one this swap was created with")
	}
	if intent.QuoteExpired(o.quoteTTL, o.now()) {
		return nil, ErrQuoteExpired
	}
	if len(req.QuoteSnapshot) == 0 {
		return nil, NewValidationError("quoteSnapshot is required to confirm a swap")
	}
	if !snapshotMatches(req.QuoteSnapshot, intent.Quote.Payload) {
		return nil, ErrQuoteMismatch
	}

	if !intent.advance(StateExecuting) {
		return intent.snapshotLocked(), nil
	}
	o.execute(ctx, intent)
	return intent.snapshotLocked(), nil
}

// cancel moves the intent to Cancelled. The wallet is normally reclaimed,
// but a deposit that already arrived makes this an orphaned-funds situation:
// the wallet is retained for manual recovery instead.
func (o *Orchestrator) cancel(ctx context.Context, intent *Intent) {
	intent.advance(StateCancelled)
	intent.Result = &Result{
		Status:  string(StateCancelled),
		Message: "Swap was not confirmed by user",
	}

	if o.depositPresent(ctx, intent) {
		intent.WalletRetained = true
		o.wallets.Retain(intent.DepositAddress)
		o.log.Warn().
			Str("intent_id", intent.ID).
			Str("deposit_address", intent.DepositAddress).
			Msg("cancelled intent has a funded deposit wallet, retaining it for recovery")
		return
	}
	o.wallets.Destroy(intent.DepositAddress)
	o.log.Info().Str("intent_id", intent.ID).Msg("swap cancelled by user")
}

// execute runs the swap leg and then the settlement leg. Callers hold the
// intent lock.
func (o *Orchestrator) execute(ctx context.Context, intent *Intent) {
	signer, err := o.wallets.Load(intent.DepositAddress)
	if err != nil {
		o.failSwap(ctx, intent, "", fmt.Errorf("deposit wallet unavailable: %w", err))
		return
	}

	raw, err := o.gateway.SwapTransaction(ctx, intent.Quote, intent.DepositAddress)
	if err != nil {
		o.failSwap(ctx, intent, "", err)
		return
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		o.failSwap(ctx, intent, "", fmt.Errorf("failed to deserialize swap transaction: %w", err))
		return
	}
	if _, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		o.failSwap(ctx, intent, "", fmt.Errorf("failed to sign swap transaction: %w", err))
		return
	}

	swapSig, err := o.chain.SendTransaction(ctx, tx)
	if err != nil {
		o.failSwap(ctx, intent, "", err)
		return
	}
	if err := o.chain.WaitForConfirmation(ctx, swapSig); err != nil {
		o.failSwap(ctx, intent, swapSig.String(), err)
		return
	}

	o.log.Info().
		Str("intent_id", intent.ID).
		Str("signature", swapSig.String()).
		Msg("swap transaction confirmed")

	destination := solana.MustPublicKeyFromBase58(intent.DestinationAddress)
	transferSig, err := o.settler.Settle(ctx, signer, destination, intent.DestinationMint)
	if err != nil {
		o.failTransfer(intent, swapSig.String(), err)
		return
	}

	intent.advance(StateSettled)
	intent.Result = &Result{
		Status:     string(StateSettled),
		SwapTx:     swapSig.String(),
		TransferTx: transferSig.String(),
		Message:    "Swap and transfer completed successfully",
	}
	o.wallets.Destroy(intent.DepositAddress)

	o.log.Info().
		Str("intent_id", intent.ID).
		Str("swap_tx", swapSig.String()).
		Str("transfer_tx", transferSig.String()).
		Msg("swap settled")
}

// failSwap records a swap-stage failure. The wallet is reclaimed only when it
// provably holds nothing; any doubt means retain.
func (o *Orchestrator) failSwap(ctx context.Context, intent *Intent, swapSig string, cause error) {
	intent.advance(StateFailed)
	intent.FailureStage = StageSwap
	intent.Result = &Result{
		Status: string(StateFailed),
		SwapTx: swapSig,
		Err:    cause.Error(),
	}

	if o.depositPresent(ctx, intent) {
		intent.WalletRetained = true
		o.wallets.Retain(intent.DepositAddress)
		o.log.Error().Err(cause).
			Str("intent_id", intent.ID).
			Str("deposit_address", intent.DepositAddress).
			Msg("swap failed with funds in the deposit wallet, retaining it for recovery")
		return
	}
	o.wallets.Destroy(intent.DepositAddress)
	o.log.Error().Err(cause).Str("intent_id", intent.ID).Msg("swap failed")
}

// failTransfer records a settlement failure. The swap already landed, so the
// proceeds are inside the ephemeral wallet and it must be retained.
func (o *Orchestrator) failTransfer(intent *Intent, swapSig string, cause error) {
	intent.advance(StateFailed)
	intent.FailureStage = StageTransfer
	intent.WalletRetained = true
	o.wallets.Retain(intent.DepositAddress)
	intent.Result = &Result{
		Status:  string(StateFailed),
		SwapTx:  swapSig,
		Err:     cause.Error(),
		Message: "Swap succeeded but forwarding failed; funds are held in the deposit wallet pending recovery",
	}

	o.log.Error().Err(cause).
		Str("intent_id", intent.ID).
		Str("deposit_address", intent.DepositAddress).
		Str("swap_tx", swapSig).
		Msg("transfer failed after swap, retaining deposit wallet")
}

// depositPresent reports whether the deposit wallet holds anything worth
// keeping: native lamports or a balance of the source token. RPC errors
// count as present, erring on the side of retention.
func (o *Orchestrator) depositPresent(ctx context.Context, intent *Intent) bool {
	addr, err := solana.PublicKeyFromBase58(intent.DepositAddress)
	if err != nil {
		return true
	}

	lamports, err := o.chain.Balance(ctx, addr)
	if err != nil {
		return true
	}
	if lamports > 0 {
		return true
	}

	if intent.SourceMint != policy.MintSOL {
		mint, err := solana.PublicKeyFromBase58(intent.SourceMint)
		if err != nil {
			return true
		}
		ata, _, err := solana.FindAssociatedTokenAddress(addr, mint)
		if err != nil {
			return true
		}
		tokens, err := o.chain.TokenBalance(ctx, ata)
		if err != nil || tokens > 0 {
			return true
		}
	}
	return false
}

// snapshotMatches compares two JSON documents ignoring insignificant
// whitespace. The stored payload is never mutated.
func snapshotMatches(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if err := json.Compact(&ca, a); err != nil {
		return false
	}
	if err := json.Compact(&cb, b); err != nil {
		return false
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}
