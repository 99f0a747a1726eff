package chain

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	defaultPollInterval   = 2 * time.Second
	defaultConfirmTimeout = 90 * time.Second
)

// Client is the narrow view of the ledger RPC the relayer needs: balance
// reads, account existence, transaction submission, and bounded confirmation
// waits. Behind an interface so settlement and orchestration are testable
// without a validator.
type Client interface {
	Balance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature) error
}

// RPCClient implements Client over a Solana JSON-RPC endpoint.
type RPCClient struct {
	rpc            *rpc.Client
	commitment     rpc.CommitmentType
	skipPreflight  bool
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// NewRPCClient connects to the given RPC URL. Commitment is one of
// "processed", "confirmed", or "finalized"; anything else falls back to
// "confirmed".
func NewRPCClient(rpcURL, commitment string, skipPreflight bool) *RPCClient {
	return &RPCClient{
		rpc:            rpc.New(rpcURL),
		commitment:     parseCommitment(commitment),
		skipPreflight:  skipPreflight,
		pollInterval:   defaultPollInterval,
		confirmTimeout: defaultConfirmTimeout,
	}
}

func parseCommitment(commitment string) rpc.CommitmentType {
	switch strings.ToLower(commitment) {
	case "finalized":
		return rpc.CommitmentFinalized
	case "processed":
		return rpc.CommitmentProcessed
	default:
		return rpc.CommitmentConfirmed
	}
}

// Balance returns the native balance in lamports.
func (c *RPCClient) Balance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetBalance(ctx, addr, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("chain: failed to get balance: %w", err)
	}
	return out.Value, nil
}

// TokenBalance returns the token balance of a token account in the token's
// smallest unit. A missing account is reported as zero.
func (c *RPCClient) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	out, err := c.rpc.GetTokenAccountBalance(ctx, tokenAccount, c.commitment)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || strings.Contains(err.Error(), "could not find account") {
			return 0, nil
		}
		return 0, fmt.Errorf("chain: failed to get token balance: %w", err)
	}
	if out.Value == nil || out.Value.Amount == "" {
		return 0, nil
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chain: failed to parse token balance: %w", err)
	}
	return amount, nil
}

// AccountExists checks whether an account exists on-chain.
func (c *RPCClient) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	out, err := c.rpc.GetAccountInfo(ctx, addr)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) || strings.Contains(err.Error(), "not found") {
			return false, nil
		}
		return false, fmt.Errorf("chain: failed to get account info: %w", err)
	}
	return out.Value != nil, nil
}

// LatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("chain: failed to get latest blockhash: %w", err)
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction.
func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       c.skipPreflight,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("chain: failed to send transaction: %w", err)
	}
	return sig, nil
}

// WaitForConfirmation polls signature status until the transaction is
// confirmed or the bounded wait elapses. A transaction that lands with an
// on-chain error fails here, not silently.
func (c *RPCClient) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: confirmation wait for %s timed out: %w", sig, ctx.Err())
		case <-ticker.C:
			out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
			if err != nil {
				continue // transient; next tick retries
			}
			if len(out.Value) == 0 || out.Value[0] == nil {
				continue
			}
			status := out.Value[0]
			if status.Err != nil {
				return fmt.Errorf("chain: transaction %s failed: %v", sig, status.Err)
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				return nil
			}
		}
	}
}
