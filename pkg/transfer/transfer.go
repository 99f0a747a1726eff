package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/rs/zerolog"

	"swap-relay/pkg/chain"
	"swap-relay/pkg/policy"
)

var (
	// ErrInsufficientBalance means the wallet cannot cover both the transfer
	// and the network fee buffer.
	ErrInsufficientBalance = errors.New("transfer: insufficient balance to cover network fees")
	// ErrNoTokensToTransfer means the wallet holds no balance of the asset.
	ErrNoTokensToTransfer = errors.New("transfer: no tokens to transfer")
)

// DefaultFeeBufferLamports is withheld from native transfers to pay the fee.
const DefaultFeeBufferLamports = 10_000

// Service drains an ephemeral wallet into the user's destination after a
// swap lands. Native SOL leaves a fee buffer behind; token transfers move the
// full balance and create the destination token account when missing.
type Service struct {
	chain     chain.Client
	feeBuffer uint64
	log       zerolog.Logger
}

// New creates a transfer service. feeBuffer of zero selects the default.
func New(c chain.Client, feeBuffer uint64, log zerolog.Logger) *Service {
	if feeBuffer == 0 {
		feeBuffer = DefaultFeeBufferLamports
	}
	return &Service{
		chain:     c,
		feeBuffer: feeBuffer,
		log:       log.With().Str("component", "transfer").Logger(),
	}
}

// Settle moves the swap proceeds for mint from the signer's wallet to the
// destination and waits for confirmation. The returned signature identifies
// the forwarding transaction.
func (s *Service) Settle(ctx context.Context, signer solana.PrivateKey, destination solana.PublicKey, mint string) (solana.Signature, error) {
	if mint == policy.MintSOL {
		return s.settleNative(ctx, signer, destination)
	}
	mintKey, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("transfer: invalid mint address %q: %w", mint, err)
	}
	return s.settleToken(ctx, signer, destination, mintKey)
}

func (s *Service) settleNative(ctx context.Context, signer solana.PrivateKey, destination solana.PublicKey) (solana.Signature, error) {
	source := signer.PublicKey()

	balance, err := s.chain.Balance(ctx, source)
	if err != nil {
		return solana.Signature{}, err
	}
	if balance <= s.feeBuffer {
		return solana.Signature{}, fmt.Errorf("%w: balance %d lamports, fee buffer %d", ErrInsufficientBalance, balance, s.feeBuffer)
	}
	amount := balance - s.feeBuffer

	instructions := []solana.Instruction{
		system.NewTransferInstruction(amount, source, destination).Build(),
	}

	sig, err := s.submit(ctx, signer, instructions)
	if err != nil {
		return solana.Signature{}, err
	}

	s.log.Info().
		Str("source", source.String()).
		Str("destination", destination.String()).
		Uint64("lamports", amount).
		Str("signature", sig.String()).
		Msg("forwarded native balance")
	return sig, nil
}

func (s *Service) settleToken(ctx context.Context, signer solana.PrivateKey, destination, mint solana.PublicKey) (solana.Signature, error) {
	source := signer.PublicKey()

	sourceATA, _, err := solana.FindAssociatedTokenAddress(source, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("transfer: failed to derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(destination, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("transfer: failed to derive destination token account: %w", err)
	}

	balance, err := s.chain.TokenBalance(ctx, sourceATA)
	if err != nil {
		return solana.Signature{}, err
	}
	if balance == 0 {
		return solana.Signature{}, ErrNoTokensToTransfer
	}

	var instructions []solana.Instruction

	exists, err := s.chain.AccountExists(ctx, destATA)
	if err != nil {
		return solana.Signature{}, err
	}
	if !exists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(source, destination, mint).Build())
	}

	instructions = append(instructions,
		token.NewTransferInstruction(balance, sourceATA, destATA, source, nil).Build())

	sig, err := s.submit(ctx, signer, instructions)
	if err != nil {
		return solana.Signature{}, err
	}

	s.log.Info().
		Str("source", source.String()).
		Str("destination", destination.String()).
		Str("mint", mint.String()).
		Uint64("amount", balance).
		Bool("created_destination_account", !exists).
		Str("signature", sig.String()).
		Msg("forwarded token balance")
	return sig, nil
}

func (s *Service) submit(ctx context.Context, signer solana.PrivateKey, instructions []solana.Instruction) (solana.Signature, error) {
	blockhash, err := s.chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(signer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("transfer: failed to build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("transfer: failed to sign transaction: %w", err)
	}

	sig, err := s.chain.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if err := s.chain.WaitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}
