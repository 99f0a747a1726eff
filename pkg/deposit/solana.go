package deposit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"swap-relay/config"
	"swap-relay/pkg/chain"
	"swap-relay/pkg/policy"
)

const depositTimeout = 2 * time.Minute

// feePadLamports is the headroom kept for the deposit transaction fee.
const feePadLamports = 5_000

// SolanaDepositor sends deposits from a locally configured funding wallet
type SolanaDepositor struct {
	client     chain.Client
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewSolanaDepositor creates a new Solana depositor
func NewSolanaDepositor(cfg config.AutoDepositConfig, client chain.Client) (*SolanaDepositor, error) {
	if cfg.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured for auto-deposit")
	}

	privateKey, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &SolanaDepositor{
		client:     client,
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

// SendDeposit sends amount (smallest units) of mint to the deposit address.
// The native asset goes as a system transfer; anything else as an SPL token
// transfer with destination account creation when needed.
func (s *SolanaDepositor) SendDeposit(depositAddress, mint, amount string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), depositTimeout)
	defer cancel()

	recipient, err := solana.PublicKeyFromBase58(depositAddress)
	if err != nil {
		return "", fmt.Errorf("invalid deposit address: %w", err)
	}
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil || value == 0 {
		return "", fmt.Errorf("invalid amount %q", amount)
	}

	var sig solana.Signature
	if mint == policy.MintSOL {
		sig, err = s.sendNativeSOL(ctx, recipient, value)
	} else {
		sig, err = s.sendSPLToken(ctx, recipient, mint, value)
	}
	if err != nil {
		return "", err
	}
	return sig.String(), nil
}

func (s *SolanaDepositor) sendNativeSOL(ctx context.Context, recipient solana.PublicKey, lamports uint64) (solana.Signature, error) {
	balance, err := s.client.Balance(ctx, s.publicKey)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get balance: %w", err)
	}
	if balance < lamports+feePadLamports {
		return solana.Signature{}, fmt.Errorf("insufficient balance: have %d lamports, need %d (including fees)", balance, lamports+feePadLamports)
	}

	instruction := system.NewTransferInstruction(lamports, s.publicKey, recipient).Build()
	return s.submit(ctx, []solana.Instruction{instruction})
}

func (s *SolanaDepositor) sendSPLToken(ctx context.Context, recipient solana.PublicKey, mintStr string, amount uint64) (solana.Signature, error) {
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid token mint address: %w", err)
	}

	sourceTokenAccount, _, err := solana.FindAssociatedTokenAddress(s.publicKey, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive source token account: %w", err)
	}
	destTokenAccount, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to derive destination token account: %w", err)
	}

	balance, err := s.client.TokenBalance(ctx, sourceTokenAccount)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to get token balance: %w", err)
	}
	if balance < amount {
		return solana.Signature{}, fmt.Errorf("insufficient token balance: have %d, need %d", balance, amount)
	}

	destExists, err := s.client.AccountExists(ctx, destTokenAccount)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to check destination account: %w", err)
	}

	var instructions []solana.Instruction
	if !destExists {
		instructions = append(instructions,
			associatedtokenaccount.NewCreateInstruction(s.publicKey, recipient, mint).Build())
	}
	instructions = append(instructions,
		token.NewTransferInstruction(amount, sourceTokenAccount, destTokenAccount, s.publicKey, nil).Build())

	return s.submit(ctx, instructions)
}

func (s *SolanaDepositor) submit(ctx context.Context, instructions []solana.Instruction) (solana.Signature, error) {
	blockhash, err := s.client.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(s.publicKey))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.client.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	if err := s.client.WaitForConfirmation(ctx, sig); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}
