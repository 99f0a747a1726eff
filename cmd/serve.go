package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"swap-relay/config"
	"swap-relay/pkg/chain"
	"swap-relay/pkg/jupiter"
	"swap-relay/pkg/server"
	"swap-relay/pkg/swap"
	"swap-relay/pkg/transfer"
	"swap-relay/pkg/wallet"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the swap relayer server",
	Long: `Start the relayer HTTP server. It provisions ephemeral deposit wallets,
quotes swaps through the Jupiter aggregator, and settles proceeds to the
user's destination address.

Required configuration:
  SWAP_RELAY_ENCRYPTION_KEY   64 hex characters, used to encrypt wallet backups`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	cipher, err := wallet.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return err
	}
	backup, err := wallet.NewBoltBackup(cfg.BackupPath)
	if err != nil {
		return err
	}
	defer func() { _ = backup.Close() }()

	registry := wallet.NewRegistry(cipher, backup, log, wallet.WithTTL(cfg.WalletTTL))
	registry.PurgeStaleBackups()

	rpcClient := chain.NewRPCClient(cfg.SolanaRPCURL, cfg.Commitment, cfg.SkipPreflight)
	gateway := jupiter.New(cfg.JupiterAPIURL, log)
	settler := transfer.New(rpcClient, cfg.FeeBufferLamports, log)
	store := swap.NewStore()
	orchestrator := swap.NewOrchestrator(gateway, registry, settler, rpcClient, store, cfg.QuoteTTL, log)
	// An expiring wallet that still holds a deposit must keep its key.
	registry.SetReclaimGuard(orchestrator.FundsAtRest)

	srv := server.New(orchestrator, server.Options{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
		RatePerMinute:  cfg.RatePerMinute,
		QuoteTTL:       cfg.QuoteTTL,
	}, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}
