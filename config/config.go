package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Server settings
	ListenAddr     string
	AllowedOrigins []string
	RatePerMinute  int

	// Solana settings
	SolanaRPCURL  string
	Commitment    string
	SkipPreflight bool

	// Aggregator settings
	JupiterAPIURL string

	// Wallet registry settings
	EncryptionKey string // 64 hex chars (32 bytes)
	WalletTTL     time.Duration
	QuoteTTL      time.Duration
	BackupPath    string

	// Settlement settings
	FeeBufferLamports uint64

	// Client settings (swap/status subcommands)
	RelayerURL  string
	AutoDeposit AutoDepositConfig
}

// AutoDepositConfig configures the optional client-side deposit sender
type AutoDepositConfig struct {
	Enabled    bool
	PrivateKey string // Base58 encoded
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".swap-relay")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("listen_addr", ":3000")
	viper.SetDefault("allowed_origins", []string{"*"})
	viper.SetDefault("rate_per_minute", 120)
	viper.SetDefault("solana_rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("commitment", "confirmed")
	viper.SetDefault("skip_preflight", false)
	viper.SetDefault("jupiter_api_url", "https://quote-api.jup.ag/v6")
	viper.SetDefault("wallet_ttl", time.Hour)
	viper.SetDefault("quote_ttl", 30*time.Minute)
	viper.SetDefault("backup_path", "secrets/wallets.db")
	viper.SetDefault("fee_buffer_lamports", 10000)
	viper.SetDefault("relayer_url", "http://localhost:3000")

	// Read from environment variables
	viper.SetEnvPrefix("SWAP_RELAY")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		ListenAddr:        viper.GetString("listen_addr"),
		AllowedOrigins:    viper.GetStringSlice("allowed_origins"),
		RatePerMinute:     viper.GetInt("rate_per_minute"),
		SolanaRPCURL:      viper.GetString("solana_rpc_url"),
		Commitment:        viper.GetString("commitment"),
		SkipPreflight:     viper.GetBool("skip_preflight"),
		JupiterAPIURL:     viper.GetString("jupiter_api_url"),
		EncryptionKey:     viper.GetString("encryption_key"),
		WalletTTL:         viper.GetDuration("wallet_ttl"),
		QuoteTTL:          viper.GetDuration("quote_ttl"),
		BackupPath:        viper.GetString("backup_path"),
		FeeBufferLamports: viper.GetUint64("fee_buffer_lamports"),
		RelayerURL:        viper.GetString("relayer_url"),
		AutoDeposit: AutoDepositConfig{
			Enabled:    viper.GetBool("auto_deposit.enabled"),
			PrivateKey: viper.GetString("auto_deposit.private_key"),
		},
	}

	globalConfig = cfg
	return cfg, nil
}

// ValidateServer checks the settings required to run the relayer server
func (c *Config) ValidateServer() error {
	if c.EncryptionKey == "" {
		return fmt.Errorf("encryption key not found. Please set SWAP_RELAY_ENCRYPTION_KEY (64 hex characters) or add encryption_key to .swap-relay.yaml")
	}
	if c.WalletTTL <= 0 {
		return fmt.Errorf("wallet_ttl must be positive")
	}
	if c.QuoteTTL <= 0 {
		return fmt.Errorf("quote_ttl must be positive")
	}
	if c.QuoteTTL > c.WalletTTL {
		return fmt.Errorf("quote_ttl (%s) must not exceed wallet_ttl (%s)", c.QuoteTTL, c.WalletTTL)
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		return cfg
	}
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
