package deposit

import (
	"fmt"

	"swap-relay/config"
	"swap-relay/pkg/chain"
)

// Depositor sends funds to an ephemeral deposit address
type Depositor interface {
	SendDeposit(depositAddress, mint, amount string) (string, error)
}

// Manager handles auto-deposit from a locally configured funding wallet
type Manager struct {
	config    config.AutoDepositConfig
	depositor Depositor
}

// NewManager creates a new deposit manager
func NewManager(cfg *config.Config) (*Manager, error) {
	m := &Manager{config: cfg.AutoDeposit}
	if !cfg.AutoDeposit.Enabled {
		return m, nil
	}

	client := chain.NewRPCClient(cfg.SolanaRPCURL, cfg.Commitment, cfg.SkipPreflight)
	depositor, err := NewSolanaDepositor(cfg.AutoDeposit, client)
	if err != nil {
		return nil, err
	}
	m.depositor = depositor
	return m, nil
}

// IsEnabled returns whether auto-deposit is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled && m.depositor != nil
}

// SendDeposit funds the deposit address with the given amount, expressed in
// the asset's smallest unit. Returns the transaction signature.
func (m *Manager) SendDeposit(depositAddress, mint, amount string) (string, error) {
	if !m.IsEnabled() {
		return "", fmt.Errorf("auto-deposit is not enabled in configuration")
	}
	return m.depositor.SendDeposit(depositAddress, mint, amount)
}
