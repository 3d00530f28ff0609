// Package bootstrap assembles the custody services in dependency order and
// seeds the configured capability grants. Both the server binary and the
// end-to-end tests provision through it so wiring never diverges.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/escrow"
	"custodia/internal/ledger"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	"custodia/internal/registry"
	"custodia/internal/roles"
	"custodia/internal/treasury"
	id "custodia/pkg/domain"
	audit "custodia/pkg/platform/audit"
)

// System is the fully wired custody core.
type System struct {
	Roles    *roles.Service
	Clock    clock.Clock
	Pause    *pause.State
	Source   *asset.Source
	Ledger   *ledger.Service
	Registry *registry.Service
	Treasury *treasury.Service
	Escrow   *escrow.Service

	// TreasuryAccount is the pooled custody account everything settles
	// against.
	TreasuryAccount id.AccountID
}

// Provision builds the custody core. A nil token wires the in-process asset,
// which is the development and test configuration.
func Provision(
	ctx context.Context,
	cfg config.Config,
	token asset.Fungible,
	limitStore limits.Store,
	publisher *audit.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*System, error) {
	caps := roles.NewService()
	clk := clock.NewSystem()
	system := pause.NewState()

	if token == nil {
		token = asset.NewMemory(id.AssetDecimals)
	}
	source := asset.NewSource(token)

	admins, err := parseAccounts(cfg.Accounts.Admins)
	if err != nil {
		return nil, fmt.Errorf("admin accounts: %w", err)
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("at least one admin account must be configured")
	}

	treasuryAccount, err := treasuryAccount(cfg.Accounts.Treasury, logger)
	if err != nil {
		return nil, err
	}

	for _, admin := range admins {
		caps.Grant(admin, roles.CapAdmin)
		caps.Grant(admin, roles.CapPauser)
	}
	if err := grantAll(caps, cfg.Accounts.Treasurers, roles.CapTreasurer); err != nil {
		return nil, fmt.Errorf("treasurer accounts: %w", err)
	}
	if err := grantAll(caps, cfg.Accounts.Allocators, roles.CapAllocator); err != nil {
		return nil, fmt.Errorf("allocator accounts: %w", err)
	}
	if err := grantAll(caps, cfg.Accounts.EmergencySigners, roles.CapEmergencySigner); err != nil {
		return nil, fmt.Errorf("emergency signer accounts: %w", err)
	}
	caps.Grant(treasuryAccount, roles.CapMinter)
	caps.Grant(treasuryAccount, roles.CapBurner)

	led, err := ledger.New(
		caps, limitStore, system, clk, publisher,
		id.Amount(cfg.Custody.MaxSupply),
		ledger.WithLogger(logger), ledger.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	if err := led.SetMinterDailyLimit(ctx, admins[0], treasuryAccount, id.Amount(cfg.Custody.TreasuryMinterDailyLimit)); err != nil {
		return nil, fmt.Errorf("treasury mint limit: %w", err)
	}

	reg, err := registry.New(
		ctx, caps, registry.NewMemoryStore(), source, system, clk, publisher,
		led, treasuryAccount,
		registry.Params{
			EmergencyThreshold:  cfg.Custody.EmergencyThreshold,
			OracleConsensus:     cfg.Custody.OracleConsensus,
			VaultDailyMintLimit: id.Amount(cfg.Custody.DefaultMinterDailyLimit),
		},
		registry.WithLogger(logger), registry.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	esc, err := escrow.New(
		caps, source, system, clk, publisher, led, reg, treasuryAccount,
		escrow.WithLogger(logger), escrow.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("escrow: %w", err)
	}

	tre, err := treasury.New(
		caps, treasury.NewMemoryStore(), source, system, clk, publisher,
		led, reg, esc, limitStore, treasuryAccount,
		treasury.Params{
			Quorum:               cfg.Custody.TreasurerQuorum,
			DailyWithdrawalLimit: id.Amount(cfg.Custody.DailyWithdrawalLimit),
		},
		treasury.WithLogger(logger), treasury.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("treasury: %w", err)
	}

	if len(cfg.Accounts.Oracles) > 0 {
		oracles, err := parseAccounts(cfg.Accounts.Oracles)
		if err != nil {
			return nil, fmt.Errorf("oracle accounts: %w", err)
		}
		if err := reg.SetOracles(ctx, admins[0], oracles); err != nil {
			return nil, fmt.Errorf("seed oracle set: %w", err)
		}
	}

	return &System{
		Roles:           caps,
		Clock:           clk,
		Pause:           system,
		Source:          source,
		Ledger:          led,
		Registry:        reg,
		Treasury:        tre,
		Escrow:          esc,
		TreasuryAccount: treasuryAccount,
	}, nil
}

func treasuryAccount(raw string, logger *slog.Logger) (id.AccountID, error) {
	if raw == "" {
		account := id.NewAccountID()
		logger.Warn("no treasury account configured, generated an ephemeral one",
			"account", account,
		)
		return account, nil
	}
	account, err := id.ParseAccountID(raw)
	if err != nil {
		return id.ZeroAccount, fmt.Errorf("treasury account: %w", err)
	}
	return account, nil
}

func parseAccounts(raw []string) ([]id.AccountID, error) {
	out := make([]id.AccountID, 0, len(raw))
	for _, r := range raw {
		account, err := id.ParseAccountID(r)
		if err != nil {
			return nil, err
		}
		out = append(out, account)
	}
	return out, nil
}

func grantAll(caps *roles.Service, raw []string, cap roles.Capability) error {
	accounts, err := parseAccounts(raw)
	if err != nil {
		return err
	}
	for _, account := range accounts {
		caps.Grant(account, cap)
	}
	return nil
}
