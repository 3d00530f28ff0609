// Package escrow holds allocated funds in per-project vaults until oracles
// reach consensus that the corresponding fiat transfer actually happened.
// Managers request releases; oracles confirm them; the threshold confirmation
// settles the transaction exactly once.
package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/pause"
	"custodia/internal/platform/guard"
	"custodia/internal/platform/metrics"
	"custodia/internal/registry"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
)

// Ledger is the slice of the audit ledger the escrow drives. The vault
// account is both minter and burner of its own credit.
type Ledger interface {
	Mint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error
	Burn(ctx context.Context, burner, holder id.AccountID, amount id.Amount) error
}

// ProjectDirectory is the slice of the registry the escrow consults. Vault
// state is derived lazily from project records, so the registry never has to
// call into the escrow.
type ProjectDirectory interface {
	Project(ctx context.Context, projectID id.ProjectID) (registry.Project, error)
	ConsensusThreshold() int
}

// vaultState is the mutable per-project escrow record.
type vaultState struct {
	account        id.AccountID
	manager        id.AccountID
	totalEscrowed  id.Amount
	totalAllocated id.Amount
	totalDisbursed id.Amount
	totalReturned  id.Amount
	nextTx         uint64
	txs            map[id.EscrowTxID]*Transaction
}

// Service manages every project vault. Vaults are instantiated on first
// touch from the registry's project record.
type Service struct {
	opGuard guard.Guard
	mu      sync.RWMutex

	roles    *roles.Service
	source   *asset.Source
	system   *pause.State
	clock    clock.Clock
	audit    *audit.Publisher
	ledger   Ledger
	projects ProjectDirectory
	metrics  *metrics.Metrics
	logger   *slog.Logger

	treasury id.AccountID
	paused   bool
	vaults   map[id.ProjectID]*vaultState
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(
	caps *roles.Service,
	source *asset.Source,
	system *pause.State,
	clk clock.Clock,
	publisher *audit.Publisher,
	ledger Ledger,
	projects ProjectDirectory,
	treasury id.AccountID,
	opts ...Option,
) (*Service, error) {
	if caps == nil || source == nil || system == nil {
		return nil, fmt.Errorf("capability service, asset source and pause state are required")
	}
	if ledger == nil || projects == nil {
		return nil, fmt.Errorf("ledger and project directory are required")
	}
	if treasury.IsZero() {
		return nil, fmt.Errorf("treasury account is required")
	}

	svc := &Service{
		roles:    caps,
		source:   source,
		system:   system,
		clock:    clk,
		audit:    publisher,
		ledger:   ledger,
		projects: projects,
		logger:   slog.Default(),
		treasury: treasury,
		vaults:   make(map[id.ProjectID]*vaultState),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// vault returns the project's escrow record, instantiating it from the
// registry on first touch. Callers hold the write lock.
func (s *Service) vault(ctx context.Context, projectID id.ProjectID) (*vaultState, error) {
	if v, ok := s.vaults[projectID]; ok {
		return v, nil
	}
	project, err := s.projects.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	v := &vaultState{
		account: project.Vault,
		manager: project.Manager,
		txs:     make(map[id.EscrowTxID]*Transaction),
	}
	s.vaults[projectID] = v
	return v, nil
}

func (s *Service) pauseGuard() error {
	if err := s.system.Guard(); err != nil {
		return err
	}
	if s.paused {
		return dErrors.New(dErrors.CodeUnavailable, "escrow is paused")
	}
	return nil
}

// ====================================================================
// Funding
// ====================================================================

// ReceiveAllocation takes custody of an executed allocation. Only the
// treasury pool may fund vaults; the matching audit credit is minted by the
// vault account itself, which the registry provisioned as a minter.
func (s *Service) ReceiveAllocation(ctx context.Context, from id.AccountID, projectID id.ProjectID, amount id.Amount) error {
	if from != s.treasury {
		return dErrors.New(dErrors.CodeForbidden, "only the treasury pool can fund vaults")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "allocation amount must be positive")
	}
	if err := s.pauseGuard(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vault(ctx, projectID)
	if err != nil {
		return err
	}
	if err := s.ledger.Mint(ctx, v.account, v.account, amount); err != nil {
		return err
	}
	v.totalAllocated += amount
	return nil
}

// ====================================================================
// Release lifecycle
// ====================================================================

// RequestRelease opens a release request against the vault's uncommitted
// balance and mints a matching receipt, so outstanding vault credit reflects
// the allocation plus every pending commitment. Only the project's manager
// may request.
func (s *Service) RequestRelease(ctx context.Context, caller id.AccountID, projectID id.ProjectID, recipient id.AccountID, amount id.Amount, purpose string) (Transaction, error) {
	if err := s.opGuard.Acquire(); err != nil {
		return Transaction{}, err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapProjectManager); err != nil {
		return Transaction{}, err
	}
	if err := s.pauseGuard(); err != nil {
		return Transaction{}, err
	}
	if !amount.IsPositive() {
		return Transaction{}, dErrors.New(dErrors.CodeInvalidInput, "release amount must be positive")
	}
	if recipient.IsZero() {
		return Transaction{}, dErrors.New(dErrors.CodeInvalidInput, "recipient account is required")
	}
	if purpose == "" {
		return Transaction{}, dErrors.New(dErrors.CodeInvalidInput, "release purpose is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vault(ctx, projectID)
	if err != nil {
		return Transaction{}, err
	}
	if caller != v.manager {
		return Transaction{}, dErrors.New(dErrors.CodeForbidden, "caller is not this project's manager")
	}

	balance, err := s.source.Token().BalanceOf(ctx, v.account)
	if err != nil {
		return Transaction{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vault balance")
	}
	// balance - totalEscrowed is the uncommitted slice; the additive form
	// wraps on near-MaxInt64 amounts.
	if balance-v.totalEscrowed < amount {
		return Transaction{}, dErrors.New(dErrors.CodeLimitExceeded, "insufficient uncommitted vault balance")
	}

	// Receipt first: a mint rejection (daily limit, supply cap) must leave
	// the vault untouched.
	if err := s.ledger.Mint(ctx, v.account, v.account, amount); err != nil {
		return Transaction{}, err
	}

	v.nextTx++
	tx := &Transaction{
		ID:            id.EscrowTxID(v.nextTx),
		Amount:        amount,
		Recipient:     recipient,
		Purpose:       purpose,
		Confirmations: make(map[id.AccountID]bool),
		CreatedAt:     s.clock.Now(),
	}
	v.txs[tx.ID] = tx
	v.totalEscrowed += amount

	if s.metrics != nil {
		s.metrics.ReleaseRequestsTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   recipient,
		Action:    string(audit.EventFiatTransferRequested),
		Amount:    amount,
		Reference: txRef(projectID, tx.ID),
		Reason:    purpose,
	})
	return *tx, nil
}

// ConfirmFiatTransfer records one oracle's attestation that the fiat
// transfer happened. The confirmation that reaches the consensus threshold
// settles the transaction: the receipt is burned and the asset is released
// to the recipient. A settled transaction rejects all further confirmations,
// so settlement is exactly-once.
func (s *Service) ConfirmFiatTransfer(ctx context.Context, caller id.AccountID, projectID id.ProjectID, txID id.EscrowTxID) (Transaction, error) {
	if err := s.opGuard.Acquire(); err != nil {
		return Transaction{}, err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapOracle); err != nil {
		return Transaction{}, err
	}
	if err := s.pauseGuard(); err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vault(ctx, projectID)
	if err != nil {
		return Transaction{}, err
	}
	tx, ok := v.txs[txID]
	if !ok {
		return Transaction{}, dErrors.New(dErrors.CodeNotFound, "escrow transaction not found")
	}
	if tx.Released {
		return Transaction{}, dErrors.New(dErrors.CodeConflict, "transaction already released")
	}
	if tx.Confirmations[caller] {
		return Transaction{}, dErrors.New(dErrors.CodeConflict, "oracle has already confirmed")
	}

	tx.Confirmations[caller] = true
	if s.metrics != nil {
		s.metrics.OracleConfirmations.Inc()
	}
	threshold := s.projects.ConsensusThreshold()
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventFiatTransferConfirmed),
		Reference: txRef(projectID, txID),
		Reason:    fmt.Sprintf("confirmations %d/%d", tx.ConfirmationCount(), threshold),
	})

	if tx.ConfirmationCount() < threshold {
		return *tx, nil
	}

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventConsensusReached),
		Amount:    tx.Amount,
		Reference: txRef(projectID, txID),
	})
	if err := s.settle(ctx, caller, projectID, v, tx); err != nil {
		return Transaction{}, err
	}
	return *tx, nil
}

// settle releases one confirmed transaction: the receipt minted at request
// time is burned, then the asset moves to the recipient. The release flag
// flips before funds move; a failed payout unwinds the flag, the commitment,
// and the burned receipt.
func (s *Service) settle(ctx context.Context, caller id.AccountID, projectID id.ProjectID, v *vaultState, tx *Transaction) error {
	tx.Released = true
	tx.ReleasedAt = s.clock.Now()
	v.totalEscrowed -= tx.Amount

	if err := s.ledger.Burn(ctx, v.account, v.account, tx.Amount); err != nil {
		tx.Released = false
		tx.ReleasedAt = time.Time{}
		v.totalEscrowed += tx.Amount
		return err
	}
	if err := s.source.Token().Transfer(ctx, v.account, tx.Recipient, tx.Amount); err != nil {
		if merr := s.ledger.Mint(ctx, v.account, v.account, tx.Amount); merr != nil {
			s.logger.ErrorContext(ctx, "failed to restore receipt after release failure",
				"project", projectID, "tx", tx.ID, "error", merr)
		}
		tx.Released = false
		tx.ReleasedAt = time.Time{}
		v.totalEscrowed += tx.Amount
		return dErrors.Wrap(err, dErrors.CodeInternal, "release transfer failed")
	}
	v.totalDisbursed += tx.Amount

	if s.metrics != nil {
		s.metrics.ReleasesTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   tx.Recipient,
		Action:    string(audit.EventTokensReleased),
		Amount:    tx.Amount,
		Reference: txRef(projectID, tx.ID),
	})
	return nil
}

// ReturnFunds sends uncommitted vault funds back to the treasury pool. Only
// the project's manager can trigger it, typically after a project winds down.
func (s *Service) ReturnFunds(ctx context.Context, caller id.AccountID, projectID id.ProjectID, amount id.Amount) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	if err := s.pauseGuard(); err != nil {
		return err
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "return amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.vault(ctx, projectID)
	if err != nil {
		return err
	}
	if caller != v.manager {
		return dErrors.New(dErrors.CodeForbidden, "caller is not this project's manager")
	}

	balance, err := s.source.Token().BalanceOf(ctx, v.account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read vault balance")
	}
	if balance-v.totalEscrowed < amount {
		return dErrors.New(dErrors.CodeLimitExceeded, "insufficient uncommitted vault balance")
	}

	if err := s.ledger.Burn(ctx, v.account, v.account, amount); err != nil {
		return err
	}
	if err := s.source.Token().Transfer(ctx, v.account, s.treasury, amount); err != nil {
		if merr := s.ledger.Mint(ctx, v.account, v.account, amount); merr != nil {
			s.logger.ErrorContext(ctx, "failed to restore credit after return failure",
				"project", projectID, "error", merr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "return transfer failed")
	}
	v.totalReturned += amount

	if s.metrics != nil {
		s.metrics.ReturnsTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   s.treasury,
		Action:    string(audit.EventFundsReturned),
		Amount:    amount,
		Reference: txRef(projectID, 0),
	})
	return nil
}

// ====================================================================
// Pausing and reads
// ====================================================================

// Pause halts escrow operations locally, independent of the system pause.
func (s *Service) Pause(ctx context.Context, caller id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Unpause lifts the local escrow pause.
func (s *Service) Unpause(ctx context.Context, caller id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// Vault returns the escrow view of one project.
func (s *Service) Vault(ctx context.Context, projectID id.ProjectID) (Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vault(ctx, projectID)
	if err != nil {
		return Vault{}, err
	}
	return Vault{
		ProjectID:      projectID,
		Account:        v.account,
		Manager:        v.manager,
		TotalEscrowed:  v.totalEscrowed,
		TotalAllocated: v.totalAllocated,
		TotalDisbursed: v.totalDisbursed,
		TotalReturned:  v.totalReturned,
	}, nil
}

// Transaction returns one escrow transaction.
func (s *Service) Transaction(ctx context.Context, projectID id.ProjectID, txID id.EscrowTxID) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vault(ctx, projectID)
	if err != nil {
		return Transaction{}, err
	}
	tx, ok := v.txs[txID]
	if !ok {
		return Transaction{}, dErrors.New(dErrors.CodeNotFound, "escrow transaction not found")
	}
	out := *tx
	out.Confirmations = make(map[id.AccountID]bool, len(tx.Confirmations))
	for k, val := range tx.Confirmations {
		out.Confirmations[k] = val
	}
	return out, nil
}

func txRef(projectID id.ProjectID, txID id.EscrowTxID) string {
	if txID == 0 {
		return fmt.Sprintf("escrow/%d", projectID)
	}
	return fmt.Sprintf("escrow/%d/tx/%d", projectID, txID)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
