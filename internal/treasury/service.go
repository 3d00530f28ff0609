// Package treasury pools donor deposits and disburses them to project escrow
// vaults through quorum-approved allocation proposals. Every asset movement
// is mirrored on the audit ledger: deposits mint credit to the donor,
// withdrawals burn it.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/platform/guard"
	"custodia/internal/platform/metrics"
	"custodia/internal/registry"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
	"custodia/pkg/platform/sentinel"
)

// allocationWindow bounds how long an allocation proposal can collect
// signatures.
const allocationWindow = 7 * 24 * time.Hour

// Store persists allocation proposals.
type Store interface {
	CreateProposal(ctx context.Context, p Proposal) (Proposal, error)
	Proposal(ctx context.Context, proposalID id.ProposalID) (Proposal, error)
	UpdateProposal(ctx context.Context, p Proposal) error
	ListProposals(ctx context.Context) ([]Proposal, error)
}

// Ledger is the slice of the audit ledger the treasury drives.
type Ledger interface {
	CanMint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error
	Mint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error
	Burn(ctx context.Context, burner, holder id.AccountID, amount id.Amount) error
	BalanceOf(ctx context.Context, holder id.AccountID) id.Amount
}

// ProjectDirectory is the slice of the registry the treasury consults.
type ProjectDirectory interface {
	Project(ctx context.Context, projectID id.ProjectID) (registry.Project, error)
	VaultAuthorized(vault id.AccountID) (id.ProjectID, bool)
	RecordAllocation(ctx context.Context, projectID id.ProjectID, amount id.Amount) error
}

// Escrow receives executed allocations on behalf of project vaults.
type Escrow interface {
	ReceiveAllocation(ctx context.Context, from id.AccountID, projectID id.ProjectID, amount id.Amount) error
}

// Params are the treasury knobs fixed at startup.
type Params struct {
	// Quorum is the distinct-treasurer count executing an allocation.
	Quorum int
	// DailyWithdrawalLimit bounds each donor's withdrawals per day.
	DailyWithdrawalLimit id.Amount
}

// Service holds the pooled custody account. The account itself carries the
// minter and burner capabilities used to mirror deposits and withdrawals.
type Service struct {
	opGuard guard.Guard
	mu      sync.RWMutex

	roles    *roles.Service
	store    Store
	source   *asset.Source
	system   *pause.State
	clock    clock.Clock
	audit    *audit.Publisher
	ledger   Ledger
	projects ProjectDirectory
	escrow   Escrow
	limits   limits.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger

	account id.AccountID
	params  Params

	totalDeposited id.Amount
	totalAllocated id.Amount
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
	store Store,
	source *asset.Source,
	system *pause.State,
	clk clock.Clock,
	publisher *audit.Publisher,
	ledger Ledger,
	projects ProjectDirectory,
	escrow Escrow,
	limitStore limits.Store,
	account id.AccountID,
	params Params,
	opts ...Option,
) (*Service, error) {
	if caps == nil || store == nil || source == nil || system == nil {
		return nil, fmt.Errorf("capability service, store, asset source and pause state are required")
	}
	if ledger == nil || projects == nil || escrow == nil || limitStore == nil {
		return nil, fmt.Errorf("ledger, project directory, escrow and limit store are required")
	}
	if account.IsZero() {
		return nil, fmt.Errorf("treasury account is required")
	}
	if params.Quorum < 1 {
		return nil, fmt.Errorf("treasurer quorum must be at least 1")
	}

	svc := &Service{
		roles:    caps,
		store:    store,
		source:   source,
		system:   system,
		clock:    clk,
		audit:    publisher,
		ledger:   ledger,
		projects: projects,
		escrow:   escrow,
		limits:   limitStore,
		logger:   slog.Default(),
		account:  account,
		params:   params,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Account returns the pooled custody account.
func (s *Service) Account() id.AccountID { return s.account }

func withdrawBucket(donor id.AccountID) string { return "withdraw:" + donor.String() }

// ====================================================================
// Deposits and withdrawals
// ====================================================================

// Deposit pulls funds from the donor into the pool and mints matching audit
// credit. The mint is prechecked before the asset moves so a doomed mirror
// can never strand the donor's funds inside the pool.
func (s *Service) Deposit(ctx context.Context, donor id.AccountID, amount id.Amount) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	if err := s.system.Guard(); err != nil {
		return err
	}
	if donor.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "donor account is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "deposit amount must be positive")
	}
	if err := s.ledger.CanMint(ctx, s.account, donor, amount); err != nil {
		return err
	}

	token := s.source.Token()
	if err := token.TransferFrom(ctx, donor, s.account, amount); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConflict, "funding transfer failed")
	}
	if err := s.ledger.Mint(ctx, s.account, donor, amount); err != nil {
		// Return the donor's funds; the deposit never happened.
		if terr := token.Transfer(ctx, s.account, donor, amount); terr != nil {
			s.logger.ErrorContext(ctx, "failed to return funds after mint failure",
				"donor", donor, "amount", amount, "error", terr)
		}
		return err
	}

	s.mu.Lock()
	s.totalDeposited += amount
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.DepositsTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     donor,
		Subject:   s.account,
		Action:    string(audit.EventDepositRecorded),
		Amount:    amount,
		Reference: donorRef(donor),
	})
	return nil
}

// Withdraw burns the donor's audit credit and returns funds from the pool.
// The burn runs first so a donor can never receive funds while keeping
// credit; a failed payout re-mints the burned credit. The daily bucket is
// consumed only after the payout succeeds, so a failed attempt costs no
// allowance.
func (s *Service) Withdraw(ctx context.Context, donor id.AccountID, amount id.Amount) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	if err := s.system.Guard(); err != nil {
		return err
	}
	if donor.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "donor account is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "withdrawal amount must be positive")
	}

	day := id.DayIndex(s.clock.Now().Unix())
	used, err := s.limits.Used(ctx, withdrawBucket(donor), day)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read withdrawal bucket")
	}
	// Subtraction form so a near-MaxInt64 amount cannot wrap past the limit.
	limit := s.params.DailyWithdrawalLimit
	if id.Amount(used) > limit || amount > limit-id.Amount(used) {
		return dErrors.New(dErrors.CodeLimitExceeded, "daily withdrawal limit exceeded")
	}

	if err := s.ledger.Burn(ctx, s.account, donor, amount); err != nil {
		return err
	}
	if err := s.source.Token().Transfer(ctx, s.account, donor, amount); err != nil {
		// Restore the burned credit; the withdrawal never happened.
		if merr := s.ledger.Mint(ctx, s.account, donor, amount); merr != nil {
			s.logger.ErrorContext(ctx, "failed to restore credit after payout failure",
				"donor", donor, "amount", amount, "error", merr)
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "payout transfer failed")
	}
	if err := s.limits.Add(ctx, withdrawBucket(donor), day, int64(amount)); err != nil {
		s.logger.ErrorContext(ctx, "failed to consume withdrawal bucket",
			"donor", donor, "amount", amount, "error", err)
	}

	if s.metrics != nil {
		s.metrics.WithdrawalsTotal.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     donor,
		Subject:   s.account,
		Action:    string(audit.EventWithdrawalRecorded),
		Amount:    amount,
		Reference: donorRef(donor),
	})
	return nil
}

// ====================================================================
// Allocation proposals
// ====================================================================

// ProposeAllocation opens a quorum proposal to fund a project's escrow
// vault. The proposer's own signature is not implied.
func (s *Service) ProposeAllocation(ctx context.Context, caller id.AccountID, projectID id.ProjectID, amount id.Amount, purpose string) (Proposal, error) {
	if err := s.roles.Require(caller, roles.CapAllocator); err != nil {
		return Proposal{}, err
	}
	if err := s.system.Guard(); err != nil {
		return Proposal{}, err
	}
	if !amount.IsPositive() {
		return Proposal{}, dErrors.New(dErrors.CodeInvalidInput, "allocation amount must be positive")
	}
	if purpose == "" {
		return Proposal{}, dErrors.New(dErrors.CodeInvalidInput, "allocation purpose is required")
	}

	project, err := s.projects.Project(ctx, projectID)
	if err != nil {
		return Proposal{}, err
	}
	if !project.Active {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "project is not active")
	}
	if err := s.checkPoolBalance(ctx, amount); err != nil {
		return Proposal{}, err
	}

	proposal, err := s.store.CreateProposal(ctx, Proposal{
		ProjectID: projectID,
		Amount:    amount,
		Purpose:   purpose,
		Signers:   make(map[id.AccountID]bool),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create proposal")
	}

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   project.Vault,
		Action:    string(audit.EventAllocationProposed),
		Amount:    amount,
		Reference: allocationRef(proposal.ID),
		Reason:    purpose,
	})
	return proposal, nil
}

// SignProposal records one treasurer's approval. The signature that reaches
// quorum also executes the allocation: funds move to the project vault and
// escrow takes over custody. Every precondition is revalidated at execution
// because the pool and the project can both change between signatures.
func (s *Service) SignProposal(ctx context.Context, caller id.AccountID, proposalID id.ProposalID) (Proposal, error) {
	if err := s.opGuard.Acquire(); err != nil {
		return Proposal{}, err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapTreasurer); err != nil {
		return Proposal{}, err
	}
	if err := s.system.Guard(); err != nil {
		return Proposal{}, err
	}

	proposal, err := s.store.Proposal(ctx, proposalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Proposal{}, dErrors.New(dErrors.CodeNotFound, "proposal not found")
	}
	if err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proposal")
	}
	if proposal.Executed {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "proposal already executed")
	}
	if s.clock.Now().After(proposal.CreatedAt.Add(allocationWindow)) {
		return Proposal{}, dErrors.New(dErrors.CodeExpired, "proposal has expired")
	}
	if proposal.Signers[caller] {
		return Proposal{}, dErrors.New(dErrors.CodeConflict, "caller has already signed")
	}

	proposal.Signers[caller] = true
	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventAllocationSigned),
		Reference: allocationRef(proposal.ID),
		Reason:    fmt.Sprintf("signatures %d/%d", proposal.SignatureCount(), s.params.Quorum),
	})

	if proposal.SignatureCount() < s.params.Quorum {
		return proposal, nil
	}
	if err := s.execute(ctx, caller, &proposal); err != nil {
		return Proposal{}, err
	}
	return proposal, nil
}

// execute moves the allocation into escrow. Validate everything, mark the
// proposal executed, then move funds; any nested failure unwinds in reverse.
func (s *Service) execute(ctx context.Context, caller id.AccountID, proposal *Proposal) error {
	project, err := s.projects.Project(ctx, proposal.ProjectID)
	if err != nil {
		return err
	}
	if !project.Active {
		return dErrors.New(dErrors.CodeConflict, "project is no longer active")
	}
	if _, ok := s.projects.VaultAuthorized(project.Vault); !ok {
		return dErrors.New(dErrors.CodeConflict, "project vault is no longer authorized")
	}
	if err := s.checkPoolBalance(ctx, proposal.Amount); err != nil {
		return err
	}
	if err := s.ledger.CanMint(ctx, project.Vault, project.Vault, proposal.Amount); err != nil {
		return err
	}

	proposal.Executed = true
	if err := s.store.UpdateProposal(ctx, *proposal); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark proposal executed")
	}

	token := s.source.Token()
	if err := token.Transfer(ctx, s.account, project.Vault, proposal.Amount); err != nil {
		s.unwindExecution(ctx, proposal)
		return dErrors.Wrap(err, dErrors.CodeInternal, "allocation transfer failed")
	}
	if err := s.escrow.ReceiveAllocation(ctx, s.account, proposal.ProjectID, proposal.Amount); err != nil {
		if terr := token.Transfer(ctx, project.Vault, s.account, proposal.Amount); terr != nil {
			s.logger.ErrorContext(ctx, "failed to recall funds after escrow rejection",
				"proposal", proposal.ID, "error", terr)
		}
		s.unwindExecution(ctx, proposal)
		return err
	}
	if err := s.projects.RecordAllocation(ctx, proposal.ProjectID, proposal.Amount); err != nil {
		// Funds are already in escrow; the lifetime total is bookkeeping.
		s.logger.ErrorContext(ctx, "failed to record allocation total",
			"project", proposal.ProjectID, "error", err)
	}

	s.mu.Lock()
	s.totalAllocated += proposal.Amount
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.AllocationsExecuted.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   project.Vault,
		Action:    string(audit.EventAllocationExecuted),
		Amount:    proposal.Amount,
		Reference: allocationRef(proposal.ID),
		Reason:    proposal.Purpose,
	})
	return nil
}

func (s *Service) unwindExecution(ctx context.Context, proposal *Proposal) {
	proposal.Executed = false
	if err := s.store.UpdateProposal(ctx, *proposal); err != nil {
		s.logger.ErrorContext(ctx, "failed to unwind proposal execution",
			"proposal", proposal.ID, "error", err)
	}
}

func (s *Service) checkPoolBalance(ctx context.Context, amount id.Amount) error {
	balance, err := s.source.Token().BalanceOf(ctx, s.account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read pool balance")
	}
	if balance < amount {
		return dErrors.New(dErrors.CodeLimitExceeded, "insufficient pooled funds")
	}
	return nil
}

// ====================================================================
// Reads
// ====================================================================

// Proposal returns one allocation proposal.
func (s *Service) Proposal(ctx context.Context, proposalID id.ProposalID) (Proposal, error) {
	p, err := s.store.Proposal(ctx, proposalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Proposal{}, dErrors.New(dErrors.CodeNotFound, "proposal not found")
	}
	if err != nil {
		return Proposal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load proposal")
	}
	return p, nil
}

// Proposals lists every allocation proposal, oldest first.
func (s *Service) Proposals(ctx context.Context) ([]Proposal, error) {
	return s.store.ListProposals(ctx)
}

// Totals returns the treasury's lifetime counters.
func (s *Service) Totals() Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Totals{Deposited: s.totalDeposited, Allocated: s.totalAllocated}
}

func donorRef(donor id.AccountID) string { return "donor/" + donor.String() }

func allocationRef(proposalID id.ProposalID) string {
	return fmt.Sprintf("allocation/%d", proposalID)
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
