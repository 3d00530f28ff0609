// Package registry is the governance core of the custody platform: it owns
// the project directory, the oracle set, the emergency multisig, the system
// pause flag, and the timelock queue for funding-token swaps and project
// deactivation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/pause"
	"custodia/internal/platform/guard"
	"custodia/internal/platform/metrics"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
	"custodia/pkg/platform/sentinel"
)

const (
	// emergencyWindow bounds how long an emergency withdrawal proposal can
	// collect signatures.
	emergencyWindow = 24 * time.Hour
	// timelockDelay is the mandatory wait between queueing a governance
	// action and executing it.
	timelockDelay = 48 * time.Hour
	// minOracles is the floor on the oracle set size. A single oracle
	// would make fiat-transfer consensus meaningless.
	minOracles = 2
)

// Store persists registry records.
type Store interface {
	CreateProject(ctx context.Context, p Project) (Project, error)
	Project(ctx context.Context, projectID id.ProjectID) (Project, error)
	UpdateProject(ctx context.Context, p Project) error
	ListProjects(ctx context.Context) ([]Project, error)

	CreateWithdrawal(ctx context.Context, w EmergencyWithdrawal) (EmergencyWithdrawal, error)
	Withdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (EmergencyWithdrawal, error)
	UpdateWithdrawal(ctx context.Context, w EmergencyWithdrawal) error

	CreateAction(ctx context.Context, a TimelockAction) (TimelockAction, error)
	Action(ctx context.Context, actionID id.ActionID) (TimelockAction, error)
	UpdateAction(ctx context.Context, a TimelockAction) error
}

// Ledger is the slice of the audit ledger the registry drives: provisioning
// a fresh vault's daily mint allowance.
type Ledger interface {
	SetMinterDailyLimit(ctx context.Context, caller, minter id.AccountID, limit id.Amount) error
}

// Params are the governance knobs fixed at startup.
type Params struct {
	// EmergencyThreshold is the distinct-signer count that executes an
	// emergency withdrawal.
	EmergencyThreshold int
	// OracleConsensus is the distinct-oracle count escrow requires to
	// release funds.
	OracleConsensus int
	// VaultDailyMintLimit is granted to every new project vault.
	VaultDailyMintLimit id.Amount
}

// Service implements registry governance. It is the sole writer of the
// shared pause flag and the sole component allowed to swap the funding
// token.
type Service struct {
	opGuard guard.Guard
	mu      sync.RWMutex

	roles   *roles.Service
	store   Store
	source  *asset.Source
	system  *pause.State
	clock   clock.Clock
	audit   *audit.Publisher
	ledger  Ledger
	metrics *metrics.Metrics
	logger  *slog.Logger

	params   Params
	treasury id.AccountID

	oracles []id.AccountID
	// vaults maps every authorized vault account back to its project.
	vaults map[id.AccountID]id.ProjectID
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds the registry. It validates the initial funding token's
// precision up front so a misconfigured asset never reaches custody.
func New(
	ctx context.Context,
	caps *roles.Service,
	store Store,
	source *asset.Source,
	system *pause.State,
	clk clock.Clock,
	publisher *audit.Publisher,
	ledger Ledger,
	treasury id.AccountID,
	params Params,
	opts ...Option,
) (*Service, error) {
	if caps == nil || store == nil || source == nil || system == nil {
		return nil, fmt.Errorf("capability service, store, asset source and pause state are required")
	}
	if treasury.IsZero() {
		return nil, fmt.Errorf("treasury account is required")
	}
	if params.EmergencyThreshold < 1 || params.OracleConsensus < 1 {
		return nil, fmt.Errorf("emergency threshold and oracle consensus must be at least 1")
	}
	if err := validateAsset(ctx, source.Token()); err != nil {
		return nil, err
	}

	svc := &Service{
		roles:    caps,
		store:    store,
		source:   source,
		system:   system,
		clock:    clk,
		audit:    publisher,
		ledger:   ledger,
		logger:   slog.Default(),
		params:   params,
		treasury: treasury,
		vaults:   make(map[id.AccountID]id.ProjectID),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func validateAsset(ctx context.Context, token asset.Fungible) error {
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return fmt.Errorf("could not read funding token decimals: %w", err)
	}
	if decimals != id.AssetDecimals {
		return fmt.Errorf("funding token has %d decimals, custody requires %d", decimals, id.AssetDecimals)
	}
	return nil
}

// ====================================================================
// Projects
// ====================================================================

// CreateProject registers a project and provisions its deterministic vault:
// the vault gets minter and burner capabilities plus its daily mint
// allowance, and the manager gets the project-manager capability.
func (s *Service) CreateProject(ctx context.Context, caller, manager id.AccountID, metadataRef string) (Project, error) {
	if err := s.opGuard.Acquire(); err != nil {
		return Project{}, err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return Project{}, err
	}
	if manager.IsZero() {
		return Project{}, dErrors.New(dErrors.CodeInvalidInput, "project manager is required")
	}
	if metadataRef == "" {
		return Project{}, dErrors.New(dErrors.CodeInvalidInput, "metadata reference is required")
	}

	project, err := s.store.CreateProject(ctx, Project{
		Manager:     manager,
		MetadataRef: metadataRef,
		Active:      true,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return Project{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create project")
	}

	project.Vault = id.VaultAccountID(project.ID, manager)
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return Project{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to attach project vault")
	}

	s.roles.Grant(project.Vault, roles.CapMinter)
	s.roles.Grant(project.Vault, roles.CapBurner)
	s.roles.Grant(manager, roles.CapProjectManager)
	if err := s.ledger.SetMinterDailyLimit(ctx, caller, project.Vault, s.params.VaultDailyMintLimit); err != nil {
		return Project{}, err
	}

	s.mu.Lock()
	s.vaults[project.Vault] = project.ID
	s.mu.Unlock()

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   project.Vault,
		Action:    string(audit.EventProjectCreated),
		Reference: projectRef(project.ID),
		Reason:    metadataRef,
	})
	return project, nil
}

// Project returns one project record.
func (s *Service) Project(ctx context.Context, projectID id.ProjectID) (Project, error) {
	p, err := s.store.Project(ctx, projectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return Project{}, dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	if err != nil {
		return Project{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load project")
	}
	return p, nil
}

// Projects lists every registered project, oldest first.
func (s *Service) Projects(ctx context.Context) ([]Project, error) {
	return s.store.ListProjects(ctx)
}

// VaultAuthorized reports whether the account is a provisioned project vault
// and, if so, which project it belongs to.
func (s *Service) VaultAuthorized(vault id.AccountID) (id.ProjectID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	projectID, ok := s.vaults[vault]
	return projectID, ok
}

// RecordAllocation adds an executed allocation to the project's lifetime
// total. Called by the treasury as part of quorum execution; not an external
// entry point.
func (s *Service) RecordAllocation(ctx context.Context, projectID id.ProjectID, amount id.Amount) error {
	p, err := s.Project(ctx, projectID)
	if err != nil {
		return err
	}
	p.TotalAllocated += amount
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record allocation")
	}
	return nil
}

// ====================================================================
// Timelock
// ====================================================================

// QueueDeactivation queues a project deactivation behind the timelock.
func (s *Service) QueueDeactivation(ctx context.Context, caller id.AccountID, projectID id.ProjectID) (TimelockAction, error) {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return TimelockAction{}, err
	}
	project, err := s.Project(ctx, projectID)
	if err != nil {
		return TimelockAction{}, err
	}
	if !project.Active {
		return TimelockAction{}, dErrors.New(dErrors.CodeConflict, "project is already inactive")
	}
	return s.queue(ctx, caller, TimelockAction{
		Kind:      KindDeactivateProject,
		ProjectID: projectID,
	})
}

// QueueTokenSwap queues a funding-token replacement behind the timelock. The
// candidate's precision is checked both here and again at execution.
func (s *Service) QueueTokenSwap(ctx context.Context, caller id.AccountID, token asset.Fungible) (TimelockAction, error) {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return TimelockAction{}, err
	}
	if token == nil {
		return TimelockAction{}, dErrors.New(dErrors.CodeInvalidInput, "replacement token is required")
	}
	if err := validateAsset(ctx, token); err != nil {
		return TimelockAction{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "replacement token rejected")
	}
	return s.queue(ctx, caller, TimelockAction{
		Kind:  KindUpdateFundingToken,
		Token: token,
	})
}

func (s *Service) queue(ctx context.Context, caller id.AccountID, action TimelockAction) (TimelockAction, error) {
	action.QueuedAt = s.clock.Now()
	created, err := s.store.CreateAction(ctx, action)
	if err != nil {
		return TimelockAction{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to queue action")
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventTimelockActionQueued),
		Reference: actionRef(created.ID),
		Reason:    string(created.Kind),
	})
	return created, nil
}

// ExecuteAction applies a queued governance change once its delay elapsed.
func (s *Service) ExecuteAction(ctx context.Context, caller id.AccountID, actionID id.ActionID) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	action, err := s.store.Action(ctx, actionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "timelock action not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load action")
	}
	if action.Executed {
		return dErrors.New(dErrors.CodeConflict, "action already executed")
	}
	if s.clock.Now().Before(action.QueuedAt.Add(timelockDelay)) {
		return dErrors.New(dErrors.CodeConflict, "timelock delay has not elapsed")
	}

	switch action.Kind {
	case KindDeactivateProject:
		if err := s.deactivateProject(ctx, caller, action.ProjectID); err != nil {
			return err
		}
	case KindUpdateFundingToken:
		if err := validateAsset(ctx, action.Token); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "replacement token rejected")
		}
		s.source.Replace(action.Token)
		s.emit(ctx, audit.Event{
			Actor:     caller,
			Action:    string(audit.EventFundingTokenChanged),
			Reference: actionRef(action.ID),
		})
	default:
		return dErrors.Newf(dErrors.CodeInternal, "unknown action kind %q", action.Kind)
	}

	action.Executed = true
	if err := s.store.UpdateAction(ctx, action); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark action executed")
	}
	return nil
}

func (s *Service) deactivateProject(ctx context.Context, caller id.AccountID, projectID id.ProjectID) error {
	project, err := s.Project(ctx, projectID)
	if err != nil {
		return err
	}
	if !project.Active {
		return dErrors.New(dErrors.CodeConflict, "project is already inactive")
	}
	project.Active = false
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate project")
	}

	s.mu.Lock()
	delete(s.vaults, project.Vault)
	s.mu.Unlock()

	// The vault keeps its balance and burner capability so committed
	// escrow can still settle; only new allocations stop.
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   project.Vault,
		Action:    string(audit.EventProjectDeactivated),
		Reference: projectRef(projectID),
	})
	return nil
}

// ====================================================================
// Oracles
// ====================================================================

// SetOracles replaces the oracle set wholesale. The new set must be at least
// two accounts and large enough to satisfy the consensus threshold.
func (s *Service) SetOracles(ctx context.Context, caller id.AccountID, oracles []id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	if len(oracles) < minOracles {
		return dErrors.Newf(dErrors.CodeInvalidInput, "oracle set needs at least %d members", minOracles)
	}
	if len(oracles) < s.params.OracleConsensus {
		return dErrors.New(dErrors.CodeInvalidInput, "oracle set smaller than the consensus threshold")
	}
	seen := make(map[id.AccountID]bool, len(oracles))
	for _, o := range oracles {
		if o.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "oracle account cannot be zero")
		}
		if seen[o] {
			return dErrors.New(dErrors.CodeInvalidInput, "duplicate oracle account")
		}
		seen[o] = true
	}

	s.mu.Lock()
	for _, old := range s.oracles {
		s.roles.Revoke(old, roles.CapOracle)
	}
	s.oracles = append([]id.AccountID(nil), oracles...)
	for _, o := range oracles {
		s.roles.Grant(o, roles.CapOracle)
	}
	s.mu.Unlock()

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventOracleSetChanged),
		Reference: "oracles",
		Reason:    fmt.Sprintf("set size %d", len(oracles)),
	})
	return nil
}

// SetOracle grants or revokes a single oracle. Revocation fails when it
// would leave fewer than two oracles or fewer than the consensus threshold.
func (s *Service) SetOracle(ctx context.Context, caller, oracle id.AccountID, active bool) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	if oracle.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "oracle account cannot be zero")
	}

	s.mu.Lock()
	idx := -1
	for i, o := range s.oracles {
		if o == oracle {
			idx = i
			break
		}
	}
	if active {
		if idx >= 0 {
			s.mu.Unlock()
			return dErrors.New(dErrors.CodeConflict, "oracle is already active")
		}
		s.oracles = append(s.oracles, oracle)
		s.roles.Grant(oracle, roles.CapOracle)
	} else {
		if idx < 0 {
			s.mu.Unlock()
			return dErrors.New(dErrors.CodeNotFound, "oracle is not active")
		}
		remaining := len(s.oracles) - 1
		if remaining < minOracles || remaining < s.params.OracleConsensus {
			s.mu.Unlock()
			return dErrors.Newf(dErrors.CodeLimitExceeded, "oracle set cannot drop below %d members", max(minOracles, s.params.OracleConsensus))
		}
		s.oracles = append(s.oracles[:idx], s.oracles[idx+1:]...)
		s.roles.Revoke(oracle, roles.CapOracle)
	}
	size := len(s.oracles)
	s.mu.Unlock()

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   oracle,
		Action:    string(audit.EventOracleSetChanged),
		Reference: "oracles",
		Reason:    fmt.Sprintf("set size %d", size),
	})
	return nil
}

// Oracles returns the current oracle set.
func (s *Service) Oracles() []id.AccountID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]id.AccountID(nil), s.oracles...)
}

// ConsensusThreshold is the distinct-oracle count escrow requires.
func (s *Service) ConsensusThreshold() int { return s.params.OracleConsensus }

// ====================================================================
// Emergency flow
// ====================================================================

// EmergencyPause engages the system-wide pause. Any oracle or admin can
// trigger it; recovery is deliberately harder than triggering.
func (s *Service) EmergencyPause(ctx context.Context, caller id.AccountID) error {
	if !s.roles.Has(caller, roles.CapOracle) && !s.roles.Has(caller, roles.CapAdmin) {
		if caller.IsZero() {
			return dErrors.New(dErrors.CodeUnauthorized, "caller account is required")
		}
		return dErrors.New(dErrors.CodeForbidden, "caller lacks oracle or admin capability")
	}
	if s.system.Paused() {
		return dErrors.New(dErrors.CodeConflict, "system is already paused")
	}

	s.system.Engage()
	if s.metrics != nil {
		s.metrics.SystemPaused.Set(1)
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventEmergencyPauseTriggered),
		Reference: "system",
	})
	return nil
}

// Unpause lifts the system pause. Admin only.
func (s *Service) Unpause(ctx context.Context, caller id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	if !s.system.Paused() {
		return dErrors.New(dErrors.CodeConflict, "system is not paused")
	}

	s.system.Lift()
	if s.metrics != nil {
		s.metrics.SystemPaused.Set(0)
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventSystemUnpaused),
		Reference: "system",
	})
	return nil
}

// ProposeEmergencyWithdrawal opens a multisig proposal to move custody funds
// to a recovery address. Only available while the system is paused; the
// proposer's own signature is not implied.
func (s *Service) ProposeEmergencyWithdrawal(ctx context.Context, caller, recipient id.AccountID, amount id.Amount) (EmergencyWithdrawal, error) {
	if err := s.roles.Require(caller, roles.CapEmergencySigner); err != nil {
		return EmergencyWithdrawal{}, err
	}
	if !s.system.Paused() {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeConflict, "emergency withdrawal requires the system pause")
	}
	if recipient.IsZero() {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeInvalidInput, "recipient account is required")
	}
	if !amount.IsPositive() {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeInvalidInput, "withdrawal amount must be positive")
	}

	// An uncoverable proposal must not collect signatures. Execution still
	// depends on the transfer itself succeeding against the balance then.
	balance, err := s.source.Token().BalanceOf(ctx, s.treasury)
	if err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read treasury balance")
	}
	if balance < amount {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeLimitExceeded, "insufficient treasury funds")
	}

	withdrawal, err := s.store.CreateWithdrawal(ctx, EmergencyWithdrawal{
		Amount:    amount,
		Recipient: recipient,
		Signers:   make(map[id.AccountID]bool),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create withdrawal proposal")
	}

	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   recipient,
		Action:    string(audit.EventEmergencyWithdrawProposed),
		Amount:    amount,
		Reference: withdrawalRef(withdrawal.ID),
	})
	return withdrawal, nil
}

// SignEmergencyWithdrawal records one signer's approval. The signature that
// reaches the threshold also executes the transfer; execution is marked
// before funds move so a re-entrant confirmation cannot double-pay.
func (s *Service) SignEmergencyWithdrawal(ctx context.Context, caller id.AccountID, withdrawalID id.WithdrawalID) (EmergencyWithdrawal, error) {
	if err := s.opGuard.Acquire(); err != nil {
		return EmergencyWithdrawal{}, err
	}
	defer s.opGuard.Release()

	if err := s.roles.Require(caller, roles.CapEmergencySigner); err != nil {
		return EmergencyWithdrawal{}, err
	}
	if !s.system.Paused() {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeConflict, "emergency withdrawal requires the system pause")
	}

	withdrawal, err := s.store.Withdrawal(ctx, withdrawalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeNotFound, "withdrawal proposal not found")
	}
	if err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load withdrawal proposal")
	}
	if withdrawal.Executed {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeConflict, "withdrawal already executed")
	}
	if s.clock.Now().After(withdrawal.CreatedAt.Add(emergencyWindow)) {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeExpired, "withdrawal proposal has expired")
	}
	if withdrawal.Signers[caller] {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeConflict, "caller has already signed")
	}

	withdrawal.Signers[caller] = true
	if err := s.store.UpdateWithdrawal(ctx, withdrawal); err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record signature")
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Action:    string(audit.EventEmergencyWithdrawSigned),
		Reference: withdrawalRef(withdrawal.ID),
		Reason:    fmt.Sprintf("signatures %d/%d", withdrawal.SignatureCount(), s.params.EmergencyThreshold),
	})

	if withdrawal.SignatureCount() < s.params.EmergencyThreshold {
		return withdrawal, nil
	}

	withdrawal.Executed = true
	if err := s.store.UpdateWithdrawal(ctx, withdrawal); err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark withdrawal executed")
	}
	if err := s.source.Token().Transfer(ctx, s.treasury, withdrawal.Recipient, withdrawal.Amount); err != nil {
		// Unwind the executed flag so a later attempt can retry; the
		// collected signatures remain valid until the window closes.
		withdrawal.Executed = false
		if uerr := s.store.UpdateWithdrawal(ctx, withdrawal); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to unwind withdrawal execution", "withdrawal", withdrawal.ID, "error", uerr)
		}
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "emergency transfer failed")
	}

	if s.metrics != nil {
		s.metrics.EmergencyWithdrawals.Inc()
	}
	s.emit(ctx, audit.Event{
		Actor:     caller,
		Subject:   withdrawal.Recipient,
		Action:    string(audit.EventEmergencyWithdrawExecuted),
		Amount:    withdrawal.Amount,
		Reference: withdrawalRef(withdrawal.ID),
	})
	return withdrawal, nil
}

// Withdrawal returns one emergency withdrawal proposal.
func (s *Service) Withdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (EmergencyWithdrawal, error) {
	w, err := s.store.Withdrawal(ctx, withdrawalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return EmergencyWithdrawal{}, dErrors.New(dErrors.CodeNotFound, "withdrawal proposal not found")
	}
	if err != nil {
		return EmergencyWithdrawal{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load withdrawal proposal")
	}
	return w, nil
}

func projectRef(projectID id.ProjectID) string { return fmt.Sprintf("project/%d", projectID) }
func actionRef(actionID id.ActionID) string    { return fmt.Sprintf("action/%d", actionID) }
func withdrawalRef(wID id.WithdrawalID) string { return fmt.Sprintf("withdrawal/%d", wID) }

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
