// Package ledger implements the audit ledger: a non-transferable accounting
// token whose mints and burns mirror every movement of the underlying asset.
// Credit exists purely as a tamper-evident trail of custody; it can never be
// traded or moved between holders.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"custodia/internal/clock"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/platform/guard"
	"custodia/internal/platform/metrics"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
)

// ErrNonTransferable rejects every attempt to move credit between holders.
var ErrNonTransferable = dErrors.New(dErrors.CodeForbidden, "audit ledger credit is non-transferable")

// Supply is a snapshot of the ledger's supply counters.
type Supply struct {
	// Current is the outstanding credit; burns reduce it.
	Current id.Amount
	// Cumulative is the lifetime mint total; it never decreases and is
	// bounded by the supply cap.
	Cumulative id.Amount
}

// Service owns the balance map and supply counters exclusively. All state
// transitions are serialized through the operation guard.
type Service struct {
	opGuard guard.Guard
	mu      sync.RWMutex

	roles   *roles.Service
	limits  limits.Store
	system  *pause.State
	clock   clock.Clock
	audit   *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger

	maxSupply id.Amount
	paused    bool

	balances         map[id.AccountID]id.Amount
	minterDailyLimit map[id.AccountID]id.Amount
	cumulativeMinted id.Amount
	currentSupply    id.Amount
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
	limitStore limits.Store,
	system *pause.State,
	clk clock.Clock,
	publisher *audit.Publisher,
	maxSupply id.Amount,
	opts ...Option,
) (*Service, error) {
	if caps == nil {
		return nil, fmt.Errorf("capability service is required")
	}
	if limitStore == nil {
		return nil, fmt.Errorf("limit store is required")
	}
	if !maxSupply.IsPositive() {
		return nil, fmt.Errorf("supply cap must be positive")
	}

	svc := &Service{
		roles:            caps,
		limits:           limitStore,
		system:           system,
		clock:            clk,
		audit:            publisher,
		logger:           slog.Default(),
		maxSupply:        maxSupply,
		balances:         make(map[id.AccountID]id.Amount),
		minterDailyLimit: make(map[id.AccountID]id.Amount),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func mintBucket(minter id.AccountID) string { return "mint:" + minter.String() }

// CanMint runs every Mint precondition without mutating anything. Components
// that move the asset before minting its mirror call this first so a doomed
// mint can never strand funds mid-operation.
func (s *Service) CanMint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkMint(ctx, minter, holder, amount)
}

// checkMint holds all Mint preconditions. Callers hold at least a read lock.
func (s *Service) checkMint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error {
	if err := s.system.Guard(); err != nil {
		return err
	}
	if s.paused {
		return dErrors.New(dErrors.CodeUnavailable, "ledger minting is paused")
	}
	if err := s.roles.Require(minter, roles.CapMinter); err != nil {
		return err
	}
	if holder.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "holder account is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
	}
	// Subtraction form: the additive check wraps on amounts near the int64
	// ceiling and would wave a cap-breaking mint through.
	if amount > s.maxSupply-s.cumulativeMinted {
		return dErrors.New(dErrors.CodeLimitExceeded, "lifetime supply cap exceeded")
	}

	day := id.DayIndex(s.clock.Now().Unix())
	used, err := s.limits.Used(ctx, mintBucket(minter), day)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read mint bucket")
	}
	limit := s.minterDailyLimit[minter]
	if id.Amount(used) > limit || amount > limit-id.Amount(used) {
		return dErrors.New(dErrors.CodeLimitExceeded, "daily mint limit exceeded")
	}
	return nil
}

// Mint credits holder and advances both supply counters. The caller must
// hold the minter capability and stay inside its daily allowance.
func (s *Service) Mint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkMint(ctx, minter, holder, amount); err != nil {
		return err
	}

	day := id.DayIndex(s.clock.Now().Unix())
	if err := s.limits.Add(ctx, mintBucket(minter), day, int64(amount)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume mint bucket")
	}

	s.cumulativeMinted += amount
	s.currentSupply += amount
	s.balances[holder] += amount

	if s.metrics != nil {
		s.metrics.MintsTotal.Inc()
		s.metrics.CurrentSupply.Set(float64(s.currentSupply))
		s.metrics.CumulativeMinted.Set(float64(s.cumulativeMinted))
	}
	s.emit(ctx, audit.Event{
		Actor:     minter,
		Subject:   holder,
		Action:    string(audit.EventMintRecorded),
		Amount:    amount,
		Reference: "holder/" + holder.String(),
	})
	return nil
}

// Burn debits holder and reduces the current supply. The cumulative counter
// is untouched: mint history is permanent. Burn is never gated by pause so
// custody can always unwind.
func (s *Service) Burn(ctx context.Context, burner, holder id.AccountID, amount id.Amount) error {
	if err := s.opGuard.Acquire(); err != nil {
		return err
	}
	defer s.opGuard.Release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.roles.Require(burner, roles.CapBurner); err != nil {
		return err
	}
	if holder.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "holder account is required")
	}
	if !amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "burn amount must be positive")
	}
	if s.balances[holder] < amount {
		return dErrors.New(dErrors.CodeLimitExceeded, "insufficient ledger balance")
	}

	s.balances[holder] -= amount
	s.currentSupply -= amount

	if s.metrics != nil {
		s.metrics.BurnsTotal.Inc()
		s.metrics.CurrentSupply.Set(float64(s.currentSupply))
	}
	s.emit(ctx, audit.Event{
		Actor:     burner,
		Subject:   holder,
		Action:    string(audit.EventBurnRecorded),
		Amount:    amount,
		Reference: "holder/" + holder.String(),
	})
	return nil
}

// Transfer always fails: the ledger is an audit trail, not a tradable asset.
func (s *Service) Transfer(_ context.Context, _, _ id.AccountID, _ id.Amount) error {
	return ErrNonTransferable
}

// SetMinterDailyLimit replaces a minter's daily allowance. Admin only.
func (s *Service) SetMinterDailyLimit(ctx context.Context, caller, minter id.AccountID, limit id.Amount) error {
	if err := s.roles.Require(caller, roles.CapAdmin); err != nil {
		return err
	}
	if minter.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "minter account is required")
	}
	if limit < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "daily limit cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.minterDailyLimit[minter] = limit
	return nil
}

// Pause gates minting. Burns keep working so custody can still unwind.
func (s *Service) Pause(ctx context.Context, caller id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapPauser); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	return nil
}

// Unpause lifts the mint gate.
func (s *Service) Unpause(ctx context.Context, caller id.AccountID) error {
	if err := s.roles.Require(caller, roles.CapPauser); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	return nil
}

// BalanceOf returns the holder's outstanding credit.
func (s *Service) BalanceOf(_ context.Context, holder id.AccountID) id.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[holder]
}

// Supply returns the current supply counters.
func (s *Service) Supply(_ context.Context) Supply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Supply{Current: s.currentSupply, Cumulative: s.cumulativeMinted}
}

// emit records an audit event. Audit failures are logged, not propagated:
// the transition has already committed and the outbox worker retries
// delivery, so surfacing the error would only confuse the caller.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", event.Action, "error", err)
	}
}
