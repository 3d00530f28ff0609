package escrow

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/ledger"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/registry"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
	auditmem "custodia/pkg/platform/audit/store/memory"
)

type ServiceSuite struct {
	suite.Suite

	ctx      context.Context
	caps     *roles.Service
	clock    *clock.Fake
	system   *pause.State
	token    *asset.Memory
	source   *asset.Source
	events   *auditmem.Store
	ledger   *ledger.Service
	registry *registry.Service
	service  *Service

	admin     id.AccountID
	manager   id.AccountID
	treasury  id.AccountID
	recipient id.AccountID
	oracleA   id.AccountID
	oracleB   id.AccountID

	project registry.Project
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.caps = roles.NewService()
	s.clock = clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.system = pause.NewState()
	s.token = asset.NewMemory(id.AssetDecimals)
	s.source = asset.NewSource(s.token)
	s.events = auditmem.New()

	s.admin = id.NewAccountID()
	s.manager = id.NewAccountID()
	s.treasury = id.NewAccountID()
	s.recipient = id.NewAccountID()
	s.oracleA = id.NewAccountID()
	s.oracleB = id.NewAccountID()

	s.caps.Grant(s.admin, roles.CapAdmin)

	publisher := audit.NewPublisher(s.events)
	limitStore := limits.NewMemoryStore()

	led, err := ledger.New(s.caps, limitStore, s.system, s.clock, publisher, 1_000_000_000)
	s.Require().NoError(err)
	s.ledger = led

	reg, err := registry.New(
		s.ctx, s.caps, registry.NewMemoryStore(), s.source, s.system, s.clock,
		publisher, led, s.treasury,
		registry.Params{EmergencyThreshold: 2, OracleConsensus: 2, VaultDailyMintLimit: 1_000_000},
	)
	s.Require().NoError(err)
	s.registry = reg
	s.Require().NoError(reg.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB}))

	svc, err := New(s.caps, s.source, s.system, s.clock, publisher, led, reg, s.treasury)
	s.Require().NoError(err)
	s.service = svc

	s.project, err = reg.CreateProject(s.ctx, s.admin, s.manager, "ipfs://metadata")
	s.Require().NoError(err)
}

// fund moves amount into the project vault the way an executed allocation
// would: asset first, then the escrow mints the mirror.
func (s *ServiceSuite) fund(amount id.Amount) {
	s.token.Issue(s.treasury, amount)
	s.Require().NoError(s.token.Transfer(s.ctx, s.treasury, s.project.Vault, amount))
	s.Require().NoError(s.service.ReceiveAllocation(s.ctx, s.treasury, s.project.ID, amount))
}

// ====================================================================
// Funding
// ====================================================================

func (s *ServiceSuite) TestReceiveAllocation() {
	s.Run("mints the audit mirror for the vault", func() {
		s.fund(500)
		s.Equal(id.Amount(500), s.ledger.BalanceOf(s.ctx, s.project.Vault))

		vault, err := s.service.Vault(s.ctx, s.project.ID)
		s.Require().NoError(err)
		s.Equal(id.Amount(500), vault.TotalAllocated)
	})

	s.Run("rejects funding from anyone but the treasury pool", func() {
		err := s.service.ReceiveAllocation(s.ctx, s.admin, s.project.ID, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects unknown projects", func() {
		err := s.service.ReceiveAllocation(s.ctx, s.treasury, id.ProjectID(99), 10)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// ====================================================================
// Release lifecycle
// ====================================================================

func (s *ServiceSuite) TestRequestRelease() {
	s.fund(500)

	s.Run("commits part of the vault balance and mints the receipt", func() {
		tx, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 200, "medical supplies")
		s.Require().NoError(err)
		s.Equal(id.EscrowTxID(1), tx.ID)
		s.Equal(s.recipient, tx.Recipient)
		s.False(tx.Released)

		vault, err := s.service.Vault(s.ctx, s.project.ID)
		s.Require().NoError(err)
		s.Equal(id.Amount(200), vault.TotalEscrowed)

		// Credit reflects the allocation plus the pending commitment.
		s.Equal(id.Amount(700), s.ledger.BalanceOf(s.ctx, s.project.Vault))
	})

	s.Run("cannot commit beyond the uncommitted balance", func() {
		_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 301, "more supplies")
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		// Exactly the remaining uncommitted balance is fine.
		_, err = s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 300, "more supplies")
		s.Require().NoError(err)
	})

	s.Run("a request near the int64 ceiling cannot wrap the commitment check", func() {
		_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, id.Amount(math.MaxInt64-10), "supplies")
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		vault, err := s.service.Vault(s.ctx, s.project.ID)
		s.Require().NoError(err)
		s.Equal(id.Amount(500), vault.TotalEscrowed)
	})

	s.Run("requires a recipient and a purpose", func() {
		_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, id.ZeroAccount, 1, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 1, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("only the project's manager can request", func() {
		stranger := id.NewAccountID()
		s.caps.Grant(stranger, roles.CapProjectManager)
		_, err := s.service.RequestRelease(s.ctx, stranger, s.project.ID, s.recipient, 1, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestConfirmFiatTransfer() {
	s.fund(500)
	tx, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 200, "medical supplies")
	s.Require().NoError(err)

	s.Run("requires the oracle capability", func() {
		_, err := s.service.ConfirmFiatTransfer(s.ctx, s.manager, s.project.ID, tx.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("first confirmation does not settle", func() {
		got, err := s.service.ConfirmFiatTransfer(s.ctx, s.oracleA, s.project.ID, tx.ID)
		s.Require().NoError(err)
		s.False(got.Released)
		s.Equal(1, got.ConfirmationCount())
	})

	s.Run("duplicate oracle confirmation conflicts", func() {
		_, err := s.service.ConfirmFiatTransfer(s.ctx, s.oracleA, s.project.ID, tx.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("consensus settles exactly once", func() {
		got, err := s.service.ConfirmFiatTransfer(s.ctx, s.oracleB, s.project.ID, tx.ID)
		s.Require().NoError(err)
		s.True(got.Released)

		// Tokens moved to the recipient; the receipt was burned, leaving
		// credit at the allocated level.
		balance, err := s.token.BalanceOf(s.ctx, s.recipient)
		s.Require().NoError(err)
		s.Equal(id.Amount(200), balance)
		s.Equal(id.Amount(500), s.ledger.BalanceOf(s.ctx, s.project.Vault))

		vault, err := s.service.Vault(s.ctx, s.project.ID)
		s.Require().NoError(err)
		s.Equal(id.Amount(0), vault.TotalEscrowed)
		s.Equal(id.Amount(200), vault.TotalDisbursed)
	})

	s.Run("confirming a settled transaction conflicts", func() {
		oracleC := id.NewAccountID()
		s.caps.Grant(oracleC, roles.CapOracle)
		_, err := s.service.ConfirmFiatTransfer(s.ctx, oracleC, s.project.ID, tx.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		// Nothing moved twice.
		balance, err := s.token.BalanceOf(s.ctx, s.recipient)
		s.Require().NoError(err)
		s.Equal(id.Amount(200), balance)
	})
}

// ====================================================================
// Returns
// ====================================================================

func (s *ServiceSuite) TestReturnFunds() {
	s.fund(500)
	_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 200, "supplies")
	s.Require().NoError(err)

	s.Run("returns only uncommitted funds", func() {
		err := s.service.ReturnFunds(s.ctx, s.manager, s.project.ID, 301)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))

		s.Require().NoError(s.service.ReturnFunds(s.ctx, s.manager, s.project.ID, 300))

		balance, err := s.token.BalanceOf(s.ctx, s.treasury)
		s.Require().NoError(err)
		s.Equal(id.Amount(300), balance)
		s.Equal(id.Amount(400), s.ledger.BalanceOf(s.ctx, s.project.Vault))

		vault, err := s.service.Vault(s.ctx, s.project.ID)
		s.Require().NoError(err)
		s.Equal(id.Amount(300), vault.TotalReturned)
		s.Equal(id.Amount(200), vault.TotalEscrowed)
	})

	s.Run("only the project's manager can trigger returns", func() {
		err := s.service.ReturnFunds(s.ctx, s.admin, s.project.ID, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		err = s.service.ReturnFunds(s.ctx, id.NewAccountID(), s.project.ID, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// ====================================================================
// Pausing
// ====================================================================

func (s *ServiceSuite) TestPause() {
	s.fund(500)

	s.Run("local pause gates escrow operations", func() {
		s.Require().NoError(s.service.Pause(s.ctx, s.admin))

		_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 10, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		_, err = s.service.ConfirmFiatTransfer(s.ctx, s.oracleA, s.project.ID, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

		s.Require().NoError(s.service.Unpause(s.ctx, s.admin))
	})

	s.Run("system pause gates escrow operations", func() {
		s.system.Engage()
		defer s.system.Lift()

		_, err := s.service.RequestRelease(s.ctx, s.manager, s.project.ID, s.recipient, 10, "x")
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	})

	s.Run("pausing requires admin", func() {
		err := s.service.Pause(s.ctx, s.manager)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
