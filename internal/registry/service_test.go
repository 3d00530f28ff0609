package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/roles"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
	auditmem "custodia/pkg/platform/audit/store/memory"

	"custodia/internal/ledger"
)

type ServiceSuite struct {
	suite.Suite

	ctx     context.Context
	caps    *roles.Service
	clock   *clock.Fake
	system  *pause.State
	token   *asset.Memory
	source  *asset.Source
	events  *auditmem.Store
	ledger  *ledger.Service
	service *Service

	admin    id.AccountID
	manager  id.AccountID
	treasury id.AccountID
	signerA  id.AccountID
	signerB  id.AccountID
	oracleA  id.AccountID
	oracleB  id.AccountID
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
	s.signerA = id.NewAccountID()
	s.signerB = id.NewAccountID()
	s.oracleA = id.NewAccountID()
	s.oracleB = id.NewAccountID()

	s.caps.Grant(s.admin, roles.CapAdmin)
	s.caps.Grant(s.signerA, roles.CapEmergencySigner)
	s.caps.Grant(s.signerB, roles.CapEmergencySigner)

	publisher := audit.NewPublisher(s.events)

	led, err := ledger.New(s.caps, limits.NewMemoryStore(), s.system, s.clock, publisher, 1_000_000_000)
	s.Require().NoError(err)
	s.ledger = led

	svc, err := New(
		s.ctx,
		s.caps,
		NewMemoryStore(),
		s.source,
		s.system,
		s.clock,
		publisher,
		led,
		s.treasury,
		Params{EmergencyThreshold: 2, OracleConsensus: 2, VaultDailyMintLimit: 1_000_000},
	)
	s.Require().NoError(err)
	s.service = svc
}

// ====================================================================
// Construction
// ====================================================================

func (s *ServiceSuite) TestNewRejectsWrongDecimals() {
	_, err := New(
		s.ctx,
		s.caps,
		NewMemoryStore(),
		asset.NewSource(asset.NewMemory(18)),
		s.system,
		s.clock,
		audit.NewPublisher(s.events),
		s.ledger,
		s.treasury,
		Params{EmergencyThreshold: 2, OracleConsensus: 2, VaultDailyMintLimit: 1},
	)
	s.Error(err)
}

// ====================================================================
// Projects
// ====================================================================

func (s *ServiceSuite) TestCreateProject() {
	project, err := s.service.CreateProject(s.ctx, s.admin, s.manager, "ipfs://metadata")
	s.Require().NoError(err)

	s.Run("assigns a monotonic id and deterministic vault", func() {
		s.Equal(id.ProjectID(1), project.ID)
		s.Equal(id.VaultAccountID(project.ID, s.manager), project.Vault)
		s.True(project.Active)
	})

	s.Run("provisions vault capabilities and mint allowance", func() {
		s.True(s.caps.Has(project.Vault, roles.CapMinter))
		s.True(s.caps.Has(project.Vault, roles.CapBurner))
		s.True(s.caps.Has(s.manager, roles.CapProjectManager))
		s.Require().NoError(s.ledger.Mint(s.ctx, project.Vault, project.Vault, 1))
	})

	s.Run("registers the vault as authorized", func() {
		projectID, ok := s.service.VaultAuthorized(project.Vault)
		s.True(ok)
		s.Equal(project.ID, projectID)

		_, ok = s.service.VaultAuthorized(id.NewAccountID())
		s.False(ok)
	})

	s.Run("requires admin", func() {
		_, err := s.service.CreateProject(s.ctx, s.manager, s.manager, "ipfs://x")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rejects missing manager or metadata", func() {
		_, err := s.service.CreateProject(s.ctx, s.admin, id.ZeroAccount, "ipfs://x")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = s.service.CreateProject(s.ctx, s.admin, s.manager, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// ====================================================================
// Timelock
// ====================================================================

func (s *ServiceSuite) TestTimelockDeactivation() {
	project, err := s.service.CreateProject(s.ctx, s.admin, s.manager, "ipfs://metadata")
	s.Require().NoError(err)

	action, err := s.service.QueueDeactivation(s.ctx, s.admin, project.ID)
	s.Require().NoError(err)

	s.Run("cannot execute before the delay elapses", func() {
		err := s.service.ExecuteAction(s.ctx, s.admin, action.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		s.clock.Advance(48*time.Hour - time.Second)
		err = s.service.ExecuteAction(s.ctx, s.admin, action.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("executes once the delay has fully elapsed", func() {
		s.clock.Advance(time.Second)
		s.Require().NoError(s.service.ExecuteAction(s.ctx, s.admin, action.ID))

		got, err := s.service.Project(s.ctx, project.ID)
		s.Require().NoError(err)
		s.False(got.Active)
	})

	s.Run("deactivation revokes the vault's authorized status", func() {
		_, ok := s.service.VaultAuthorized(project.Vault)
		s.False(ok)
	})

	s.Run("cannot execute twice", func() {
		err := s.service.ExecuteAction(s.ctx, s.admin, action.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("cannot queue deactivation for an inactive project", func() {
		_, err := s.service.QueueDeactivation(s.ctx, s.admin, project.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestTimelockTokenSwap() {
	replacement := asset.NewMemory(id.AssetDecimals)

	s.Run("rejects a replacement with wrong precision at queue time", func() {
		_, err := s.service.QueueTokenSwap(s.ctx, s.admin, asset.NewMemory(2))
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	action, err := s.service.QueueTokenSwap(s.ctx, s.admin, replacement)
	s.Require().NoError(err)

	s.Run("swap takes effect only after the delay", func() {
		s.Same(asset.Fungible(s.token), s.source.Token())

		s.clock.Advance(48 * time.Hour)
		s.Require().NoError(s.service.ExecuteAction(s.ctx, s.admin, action.ID))
		s.Same(asset.Fungible(replacement), s.source.Token())
	})
}

// ====================================================================
// Oracles
// ====================================================================

func (s *ServiceSuite) TestSetOracles() {
	s.Run("grants the oracle capability to the new set", func() {
		err := s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB})
		s.Require().NoError(err)
		s.True(s.caps.Has(s.oracleA, roles.CapOracle))
		s.True(s.caps.Has(s.oracleB, roles.CapOracle))
		s.Len(s.service.Oracles(), 2)
	})

	s.Run("replacement revokes the old set", func() {
		oracleC := id.NewAccountID()
		oracleD := id.NewAccountID()
		err := s.service.SetOracles(s.ctx, s.admin, []id.AccountID{oracleC, oracleD})
		s.Require().NoError(err)

		s.False(s.caps.Has(s.oracleA, roles.CapOracle))
		s.True(s.caps.Has(oracleC, roles.CapOracle))
	})

	s.Run("rejects sets below the floor", func() {
		err := s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("rejects duplicates and zero accounts", func() {
		err := s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleA})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		err = s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, id.ZeroAccount})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestSetOracle() {
	s.Require().NoError(s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB}))

	oracleC := id.NewAccountID()

	s.Run("grants a single oracle", func() {
		s.Require().NoError(s.service.SetOracle(s.ctx, s.admin, oracleC, true))
		s.True(s.caps.Has(oracleC, roles.CapOracle))
		s.Len(s.service.Oracles(), 3)
	})

	s.Run("re-granting an active oracle conflicts", func() {
		err := s.service.SetOracle(s.ctx, s.admin, oracleC, true)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("revokes a single oracle", func() {
		s.Require().NoError(s.service.SetOracle(s.ctx, s.admin, oracleC, false))
		s.False(s.caps.Has(oracleC, roles.CapOracle))
		s.Len(s.service.Oracles(), 2)
	})

	s.Run("revocation never drops the set below the floor", func() {
		err := s.service.SetOracle(s.ctx, s.admin, s.oracleA, false)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
		s.True(s.caps.Has(s.oracleA, roles.CapOracle))
	})

	s.Run("revoking an unknown oracle is not found", func() {
		err := s.service.SetOracle(s.ctx, s.admin, id.NewAccountID(), false)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("requires admin", func() {
		err := s.service.SetOracle(s.ctx, s.oracleA, id.NewAccountID(), true)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

// ====================================================================
// Emergency flow
// ====================================================================

func (s *ServiceSuite) TestEmergencyPause() {
	s.Require().NoError(s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB}))

	s.Run("any oracle can pause", func() {
		s.Require().NoError(s.service.EmergencyPause(s.ctx, s.oracleA))
		s.True(s.system.Paused())
	})

	s.Run("pausing twice conflicts", func() {
		err := s.service.EmergencyPause(s.ctx, s.oracleB)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("only admin can unpause", func() {
		err := s.service.Unpause(s.ctx, s.oracleA)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		s.Require().NoError(s.service.Unpause(s.ctx, s.admin))
		s.False(s.system.Paused())
	})

	s.Run("unpausing a running system conflicts", func() {
		err := s.service.Unpause(s.ctx, s.admin)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestEmergencyWithdrawal() {
	recipient := id.NewAccountID()
	s.token.Issue(s.treasury, 10_000)
	s.Require().NoError(s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB}))

	s.Run("proposing requires the system pause", func() {
		_, err := s.service.ProposeEmergencyWithdrawal(s.ctx, s.signerA, recipient, 5_000)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Require().NoError(s.service.EmergencyPause(s.ctx, s.oracleA))

	s.Run("cannot propose more than the treasury holds", func() {
		_, err := s.service.ProposeEmergencyWithdrawal(s.ctx, s.signerA, recipient, 10_001)
		s.True(dErrors.HasCode(err, dErrors.CodeLimitExceeded))
	})

	withdrawal, err := s.service.ProposeEmergencyWithdrawal(s.ctx, s.signerA, recipient, 5_000)
	s.Require().NoError(err)

	s.Run("first signature does not execute", func() {
		got, err := s.service.SignEmergencyWithdrawal(s.ctx, s.signerA, withdrawal.ID)
		s.Require().NoError(err)
		s.False(got.Executed)
		s.Equal(1, got.SignatureCount())

		balance, err := s.token.BalanceOf(s.ctx, recipient)
		s.Require().NoError(err)
		s.Equal(id.Amount(0), balance)
	})

	s.Run("duplicate signature conflicts", func() {
		_, err := s.service.SignEmergencyWithdrawal(s.ctx, s.signerA, withdrawal.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("threshold signature executes the transfer", func() {
		got, err := s.service.SignEmergencyWithdrawal(s.ctx, s.signerB, withdrawal.ID)
		s.Require().NoError(err)
		s.True(got.Executed)

		balance, err := s.token.BalanceOf(s.ctx, recipient)
		s.Require().NoError(err)
		s.Equal(id.Amount(5_000), balance)
	})

	s.Run("signing an executed proposal conflicts", func() {
		signerC := id.NewAccountID()
		s.caps.Grant(signerC, roles.CapEmergencySigner)
		_, err := s.service.SignEmergencyWithdrawal(s.ctx, signerC, withdrawal.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestEmergencyWithdrawalExpiry() {
	recipient := id.NewAccountID()
	s.token.Issue(s.treasury, 10_000)
	s.Require().NoError(s.service.SetOracles(s.ctx, s.admin, []id.AccountID{s.oracleA, s.oracleB}))
	s.Require().NoError(s.service.EmergencyPause(s.ctx, s.oracleA))

	withdrawal, err := s.service.ProposeEmergencyWithdrawal(s.ctx, s.signerA, recipient, 1_000)
	s.Require().NoError(err)

	s.Run("signing at exactly the window boundary is allowed", func() {
		s.clock.Advance(24 * time.Hour)
		_, err := s.service.SignEmergencyWithdrawal(s.ctx, s.signerA, withdrawal.ID)
		s.Require().NoError(err)
	})

	s.Run("signing one second past the window is expired", func() {
		s.clock.Advance(time.Second)
		_, err := s.service.SignEmergencyWithdrawal(s.ctx, s.signerB, withdrawal.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeExpired))
	})
}

func (s *ServiceSuite) TestAuditTrail() {
	project, err := s.service.CreateProject(s.ctx, s.admin, s.manager, "ipfs://metadata")
	s.Require().NoError(err)

	events, err := audit.NewPublisher(s.events).List(s.ctx, "project/1")
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventProjectCreated), events[0].Action)
	s.Equal(project.Vault, events[0].Subject)
	s.Equal(audit.CategoryCompliance, events[0].Category)
}
