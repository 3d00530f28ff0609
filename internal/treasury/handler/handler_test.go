package handler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"custodia/internal/asset"
	"custodia/internal/clock"
	"custodia/internal/escrow"
	"custodia/internal/ledger"
	"custodia/internal/limits"
	"custodia/internal/pause"
	"custodia/internal/registry"
	"custodia/internal/roles"
	"custodia/internal/treasury"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	audit "custodia/pkg/platform/audit"
	auditmem "custodia/pkg/platform/audit/store/memory"
	"custodia/pkg/testutil"
)

// HandlerSuite wires the real treasury stack behind the router so tests
// exercise request parsing and response mapping against live semantics.
type HandlerSuite struct {
	suite.Suite
	router http.Handler

	admin     id.AccountID
	donor     id.AccountID
	treasurer id.AccountID
	projectID id.ProjectID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	caps := roles.NewService()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	system := pause.NewState()
	token := asset.NewMemory(id.AssetDecimals)
	source := asset.NewSource(token)
	publisher := audit.NewPublisher(auditmem.New())
	limitStore := limits.NewMemoryStore()

	s.admin = id.NewAccountID()
	s.donor = id.NewAccountID()
	s.treasurer = id.NewAccountID()
	account := id.NewAccountID()
	manager := id.NewAccountID()

	caps.Grant(s.admin, roles.CapAdmin)
	caps.Grant(s.admin, roles.CapAllocator)
	caps.Grant(s.admin, roles.CapTreasurer)
	caps.Grant(s.treasurer, roles.CapTreasurer)
	caps.Grant(account, roles.CapMinter)
	caps.Grant(account, roles.CapBurner)

	led, err := ledger.New(caps, limitStore, system, clk, publisher, 1_000_000_000)
	s.Require().NoError(err)
	s.Require().NoError(led.SetMinterDailyLimit(ctx, s.admin, account, 1_000_000))

	reg, err := registry.New(
		ctx, caps, registry.NewMemoryStore(), source, system, clk,
		publisher, led, account,
		registry.Params{EmergencyThreshold: 2, OracleConsensus: 2, VaultDailyMintLimit: 1_000_000},
	)
	s.Require().NoError(err)

	esc, err := escrow.New(caps, source, system, clk, publisher, led, reg, account)
	s.Require().NoError(err)

	svc, err := treasury.New(
		caps, treasury.NewMemoryStore(), source, system, clk, publisher,
		led, reg, esc, limitStore, account,
		treasury.Params{Quorum: 2, DailyWithdrawalLimit: 1_000},
	)
	s.Require().NoError(err)

	project, err := reg.CreateProject(ctx, s.admin, manager, "ipfs://metadata")
	s.Require().NoError(err)
	s.projectID = project.ID

	token.Issue(s.donor, 10_000)

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) deposit(amount int64) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/deposits", amountRequest{Amount: amount})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) propose(amount int64) proposalResponse {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/proposals", proposeRequest{
		ProjectID: uint64(s.projectID),
		Amount:    amount,
		Purpose:   "field operations",
	})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.admin))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	return *testutil.UnmarshalResponse[proposalResponse](s.T(), rr)
}

// ============================================================================
// Deposits and withdrawals
// ============================================================================

func (s *HandlerSuite) TestDeposit() {
	s.deposit(500)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/treasury/totals")
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	totals := testutil.UnmarshalResponse[totalsResponse](s.T(), rr)
	s.Equal(int64(500), totals.Deposited)
	s.Zero(totals.Allocated)
}

func (s *HandlerSuite) TestDepositInvalidBody() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/deposits", nil)
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeBadRequest))
}

func (s *HandlerSuite) TestDepositNonPositiveAmount() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/deposits", amountRequest{Amount: 0})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeInvalidInput))
}

func (s *HandlerSuite) TestWithdraw() {
	s.deposit(500)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/withdrawals", amountRequest{Amount: 200})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestWithdrawBeyondEntitlement() {
	s.deposit(100)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/withdrawals", amountRequest{Amount: 500})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeLimitExceeded))
}

// ============================================================================
// Allocation proposals
// ============================================================================

func (s *HandlerSuite) TestProposeAllocation() {
	s.deposit(500)

	proposal := s.propose(300)
	s.Equal(uint64(s.projectID), proposal.ProjectID)
	s.Equal(int64(300), proposal.Amount)
	s.Zero(proposal.Signatures)
	s.False(proposal.Executed)
}

func (s *HandlerSuite) TestProposeAllocationRequiresAllocator() {
	s.deposit(500)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/proposals", proposeRequest{
		ProjectID: uint64(s.projectID),
		Amount:    100,
		Purpose:   "field operations",
	})
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeForbidden))
}

func (s *HandlerSuite) TestSignProposalToQuorum() {
	s.deposit(500)
	proposal := s.propose(300)

	path := fmt.Sprintf("/treasury/proposals/%d/sign", proposal.ID)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, nil)
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.treasurer))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	signed := testutil.UnmarshalResponse[proposalResponse](s.T(), rr)
	s.Equal(1, signed.Signatures)
	s.False(signed.Executed)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, path, nil)
	rr = testutil.DoRequest(s.router, testutil.WithCaller(req, s.admin))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	executed := testutil.UnmarshalResponse[proposalResponse](s.T(), rr)
	s.Equal(2, executed.Signatures)
	s.True(executed.Executed)
}

func (s *HandlerSuite) TestSignProposalDuplicateSignature() {
	s.deposit(500)
	proposal := s.propose(300)

	path := fmt.Sprintf("/treasury/proposals/%d/sign", proposal.ID)
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, path, nil)
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.treasurer))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	req = testutil.NewJSONRequest(s.T(), http.MethodPost, path, nil)
	rr = testutil.DoRequest(s.router, testutil.WithCaller(req, s.treasurer))
	testutil.AssertStatus(s.T(), rr, http.StatusConflict)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeConflict))
}

func (s *HandlerSuite) TestSignProposalBadID() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/proposals/zero/sign", nil)
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.treasurer))
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *HandlerSuite) TestGetProposal() {
	s.deposit(500)
	proposal := s.propose(300)

	req := testutil.NewRequest(s.T(), http.MethodGet, fmt.Sprintf("/treasury/proposals/%d", proposal.ID))
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	got := testutil.UnmarshalResponse[proposalResponse](s.T(), rr)
	s.Equal(proposal.ID, got.ID)
	s.Equal("field operations", got.Purpose)
}

func (s *HandlerSuite) TestGetProposalNotFound() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/treasury/proposals/42")
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, string(dErrors.CodeNotFound))
}

func (s *HandlerSuite) TestListProposals() {
	s.deposit(500)
	s.propose(100)
	s.propose(200)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/treasury/proposals")
	rr := testutil.DoRequest(s.router, testutil.WithCaller(req, s.donor))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	list := testutil.UnmarshalResponse[struct {
		Proposals []proposalResponse `json:"proposals"`
	}](s.T(), rr)
	s.Len(list.Proposals, 2)
}
