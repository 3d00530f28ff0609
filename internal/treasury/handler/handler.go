// Package handler exposes the treasury endpoints: deposits, withdrawals, and
// the allocation proposal lifecycle.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	"custodia/internal/treasury"
	id "custodia/pkg/domain"
)

// Service defines the treasury operations the handler delegates to.
type Service interface {
	Deposit(ctx context.Context, donor id.AccountID, amount id.Amount) error
	Withdraw(ctx context.Context, donor id.AccountID, amount id.Amount) error
	ProposeAllocation(ctx context.Context, caller id.AccountID, projectID id.ProjectID, amount id.Amount, purpose string) (treasury.Proposal, error)
	SignProposal(ctx context.Context, caller id.AccountID, proposalID id.ProposalID) (treasury.Proposal, error)
	Proposal(ctx context.Context, proposalID id.ProposalID) (treasury.Proposal, error)
	Proposals(ctx context.Context) ([]treasury.Proposal, error)
	Totals() treasury.Totals
}

// Handler handles treasury endpoints.
type Handler struct {
	logger   *slog.Logger
	treasury Service
}

func New(treasury Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, treasury: treasury}
}

// Register registers the treasury routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/treasury/deposits", h.handleDeposit)
	r.Post("/treasury/withdrawals", h.handleWithdraw)
	r.Post("/treasury/proposals", h.handlePropose)
	r.Post("/treasury/proposals/{proposalID}/sign", h.handleSign)
	r.Get("/treasury/proposals", h.handleListProposals)
	r.Get("/treasury/proposals/{proposalID}", h.handleGetProposal)
	r.Get("/treasury/totals", h.handleTotals)
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.treasury.Deposit)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, h.treasury.Withdraw)
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AccountID, id.Amount) error) {
	ctx := r.Context()

	var req amountRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := op(ctx, middleware.GetCaller(ctx), amount); err != nil {
		h.logger.WarnContext(ctx, "treasury operation rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proposeRequest struct {
	ProjectID uint64 `json:"project_id"`
	Amount    int64  `json:"amount"`
	Purpose   string `json:"purpose"`
}

type proposalResponse struct {
	ID         uint64    `json:"id"`
	ProjectID  uint64    `json:"project_id"`
	Amount     int64     `json:"amount"`
	Purpose    string    `json:"purpose"`
	Signatures int       `json:"signatures"`
	Executed   bool      `json:"executed"`
	CreatedAt  time.Time `json:"created_at"`
}

func toProposalResponse(p treasury.Proposal) proposalResponse {
	return proposalResponse{
		ID:         uint64(p.ID),
		ProjectID:  uint64(p.ProjectID),
		Amount:     int64(p.Amount),
		Purpose:    p.Purpose,
		Signatures: p.SignatureCount(),
		Executed:   p.Executed,
		CreatedAt:  p.CreatedAt,
	}
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req proposeRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	proposal, err := h.treasury.ProposeAllocation(ctx, middleware.GetCaller(ctx), id.ProjectID(req.ProjectID), amount, req.Purpose)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toProposalResponse(proposal))
}

func (h *Handler) handleSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	proposalID, err := id.ParseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	proposal, err := h.treasury.SignProposal(ctx, middleware.GetCaller(ctx), proposalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProposalResponse(proposal))
}

func (h *Handler) handleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.treasury.Proposals(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, toProposalResponse(p))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"proposals": out})
}

func (h *Handler) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposalID, err := id.ParseProposalID(chi.URLParam(r, "proposalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	proposal, err := h.treasury.Proposal(r.Context(), proposalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProposalResponse(proposal))
}

type totalsResponse struct {
	Deposited int64 `json:"deposited"`
	Allocated int64 `json:"allocated"`
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals := h.treasury.Totals()
	shared.WriteJSON(w, http.StatusOK, totalsResponse{
		Deposited: int64(totals.Deposited),
		Allocated: int64(totals.Allocated),
	})
}
