// Package handler exposes the audit-ledger read and admin endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"custodia/internal/ledger"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	audit "custodia/pkg/platform/audit"
)

// Service defines the ledger operations the handler delegates to.
type Service interface {
	Mint(ctx context.Context, minter, holder id.AccountID, amount id.Amount) error
	Burn(ctx context.Context, burner, holder id.AccountID, amount id.Amount) error
	SetMinterDailyLimit(ctx context.Context, caller, minter id.AccountID, limit id.Amount) error
	Pause(ctx context.Context, caller id.AccountID) error
	Unpause(ctx context.Context, caller id.AccountID) error
	BalanceOf(ctx context.Context, holder id.AccountID) id.Amount
	Supply(ctx context.Context) ledger.Supply
}

// Handler handles ledger endpoints.
type Handler struct {
	logger *slog.Logger
	ledger Service
	trail  *audit.Publisher
}

func New(ledger Service, trail *audit.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		ledger: ledger,
		trail:  trail,
	}
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/ledger/supply", h.handleSupply)
	r.Get("/ledger/balances/{account}", h.handleBalance)
	r.Get("/ledger/audit", h.handleAuditTrail)
	r.Post("/ledger/mint", h.handleMint)
	r.Post("/ledger/burn", h.handleBurn)
	r.Post("/ledger/limits", h.handleSetLimit)
	r.Post("/ledger/pause", h.handlePause)
	r.Post("/ledger/unpause", h.handleUnpause)
}

type supplyResponse struct {
	Current    int64 `json:"current"`
	Cumulative int64 `json:"cumulative"`
}

func (h *Handler) handleSupply(w http.ResponseWriter, r *http.Request) {
	supply := h.ledger.Supply(r.Context())
	shared.WriteJSON(w, http.StatusOK, supplyResponse{
		Current:    int64(supply.Current),
		Cumulative: int64(supply.Cumulative),
	})
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := id.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, balanceResponse{
		Account: account.String(),
		Balance: int64(h.ledger.BalanceOf(r.Context(), account)),
	})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	events, err := h.trail.List(r.Context(), reference)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

type moveRequest struct {
	Holder string `json:"holder"`
	Amount int64  `json:"amount"`
}

func (h *Handler) handleMint(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Mint)
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.ledger.Burn)
}

func (h *Handler) move(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AccountID, id.AccountID, id.Amount) error) {
	ctx := r.Context()
	caller := middleware.GetCaller(ctx)

	var req moveRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	holder, err := id.ParseAccountID(req.Holder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := op(ctx, caller, holder, amount); err != nil {
		h.logger.WarnContext(ctx, "ledger operation rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setLimitRequest struct {
	Minter     string `json:"minter"`
	DailyLimit int64  `json:"daily_limit"`
}

func (h *Handler) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setLimitRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	minter, err := id.ParseAccountID(req.Minter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.ledger.SetMinterDailyLimit(ctx, middleware.GetCaller(ctx), minter, id.Amount(req.DailyLimit)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Pause(r.Context(), middleware.GetCaller(r.Context())); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Unpause(r.Context(), middleware.GetCaller(r.Context())); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
