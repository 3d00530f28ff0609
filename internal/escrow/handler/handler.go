// Package handler exposes the escrow endpoints: release requests, oracle
// confirmations, and returns.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/escrow"
	"custodia/internal/platform/middleware"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
)

// Service defines the escrow operations the handler delegates to.
type Service interface {
	RequestRelease(ctx context.Context, caller id.AccountID, projectID id.ProjectID, recipient id.AccountID, amount id.Amount, purpose string) (escrow.Transaction, error)
	ConfirmFiatTransfer(ctx context.Context, caller id.AccountID, projectID id.ProjectID, txID id.EscrowTxID) (escrow.Transaction, error)
	ReturnFunds(ctx context.Context, caller id.AccountID, projectID id.ProjectID, amount id.Amount) error
	Vault(ctx context.Context, projectID id.ProjectID) (escrow.Vault, error)
	Transaction(ctx context.Context, projectID id.ProjectID, txID id.EscrowTxID) (escrow.Transaction, error)
}

// Handler handles escrow endpoints.
type Handler struct {
	logger *slog.Logger
	escrow Service
}

func New(escrow Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, escrow: escrow}
}

// Register registers the escrow routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/escrow/{projectID}", h.handleGetVault)
	r.Post("/escrow/{projectID}/releases", h.handleRequestRelease)
	r.Get("/escrow/{projectID}/releases/{txID}", h.handleGetTransaction)
	r.Post("/escrow/{projectID}/releases/{txID}/confirm", h.handleConfirm)
	r.Post("/escrow/{projectID}/return", h.handleReturn)
}

type vaultResponse struct {
	ProjectID      uint64 `json:"project_id"`
	Account        string `json:"account"`
	Manager        string `json:"manager"`
	TotalEscrowed  int64  `json:"total_escrowed"`
	TotalAllocated int64  `json:"total_allocated"`
	TotalDisbursed int64  `json:"total_disbursed"`
	TotalReturned  int64  `json:"total_returned"`
}

func (h *Handler) handleGetVault(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	vault, err := h.escrow.Vault(r.Context(), projectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, vaultResponse{
		ProjectID:      uint64(vault.ProjectID),
		Account:        vault.Account.String(),
		Manager:        vault.Manager.String(),
		TotalEscrowed:  int64(vault.TotalEscrowed),
		TotalAllocated: int64(vault.TotalAllocated),
		TotalDisbursed: int64(vault.TotalDisbursed),
		TotalReturned:  int64(vault.TotalReturned),
	})
}

type releaseRequest struct {
	Amount    int64  `json:"amount"`
	Recipient string `json:"recipient"`
	Purpose   string `json:"purpose"`
}

type transactionResponse struct {
	ID            uint64    `json:"id"`
	Amount        int64     `json:"amount"`
	Recipient     string    `json:"recipient"`
	Purpose       string    `json:"purpose"`
	Confirmations int       `json:"confirmations"`
	Released      bool      `json:"released"`
	CreatedAt     time.Time `json:"created_at"`
}

func toTransactionResponse(tx escrow.Transaction) transactionResponse {
	return transactionResponse{
		ID:            uint64(tx.ID),
		Amount:        int64(tx.Amount),
		Recipient:     tx.Recipient.String(),
		Purpose:       tx.Purpose,
		Confirmations: tx.ConfirmationCount(),
		Released:      tx.Released,
		CreatedAt:     tx.CreatedAt,
	}
}

func (h *Handler) handleRequestRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req releaseRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	recipient, err := id.ParseAccountID(req.Recipient)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tx, err := h.escrow.RequestRelease(ctx, middleware.GetCaller(ctx), projectID, recipient, amount, req.Purpose)
	if err != nil {
		h.logger.WarnContext(ctx, "release request rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	txID, err := id.ParseEscrowTxID(chi.URLParam(r, "txID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tx, err := h.escrow.Transaction(r.Context(), projectID, txID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	txID, err := id.ParseEscrowTxID(chi.URLParam(r, "txID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tx, err := h.escrow.ConfirmFiatTransfer(ctx, middleware.GetCaller(ctx), projectID, txID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toTransactionResponse(tx))
}

type returnRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req returnRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.escrow.ReturnFunds(ctx, middleware.GetCaller(ctx), projectID, amount); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
