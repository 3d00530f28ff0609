// Package handler exposes the registry's governance endpoints: projects,
// oracles, the timelock queue, and the emergency flow.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/middleware"
	"custodia/internal/registry"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
)

// Service defines the registry operations the handler delegates to.
type Service interface {
	CreateProject(ctx context.Context, caller, manager id.AccountID, metadataRef string) (registry.Project, error)
	Project(ctx context.Context, projectID id.ProjectID) (registry.Project, error)
	Projects(ctx context.Context) ([]registry.Project, error)
	QueueDeactivation(ctx context.Context, caller id.AccountID, projectID id.ProjectID) (registry.TimelockAction, error)
	ExecuteAction(ctx context.Context, caller id.AccountID, actionID id.ActionID) error
	SetOracles(ctx context.Context, caller id.AccountID, oracles []id.AccountID) error
	SetOracle(ctx context.Context, caller, oracle id.AccountID, active bool) error
	EmergencyPause(ctx context.Context, caller id.AccountID) error
	Unpause(ctx context.Context, caller id.AccountID) error
	ProposeEmergencyWithdrawal(ctx context.Context, caller, recipient id.AccountID, amount id.Amount) (registry.EmergencyWithdrawal, error)
	SignEmergencyWithdrawal(ctx context.Context, caller id.AccountID, withdrawalID id.WithdrawalID) (registry.EmergencyWithdrawal, error)
	Withdrawal(ctx context.Context, withdrawalID id.WithdrawalID) (registry.EmergencyWithdrawal, error)
}

// Handler handles registry endpoints.
type Handler struct {
	logger   *slog.Logger
	registry Service
}

func New(registry Service, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registry/projects", h.handleCreateProject)
	r.Get("/registry/projects", h.handleListProjects)
	r.Get("/registry/projects/{projectID}", h.handleGetProject)
	r.Post("/registry/projects/{projectID}/deactivate", h.handleQueueDeactivation)
	r.Post("/registry/actions/{actionID}/execute", h.handleExecuteAction)
	r.Post("/registry/oracles", h.handleSetOracles)
	r.Put("/registry/oracles/{oracleID}", h.handleSetOracle)
	r.Post("/registry/pause", h.handlePause)
	r.Post("/registry/unpause", h.handleUnpause)
	r.Post("/registry/withdrawals", h.handleProposeWithdrawal)
	r.Post("/registry/withdrawals/{withdrawalID}/sign", h.handleSignWithdrawal)
	r.Get("/registry/withdrawals/{withdrawalID}", h.handleGetWithdrawal)
}

type projectResponse struct {
	ID             uint64    `json:"id"`
	Vault          string    `json:"vault"`
	Manager        string    `json:"manager"`
	MetadataRef    string    `json:"metadata_ref"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	TotalAllocated int64     `json:"total_allocated"`
}

func toProjectResponse(p registry.Project) projectResponse {
	return projectResponse{
		ID:             uint64(p.ID),
		Vault:          p.Vault.String(),
		Manager:        p.Manager.String(),
		MetadataRef:    p.MetadataRef,
		Active:         p.Active,
		CreatedAt:      p.CreatedAt,
		TotalAllocated: int64(p.TotalAllocated),
	}
}

type createProjectRequest struct {
	Manager     string `json:"manager"`
	MetadataRef string `json:"metadata_ref"`
}

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createProjectRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	manager, err := id.ParseAccountID(req.Manager)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	project, err := h.registry.CreateProject(ctx, middleware.GetCaller(ctx), manager, req.MetadataRef)
	if err != nil {
		h.logger.WarnContext(ctx, "project creation rejected",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toProjectResponse(project))
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.registry.Projects(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]projectResponse, 0, len(projects))
	for _, p := range projects {
		out = append(out, toProjectResponse(p))
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	project, err := h.registry.Project(r.Context(), projectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toProjectResponse(project))
}

type actionResponse struct {
	ID       uint64    `json:"id"`
	Kind     string    `json:"kind"`
	QueuedAt time.Time `json:"queued_at"`
}

func (h *Handler) handleQueueDeactivation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	action, err := h.registry.QueueDeactivation(ctx, middleware.GetCaller(ctx), projectID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusAccepted, actionResponse{
		ID:       uint64(action.ID),
		Kind:     string(action.Kind),
		QueuedAt: action.QueuedAt,
	})
}

func (h *Handler) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actionID, err := id.ParseActionID(chi.URLParam(r, "actionID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.registry.ExecuteAction(ctx, middleware.GetCaller(ctx), actionID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setOraclesRequest struct {
	Oracles []string `json:"oracles"`
}

func (h *Handler) handleSetOracles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req setOraclesRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	oracles := make([]id.AccountID, 0, len(req.Oracles))
	for _, raw := range req.Oracles {
		oracle, err := id.ParseAccountID(raw)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		oracles = append(oracles, oracle)
	}
	if err := h.registry.SetOracles(ctx, middleware.GetCaller(ctx), oracles); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setOracleRequest struct {
	Active bool `json:"active"`
}

func (h *Handler) handleSetOracle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	oracle, err := id.ParseAccountID(chi.URLParam(r, "oracleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req setOracleRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.registry.SetOracle(ctx, middleware.GetCaller(ctx), oracle, req.Active); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.registry.EmergencyPause(ctx, middleware.GetCaller(ctx)); err != nil {
		shared.WriteError(w, err)
		return
	}
	h.logger.WarnContext(ctx, "emergency pause engaged",
		"request_id", middleware.GetRequestID(ctx),
		"caller", middleware.GetCaller(ctx),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.registry.Unpause(ctx, middleware.GetCaller(ctx)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proposeWithdrawalRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
}

type withdrawalResponse struct {
	ID         uint64    `json:"id"`
	Amount     int64     `json:"amount"`
	Recipient  string    `json:"recipient"`
	Signatures int       `json:"signatures"`
	Executed   bool      `json:"executed"`
	CreatedAt  time.Time `json:"created_at"`
}

func toWithdrawalResponse(w registry.EmergencyWithdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:         uint64(w.ID),
		Amount:     int64(w.Amount),
		Recipient:  w.Recipient.String(),
		Signatures: w.SignatureCount(),
		Executed:   w.Executed,
		CreatedAt:  w.CreatedAt,
	}
}

func (h *Handler) handleProposeWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req proposeWithdrawalRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	recipient, err := id.ParseAccountID(req.Recipient)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	withdrawal, err := h.registry.ProposeEmergencyWithdrawal(ctx, middleware.GetCaller(ctx), recipient, amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toWithdrawalResponse(withdrawal))
}

func (h *Handler) handleSignWithdrawal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	withdrawalID, err := id.ParseWithdrawalID(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	withdrawal, err := h.registry.SignEmergencyWithdrawal(ctx, middleware.GetCaller(ctx), withdrawalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}

func (h *Handler) handleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID, err := id.ParseWithdrawalID(chi.URLParam(r, "withdrawalID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	withdrawal, err := h.registry.Withdrawal(r.Context(), withdrawalID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toWithdrawalResponse(withdrawal))
}
