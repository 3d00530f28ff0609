package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/platform/middleware"
	"custodia/internal/platform/secrets"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// tokenTTL bounds how long an issued access token stays valid.
const tokenTTL = time.Hour

// Handler exposes the token-issuing endpoint. Callers exchange the operator
// provisioning secret for a bearer token bound to their account.
type Handler struct {
	logger     *slog.Logger
	jwt        *JWTService
	secretHash string
}

func NewHandler(jwt *JWTService, secretHash string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		jwt:        jwt,
		secretHash: secretHash,
	}
}

// Register registers the auth routes with the chi router. The token endpoint
// is the one public route; everything else sits behind RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/token", h.handleToken)
}

type tokenRequest struct {
	Account        string `json:"account"`
	OperatorSecret string `json:"operator_secret"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenRequest
	if err := shared.Decode(r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	account, err := id.ParseAccountID(req.Account)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if h.secretHash == "" {
		h.logger.ErrorContext(ctx, "token endpoint called without a configured operator secret",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "token issuance is not configured"))
		return
	}
	if err := secrets.Verify(req.OperatorSecret, h.secretHash); err != nil {
		h.logger.WarnContext(ctx, "rejected token request",
			"request_id", middleware.GetRequestID(ctx),
			"account", account,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid operator secret"))
		return
	}

	token, err := h.jwt.GenerateAccessToken(account, tokenTTL)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to sign token",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tokenTTL.Seconds()),
	})
}
