package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "custodia/pkg/domain"
)

// Claims is what the JWT validator hands back: the authenticated caller
// account. Authentication establishes identity only; capability checks stay
// inside the domain services.
type Claims struct {
	Account id.AccountID
}

// JWTValidator validates bearer tokens for RequireAuth.
type JWTValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKeyCaller struct{}

// GetCaller retrieves the authenticated caller account from the context.
// Returns the zero account when the request was not authenticated.
func GetCaller(ctx context.Context) id.AccountID {
	caller, _ := ctx.Value(contextKeyCaller{}).(id.AccountID)
	return caller
}

// WithCaller injects a caller account into a context. Test helper.
func WithCaller(ctx context.Context, caller id.AccountID) context.Context {
	return context.WithValue(ctx, contextKeyCaller{}, caller)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller account in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "rejected bearer token",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx := WithCaller(r.Context(), claims.Account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
