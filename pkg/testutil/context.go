package testutil

import (
	"net/http"

	"custodia/internal/platform/middleware"
	id "custodia/pkg/domain"
)

// WithCaller injects an authenticated caller into the request context,
// simulating what the auth middleware does for authenticated requests.
func WithCaller(req *http.Request, caller id.AccountID) *http.Request {
	return req.WithContext(middleware.WithCaller(req.Context(), caller))
}
