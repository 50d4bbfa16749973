package testutil

import (
	"net/http"
	"time"

	"datashare/pkg/domain"
	"datashare/pkg/requestcontext"
)

// AsUser stamps the request context with an authenticated user, simulating
// what RequireAuth does after validating a token.
func AsUser(req *http.Request, userID domain.UserID, role domain.Role) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// AtTime pins the request clock, simulating the RequestTime middleware with a
// chosen instant.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
