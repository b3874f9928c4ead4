// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/coursegen-api/internal/api/shared"
)

// UserIDHeader is the header carrying the caller's identity. The
// upstream gateway authenticates the user and forwards their ID here;
// this service only scopes data access by it.
const UserIDHeader = "X-User-ID"

// Identity extracts the caller's user ID from the request header and
// stores it in the context. Requests without a valid ID are rejected.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get(UserIDHeader))
		if err != nil || userID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing or invalid user identity")
			return
		}

		next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), userID)))
	})
}
