package middleware

import (
	"context"
	"net/http"

	"notification-engine/pkg/response"
)

type contextKey string

// ContextUserID carries the authenticated user resolved by the gateway.
const ContextUserID contextKey = "user_id"

// RequireUser trusts the identity header stamped by the API gateway
// upstream. Identity resolution itself is not this service's job; a
// request without the header never reaches a handler.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			response.Error(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		ctx := context.WithValue(r.Context(), ContextUserID, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user from the request context.
func UserID(r *http.Request) string {
	id, _ := r.Context().Value(ContextUserID).(string)
	return id
}
