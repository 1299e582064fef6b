package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/safeapps-io/money-back/internal/core/services"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	SessionIDKey contextKey = "session_id"
)

// AuthMiddleware validates the Bearer session ticket and injects the user
// and session ids into the request context. SSE clients cannot set headers,
// so a ticket query parameter is accepted as a fallback.
func AuthMiddleware(tokenSvc *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ticket string
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || parts[0] != "Bearer" {
					http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
					return
				}
				ticket = parts[1]
			} else {
				ticket = r.URL.Query().Get("ticket")
			}
			if ticket == "" {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}
			claims, err := tokenSvc.ValidateTicket(ticket)
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, SessionIDKey, claims.SessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
