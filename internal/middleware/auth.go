package middleware

import (
	"context"
	"net/http"

	"github.com/echoboard/echoboard/internal/config"
)

type contextKey string

const authContextKey contextKey = "auth"

// AuthContext carries the authenticated account for the request.
type AuthContext struct {
	AccountID string
}

// Auth resolves the account for each request. OAuth/session exchange
// happens upstream; this layer only trusts its verdict. In self-hosted
// mode every request maps to the configured default account.
func Auth(cfg *config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := cfg.DefaultAccountID
			if cfg.AuthMode == config.AuthModeHeader {
				accountID = r.Header.Get("X-Account-Id")
				if accountID == "" {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					w.Write([]byte(`{"error":"unauthorized"}`))
					return
				}
			}
			ctx := context.WithValue(r.Context(), authContextKey, &AuthContext{AccountID: accountID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext retrieves the auth context from the request context.
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(authContextKey).(*AuthContext)
	return authCtx
}
