package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dandi/dandi/internal/identity"
)

// SessionCookieName is the cookie carrying the dashboard session token.
const SessionCookieName = "dandi_session"

// SessionConfig holds configuration for the session middleware.
type SessionConfig struct {
	Logger   *slog.Logger
	Resolver *identity.Resolver
}

// Session returns a middleware that authenticates requests by resolving
// the session credential to a user and injecting the identity into the
// request context. Requests without a resolvable identity get a uniform
// 401; a missing session and a bad session are indistinguishable to the
// caller.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractSessionToken(r)

			ident := cfg.Resolver.Resolve(r.Context(), token)
			if ident == nil {
				cfg.Logger.Warn("authentication failed",
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeUnauthorized(w)
				return
			}

			ctx := identity.ContextWithIdentity(r.Context(), ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractSessionToken extracts the session credential from the request.
// Supports "Authorization: Bearer <token>" and the session cookie.
func extractSessionToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// writeUnauthorized writes a 401 response. The message is the same for
// every auth failure to avoid leaking session state.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Unauthorized"}}`))
}
