package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"zeron/internal/identity"
	"zeron/pkg/requestcontext"
)

type contextKeyIdentity struct{}

// ContextKeyIdentity is exported for tests that build contexts by hand.
var ContextKeyIdentity = contextKeyIdentity{}

// GetIdentity retrieves the resolved caller identity from the context.
// The second return is false when the request was not authenticated.
func GetIdentity(ctx context.Context) (identity.Identity, bool) {
	ident, ok := ctx.Value(ContextKeyIdentity).(identity.Identity)
	return ident, ok
}

// WithIdentity injects a resolved identity into a context. Used by tests that
// bypass the HTTP middleware chain.
func WithIdentity(ctx context.Context, ident identity.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, ident)
}

// RequireAuth resolves the bearer token through the identity provider and
// stores the resulting identity in the request context. Every protected
// operation downstream takes this explicit identity; there is no default caller.
func RequireAuth(provider identity.Provider, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "missing or invalid Authorization header")
				return
			}

			ident, err := provider.Resolve(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - unresolved identity",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, ident)))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"reason":"unauthorized","detail":"` + description + `"}`))
}
