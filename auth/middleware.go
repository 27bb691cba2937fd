package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const userContextKey contextKey = "auth.user"

// Middleware rejects requests without a valid bearer token and attaches the
// verified UserContext to the request context
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, `{"error": "missing bearer token"}`, http.StatusUnauthorized)
			return
		}

		user, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserFromContext returns the verified caller, or nil outside the middleware
func UserFromContext(ctx context.Context) *UserContext {
	user, _ := ctx.Value(userContextKey).(*UserContext)
	return user
}
