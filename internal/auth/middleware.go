package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

type contextKey struct{}

// UserID returns the authenticated user id attached to ctx by Middleware,
// and whether one is present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// WithUserID returns a copy of ctx carrying the given user id. Exposed for
// tests that exercise handlers without the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// Middleware enforces bearer-token authentication on next. A missing, empty,
// or invalid token is rejected with 401 before next runs. On success the
// user id is attached to the request context.
//
// The token is read from "Authorization: Bearer <token>", or — for clients
// that cannot set headers, like the browser WebSocket API — from the "token"
// query parameter.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "missing credentials")
			return
		}
		userID, err := s.VerifyToken(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":%q}`, msg) //nolint:errcheck
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
