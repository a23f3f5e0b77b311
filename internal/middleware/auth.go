package middleware

import (
	"context"
	"net/http"

	"app/internal/logger"
	"app/internal/model"
	"app/internal/service"
)

// Injected key type to avoid context collisions
type contextKey string

const UserContextKey = contextKey("user")

// AuthMiddleware rejects requests without a valid session cookie and embeds
// the decoded session into the request context.
func AuthMiddleware(sessions service.SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.Read(r)
			if sess == nil {
				logger := logger.New()
				logger.Debug().Str("path", r.URL.Path).Msg("Request without a valid session")
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware further restricts a route to allow-listed admin accounts.
// It must run after AuthMiddleware.
func AdminMiddleware(authz *service.Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if sess == nil || !authz.IsAdmin(sess.Email) {
				http.Error(w, "admin access required", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the session placed by AuthMiddleware, or nil.
func SessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(UserContextKey).(*model.Session)
	return sess
}
