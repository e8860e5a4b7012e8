// Package middleware provides HTTP filters for the admin API:
// authentication and request logging.
package middleware

import (
	"net/http"
	"strings"

	pkglog "tux/pkg/log"
)

// Auth returns a filter enforcing the admin token on every endpoint
// except the health probe. An empty configured token disables the
// check; that is only acceptable for local development and is called
// out loudly at startup.
func Auth(adminToken string, logger *pkglog.LogHelper) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminToken == "" || r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			token := bearerToken(r)
			if token == "" {
				token = r.Header.Get("X-Admin-Token")
			}

			if token != adminToken {
				logger.Security("admin request rejected",
					"path", r.URL.Path,
					"remote", r.RemoteAddr,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			logger.Auth("admin request authenticated",
				"path", r.URL.Path,
				"admin_token", token,
			)
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token from "Authorization: Bearer {token}".
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}
