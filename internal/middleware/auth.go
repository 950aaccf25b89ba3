// Package middleware provides HTTP middleware for the newsdesk API.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// TokenAuth returns middleware that requires an "Authorization: Bearer"
// token matching the bcrypt hash. With no hash configured every request is
// refused, so triggers are never left open by accident.
func TokenAuth(hash string) func(http.Handler) http.Handler {
	if hash == "" {
		slog.Warn("trigger token hash not configured, job triggers are disabled")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				http.Error(w, `{"error":"triggers disabled"}`, http.StatusServiceUnavailable)
				return
			}

			token, ok := bearer(r)
			if !ok {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
				slog.Debug("trigger auth: bad token", "remote", r.RemoteAddr)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
