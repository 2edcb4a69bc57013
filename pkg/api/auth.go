package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthConfig holds the API keys accepted by the middleware.
type AuthConfig struct {
	APIKeys []string
}

// NewAuthConfig returns nil when keys is empty, which disables auth.
func NewAuthConfig(keys []string) *AuthConfig {
	if len(keys) == 0 {
		return nil
	}
	return &AuthConfig{APIKeys: keys}
}

// authMiddleware wraps an http.Handler with Bearer / X-API-Key checks.
// Requests to /health and /metrics bypass authentication.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			if cfg.valid(strings.TrimPrefix(auth, "Bearer ")) {
				next.ServeHTTP(w, r)
				return
			}
		}
		if key := r.Header.Get("X-API-Key"); key != "" && cfg.valid(key) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("WWW-Authenticate", `Bearer realm="slotstrike API"`)
		writeJSON(w, http.StatusUnauthorized, Response{
			Success: false,
			Error:   "authentication required",
		})
	})
}

func (cfg AuthConfig) valid(token string) bool {
	ok := false
	for _, k := range cfg.APIKeys {
		if subtle.ConstantTimeCompare([]byte(token), []byte(k)) == 1 {
			ok = true
		}
	}
	return ok
}
