package chi

import (
	"net/http"
	"strings"
)

// isExempt reports whether a path skips authentication. Probes and metric
// scrapers have no API key.
func isExempt(path string) bool {
	return path == "/health" || path == "/metrics"
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Missing headers and other schemes report false.
func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}

// BearerAuthMiddleware guards the retrieval endpoints with static bearer
// keys. An empty key list disables authentication entirely, which is the
// local development mode.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeBadRequest, "missing or malformed authorization header")
				return
			}
			if _, ok := keys[token]; !ok {
				writeError(w, http.StatusUnauthorized, CodeBadRequest, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
