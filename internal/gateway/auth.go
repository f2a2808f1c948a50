package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/budgetforce/internal/security"
)

// authMiddleware validates Bearer or Basic credentials in constant time.
// Attempts are rate limited on the auth bucket when limiter is non-nil.
func authMiddleware(cfg AuthConfig, limiter *security.RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.BucketAuth); err != nil {
					writeError(w, http.StatusTooManyRequests, "too many requests")
					return
				}
			}

			auth := r.Header.Get("Authorization")
			if cfg.BearerToken != "" {
				if token, ok := strings.CutPrefix(auth, "Bearer "); ok && constantTimeEqual(token, cfg.BearerToken) {
					next.ServeHTTP(w, r)
					return
				}
			}
			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					next.ServeHTTP(w, r)
					return
				}
			}

			if logger != nil {
				logger.Warn("gateway: authentication failed", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
