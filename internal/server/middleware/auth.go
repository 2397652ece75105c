// Package middleware provides HTTP middleware for the calbook server.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/dtorcivia/calbook/internal/response"
)

// BearerToken returns middleware that requires "Authorization: Bearer
// <token>". An empty token disables the check.
func BearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				response.WriteUnauthorized(w)
				return
			}
			got := strings.TrimSpace(parts[1])
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				response.WriteUnauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit returns middleware that limits requests per key. keyFn picks
// the bucket, typically the tenant path value.
func RateLimit(limiter *RateLimiter, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key != "" && !limiter.Allow(key) {
				response.WriteRateLimited(w, 60)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
