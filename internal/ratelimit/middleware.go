package ratelimit

import (
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is sent in the Retry-After header on 429.
const DefaultRetryAfterSeconds = 1

// Middleware enforces the per-user rate limit. getUserID extracts the
// authenticated user from the request; premium reports the user's tier.
// Unauthenticated requests pass through and are left to the auth layer.
func Middleware(limiter *RateLimiter, getUserID func(r *http.Request) string, premium func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := getUserID(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.getLimiter(userID, premium(r))
			if !bucket.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("Too Many Requests"))
				return
			}

			remaining := int(bucket.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
