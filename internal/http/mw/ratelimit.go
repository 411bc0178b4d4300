package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitByIP returns a Chi middleware allowing requestsPerMinute requests
// per client IP. A limit of zero or less disables rate limiting.
func RateLimitByIP(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}
