package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return rateLimit(requestsPerMinute, httprate.KeyByIP)
}

// RateLimitByUser limits per authenticated user, falling back to the client IP.
func RateLimitByUser(requestsPerMinute int) func(http.Handler) http.Handler {
	return rateLimit(requestsPerMinute, func(r *http.Request) (string, error) {
		if userID, ok := GetUserID(r.Context()); ok {
			return "user:" + userID, nil
		}
		return httprate.KeyByIP(r)
	})
}

func rateLimit(requestsPerMinute int, key httprate.KeyFunc) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "rate limit exceeded",
				"code":  "rate_limit",
			})
		}),
	)
}
