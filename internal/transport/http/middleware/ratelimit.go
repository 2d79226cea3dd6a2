package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/atalho/atalho-url/internal/constants"
	redisStorage "github.com/atalho/atalho-url/internal/storage/redis"
	"github.com/atalho/atalho-url/pkg/httputils"
)

// RateLimitMiddleware enforces a per-client fixed-window limit on
// writes. Redis errors fail open so an unavailable cache cannot take
// down link creation.
func RateLimitMiddleware(limiter *redisStorage.FixedWindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			ctx, cancel := context.WithTimeout(r.Context(), 200*time.Millisecond)
			defer cancel()

			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				httputils.WriteAPIError(w, r, constants.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if apiKey := strings.TrimSpace(r.Header.Get(APIKeyHeader)); apiKey != "" {
		return "api_key:" + apiKey
	}

	// Fallback: use client IP (best-effort).
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return "ip:" + host
	}
	return "ip:unknown"
}
