package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/listenupapp/webmention-receiver/internal/http/response"
)

const receiverRoute = "receiver"

// receiverRateLimit rejects clients that exceed the receiver's per-IP budget
// with 429 Too Many Requests.
func (s *Server) receiverRateLimit(next http.Handler) http.Handler {
	if s.receiverLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := getClientIP(r)

		if !s.receiverLimiter.Allow(key) {
			s.logger.Warn("rate limit exceeded",
				"ip", key,
				"path", r.URL.Path,
			)
			if s.metrics != nil {
				s.metrics.RateLimited.WithLabelValues(receiverRoute).Inc()
			}
			response.TooManyRequests(w, s.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request.
// Checks X-Forwarded-For and X-Real-IP headers before falling back to RemoteAddr.
func getClientIP(r *http.Request) string {
	// First entry of X-Forwarded-For is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
