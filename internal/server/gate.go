// Package server wires the HTTP surface: the /ws upgrade route (behind a
// per-IP connection gate), a /healthz endpoint, and echo's standard
// logging/recovery middleware.
package server

import (
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Gate rejects new WebSocket handshakes once an IP exceeds its connect
// rate, generalizing the teacher's per-key RateLimiter from a
// request-per-second HTTP throttle into a connect-attempt throttle that
// wraps only the upgrade route.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewGate builds a connection gate allowing rps connection attempts per
// second per IP, with the given burst.
func NewGate(rps float64, burst int) *Gate {
	return &Gate{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (g *Gate) limiterFor(ip string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.limiters[ip]
	if !ok {
		l = rate.NewLimiter(g.rps, g.burst)
		g.limiters[ip] = l
	}
	return l
}

// Allow reports whether ip may attempt another connection right now.
func (g *Gate) Allow(ip string) bool {
	return g.limiterFor(ip).Allow()
}

// Middleware wraps next, rejecting over-rate IPs with 429 before the
// WebSocket handshake begins.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !g.Allow(ip) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the bare host, stripping the ephemeral port, so
// repeat connections from the same client share a limiter bucket.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
