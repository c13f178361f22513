// Per-client throttling for the preview endpoint. Forecasting clones a
// batch and replays the full event pipeline on it, so it is the one surface
// an unauthenticated caller can use to burn CPU.
package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimiter grants each client a fixed allowance of requests per window.
// Windows are fixed rather than sliding: the allowance refills in full when
// a client's window expires.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientWindow
	allowance int
	window    time.Duration
}

type clientWindow struct {
	remaining int
	openedAt  time.Time
}

// NewRateLimiter creates a limiter granting allowance requests per window
// per client and starts a background sweep of idle clients.
func NewRateLimiter(allowance int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*clientWindow),
		allowance: allowance,
		window:    window,
	}
	go rl.sweep()
	return rl
}

// Allow reports whether the client may make another request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cw, ok := rl.clients[client]
	if !ok || now.Sub(cw.openedAt) >= rl.window {
		rl.clients[client] = &clientWindow{remaining: rl.allowance - 1, openedAt: now}
		return true
	}
	if cw.remaining > 0 {
		cw.remaining--
		return true
	}
	return false
}

// RetryAfter returns the seconds until the client's window reopens.
func (rl *RateLimiter) RetryAfter(client string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cw, ok := rl.clients[client]
	if !ok {
		return 0
	}
	left := rl.window - time.Since(cw.openedAt)
	if left < 0 {
		return 0
	}
	return int(left.Seconds()) + 1
}

func (rl *RateLimiter) sweep() {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for range t.C {
		rl.mu.Lock()
		now := time.Now()
		for client, cw := range rl.clients {
			if now.Sub(cw.openedAt) > 2*rl.window {
				delete(rl.clients, client)
			}
		}
		rl.mu.Unlock()
	}
}

// clientKey identifies the caller: the first X-Forwarded-For hop when the
// request came through a proxy, otherwise the remote address without its
// port.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware rejects over-allowance requests with 429 and a
// Retry-After header.
func RateLimitMiddleware(rl *RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !rl.Allow(client) {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter(client)))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}
