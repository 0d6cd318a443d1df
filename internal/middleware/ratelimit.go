package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter applies a fixed-window request limit per client IP. Windows are
// tracked in memory, which is fine for a single-process deployment; state is
// lost on restart and the first request of a new window resets the count.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*window

	limit  int
	period time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type window struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter allows limit requests per period for each client IP.
func NewRateLimiter(limit int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*window),
		limit:   limit,
		period:  period,
		stop:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Stop ends the background sweep goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if retryAfter, ok := rl.allow(ip); !ok {
			w.Header().Set("Retry-After", retryAfter)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "too many requests, slow down",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) (retryAfter string, ok bool) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	win, exists := rl.clients[ip]
	if !exists || now.After(win.resetAt) {
		rl.clients[ip] = &window{count: 1, resetAt: now.Add(rl.period)}
		return "", true
	}

	if win.count >= rl.limit {
		secs := int(time.Until(win.resetAt).Seconds()) + 1
		return strconv.Itoa(secs), false
	}

	win.count++
	return "", true
}

// sweep drops expired windows so the map does not grow without bound. It runs
// until Stop is called.
func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for ip, win := range rl.clients {
				if now.After(win.resetAt) {
					delete(rl.clients, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// clientIP prefers the RemoteAddr host; chi's RealIP middleware has already
// rewritten it from X-Forwarded-For when the request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
