package server

import (
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
	mu      sync.Mutex

	// proxies whose forwarding headers name the real client
	trusted []netip.Prefix
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute sustained with
// the given burst
func NewRateLimiter(requestsPerMinute, burst int, trustedProxies ...netip.Prefix) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		trusted: trustedProxies,
	}
}

// Allow reports whether a request from clientIP may proceed now
func (r *RateLimiter) Allow(clientIP string) bool {
	return r.get(clientIP).Allow()
}

// RetryAfter estimates how long clientIP must wait for the next token
func (r *RateLimiter) RetryAfter(clientIP string) time.Duration {
	res := r.get(clientIP).Reserve()
	defer res.Cancel()
	return res.Delay()
}

func (r *RateLimiter) get(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientIP]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.clients[clientIP] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Len returns the number of tracked clients
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Cleanup forgets clients idle since before cutoff
func (r *RateLimiter) Cleanup(cutoff time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for ip, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			delete(r.clients, ip)
		}
	}
}
