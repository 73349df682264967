// Package server implements token bucket rate limiters: one per WebSocket
// connection to protect the hub, and one per client IP for the HTTP API.
package server

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type tokenBucket struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

// newTokenBucket creates a bucket holding `capacity` tokens that refills
// completely over `interval`.
func newTokenBucket(capacity int, interval time.Duration) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &tokenBucket{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
	}
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastCheck).Seconds()
	b.lastCheck = now

	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

// ipRateLimiter throttles HTTP requests per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	burst    int
	interval time.Duration
}

func newIPRateLimiter(cfg RateLimitConfig) *ipRateLimiter {
	return &ipRateLimiter{
		buckets:  make(map[string]*tokenBucket),
		burst:    cfg.Burst,
		interval: cfg.RefillInterval,
	}
}

// middleware enforces the per-IP limit before calling the next handler.
func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		l.mu.Lock()
		bucket := l.buckets[ip]
		if bucket == nil {
			bucket = newTokenBucket(l.burst, l.interval)
			l.buckets[ip] = bucket
		}
		l.mu.Unlock()

		if !bucket.allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
