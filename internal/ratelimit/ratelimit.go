// Package ratelimit provides per-client token buckets for the operations the
// agent exposes: search, upload, and general API calls.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/config"
)

// Operation names the limiter pools.
const (
	OpSearch = "search"
	OpUpload = "upload"
	OpAPI    = "api"
)

// Limiter is a token bucket shared by all callers presenting the same key.
// Keys are typically client addresses; each key gets its own bucket.
type Limiter struct {
	mu       sync.Mutex
	perMin   int
	burst    int
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	nowFunc  func() time.Time
}

// New creates a limiter allowing perMinute requests per minute with the given
// burst capacity per key. Non-positive values fall back to 100/20.
func New(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		perMinute = 100
	}
	if burst <= 0 {
		burst = 20
	}
	return &Limiter{
		perMin:   perMinute,
		burst:    burst,
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		nowFunc:  time.Now,
	}
}

func (l *Limiter) bucketLocked(key string) *rate.Limiter {
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.burst)
		l.buckets[key] = b
	}
	l.lastSeen[key] = l.nowFunc()
	return b
}

// Allow reports whether one request for key may proceed now, consuming a
// token when it may.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucketLocked(key).Allow()
}

// WaitTime returns how long the caller should wait before retrying. Zero
// means a token is available.
func (l *Limiter) WaitTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bucketLocked(key).Tokens() >= 1 {
		return 0
	}
	return time.Duration(60.0 / float64(l.perMin) * float64(time.Second))
}

// Reset drops the bucket for key, or every bucket when key is empty.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if key == "" {
		l.buckets = make(map[string]*rate.Limiter)
		l.lastSeen = make(map[string]time.Time)
		return
	}
	delete(l.buckets, key)
	delete(l.lastSeen, key)
}

// Prune removes buckets idle for longer than maxIdle and returns how many
// were dropped. Keeps the per-key map from growing without bound.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.nowFunc().Add(-maxIdle)
	n := 0
	for key, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastSeen, key)
			n++
		}
	}
	return n
}

// Registry holds the named operation limiters.
type Registry struct {
	limiters map[string]*Limiter
}

// NewRegistry builds the search, upload, and api limiters from config.
func NewRegistry(cfg config.LimitsConfig) *Registry {
	return &Registry{limiters: map[string]*Limiter{
		OpSearch: New(cfg.SearchPerMinute, cfg.SearchBurst),
		OpUpload: New(cfg.UploadPerMinute, cfg.UploadBurst),
		OpAPI:    New(cfg.APIPerMinute, cfg.APIBurst),
	}}
}

// Get returns the limiter for op, falling back to the api limiter for
// unknown operation names.
func (r *Registry) Get(op string) *Limiter {
	if l, ok := r.limiters[op]; ok {
		return l
	}
	return r.limiters[OpAPI]
}
