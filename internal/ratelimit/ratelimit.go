// Package ratelimit spaces requests per remote origin so the pipeline never
// hammers a single host, while leaving traffic to unrelated hosts unthrottled.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultBucket is the bucket used when no origin can be derived from the
// input. Malformed URLs throttle against it instead of failing the call.
const defaultBucket = "_default"

// Limiter grants per-origin permits no closer together than the configured
// minimum interval. Buckets are created lazily on first use and live for the
// process lifetime. Safe for concurrent use.
type Limiter struct {
	interval  time.Duration
	perOrigin map[string]time.Duration

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewLimiter builds a limiter with a global minimum inter-request interval and
// optional per-origin overrides (host → interval).
func NewLimiter(interval time.Duration, perOrigin map[string]time.Duration) *Limiter {
	overrides := make(map[string]time.Duration, len(perOrigin))
	for host, d := range perOrigin {
		overrides[strings.ToLower(host)] = d
	}
	return &Limiter{
		interval:  interval,
		perOrigin: overrides,
		buckets:   make(map[string]*rate.Limiter),
	}
}

// Acquire blocks until a permit for the input's origin is granted, or until
// ctx is done. Permits for distinct origins never block one another.
func (l *Limiter) Acquire(ctx context.Context, originOrURL string) error {
	return l.bucket(Origin(originOrURL)).Wait(ctx)
}

func (l *Limiter) bucket(origin string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[origin]; ok {
		return b
	}
	interval := l.interval
	if d, ok := l.perOrigin[origin]; ok {
		interval = d
	}
	var b *rate.Limiter
	if interval <= 0 {
		b = rate.NewLimiter(rate.Inf, 1)
	} else {
		b = rate.NewLimiter(rate.Every(interval), 1)
	}
	l.buckets[origin] = b
	return b
}

// Origin extracts the bucket identity from a URL or bare host. Inputs that
// yield no host map to the shared default bucket.
func Origin(originOrURL string) string {
	s := strings.TrimSpace(originOrURL)
	if s == "" {
		return defaultBucket
	}
	if u, err := url.Parse(s); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// Bare host, possibly with a port.
	host := s
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || strings.ContainsAny(host, " \t") {
		return defaultBucket
	}
	return host
}
