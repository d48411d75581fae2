// Package ratelimit throttles outbound storefront calls per partner host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/jane-menu-proxy/internal/menu"
	"github.com/JakeFAU/jane-menu-proxy/internal/metrics"
)

// Limiter manages one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Config holds rate limiter configuration. RPS <= 0 means unlimited.
type Config struct {
	RPS   float64
	Burst int
}

// Enabled reports whether cfg throttles anything.
func (c Config) Enabled() bool {
	return c.RPS > 0
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the host of rawURL.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Fetcher delays calls to next so no host exceeds the configured rate.
type Fetcher struct {
	next    menu.Fetcher
	limiter *Limiter
}

// Wrap returns next throttled by cfg, or next itself when cfg is disabled.
func Wrap(next menu.Fetcher, cfg Config) menu.Fetcher {
	if !cfg.Enabled() {
		return next
	}
	return &Fetcher{next: next, limiter: New(cfg)}
}

// Fetch waits for a token, then delegates. A wait cut short by ctx is a
// transport failure like any other.
func (f *Fetcher) Fetch(ctx context.Context, req menu.Request) (menu.Response, error) {
	if err := f.limiter.Wait(ctx, req.URL); err != nil {
		return menu.Response{}, err
	}
	resp, err := f.next.Fetch(ctx, req)
	if err != nil {
		return resp, fmt.Errorf("throttled fetch: %w", err)
	}
	return resp, nil
}
