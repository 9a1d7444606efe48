// Package ratelimit implements a token bucket rate limiter for per-market rate control.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/market-harvester/internal/metrics"
)

// Limiter manages per-market rate limits.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
	}
}

// Wait blocks until a token is available for the given market, respecting the context.
func (l *Limiter) Wait(ctx context.Context, market string) error {
	if market == "" {
		market = "unknown"
	}
	l.mu.Lock()
	limiter, exists := l.limiters[market]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[market] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	err := limiter.Wait(ctx)
	if err == nil {
		// Measuring the whole Wait call is a good proxy for the delay the
		// limiter introduced; an immediately available token observes ~0.
		duration := time.Since(start)
		if duration > time.Millisecond {
			metrics.ObserveRateLimitDelay(market, duration)
		}
	}
	if err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// SetMarketRate overrides the limit for a single market. Subsequent Wait
// calls for that market use the new rate.
func (l *Limiter) SetMarketRate(market string, rps float64, burst int) {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	l.mu.Lock()
	l.limiters[market] = rate.NewLimiter(r, burst)
	l.mu.Unlock()
}
