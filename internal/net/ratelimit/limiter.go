// Package ratelimit provides per-provider token bucket rate limiting for
// the fetch layer. Data providers throttle aggressively; one limiter per
// provider keeps a multi-series run polite.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter maintains one token bucket per provider name.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// New creates a limiter issuing rps requests per second with the given
// burst capacity per provider.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) get(provider string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
		l.limiters[provider] = lim
	}
	return lim
}

// Wait blocks until a request for the provider is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context, provider string) error {
	return l.get(provider).Wait(ctx)
}

// Allow reports whether a request for the provider may proceed now.
func (l *Limiter) Allow(provider string) bool {
	return l.get(provider).Allow()
}
