package provider

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token-bucket limiter per provider name, so a
// slow/quota-limited provider never starves the others (spec §4.2, consulted
// before the retry/backoff path on every Send).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	// RatePerSecond and Burst seed newly created limiters. Defaults of 2
	// req/s and a burst of 4 match the conservative per-provider ceilings
	// used across the example fleet.
	RatePerSecond float64
	Burst         int
}

// NewRateLimiter returns a limiter defaulting every provider to
// ratePerSecond/burst on first use. A ratePerSecond <= 0 disables limiting
// (Wait always returns immediately).
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 4
	}
	return &RateLimiter{
		limiters:      make(map[string]*rate.Limiter),
		RatePerSecond: ratePerSecond,
		Burst:         burst,
	}
}

func (r *RateLimiter) limiterFor(provider string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.RatePerSecond), r.Burst)
		r.limiters[provider] = l
	}
	return l
}

// Wait blocks until provider's bucket admits one request, or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, provider string) error {
	if r.RatePerSecond <= 0 {
		return nil
	}
	return r.limiterFor(provider).Wait(ctx)
}

// SetLimit overrides the limit for one provider, e.g. from a lower
// provider-specific quota supplied in orchestrator config.
func (r *RateLimiter) SetLimit(provider string, ratePerSecond float64, burst int) {
	if burst <= 0 {
		burst = r.Burst
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[provider] = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}
