package provider

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy implements spec §4.2's retry discipline: retryable statuses,
// capped exponential backoff with jitter, and Retry-After precedence.
type RetryPolicy struct {
	MaxAttempts     int           // 1 initial + retries; default 4
	InitialDelay    time.Duration // default 1s
	Multiplier      float64       // default 2.0
	MaxDelay        time.Duration // default 30s
	JitterFraction  float64       // default 0.25 (±25%)
	RetryableStatus map[int]bool

	// Rand is overridable for deterministic tests.
	Rand *rand.Rand
}

// DefaultRetryPolicy returns the policy with spec §4.2's default values.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialDelay:   time.Second,
		Multiplier:     2.0,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.25,
		RetryableStatus: map[int]bool{
			http.StatusRequestTimeout:     true, // 408
			http.StatusTooManyRequests:    true, // 429
			http.StatusInternalServerError: true, // 500
			http.StatusBadGateway:          true, // 502
			http.StatusServiceUnavailable:  true, // 503
			http.StatusGatewayTimeout:      true, // 504
		},
	}
}

// IsRetryable reports whether status should be retried: the explicit set
// above, or any other status >= 500 (spec §4.2).
func (p RetryPolicy) IsRetryable(status int) bool {
	if p.RetryableStatus[status] {
		return true
	}
	return status >= 500
}

// Delay returns the backoff delay before attempt (1-indexed: attempt 1 is
// the first retry, following the initial try). jitterFraction is applied
// symmetrically around the exponential value.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if base > float64(p.MaxDelay) {
		base = float64(p.MaxDelay)
	}
	jitter := p.jitter(base)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func (p RetryPolicy) jitter(base float64) float64 {
	r := p.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	spread := base * p.JitterFraction
	return (r.Float64()*2 - 1) * spread
}

// ParseRetryAfter parses an HTTP Retry-After header value, which per RFC
// 7231 is either an integer number of seconds or an HTTP-date.
func ParseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
