package apiclient

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig defines the client side rate limit.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// DefaultRateLimit stays well under the backend's own limits for
// authenticated operations.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 120,
	Window:            time.Minute,
	Burst:             20,
}

// Limit converts the window into a per second rate.
func (c RateLimitConfig) Limit() rate.Limit {
	if c.RequestsPerWindow <= 0 || c.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.RequestsPerWindow) / c.Window.Seconds())
}

// RateLimitTransport delays outbound requests so that no single host sees
// more than the configured rate. Requests wait for a token rather than fail;
// a cancelled context aborts the wait.
type RateLimitTransport struct {
	Base http.RoundTripper

	limiters sync.Map // map[string]*rate.Limiter, keyed by host
	rate     rate.Limit
	burst    int
}

// NewRateLimitTransport wraps base. A nil base uses http.DefaultTransport.
func NewRateLimitTransport(base http.RoundTripper, cfg RateLimitConfig) *RateLimitTransport {
	return &RateLimitTransport{
		Base:  base,
		rate:  cfg.Limit(),
		burst: max(cfg.Burst, 1),
	}
}

// getLimiter retrieves or creates the limiter for host
func (t *RateLimitTransport) getLimiter(host string) *rate.Limiter {
	// Fast path: limiter already exists
	if l, ok := t.limiters.Load(host); ok {
		return l.(*rate.Limiter)
	}

	actual, _ := t.limiters.LoadOrStore(host, rate.NewLimiter(t.rate, t.burst))
	return actual.(*rate.Limiter)
}

// RoundTrip waits for the host's limiter, then forwards r.
func (t *RateLimitTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.getLimiter(r.URL.Host).Wait(r.Context()); err != nil {
		return nil, err
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
