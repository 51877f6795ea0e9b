package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/osintops/dragnet/internal/resilience"
)

// Options configures the HTTP fetcher.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	Retries      int // retries after the first attempt
	PerHostRPS   float64
	PerHostBurst int
	MaxBodyBytes int64
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("fetcher: reducing rate after 429",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with retries, per-host
// adaptive rate limiting, and per-host circuit breaking. Registry hosts are
// not known ahead of time, so limiters are created on first contact.
type HTTPFetcher struct {
	client *http.Client
	opts   Options
	retry  resilience.RetryConfig

	mu       sync.RWMutex
	limiters map[string]*AdaptiveLimiter

	breakers *resilience.HostBreakers
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "dragnet/1.0"
	}
	if opts.PerHostRPS <= 0 {
		opts.PerHostRPS = 1
	}
	if opts.PerHostBurst <= 0 {
		opts.PerHostBurst = 2
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 << 20
	}
	transport := &http.Transport{
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts: opts,
		retry: resilience.RetryConfig{
			MaxAttempts:    opts.Retries + 1,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			JitterFraction: 0.25,
		},
		limiters: make(map[string]*AdaptiveLimiter),
		breakers: resilience.NewHostBreakers(5, 30*time.Second),
	}
}

// limiterFor returns the adaptive limiter for the given host, creating it on
// first sight.
func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.RLock()
	lim, ok := f.limiters[host]
	f.mu.RUnlock()
	if ok {
		return lim
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if lim, ok = f.limiters[host]; ok {
		return lim
	}
	lim = NewAdaptiveLimiter(rate.Limit(f.opts.PerHostRPS), f.opts.PerHostBurst)
	f.limiters[host] = lim
	return lim
}

// BreakerStates snapshots the per-host circuit breaker states.
func (f *HTTPFetcher) BreakerStates() map[string]resilience.BreakerState {
	return f.breakers.States()
}

// Fetch downloads the URL, retrying transient upstream errors and recording
// the outcome on the host's circuit breaker.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse url %q", rawURL)
	}

	breaker := f.breakers.For(u.Host)
	if err := breaker.Allow(); err != nil {
		return nil, eris.Wrapf(err, "fetcher: host %s", u.Host)
	}

	lim := f.limiterFor(u.Host)

	var attempt int
	res, err := resilience.DoVal(ctx, f.retry, func(ctx context.Context) (*Result, error) {
		attempt++
		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}
		return f.doOnce(ctx, rawURL, lim, attempt)
	})
	breaker.Record(err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *HTTPFetcher) doOnce(ctx context.Context, rawURL string, lim *AdaptiveLimiter, attempt int) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		zap.L().Warn("fetcher: request failed",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		return nil, eris.Wrap(err, "fetcher: do request")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		lim.OnRateLimit()
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http 429 from %s", rawURL), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		zap.L().Warn("fetcher: upstream error",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode),
			zap.Int("attempt", attempt),
		)
		return nil, resilience.NewTransientError(
			eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("fetcher: http %d from %s", resp.StatusCode, rawURL)
	}

	// Oversized pages are truncated rather than rejected.
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}

	lim.OnSuccess()
	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    resp.Request.URL.String(),
	}, nil
}
