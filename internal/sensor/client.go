// Package sensor fetches rainfall and slope for a location from remote
// services. Every call is rate limited, retried with backoff and guarded by a
// per-sensor circuit breaker. Fallback values are the caller's concern.
package sensor

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/swc-cli/internal/metrics"
	"github.com/sells-group/swc-cli/internal/resilience"
)

const (
	defaultUserAgent = "swc-cli/1.0"
	defaultTimeout   = 20 * time.Second
	defaultRate      = 5.0
	maxBodyBytes     = 16 << 20
)

// Options configures a sensor client.
type Options struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second; default 5
	Retry     resilience.RetryConfig
	Breaker   resilience.CircuitBreakerConfig
	UserAgent string
	Metrics   *metrics.Metrics

	// HTTPClient overrides the client built from Timeout.
	HTTPClient *http.Client
}

type client struct {
	name      string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
	metrics   *metrics.Metrics
	userAgent string
}

func newClient(name string, opts Options) *client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRate
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Breaker.ShouldTrip == nil {
		opts.Breaker.ShouldTrip = resilience.IsTransient
	}
	opts.Retry.OnRetry = resilience.RetryLogger(name, "fetch")

	return &client{
		name:      name,
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1),
		retry:     opts.Retry,
		breaker:   resilience.NewCircuitBreaker(name, opts.Breaker),
		metrics:   opts.Metrics,
		userAgent: opts.UserAgent,
	}
}

// get fetches url through the breaker and the retry policy.
func (c *client) get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() { c.metrics.ObserveSensorLatency(c.name, time.Since(start)) }()

	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
			return c.fetch(ctx, url)
		})
	})
}

func (c *client) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "%s: rate limit", c.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", c.name)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: request", c.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.StatusError(c.name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "%s: read body", c.name), 0)
	}
	return body, nil
}
