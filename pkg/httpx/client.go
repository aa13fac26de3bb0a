// Package httpx is the single call site for all outbound HTTP. It layers
// retry with exponential backoff, per-host circuit breaking, optional GET
// caching, metrics, and span annotations over net/http. Direct use of
// net/http elsewhere in the codebase is a lint violation.
package httpx

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tracing"
)

// GetCache is the subset of the multi-level cache used for cached GETs.
// Implemented by an adapter in the cache package; nil disables caching.
type GetCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Options configure a single request. Zero values fall back to client config.
type Options struct {
	// Timeout for the whole request including retries. 0 = client default.
	Timeout time.Duration

	// Retries is an explicit attempt count. 0 = resolve by precedence
	// (per-tenant config > process config > env > default).
	Retries int

	// Tenant selects per-tenant retry overrides and appears nowhere else;
	// cache keys for cached GETs include it.
	Tenant string

	// Headers are added to the request.
	Headers map[string]string

	// Cached enables response caching for GETs (2xx responses only).
	Cached bool

	// CacheTTL bounds cached responses. 0 uses the retrieval-domain default.
	CacheTTL time.Duration
}

// Response is the uniform response shape returned by the substrate.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header

	// Retries is the number of retry attempts consumed (0 = first try won).
	Retries int

	// FromCache marks responses served by the GET cache.
	FromCache bool
}

// Client is the resilient HTTP substrate.
type Client struct {
	cfg      config.HTTPConfig
	hc       *http.Client
	m        *metrics.Metrics
	cache    GetCache
	cacheTTL time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates the substrate. m may be nil (metrics disabled, tests only).
func New(cfg config.HTTPConfig, m *metrics.Metrics) *Client {
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			// Per-attempt transport timeout; the overall deadline comes from
			// the request context.
			Timeout: cfg.DefaultTimeout,
		},
		m:        m,
		cacheTTL: 300 * time.Second,
		logger:   slog.Default().With("component", "httpx"),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// SetCache installs the GET cache. ttl is the default for cached responses.
func (c *Client) SetCache(cache GetCache, ttl time.Duration) {
	c.cache = cache
	if ttl > 0 {
		c.cacheTTL = ttl
	}
}

// Get performs a GET through the substrate.
func (c *Client) Get(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	if opts.Cached && c.cache != nil {
		key := cacheKey(opts.Tenant, rawURL)
		if body, ok := c.cache.Get(ctx, key); ok {
			return &Response{StatusCode: http.StatusOK, Body: body, FromCache: true}, nil
		}
		resp, err := c.do(ctx, http.MethodGet, rawURL, nil, opts)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			ttl := opts.CacheTTL
			if ttl <= 0 {
				ttl = c.cacheTTL
			}
			c.cache.Set(ctx, key, resp.Body, ttl)
		}
		return resp, err
	}
	return c.do(ctx, http.MethodGet, rawURL, nil, opts)
}

// Post performs a POST with the given body through the substrate.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, opts Options) (*Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, body, opts)
}

// do runs the retry loop around attempts guarded by the host breaker.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, opts Options) (*Response, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, step.NewError(step.CategoryValidation, "invalid url: "+rawURL)
	}
	host := parsed.Host

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "http."+method,
		attribute.String("http.host", host),
		attribute.String("http.method", method))
	defer span.End()

	attempts := c.resolveRetries(opts.Retries, opts.Tenant)
	bo := c.newBackoff()

	var lastErr *step.Error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if c.m != nil {
				c.m.HTTPRetryAttempts.Inc()
			}
			tracing.SetRetryAttempt(ctx, attempt)
		}

		resp, attemptErr := c.attempt(ctx, method, rawURL, host, body, opts.Headers)
		decision := classifyAttempt(respHTTP(resp), attemptErr)

		if attemptErr == nil && !decision.retry {
			if resp.StatusCode >= 400 {
				return resp, statusError(resp.StatusCode, host)
			}
			resp.Retries = attempt - 1
			return resp, nil
		}

		lastErr = attemptError(resp, attemptErr, host)

		if ctx.Err() != nil {
			break
		}
		if !decision.retry || attempt == attempts {
			break
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		if decision.connError && c.cfg.ConnectionErrorScale > 1 {
			wait = time.Duration(float64(wait) * c.cfg.ConnectionErrorScale)
		}
		if decision.retryAfter > 0 {
			wait = decision.retryAfter
		}

		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
	}

	switch ctx.Err() {
	case context.DeadlineExceeded:
		lastErr = step.NewError(step.CategoryTimeout, "request deadline exceeded").
			WithContext("host", host)
	case context.Canceled:
		lastErr = step.NewError(step.CategoryCancelled, "request cancelled").
			WithContext("host", host)
	}

	tracing.SetRetryGiveUp(ctx)
	if c.m != nil {
		c.m.HTTPRetryGiveups.Inc()
	}
	lastErr.Context["retries"] = strconv.Itoa(attempts)
	return nil, lastErr
}

// attempt performs one HTTP round trip through the host's circuit breaker.
func (c *Client) attempt(ctx context.Context, method, rawURL, host string, body []byte, headers map[string]string) (*Response, error) {
	cb := c.breaker(host)

	start := time.Now()
	result, err := cb.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if reqErr != nil {
			return nil, reqErr
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}

		httpResp, doErr := c.hc.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer func() { _ = httpResp.Body.Close() }()

		data, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return nil, readErr
		}

		resp := &Response{
			StatusCode: httpResp.StatusCode,
			Body:       data,
			Header:     httpResp.Header,
		}
		// 5xx counts as a breaker failure; 4xx is the caller's problem.
		if httpResp.StatusCode >= 500 {
			return resp, fmt.Errorf("server error: %d", httpResp.StatusCode)
		}
		return resp, nil
	})

	if c.m != nil {
		c.m.HTTPLatency.WithLabelValues(method, host).Observe(time.Since(start).Seconds())
		status := "error"
		if resp, ok := result.(*Response); ok && resp != nil {
			status = strconv.Itoa(resp.StatusCode)
		}
		c.m.HTTPRequests.WithLabelValues(method, host, status).Inc()
	}

	resp, _ := result.(*Response)
	return resp, err
}

// breaker returns (creating if needed) the circuit breaker for a host.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	failures := uint32(c.cfg.BreakerFailures)
	if failures == 0 {
		failures = 5
	}
	cooldown := c.cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("Circuit breaker state change",
				"host", name, "from", from.String(), "to", to.String())
		},
	})
	c.breakers[host] = cb
	return cb
}

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.RandomizationFactor = 0.5
	if c.cfg.BackoffFactor >= 1 {
		bo.Multiplier = c.cfg.BackoffFactor
	}
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // the request context bounds the loop
	return bo
}

// respHTTP adapts our Response back to the *http.Response shape the
// classifier reads (status code and headers only).
func respHTTP(resp *Response) *http.Response {
	if resp == nil {
		return nil
	}
	return &http.Response{StatusCode: resp.StatusCode, Header: resp.Header}
}

func attemptError(resp *Response, err error, host string) *step.Error {
	if err != nil {
		if stepErr, ok := err.(*step.Error); ok {
			return stepErr
		}
		return step.NewError(step.CategoryNetwork, err.Error()).WithContext("host", host)
	}
	return statusError(resp.StatusCode, host)
}

func statusError(code int, host string) *step.Error {
	msg := fmt.Sprintf("http status %d", code)
	switch {
	case code == http.StatusTooManyRequests:
		return step.NewError(step.CategoryRateLimit, msg).WithContext("host", host)
	case code >= 500:
		return step.NewError(step.CategoryProviderError, msg).WithContext("host", host)
	case code == http.StatusRequestTimeout:
		return step.NewError(step.CategoryTimeout, msg).WithContext("host", host).WithRetryable(true)
	default:
		return step.NewError(step.CategoryProviderError, msg).
			WithContext("host", host).WithRetryable(false)
	}
}

func cacheKey(tenant, rawURL string) string {
	sum := sha256.Sum256([]byte(tenant + "|" + rawURL))
	return "httpget:" + hex.EncodeToString(sum[:])
}
