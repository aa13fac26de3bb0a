package httpx

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/contentlens/contentlens/pkg/config"
)

// validRetries reports whether n is inside the accepted retry range.
func validRetries(n int) bool {
	return n >= config.MinHTTPRetries && n <= config.MaxHTTPRetries
}

// ResolveRetries resolves the retry attempt count by precedence:
// explicit argument > per-tenant override > process config > environment >
// compile-time default. Invalid values at any level are ignored and the next
// level consulted.
func ResolveRetries(explicit int, tenant *int, process int, env string) int {
	if validRetries(explicit) {
		return explicit
	}
	if tenant != nil && validRetries(*tenant) {
		return *tenant
	}
	if validRetries(process) {
		return process
	}
	if env != "" {
		if n, err := strconv.Atoi(env); err == nil && validRetries(n) {
			return n
		}
	}
	return config.DefaultHTTPRetries
}

// resolveRetries applies the precedence chain for one request.
func (c *Client) resolveRetries(explicit int, tenantID string) int {
	var tenant *int
	if tenantID != "" {
		if n, ok := c.cfg.TenantRetries[tenantID]; ok {
			tenant = &n
		}
	}
	return ResolveRetries(explicit, tenant, c.cfg.MaxRetries, os.Getenv("HTTP_MAX_RETRIES"))
}

// retryDecision describes how to treat a failed attempt.
type retryDecision struct {
	retry      bool
	connError  bool          // connection-level failure, backoff is scaled
	retryAfter time.Duration // server-provided wait, overrides backoff
}

// classifyAttempt decides whether an attempt outcome is retryable.
// Transient: connection errors, timeouts, 5xx, 408, and 429 (Retry-After
// honoured). Other 4xx are permanent.
func classifyAttempt(resp *http.Response, err error) retryDecision {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return retryDecision{}
		}
		// Transport-level failure: connection refused, reset, DNS, TLS,
		// client timeout. All worth retrying.
		return retryDecision{retry: true, connError: true}
	}

	switch {
	case resp.StatusCode >= 500:
		return retryDecision{retry: true}
	case resp.StatusCode == http.StatusTooManyRequests:
		return retryDecision{retry: true, retryAfter: parseRetryAfter(resp)}
	case resp.StatusCode == http.StatusRequestTimeout:
		return retryDecision{retry: true}
	default:
		return retryDecision{}
	}
}

// parseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func parseRetryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
