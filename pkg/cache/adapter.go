package cache

import (
	"context"
	"time"

	"github.com/contentlens/contentlens/pkg/metrics"
)

// HTTPAdapter exposes the exact-layer store to the HTTP substrate for cached
// GETs. The substrate hands over pre-derived tenant-scoped keys, so only the
// store is involved; the semantic layer never sees raw HTTP bodies.
type HTTPAdapter struct {
	store Store
	m     *metrics.Metrics
}

// NewHTTPAdapter wraps the store for use as an httpx.GetCache.
func NewHTTPAdapter(store Store, m *metrics.Metrics) *HTTPAdapter {
	return &HTTPAdapter{store: store, m: m}
}

// Get returns the cached response body for key.
func (a *HTTPAdapter) Get(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := a.store.Get(ctx, key)
	if err != nil || !ok {
		if a.m != nil {
			a.m.CacheMisses.WithLabelValues(string(DomainRetrieval)).Inc()
		}
		return nil, false
	}
	if a.m != nil {
		a.m.CacheHits.WithLabelValues(string(DomainRetrieval), "exact").Inc()
	}
	return value, true
}

// Set stores a response body under key.
func (a *HTTPAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	_ = a.store.Set(ctx, key, value, ttl)
}
