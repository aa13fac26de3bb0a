// Package cache implements the multi-level response cache: an exact layer
// keyed by canonical prompt hash, and an optional semantic layer that matches
// embedding similarity above a configured threshold. All keys are namespaced
// per tenant and workspace.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/step"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// Domain partitions the cache by payload kind, each with its own TTL.
type Domain string

// Cache domains.
const (
	DomainLLM       Domain = "llm"
	DomainRetrieval Domain = "retrieval"
	DomainTool      Domain = "tool"
	DomainRouting   Domain = "routing"
)

// Embedder turns text into an embedding vector for semantic matching.
// Implementations live with the LLM providers.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request identifies one cacheable lookup.
type Request struct {
	Tenant tenancy.TenantContext
	Domain Domain
	Prompt string
	Model  string
}

// canonical normalizes the prompt for exact matching. Only surrounding
// whitespace is stripped: prompts that differ in internal whitespace or
// punctuation must miss the exact layer and fall through to semantic.
func canonical(prompt string) string {
	return strings.TrimSpace(prompt)
}

// scope confines semantic matches to one tenant/workspace/domain/model slice.
func (r Request) scope() string {
	return tenancy.Namespace(r.Tenant, string(r.Domain)) + ":" + tenancy.Sanitize(r.Model)
}

// exactKey derives the namespaced exact-layer key. The namespace stays in the
// clear so Invalidate can match tenant prefixes; only the prompt is hashed.
func (r Request) exactKey() string {
	sum := sha256.Sum256([]byte(canonical(r.Prompt) + "\x00" + r.Model))
	return r.scope() + ":" + hex.EncodeToString(sum[:])
}

// Cache is the multi-level cache. Concurrency-safe.
type Cache struct {
	cfg      config.CacheConfig
	m        *metrics.Metrics
	store    Store
	semantic *semanticIndex
	embedder Embedder
	group    singleflight.Group
	logger   *slog.Logger
}

// New builds the cache on the given exact-layer store. embedder may be nil,
// which disables the semantic layer regardless of config.
func New(cfg config.CacheConfig, store Store, embedder Embedder, m *metrics.Metrics) (*Cache, error) {
	c := &Cache{
		cfg:      cfg,
		m:        m,
		store:    store,
		embedder: embedder,
		logger:   slog.Default().With("component", "cache"),
	}
	if cfg.SemanticEnabled && embedder != nil {
		idx, err := newSemanticIndex(cfg.MaxEntries)
		if err != nil {
			return nil, err
		}
		c.semantic = idx
	}
	return c, nil
}

// semanticHit is the outcome of a semantic-layer lookup.
type semanticHit struct {
	value []byte
	sim   float64
	ok    bool
}

// Get looks up the request in both layers. The semantic lookup is issued
// concurrently with the exact lookup so a remote exact store does not
// serialize the two; its result is only consumed when the exact layer misses.
func (c *Cache) Get(ctx context.Context, req Request) ([]byte, step.CacheInfo, bool) {
	var prefetch chan semanticHit
	if c.semantic != nil {
		prefetch = make(chan semanticHit, 1)
		if c.m != nil {
			c.m.PrefetchIssued.Inc()
		}
		go func() {
			prefetch <- c.semanticLookup(ctx, req)
		}()
	}

	value, ok, err := c.store.Get(ctx, req.exactKey())
	if err != nil {
		c.logger.Warn("Exact cache lookup failed", "error", err)
	}
	if ok {
		if c.m != nil {
			c.m.CacheHits.WithLabelValues(string(req.Domain), "exact").Inc()
		}
		return value, step.CacheInfo{Hit: true, Kind: "exact"}, true
	}

	if prefetch != nil {
		hit := <-prefetch
		if hit.ok {
			if c.m != nil {
				c.m.CacheHits.WithLabelValues(string(req.Domain), "semantic").Inc()
				c.m.PrefetchUsed.Inc()
			}
			return hit.value, step.CacheInfo{Hit: true, Kind: "semantic", Similarity: hit.sim}, true
		}
	}

	if c.m != nil {
		c.m.CacheMisses.WithLabelValues(string(req.Domain)).Inc()
	}
	return nil, step.CacheInfo{}, false
}

// semanticLookup embeds the prompt and ranks candidates in the request scope.
// The nearest candidate's similarity is always recorded; only candidates at or
// above the threshold count as hits.
func (c *Cache) semanticLookup(ctx context.Context, req Request) semanticHit {
	embedding, err := c.embedder.Embed(ctx, canonical(req.Prompt))
	if err != nil {
		c.logger.Warn("Embedding failed, skipping semantic lookup", "error", err)
		return semanticHit{}
	}

	value, sim, found := c.semantic.search(req.scope(), embedding)
	if !found {
		return semanticHit{}
	}
	if c.m != nil {
		c.m.CacheSimilarity.WithLabelValues(metrics.SimilarityBucket(sim)).Inc()
	}
	if sim < c.cfg.SemanticThreshold {
		return semanticHit{}
	}
	return semanticHit{value: value, sim: sim, ok: true}
}

// Set stores the value in the exact layer and, when enabled, indexes it for
// semantic matching. Semantic indexing failures are logged and dropped; the
// exact layer is authoritative.
func (c *Cache) Set(ctx context.Context, req Request, value []byte) {
	key := req.exactKey()
	if err := c.store.Set(ctx, key, value, c.ttlFor(req.Domain)); err != nil {
		c.logger.Warn("Exact cache store failed", "error", err)
	}

	if c.semantic == nil {
		return
	}
	embedding, err := c.embedder.Embed(ctx, canonical(req.Prompt))
	if err != nil {
		c.logger.Warn("Embedding failed, entry not semantically indexed", "error", err)
		return
	}
	ttl := c.cfg.SemanticTTL
	if ttl <= 0 {
		ttl = c.ttlFor(req.Domain)
	}
	c.semantic.add(key, req.scope(), embedding, value, ttl)
}

// GetOrCompute returns the cached value or computes and stores it. Concurrent
// callers for the same key share one compute via singleflight.
func (c *Cache) GetOrCompute(ctx context.Context, req Request, compute func(context.Context) ([]byte, error)) ([]byte, step.CacheInfo, error) {
	if value, info, ok := c.Get(ctx, req); ok {
		return value, info, nil
	}

	result, err, shared := c.group.Do(req.exactKey(), func() (any, error) {
		value, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, req, value)
		return value, nil
	})
	if err != nil {
		return nil, step.CacheInfo{}, err
	}

	info := step.CacheInfo{}
	if shared {
		// A concurrent identical request computed it; effectively an exact hit.
		info = step.CacheInfo{Hit: true, Kind: "exact"}
	}
	return result.([]byte), info, nil
}

// Invalidate removes all entries whose namespaced key starts with prefix, in
// both layers. A tenant prefix ("acme:" or "acme:main:") clears that tenant's
// slice without touching neighbours.
func (c *Cache) Invalidate(ctx context.Context, prefix string) error {
	if err := c.store.DeletePrefix(ctx, prefix); err != nil {
		return err
	}
	if c.semantic != nil {
		c.semantic.deletePrefix(prefix)
	}
	return nil
}

// InvalidateTenant clears every cached entry for one tenant/workspace pair.
func (c *Cache) InvalidateTenant(ctx context.Context, tc tenancy.TenantContext) error {
	return c.Invalidate(ctx, tenancy.Sanitize(tc.TenantID)+":"+tenancy.Sanitize(tc.WorkspaceID)+":")
}

func (c *Cache) ttlFor(domain Domain) time.Duration {
	var ttl time.Duration
	switch domain {
	case DomainLLM:
		ttl = c.cfg.LLMTTL
	case DomainRetrieval:
		ttl = c.cfg.RetrievalTTL
	case DomainTool:
		ttl = c.cfg.ToolTTL
	case DomainRouting:
		ttl = c.cfg.RoutingTTL
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return ttl
}
