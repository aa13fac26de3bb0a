package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/config"
	"github.com/contentlens/contentlens/pkg/metrics"
	"github.com/contentlens/contentlens/pkg/tenancy"
)

// fakeEmbedder returns canned vectors per prompt so similarity is controlled
// exactly by the test.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		LLMTTL:            time.Hour,
		RetrievalTTL:      5 * time.Minute,
		ToolTTL:           time.Hour,
		RoutingTTL:        time.Hour,
		SemanticEnabled:   true,
		SemanticThreshold: 0.85,
		SemanticTTL:       time.Hour,
		MaxEntries:        128,
	}
}

func testTenant() tenancy.TenantContext {
	return tenancy.TenantContext{TenantID: "acme", WorkspaceID: "main"}
}

func TestExactLayerRoundTrip(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	store, err := NewMemoryStore(16)
	require.NoError(t, err)
	c, err := New(testCacheConfig(), store, nil, m)
	require.NoError(t, err)

	req := Request{Tenant: testTenant(), Domain: DomainLLM, Prompt: "summarize this", Model: "m1"}

	_, _, ok := c.Get(context.Background(), req)
	assert.False(t, ok)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("llm")))

	c.Set(context.Background(), req, []byte("answer"))

	value, info, ok := c.Get(context.Background(), req)
	require.True(t, ok)
	assert.Equal(t, []byte("answer"), value)
	assert.True(t, info.Hit)
	assert.Equal(t, "exact", info.Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("llm", "exact")))
}

func TestExactLayerTTLExpiry(t *testing.T) {
	store, err := NewMemoryStore(16)
	require.NoError(t, err)

	now := time.Now()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(context.Background(), "k", []byte("v"), time.Hour))

	_, ok, err := store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Hour)
	_, ok, err = store.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSemanticHitAboveThreshold(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"what is the revenue":  {1, 0, 0},
		"what is the revenue?": {0.99, 0.14, 0}, // cosine ~0.99
		"unrelated question":   {0, 1, 0},
	}}
	c, err := New(testCacheConfig(), mustMemory(t), emb, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	tc := testTenant()
	c.Set(context.Background(), Request{Tenant: tc, Domain: DomainLLM, Prompt: "what is the revenue", Model: "m1"}, []byte("42M"))

	// Punctuation variant: exact layer misses, semantic layer matches.
	value, info, ok := c.Get(context.Background(), Request{Tenant: tc, Domain: DomainLLM, Prompt: "what is the revenue?", Model: "m1"})
	require.True(t, ok)
	assert.Equal(t, []byte("42M"), value)
	assert.Equal(t, "semantic", info.Kind)
	assert.GreaterOrEqual(t, info.Similarity, 0.85)

	// Dissimilar prompt stays a miss even with entries present.
	_, _, ok = c.Get(context.Background(), Request{Tenant: tc, Domain: DomainLLM, Prompt: "unrelated question", Model: "m1"})
	assert.False(t, ok)
}

func TestSemanticScopedByTenantAndModel(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {1, 0, 0}}}
	c, err := New(testCacheConfig(), mustMemory(t), emb, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	c.Set(context.Background(), Request{Tenant: testTenant(), Domain: DomainLLM, Prompt: "q", Model: "m1"}, []byte("v"))

	// Same prompt, different tenant: no cross-tenant leakage.
	other := tenancy.TenantContext{TenantID: "globex", WorkspaceID: "main"}
	_, _, ok := c.Get(context.Background(), Request{Tenant: other, Domain: DomainLLM, Prompt: "q", Model: "m1"})
	assert.False(t, ok)

	// Same tenant, different model: also isolated.
	_, _, ok = c.Get(context.Background(), Request{Tenant: testTenant(), Domain: DomainLLM, Prompt: "q ", Model: "m2"})
	assert.False(t, ok)
}

func TestGetOrComputeDeduplicates(t *testing.T) {
	cfg := testCacheConfig()
	cfg.SemanticEnabled = false
	c, err := New(cfg, mustMemory(t), nil, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	req := Request{Tenant: testTenant(), Domain: DomainTool, Prompt: "expensive", Model: "m1"}

	var computes atomic.Int32
	compute := func(context.Context) ([]byte, error) {
		computes.Add(1)
		time.Sleep(50 * time.Millisecond)
		return []byte("result"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, _, err := c.GetOrCompute(context.Background(), req, compute)
			assert.NoError(t, err)
			assert.Equal(t, []byte("result"), value)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), computes.Load())

	// Subsequent call is a plain exact hit.
	_, info, err := c.GetOrCompute(context.Background(), req, compute)
	require.NoError(t, err)
	assert.True(t, info.Hit)
	assert.Equal(t, int32(1), computes.Load())
}

func TestInvalidateTenantIsolation(t *testing.T) {
	cfg := testCacheConfig()
	cfg.SemanticEnabled = false
	c, err := New(cfg, mustMemory(t), nil, metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	acme := Request{Tenant: testTenant(), Domain: DomainLLM, Prompt: "p", Model: "m"}
	globex := Request{Tenant: tenancy.TenantContext{TenantID: "globex", WorkspaceID: "main"}, Domain: DomainLLM, Prompt: "p", Model: "m"}
	c.Set(context.Background(), acme, []byte("a"))
	c.Set(context.Background(), globex, []byte("g"))

	require.NoError(t, c.InvalidateTenant(context.Background(), acme.Tenant))

	_, _, ok := c.Get(context.Background(), acme)
	assert.False(t, ok)
	value, _, ok := c.Get(context.Background(), globex)
	require.True(t, ok)
	assert.Equal(t, []byte("g"), value)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "acme:main:llm:abc", []byte("v1"), time.Minute))
	require.NoError(t, store.Set(ctx, "globex:main:llm:abc", []byte("v2"), time.Minute))

	value, ok, err := store.Get(ctx, "acme:main:llm:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), value)

	require.NoError(t, store.DeletePrefix(ctx, "acme:"))
	_, ok, err = store.Get(ctx, "acme:main:llm:abc")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = store.Get(ctx, "globex:main:llm:abc")
	require.NoError(t, err)
	assert.True(t, ok)

	// TTL enforcement.
	mr.FastForward(2 * time.Minute)
	_, ok, err = store.Get(ctx, "globex:main:llm:abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func mustMemory(t *testing.T) *MemoryStore {
	t.Helper()
	store, err := NewMemoryStore(128)
	require.NoError(t, err)
	return store
}
