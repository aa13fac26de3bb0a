package tenancy

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/metrics"
)

func TestNamespaceSanitisation(t *testing.T) {
	tests := []struct {
		name       string
		tc         TenantContext
		collection string
		want       string
	}{
		{
			name:       "clean parts",
			tc:         TenantContext{TenantID: "acme", WorkspaceID: "prod"},
			collection: "transcripts",
			want:       "acme:prod:transcripts",
		},
		{
			name:       "colon in tenant",
			tc:         TenantContext{TenantID: "acme:corp", WorkspaceID: "prod"},
			collection: "transcripts",
			want:       "acme__corp:prod:transcripts",
		},
		{
			name:       "slash and space in workspace",
			tc:         TenantContext{TenantID: "acme", WorkspaceID: "us east/1"},
			collection: "vectors",
			want:       "acme:us__east__1:vectors",
		},
		{
			name:       "tab in collection",
			tc:         TenantContext{TenantID: "a", WorkspaceID: "b"},
			collection: "x\ty",
			want:       "a:b:x__y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Namespace(tt.tc, tt.collection))
		})
	}
}

// Property: for any inputs containing separator characters, the derived key
// contains exactly the two top-level colons.
func TestNamespaceExactlyTwoSeparators(t *testing.T) {
	nasty := []string{"a:b", "a/b", "a b", "a\tb", ":::", "a:b/c d\te"}
	for _, tenant := range nasty {
		for _, ws := range nasty {
			for _, coll := range nasty {
				ns := Namespace(TenantContext{TenantID: tenant, WorkspaceID: ws}, coll)
				assert.Equal(t, 2, strings.Count(ns, ":"), "namespace %q", ns)
			}
		}
	}
}

func TestResolverStrictMode(t *testing.T) {
	r := NewResolver(true, nil)

	_, err := r.Current(context.Background(), "cache")
	assert.ErrorIs(t, err, ErrMissingTenant)

	tc := TenantContext{TenantID: "acme", WorkspaceID: "prod", RequestID: "r1"}
	got, err := r.Current(WithTenant(context.Background(), tc), "cache")
	require.NoError(t, err)
	assert.Equal(t, tc, got)
}

func TestResolverFallbackIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := NewResolver(false, m)

	got, err := r.Current(context.Background(), "router")
	require.NoError(t, err)
	assert.Equal(t, DefaultTenant, got.TenantID)
	assert.Equal(t, DefaultWorkspace, got.WorkspaceID)

	count := testutil.ToFloat64(m.TenancyFallbacks.WithLabelValues("router"))
	assert.Equal(t, 1.0, count)
}

func TestRequestStateMachine(t *testing.T) {
	ctx := context.Background()
	req := NewRequest(TenantContext{TenantID: "acme", WorkspaceID: "prod"})

	assert.Equal(t, StateNew, req.State())

	// Side effects before activation are a programming error.
	assert.Error(t, req.Complete(ctx))
	assert.Error(t, req.Fail(ctx))

	require.NoError(t, req.Activate(ctx))
	assert.Equal(t, StateActive, req.State())

	// Double activation is invalid.
	assert.Error(t, req.Activate(ctx))

	require.NoError(t, req.Complete(ctx))
	assert.Equal(t, StateDone, req.State())

	// Terminal states are final.
	assert.Error(t, req.Fail(ctx))
}

func TestRequestFailurePath(t *testing.T) {
	ctx := context.Background()
	req := NewRequest(TenantContext{})

	require.NoError(t, req.Activate(ctx))
	require.NoError(t, req.Fail(ctx))
	assert.Equal(t, StateFailed, req.State())
}
