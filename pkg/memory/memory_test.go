package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentlens/contentlens/pkg/step"
)

func TestVectorUpsertAndQuery(t *testing.T) {
	v := NewInMemoryVector()
	ctx := context.Background()

	require.NoError(t, v.Upsert(ctx, "acme:main:analyses", []VectorRecord{
		{ID: "a", Embedding: []float32{1, 0, 0}, Payload: map[string]any{"title": "alpha"}},
		{ID: "b", Embedding: []float32{0, 1, 0}},
		{ID: "c", Embedding: []float32{0.9, 0.1, 0}},
	}))

	matches, err := v.Query(ctx, "acme:main:analyses", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Record.ID)
	assert.Equal(t, "c", matches[1].Record.ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestVectorDimensionFixedPerNamespace(t *testing.T) {
	v := NewInMemoryVector()
	ctx := context.Background()

	require.NoError(t, v.Upsert(ctx, "ns", []VectorRecord{{ID: "a", Embedding: []float32{1, 0, 0}}}))

	err := v.Upsert(ctx, "ns", []VectorRecord{{ID: "b", Embedding: []float32{1, 0}}})
	require.Error(t, err)
	var stepErr *step.Error
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, step.CategoryValidation, stepErr.Category)

	// A different namespace is free to use another dimensionality.
	require.NoError(t, v.Upsert(ctx, "other", []VectorRecord{{ID: "b", Embedding: []float32{1, 0}}}))

	_, err = v.Query(ctx, "ns", []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorNamespaceIsolation(t *testing.T) {
	v := NewInMemoryVector()
	ctx := context.Background()

	require.NoError(t, v.Upsert(ctx, "acme:main:analyses", []VectorRecord{{ID: "a", Embedding: []float32{1, 0}}}))

	matches, err := v.Query(ctx, "globex:main:analyses", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestGraphTimelineAndSubgraph(t *testing.T) {
	g := NewInMemoryGraph()
	ctx := context.Background()
	ns := "acme:main:graph"
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"video1", "speaker1", "claim1", "claim2"} {
		require.NoError(t, g.AddNode(ctx, ns, Node{ID: id, Kind: "entity", At: base.Add(time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, g.AddEdge(ctx, ns, Edge{From: "video1", To: "speaker1", Relation: "features"}))
	require.NoError(t, g.AddEdge(ctx, ns, Edge{From: "speaker1", To: "claim1", Relation: "asserts"}))
	require.NoError(t, g.AddEdge(ctx, ns, Edge{From: "speaker1", To: "claim2", Relation: "asserts"}))

	// Edges require existing endpoints.
	assert.Error(t, g.AddEdge(ctx, ns, Edge{From: "video1", To: "ghost", Relation: "cites"}))

	timeline, err := g.Timeline(ctx, ns, base, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, "video1", timeline[0].ID)

	nodes, edges, err := g.Subgraph(ctx, ns, "video1", 1)
	require.NoError(t, err)
	assert.Len(t, nodes, 2) // video1 + speaker1
	assert.Len(t, edges, 1)

	nodes, edges, err = g.Subgraph(ctx, ns, "video1", 2)
	require.NoError(t, err)
	assert.Len(t, nodes, 4)
	assert.Len(t, edges, 3)
}
