package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/contentlens/contentlens/pkg/step"
)

// Node is one graph-memory entity.
type Node struct {
	ID    string         `json:"id"`
	Kind  string         `json:"kind"`
	Props map[string]any `json:"props,omitempty"`
	At    time.Time      `json:"at"`
}

// Edge is a directed, labelled relation between two nodes.
type Edge struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Relation string         `json:"relation"`
	Props    map[string]any `json:"props,omitempty"`
	At       time.Time      `json:"at"`
}

// GraphMemory is the relationship store used at deep and experimental depths.
type GraphMemory interface {
	AddNode(ctx context.Context, namespace string, n Node) error
	AddEdge(ctx context.Context, namespace string, e Edge) error

	// Timeline returns nodes within [since, until], oldest first.
	Timeline(ctx context.Context, namespace string, since, until time.Time) ([]Node, error)

	// Subgraph returns nodes and edges reachable from root within depth hops.
	Subgraph(ctx context.Context, namespace string, rootID string, depth int) ([]Node, []Edge, error)
}

type graphStore struct {
	nodes map[string]Node
	edges []Edge
}

// InMemoryGraph is a process-local GraphMemory.
type InMemoryGraph struct {
	mu   sync.RWMutex
	data map[string]*graphStore
}

// NewInMemoryGraph creates an empty store.
func NewInMemoryGraph() *InMemoryGraph {
	return &InMemoryGraph{data: make(map[string]*graphStore)}
}

func (g *InMemoryGraph) store(namespace string) *graphStore {
	s, ok := g.data[namespace]
	if !ok {
		s = &graphStore{nodes: make(map[string]Node)}
		g.data[namespace] = s
	}
	return s
}

// AddNode inserts or replaces a node.
func (g *InMemoryGraph) AddNode(_ context.Context, namespace string, n Node) error {
	if n.ID == "" {
		return step.NewError(step.CategoryValidation, "graph node requires an id")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store(namespace).nodes[n.ID] = n
	return nil
}

// AddEdge inserts an edge. Both endpoints must already exist.
func (g *InMemoryGraph) AddEdge(_ context.Context, namespace string, e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.store(namespace)
	if _, ok := s.nodes[e.From]; !ok {
		return step.NewError(step.CategoryValidation, "edge source node not found: "+e.From)
	}
	if _, ok := s.nodes[e.To]; !ok {
		return step.NewError(step.CategoryValidation, "edge target node not found: "+e.To)
	}
	s.edges = append(s.edges, e)
	return nil
}

// Timeline returns nodes stamped within the window, oldest first.
func (g *InMemoryGraph) Timeline(_ context.Context, namespace string, since, until time.Time) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Node
	for _, n := range g.store(namespace).nodes {
		if n.At.Before(since) || n.At.After(until) {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Subgraph walks breadth-first from root up to depth hops, following edges in
// both directions.
func (g *InMemoryGraph) Subgraph(_ context.Context, namespace string, rootID string, depth int) ([]Node, []Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := g.store(namespace)
	if _, ok := s.nodes[rootID]; !ok {
		return nil, nil, step.NewError(step.CategoryValidation, "subgraph root not found: "+rootID)
	}

	visited := map[string]bool{rootID: true}
	frontier := []string{rootID}
	var edges []Edge

	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, e := range s.edges {
			for _, id := range frontier {
				var other string
				switch id {
				case e.From:
					other = e.To
				case e.To:
					other = e.From
				default:
					continue
				}
				edges = append(edges, e)
				if !visited[other] {
					visited[other] = true
					next = append(next, other)
				}
			}
		}
		frontier = next
	}

	var nodes []Node
	for id := range visited {
		nodes = append(nodes, s.nodes[id])
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, dedupeEdges(edges), nil
}

func dedupeEdges(edges []Edge) []Edge {
	seen := make(map[string]bool, len(edges))
	out := edges[:0:0]
	for _, e := range edges {
		key := e.From + "\x00" + e.To + "\x00" + e.Relation
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}
