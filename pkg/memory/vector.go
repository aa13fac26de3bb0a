// Package memory defines the vector and graph memory collaborators and ships
// in-process implementations. Namespaces follow the tenancy key derivation;
// implementations never see raw tenant IDs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/contentlens/contentlens/pkg/step"
)

// VectorRecord is one embedded document.
type VectorRecord struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// QueryMatch pairs a record with its similarity to the query.
type QueryMatch struct {
	Record VectorRecord `json:"record"`
	Score  float64      `json:"score"`
}

// VectorMemory is the embedded-document store. Dimensionality is fixed per
// namespace by the first upsert.
type VectorMemory interface {
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error
	Query(ctx context.Context, namespace string, embedding []float32, k int) ([]QueryMatch, error)
}

// InMemoryVector is a process-local VectorMemory.
type InMemoryVector struct {
	mu   sync.RWMutex
	dims map[string]int
	data map[string]map[string]VectorRecord // namespace -> id -> record
}

// NewInMemoryVector creates an empty store.
func NewInMemoryVector() *InMemoryVector {
	return &InMemoryVector{
		dims: make(map[string]int),
		data: make(map[string]map[string]VectorRecord),
	}
}

// Upsert inserts or replaces records. The first record written to a namespace
// fixes its dimensionality; later mismatches are validation errors.
func (v *InMemoryVector) Upsert(_ context.Context, namespace string, records []VectorRecord) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, rec := range records {
		dim, known := v.dims[namespace]
		if !known {
			v.dims[namespace] = len(rec.Embedding)
		} else if len(rec.Embedding) != dim {
			return step.NewError(step.CategoryValidation,
				fmt.Sprintf("embedding dimension %d does not match namespace dimension %d", len(rec.Embedding), dim))
		}

		ns, ok := v.data[namespace]
		if !ok {
			ns = make(map[string]VectorRecord)
			v.data[namespace] = ns
		}
		ns[rec.ID] = rec
	}
	return nil
}

// Query returns the k nearest records by cosine similarity, best first.
func (v *InMemoryVector) Query(_ context.Context, namespace string, embedding []float32, k int) ([]QueryMatch, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if dim, known := v.dims[namespace]; known && len(embedding) != dim {
		return nil, step.NewError(step.CategoryValidation,
			fmt.Sprintf("query dimension %d does not match namespace dimension %d", len(embedding), dim))
	}

	var matches []QueryMatch
	for _, rec := range v.data[namespace] {
		matches = append(matches, QueryMatch{Record: rec, Score: cosine32(embedding, rec.Embedding)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func cosine32(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
