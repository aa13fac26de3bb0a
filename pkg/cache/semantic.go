package cache

import (
	"math"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// semEntry is one semantic-layer candidate. Scope confines matching to one
// tenant/workspace/domain/model combination.
type semEntry struct {
	scope     string
	embedding []float32
	value     []byte
	expiresAt time.Time
}

// semanticIndex is a bounded in-process nearest-neighbour index. Lookups scan
// scope-matching entries linearly; entry counts are LRU-capped so the scan
// stays cheap.
type semanticIndex struct {
	mu  sync.Mutex
	lru *lru.Cache[string, semEntry]
	now func() time.Time
}

func newSemanticIndex(maxEntries int) (*semanticIndex, error) {
	l, err := lru.New[string, semEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &semanticIndex{lru: l, now: time.Now}, nil
}

func (i *semanticIndex) add(key, scope string, embedding []float32, value []byte, ttl time.Duration) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lru.Add(key, semEntry{
		scope:     scope,
		embedding: embedding,
		value:     value,
		expiresAt: i.now().Add(ttl),
	})
}

// search returns the best-similarity unexpired candidate within scope. The
// caller applies the similarity threshold; search only ranks.
func (i *semanticIndex) search(scope string, embedding []float32) (value []byte, sim float64, ok bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	best := -1.0
	for _, key := range i.lru.Keys() {
		entry, present := i.lru.Peek(key)
		if !present || entry.scope != scope {
			continue
		}
		if now.After(entry.expiresAt) {
			i.lru.Remove(key)
			continue
		}
		if s := cosine(embedding, entry.embedding); s > best {
			best = s
			value = entry.value
		}
	}
	if best < 0 {
		return nil, 0, false
	}
	return value, best, true
}

func (i *semanticIndex) deletePrefix(prefix string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, key := range i.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			i.lru.Remove(key)
		}
	}
}

// cosine computes cosine similarity; mismatched or zero vectors score 0.
func cosine(a, b []float32) float64 {
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
