package llm

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// hashEmbedderDim is the fixed dimensionality of hashed embeddings.
const hashEmbedderDim = 256

// HashEmbedder is a deterministic, dependency-free embedder built on feature
// hashing of word unigrams and bigrams. It is not a semantic model; it gives
// the semantic cache a stable notion of near-duplicate text (same words, small
// punctuation or ordering edits) without a network call.
type HashEmbedder struct{}

// NewHashEmbedder creates the embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

// Embed hashes normalized tokens into a fixed-size vector and L2-normalizes.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	vec := make([]float32, hashEmbedderDim)

	bump := func(feature string, weight float32) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum32()
		idx := sum % hashEmbedderDim
		// High bit decides sign so collisions partially cancel.
		if sum&0x80000000 != 0 {
			weight = -weight
		}
		vec[idx] += weight
	}

	for i, tok := range tokens {
		bump(tok, 1)
		if i+1 < len(tokens) {
			bump(tok+" "+tokens[i+1], 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
