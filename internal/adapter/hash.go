package adapter

import (
	"context"
	"hash/fnv"
	"math"
)

// HashEmbedder is a deterministic, offline Embedder. It hashes the text and
// expands the hash into a unit vector with an LCG. Identical texts always
// produce identical vectors, which is what ranking tests and offline use
// require; it carries no semantic signal beyond exact-text identity.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a HashEmbedder. dimensions <= 0 selects 384.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embedOne(text)
	}
	return out, nil
}

// Dimensions returns the embedding vector size.
func (h *HashEmbedder) Dimensions() int { return h.dimensions }

func (h *HashEmbedder) embedOne(text string) []float32 {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))
	seed := hasher.Sum64()

	vec := make([]float32, h.dimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float32(int64(seed)) / float32(math.MaxInt64)
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
